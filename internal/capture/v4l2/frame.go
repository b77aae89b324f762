// Package v4l2 opens Video4Linux cameras as capture devices.
package v4l2

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// FourCC is a V4L2 pixel format code such as "MJPG" or "YUYV".
type FourCC string

const (
	FormatMJPEG FourCC = "MJPG"
	FormatYUYV  FourCC = "YUYV"
)

// preferred lists the formats we can decode, best first.
var preferred = []FourCC{FormatMJPEG, FormatYUYV}

func (f FourCC) code() (uint32, error) {
	if len(f) != 4 {
		return 0, fmt.Errorf("%s: illegal FourCC", f)
	}
	return uint32(f[0]) | uint32(f[1])<<8 | uint32(f[2])<<16 | uint32(f[3])<<24, nil
}

func fourCC(code uint32) FourCC {
	return FourCC([]byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)})
}

// decodeFrame turns a raw buffer in format f into an image. data must not be
// a driver buffer; the result may alias it.
func decodeFrame(f FourCC, width, height int, data []byte) (image.Image, error) {
	switch f {
	case FormatMJPEG:
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode mjpeg frame: %w", err)
		}
		return img, nil
	case FormatYUYV:
		return yuyvToYCbCr(width, height, data)
	}
	return nil, fmt.Errorf("unsupported pixel format %s", f)
}

// yuyvToYCbCr unpacks packed 4:2:2 Y0 U Y1 V samples into planar YCbCr.
func yuyvToYCbCr(width, height int, data []byte) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("yuyv frame: bad size %dx%d", width, height)
	}
	if want := width * height * 2; len(data) < want {
		return nil, fmt.Errorf("yuyv frame: got %d bytes, want %d", len(data), want)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := data[y*width*2 : (y+1)*width*2]
		for x := 0; x < width; x += 2 {
			p := row[x*2 : x*2+4]
			img.Y[y*img.YStride+x] = p[0]
			img.Y[y*img.YStride+x+1] = p[2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = p[1]
			img.Cr[ci] = p[3]
		}
	}
	return img, nil
}

// devicePath picks the node for the requested facing. A single camera
// serves both facings.
func devicePath(front, back string, wantBack bool) string {
	if wantBack && back != "" {
		return back
	}
	if front != "" {
		return front
	}
	return DefaultPath
}

const DefaultPath = "/dev/video0"
