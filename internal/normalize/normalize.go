// Package normalize turns arbitrary input images into square, re-encoded
// photos ready for composition.
package normalize

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	_ "golang.org/x/image/webp"
)

const DefaultQuality = 90

// sniffLen matches the default read limit of mimetype.
const sniffLen = 3072

type Options struct {
	Quality int
}

func DefaultOptions() Options {
	return Options{Quality: DefaultQuality}
}

// Photo is a square JPEG produced by Normalize. Data is never mutated after
// creation.
type Photo struct {
	ID     string
	Source string
	Size   int
	Data   []byte
}

func (p *Photo) Decode() (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(p.Data))
	if err != nil {
		return nil, &DecodeError{Source: p.Source, Err: err}
	}
	return img, nil
}

// DecodeError reports an input that could not be turned into a photo.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("decode: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var (
	ErrNotImage  = errors.New("not an image")
	ErrEmptySize = errors.New("image has zero width or height")
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile reports whether path has a decodable image extension and is
// not a hidden file.
func IsImageFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return imageExts[strings.ToLower(filepath.Ext(base))]
}

// Normalize decodes r, center-crops it to a square and re-encodes it.
func Normalize(r io.Reader, source string, opts Options) (*Photo, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(sniffLen)
	if len(head) == 0 {
		return nil, &DecodeError{Source: source, Err: io.ErrUnexpectedEOF}
	}
	if mt := mimetype.Detect(head); !strings.HasPrefix(mt.String(), "image/") {
		return nil, &DecodeError{Source: source, Err: fmt.Errorf("%w: %s", ErrNotImage, mt)}
	}

	img, err := imaging.Decode(br, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	return FromImage(img, source, opts)
}

// FromImage crops an already decoded image, such as a camera frame.
func FromImage(img image.Image, source string, opts Options) (*Photo, error) {
	if img == nil {
		return nil, &DecodeError{Source: source, Err: ErrEmptySize}
	}
	cropped, err := CropSquare(img)
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", source, err)
	}

	size := cropped.Bounds().Dx()
	klog.V(1).Infof("normalized %s: %dx%d -> %dx%d (%d bytes)",
		source, img.Bounds().Dx(), img.Bounds().Dy(), size, size, buf.Len())

	return &Photo{
		ID:     uuid.NewString(),
		Source: source,
		Size:   size,
		Data:   buf.Bytes(),
	}, nil
}

// CropSquare extracts the centered min(w,h) square. No resampling happens.
func CropSquare(img image.Image) (*image.NRGBA, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptySize
	}
	size := min(w, h)
	x := (w - size) / 2
	y := (h - size) / 2
	rect := image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+size, b.Min.Y+y+size)
	return imaging.Crop(img, rect), nil
}
