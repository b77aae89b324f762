//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/blackjack/webcam"
	"k8s.io/klog/v2"

	"github.com/imamik/photobooth/internal/capture"
)

// Device opens V4L2 nodes. Front and Back are device paths; when Back is
// empty the front camera serves both facings.
type Device struct {
	Front   string
	Back    string
	Timeout time.Duration
}

func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	path := devicePath(d.Front, d.Back, c.Facing == capture.FacingBack)

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	format, err := pickFormat(cam)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	code, _ := format.code()

	pf, w, h, err := cam.SetImageFormat(webcam.PixelFormat(code), uint32(c.Width), uint32(c.Height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("%s: set format %s %dx%d: %w", path, format, c.Width, c.Height, err)
	}
	if got := fourCC(uint32(pf)); got != format {
		cam.Close()
		return nil, fmt.Errorf("%s: driver switched format to %s", path, got)
	}

	if err := ctx.Err(); err != nil {
		cam.Close()
		return nil, err
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%s: start streaming: %w", path, err)
	}

	klog.V(1).Infof("v4l2: %s streaming %s %dx%d", path, format, w, h)

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &stream{
		cam:     cam,
		path:    path,
		format:  format,
		width:   int(w),
		height:  int(h),
		timeout: timeout,
	}, nil
}

func pickFormat(cam *webcam.Webcam) (FourCC, error) {
	supported := cam.GetSupportedFormats()
	for _, f := range preferred {
		code, _ := f.code()
		if _, ok := supported[webcam.PixelFormat(code)]; ok {
			return f, nil
		}
	}
	return "", errors.New("no supported pixel format (want MJPG or YUYV)")
}

type stream struct {
	cam     *webcam.Webcam
	path    string
	format  FourCC
	width   int
	height  int
	timeout time.Duration
}

// Frame waits for the next buffer. The wait is sliced into one second polls
// so a cancelled context is noticed.
func (s *stream) Frame(ctx context.Context) (image.Image, error) {
	deadline := time.Now().Add(s.timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := s.cam.WaitForFrame(1)
		var timeout *webcam.Timeout
		switch {
		case errors.As(err, &timeout):
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("%s: no frame within %s", s.path, s.timeout)
			}
			continue
		case err != nil:
			return nil, fmt.Errorf("%s: wait for frame: %w", s.path, err)
		}

		buf, index, err := s.cam.GetFrame()
		if err != nil {
			return nil, fmt.Errorf("%s: read frame: %w", s.path, err)
		}
		if len(buf) == 0 {
			s.cam.ReleaseFrame(index)
			continue
		}
		data := make([]byte, len(buf))
		copy(data, buf)
		if err := s.cam.ReleaseFrame(index); err != nil {
			klog.Warningf("v4l2: %s: release buffer %d: %v", s.path, index, err)
		}
		return decodeFrame(s.format, s.width, s.height, data)
	}
}

func (s *stream) Close() error {
	klog.V(1).Infof("v4l2: closing %s", s.path)
	return s.cam.Close()
}
