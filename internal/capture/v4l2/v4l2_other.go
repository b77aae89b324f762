//go:build !linux

package v4l2

import (
	"context"
	"errors"
	"time"

	"github.com/imamik/photobooth/internal/capture"
)

var errUnsupported = errors.New("v4l2 cameras are only available on linux")

type Device struct {
	Front   string
	Back    string
	Timeout time.Duration
}

func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	return nil, errUnsupported
}
