// Package pipeline wires the booth together: intake through the normalizer,
// the composition store, the camera session, rendering and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"k8s.io/klog/v2"

	"github.com/imamik/photobooth/internal/capture"
	"github.com/imamik/photobooth/internal/filters"
	"github.com/imamik/photobooth/internal/layouts"
	"github.com/imamik/photobooth/internal/normalize"
	"github.com/imamik/photobooth/internal/render"
	"github.com/imamik/photobooth/internal/session"
)

var (
	ErrEmptyComposition = errors.New("composition has no photos")
	ErrNoCamera         = errors.New("no camera configured")
)

type Options struct {
	Layout    layouts.Layout
	Filter    filters.ID
	Normalize normalize.Options
	Workers   int

	Render        render.Options
	WatermarkPath string
	Export        ExportOptions

	// Device is optional; without it the camera tab is unavailable.
	Device       capture.Device
	Facing       capture.Facing
	CameraWidth  int
	CameraHeight int
}

func DefaultOptions() Options {
	return Options{
		Layout:    layouts.Layout2x2,
		Filter:    filters.None,
		Normalize: normalize.DefaultOptions(),
		Workers:   4,
		Render:    render.DefaultOptions(),
		Export:    DefaultExportOptions(),
		Facing:    capture.FacingFront,
	}
}

type Booth struct {
	store  *session.Store
	camera *capture.Session
	opts   Options
}

// New creates a booth. The watermark, if any, is loaded here once.
func New(opts Options) (*Booth, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Facing == "" {
		opts.Facing = capture.FacingFront
	}
	if opts.WatermarkPath != "" {
		wm, err := render.LoadWatermark(opts.WatermarkPath)
		if err != nil {
			return nil, err
		}
		opts.Render.Watermark = wm
	}

	b := &Booth{
		store: session.New(opts.Layout, opts.Filter),
		opts:  opts,
	}
	if opts.Device != nil {
		b.camera = capture.NewSession(opts.Device)
		b.camera.SetResolution(opts.CameraWidth, opts.CameraHeight)
	}
	return b, nil
}

func (b *Booth) Store() *session.Store {
	return b.store
}

// Camera returns nil when the booth has no device.
func (b *Booth) Camera() *capture.Session {
	return b.camera
}

// SetTab switches the active tab. Entering the camera tab starts the camera;
// leaving it releases the device.
func (b *Booth) SetTab(ctx context.Context, tab session.Tab) error {
	if tab == session.TabCamera && b.camera == nil {
		return fmt.Errorf("set tab %q: %w", tab, ErrNoCamera)
	}
	prev := b.store.Snapshot().Tab
	if err := b.store.SetTab(tab); err != nil {
		return err
	}

	switch {
	case tab == session.TabCamera && !cameraRunning(b.camera.State()):
		if err := b.camera.Start(ctx, b.opts.Facing); err != nil {
			return fmt.Errorf("start camera: %w", err)
		}
	case tab != session.TabCamera && prev == session.TabCamera:
		b.camera.Stop()
	}
	return nil
}

func cameraRunning(st capture.State) bool {
	switch st {
	case capture.StateRequesting, capture.StateLive, capture.StateCapturing:
		return true
	}
	return false
}

// TakePhoto snapshots the camera and adds the frame. A full layout is
// rejected before the camera is touched.
func (b *Booth) TakePhoto(ctx context.Context) (*normalize.Photo, error) {
	if b.camera == nil {
		return nil, ErrNoCamera
	}
	snap := b.store.Snapshot()
	if snap.Full() {
		return nil, &session.CapacityError{Layout: snap.Layout, Max: snap.Slots()}
	}
	epoch := b.store.Epoch()

	frame, err := b.camera.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	photo, err := normalize.FromImage(frame, "camera-"+string(b.camera.Facing()), b.opts.Normalize)
	if err != nil {
		return nil, err
	}
	if _, err := b.store.AddPhotos(epoch, photo); err != nil {
		return nil, err
	}
	klog.Infof("captured photo %s (%d left)", photo.ID, b.store.Remaining())
	return photo, nil
}

func (b *Booth) SwitchCamera(ctx context.Context) error {
	if b.camera == nil {
		return ErrNoCamera
	}
	return b.camera.Switch(ctx)
}

// Render draws the current composition.
func (b *Booth) Render() (image.Image, error) {
	return b.renderSnapshot(b.store.Snapshot())
}

func (b *Booth) renderSnapshot(snap session.Snapshot) (image.Image, error) {
	comp, err := render.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	img, err := render.Render(comp, b.opts.Render)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return img, nil
}

// Close releases the camera.
func (b *Booth) Close() {
	if b.camera != nil {
		b.camera.Stop()
	}
}
