// Package capture manages the lifecycle of a live camera feed.
//
// A Session owns at most one open Stream at a time. Every transition out of
// Live or Requesting releases the previous stream before a new one is
// acquired, so a facing switch never leaks a device handle.
//
//	Idle/Stopped -> Requesting -> Live -> Capturing -> Live -> Stopped
//	               Requesting -> Idle (access error)
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"k8s.io/klog/v2"
)

type Facing string

const (
	FacingFront Facing = "front"
	FacingBack  Facing = "back"
)

func (f Facing) Other() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

func ParseFacing(s string) (Facing, error) {
	switch Facing(s) {
	case FacingFront, "user":
		return FacingFront, nil
	case FacingBack, "environment":
		return FacingBack, nil
	}
	return "", fmt.Errorf("unknown facing mode: %s (valid: front, back)", s)
}

type State int

const (
	StateIdle State = iota
	StateRequesting
	StateLive
	StateCapturing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateLive:
		return "live"
	case StateCapturing:
		return "capturing"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const (
	IdealWidth  = 1280
	IdealHeight = 720
)

// Constraints are the ideal stream parameters requested from a Device. A
// device may deliver a different resolution.
type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

// Device acquires streams. Open blocks until the device is ready or fails.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open device handle. Frame returns the current frame; Close
// releases the device and is never called concurrently with Frame by Session.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

var (
	ErrNotLive    = errors.New("camera is not live")
	ErrSuperseded = errors.New("camera request superseded")
)

// AccessError is reported when a device cannot be opened: permission denied,
// missing hardware or a busy device.
type AccessError struct {
	Facing Facing
	Err    error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("could not access %s camera: %v", e.Facing, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// Message is the text shown to the user.
func (e *AccessError) Message() string {
	return "Could not access camera. Please make sure you've granted permission."
}

type Session struct {
	device Device
	width  int
	height int

	mu      sync.Mutex
	state   State
	facing  Facing
	stream  Stream
	gen      uint64
	lastErr  error
	pending  *capture
	draining *capture
}

// capture is an in-flight Snapshot. A stream detached while it is being read
// is closed by the Snapshot once the read returns; done is closed after that.
type capture struct {
	stream   Stream
	detached bool
	done     chan struct{}
}

func NewSession(device Device) *Session {
	return &Session{
		device: device,
		width:  IdealWidth,
		height: IdealHeight,
		state:  StateIdle,
		facing: FacingFront,
	}
}

// SetResolution overrides the ideal 1280x720 request for later starts.
func (s *Session) SetResolution(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width > 0 && height > 0 {
		s.width, s.height = width, height
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Facing() Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// Err returns the error of the last failed Start, nil after a successful one.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start opens the device for facing. A live stream is released first, and a
// stream still being read by a Snapshot is waited for. If a Stop or another
// Start happens while the device is opening, the late stream is closed and
// ErrSuperseded is returned.
func (s *Session) Start(ctx context.Context, facing Facing) error {
	s.mu.Lock()
	old := s.detachLocked()
	draining := s.draining
	s.gen++
	gen := s.gen
	s.state = StateRequesting
	s.facing = facing
	s.lastErr = nil
	c := Constraints{Facing: facing, Width: s.width, Height: s.height}
	s.mu.Unlock()

	release(old)
	if draining != nil {
		select {
		case <-draining.done:
		case <-ctx.Done():
			s.mu.Lock()
			if s.gen == gen {
				s.state = StateIdle
			}
			s.mu.Unlock()
			return fmt.Errorf("start %s camera: %w", facing, ctx.Err())
		}
		s.mu.Lock()
		superseded := s.gen != gen
		s.mu.Unlock()
		if superseded {
			return ErrSuperseded
		}
	}

	klog.V(1).Infof("camera: requesting %s stream %dx%d", facing, c.Width, c.Height)
	st, err := s.device.Open(ctx, c)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		release(st)
		return ErrSuperseded
	}
	if err != nil {
		aerr := &AccessError{Facing: facing, Err: err}
		s.state = StateIdle
		s.lastErr = aerr
		s.mu.Unlock()
		klog.Errorf("camera: %v", aerr)
		return aerr
	}
	s.stream = st
	s.state = StateLive
	s.mu.Unlock()

	klog.Infof("camera: %s stream live", facing)
	return nil
}

// Stop releases the stream and leaves the session Stopped. Safe to call in
// any state, any number of times.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateStopped && s.stream == nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	st := s.detachLocked()
	s.state = StateStopped
	s.mu.Unlock()

	if release(st) {
		klog.Infof("camera: stopped")
	}
}

// Switch restarts the session with the other facing mode.
func (s *Session) Switch(ctx context.Context) error {
	next := s.Facing().Other()
	s.Stop()
	return s.Start(ctx, next)
}

// Snapshot grabs the current frame. Front camera frames are mirrored so the
// still matches the mirrored preview.
func (s *Session) Snapshot(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if s.state != StateLive || s.stream == nil {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("snapshot in state %s: %w", state, ErrNotLive)
	}
	c := &capture{stream: s.stream, done: make(chan struct{})}
	facing := s.facing
	s.pending = c
	s.state = StateCapturing
	s.mu.Unlock()

	frame, err := c.stream.Frame(ctx)

	s.mu.Lock()
	if s.pending == c {
		s.pending = nil
	}
	detached := c.detached
	if !detached {
		s.state = StateLive
	}
	s.mu.Unlock()
	if detached {
		release(c.stream)
		s.mu.Lock()
		if s.draining == c {
			s.draining = nil
		}
		s.mu.Unlock()
	}
	close(c.done)

	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if frame == nil {
		return nil, fmt.Errorf("snapshot: empty frame")
	}
	if facing == FacingFront {
		return imaging.FlipH(frame), nil
	}
	return frame, nil
}

// detachLocked removes the current stream from the session and returns it
// for release, or nil when a Snapshot is reading it and will close it.
func (s *Session) detachLocked() Stream {
	st := s.stream
	s.stream = nil
	if st != nil && s.pending != nil && s.state == StateCapturing {
		s.pending.detached = true
		s.draining = s.pending
		s.pending = nil
		return nil
	}
	return st
}

func release(st Stream) bool {
	if st == nil {
		return false
	}
	if err := st.Close(); err != nil {
		klog.Warningf("camera: close stream: %v", err)
	}
	return true
}
