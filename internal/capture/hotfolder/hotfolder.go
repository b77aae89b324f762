// Package hotfolder turns a directory into a camera. A tethered camera or
// phone drops files into the folder; each image that stops changing becomes
// the next frame.
package hotfolder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"

	"github.com/imamik/photobooth/internal/capture"
	"github.com/imamik/photobooth/internal/normalize"
)

const DefaultSettle = 300 * time.Millisecond

var ErrClosed = errors.New("hot folder closed")

// Device watches Front or Back depending on the requested facing. An empty
// Back falls back to Front.
type Device struct {
	Front  string
	Back   string
	Settle time.Duration
}

func (d *Device) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	dir := d.Front
	if c.Facing == capture.FacingBack && d.Back != "" {
		dir = d.Back
	}
	if dir == "" {
		return nil, errors.New("no hot folder configured")
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("hot folder: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("hot folder: %s is not a directory", dir)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settle := d.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	st, err := Watch(dir, settle)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Stream delivers the most recent settled image. Older unread images are
// dropped.
type Stream struct {
	dir     string
	settle  time.Duration
	watcher *fsnotify.Watcher

	mailbox chan string
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu      sync.Mutex
	pending map[string]*time.Timer
	dropped uint64
}

func Watch(dir string, settle time.Duration) (*Stream, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	s := &Stream{
		dir:     dir,
		settle:  settle,
		watcher: w,
		mailbox: make(chan string, 1),
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}
	s.wg.Add(1)
	go s.loop()

	klog.Infof("hot folder: watching %s", dir)
	return s, nil
}

func (s *Stream) loop() {
	defer s.wg.Done()
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !normalize.IsImageFile(event.Name) {
				continue
			}
			klog.V(1).Infof("hot folder: %s", event)
			s.touch(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			klog.Warningf("hot folder %s: %v", s.dir, err)
		case <-s.done:
			return
		}
	}
}

// touch restarts the settle timer for path.
func (s *Stream) touch(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[path]; ok {
		t.Reset(s.settle)
		return
	}
	s.pending[path] = time.AfterFunc(s.settle, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		s.publish(path)
	})
}

func (s *Stream) publish(path string) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.mailbox <- path:
			return
		default:
		}
		select {
		case old := <-s.mailbox:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
			klog.V(1).Infof("hot folder: dropping unread %s", filepath.Base(old))
		default:
		}
	}
}

// Dropped counts images replaced by a newer one before being read.
func (s *Stream) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Frame blocks until the next image settles.
func (s *Stream) Frame(ctx context.Context) (image.Image, error) {
	select {
	case path := <-s.mailbox:
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("hot folder frame %s: %w", filepath.Base(path), err)
		}
		return img, nil
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Next returns the path of the next settled image without decoding it.
func (s *Stream) Next(ctx context.Context) (string, error) {
	select {
	case path := <-s.mailbox:
		return path, nil
	case <-s.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()

		s.mu.Lock()
		for path, t := range s.pending {
			t.Stop()
			delete(s.pending, path)
		}
		s.mu.Unlock()
		klog.V(1).Infof("hot folder: closed %s", s.dir)
	})
	return err
}
