// Package session holds the composition state of a booth: the ordered photo
// list, the layout, the active filter and the active tab.
//
// A Store is the single owner of that state. Mutations are serialized and
// every successful mutation is published to subscribers as an immutable
// Snapshot.
package session

import (
	"errors"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"github.com/imamik/photobooth/internal/filters"
	"github.com/imamik/photobooth/internal/layouts"
	"github.com/imamik/photobooth/internal/normalize"
)

type Tab string

const (
	TabUpload  Tab = "upload"
	TabCamera  Tab = "camera"
	TabFilters Tab = "filters"
)

func (t Tab) Valid() bool {
	switch t {
	case TabUpload, TabCamera, TabFilters:
		return true
	}
	return false
}

var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrStale            = errors.New("session changed since intake began")
	ErrTabUnavailable   = errors.New("tab unavailable")
)

// CapacityError is returned when a photo does not fit the current layout.
type CapacityError struct {
	Layout layouts.Layout
	Max    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("maximum of %d photos allowed for %s layout", e.Max, e.Layout)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// Snapshot is a read-only copy of the store at one version.
type Snapshot struct {
	Photos  []*normalize.Photo
	Layout  layouts.Layout
	Filter  filters.ID
	Tab     Tab
	Version uint64
}

func (s Snapshot) Slots() int {
	return layouts.SlotCount(s.Layout)
}

func (s Snapshot) Full() bool {
	return len(s.Photos) >= s.Slots()
}

type Store struct {
	mu      sync.Mutex
	photos  []*normalize.Photo
	layout  layouts.Layout
	filter  filters.ID
	tab     Tab
	version uint64
	epoch   uint64

	subs   map[int]func(Snapshot)
	nextID int
}

func New(layout layouts.Layout, filter filters.ID) *Store {
	if !layout.Valid() {
		layout = layouts.Layout1x1
	}
	if filter == "" {
		filter = filters.None
	}
	return &Store{
		layout: layout,
		filter: filter,
		tab:    TabUpload,
		subs:   make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn to be called after every mutation. Calls happen on
// the mutating goroutine, outside the store lock; use Snapshot.Version to
// discard out-of-order deliveries.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Epoch changes on every Clear. Intake that started before a Clear must not
// commit into the cleared session.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Store) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return layouts.SlotCount(s.layout) - len(s.photos)
}

func (s *Store) AddPhoto(p *normalize.Photo) error {
	s.mu.Lock()
	if slots := layouts.SlotCount(s.layout); len(s.photos) >= slots {
		s.mu.Unlock()
		return &CapacityError{Layout: s.layout, Max: slots}
	}
	s.photos = append(s.photos, p)
	klog.V(1).Infof("added photo %s (%d/%d)", p.ID, len(s.photos), layouts.SlotCount(s.layout))
	s.commitLocked()
	return nil
}

// AddPhotos appends ps in order until the layout is full and returns the
// photos that did not fit. Nothing is added when epoch is stale.
func (s *Store) AddPhotos(epoch uint64, ps ...*normalize.Photo) (rejected []*normalize.Photo, err error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return ps, ErrStale
	}
	slots := layouts.SlotCount(s.layout)
	free := slots - len(s.photos)
	if free < 0 {
		free = 0
	}
	n := min(free, len(ps))
	if n == 0 {
		s.mu.Unlock()
		if len(ps) == 0 {
			return nil, nil
		}
		return ps, &CapacityError{Layout: s.layout, Max: slots}
	}
	s.photos = append(s.photos, ps[:n]...)
	layout := s.layout
	s.commitLocked()

	if n < len(ps) {
		return ps[n:], &CapacityError{Layout: layout, Max: slots}
	}
	return nil, nil
}

func (s *Store) RemovePhoto(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.photos) {
		n := len(s.photos)
		s.mu.Unlock()
		return fmt.Errorf("remove photo %d of %d: %w", index, n, ErrIndexOutOfRange)
	}
	photos := make([]*normalize.Photo, 0, len(s.photos)-1)
	photos = append(photos, s.photos[:index]...)
	photos = append(photos, s.photos[index+1:]...)
	s.photos = photos
	s.fallbackTabLocked()
	s.commitLocked()
	return nil
}

// SetLayout switches the layout and drops photos beyond its slot count.
func (s *Store) SetLayout(l layouts.Layout) error {
	if !l.Valid() {
		return fmt.Errorf("set layout: unknown layout %q", l)
	}
	s.mu.Lock()
	s.layout = l
	if slots := layouts.SlotCount(l); len(s.photos) > slots {
		klog.V(1).Infof("layout %s: dropping %d photos", l, len(s.photos)-slots)
		s.photos = append([]*normalize.Photo(nil), s.photos[:slots]...)
	}
	s.commitLocked()
	return nil
}

func (s *Store) SetFilter(id filters.ID) {
	s.mu.Lock()
	s.filter = id
	s.commitLocked()
}

func (s *Store) SetTab(t Tab) error {
	if !t.Valid() {
		return fmt.Errorf("set tab %q: %w", t, ErrTabUnavailable)
	}
	s.mu.Lock()
	if t == TabFilters && len(s.photos) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("set tab %q: no photos: %w", t, ErrTabUnavailable)
	}
	s.tab = t
	s.commitLocked()
	return nil
}

// Clear empties the photo list and resets the filter. The layout is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	s.photos = nil
	s.filter = filters.None
	s.epoch++
	s.fallbackTabLocked()
	s.commitLocked()
}

func (s *Store) fallbackTabLocked() {
	if len(s.photos) == 0 && s.tab == TabFilters {
		s.tab = TabUpload
	}
}

// commitLocked bumps the version, releases the lock and notifies subscribers.
func (s *Store) commitLocked() {
	s.version++
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	photos := make([]*normalize.Photo, len(s.photos))
	copy(photos, s.photos)
	return Snapshot{
		Photos:  photos,
		Layout:  s.layout,
		Filter:  s.filter,
		Tab:     s.tab,
		Version: s.version,
	}
}
