package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/imamik/photobooth/internal/filters"
	"github.com/imamik/photobooth/internal/layouts"
	"github.com/imamik/photobooth/internal/normalize"
)

func photo(name string) *normalize.Photo {
	return &normalize.Photo{ID: name, Source: name + ".jpg", Size: 1, Data: []byte(name)}
}

func ids(ps []*normalize.Photo) string {
	out := ""
	for _, p := range ps {
		out += p.ID
	}
	return out
}

func TestNewDefaults(t *testing.T) {
	s := New(layouts.Layout("bogus"), "")
	snap := s.Snapshot()
	if snap.Layout != layouts.Layout1x1 {
		t.Errorf("New() layout = %q, want %q", snap.Layout, layouts.Layout1x1)
	}
	if snap.Filter != filters.None {
		t.Errorf("New() filter = %q, want %q", snap.Filter, filters.None)
	}
	if snap.Tab != TabUpload {
		t.Errorf("New() tab = %q, want %q", snap.Tab, TabUpload)
	}
}

func TestAddPhotoCapacity(t *testing.T) {
	for _, l := range layouts.All() {
		t.Run(string(l), func(t *testing.T) {
			s := New(l, filters.None)
			slots := layouts.SlotCount(l)
			for i := 0; i < slots; i++ {
				if err := s.AddPhoto(photo(fmt.Sprint(i))); err != nil {
					t.Fatalf("AddPhoto(%d) error = %v", i, err)
				}
			}
			err := s.AddPhoto(photo("extra"))
			if !errors.Is(err, ErrCapacityExceeded) {
				t.Fatalf("AddPhoto() beyond capacity error = %v, want %v", err, ErrCapacityExceeded)
			}
			var ce *CapacityError
			if !errors.As(err, &ce) || ce.Max != slots || ce.Layout != l {
				t.Errorf("CapacityError = %+v, want Max %d Layout %s", ce, slots, l)
			}
			if got := len(s.Snapshot().Photos); got != slots {
				t.Errorf("photos = %d, want %d", got, slots)
			}
			if s.Remaining() != 0 {
				t.Errorf("Remaining() = %d, want 0", s.Remaining())
			}
		})
	}
}

func TestAddPhotosBatch(t *testing.T) {
	s := New(layouts.Layout1x3, filters.None)
	if err := s.AddPhoto(photo("A")); err != nil {
		t.Fatal(err)
	}

	rejected, err := s.AddPhotos(s.Epoch(), photo("B"), photo("C"), photo("D"))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("AddPhotos() error = %v, want %v", err, ErrCapacityExceeded)
	}
	if ids(rejected) != "D" {
		t.Errorf("rejected = %q, want %q", ids(rejected), "D")
	}
	if got := ids(s.Snapshot().Photos); got != "ABC" {
		t.Errorf("photos = %q, want %q", got, "ABC")
	}
}

func TestAddPhotosEmpty(t *testing.T) {
	s := New(layouts.Layout1x1, filters.None)
	rejected, err := s.AddPhotos(s.Epoch())
	if err != nil || rejected != nil {
		t.Errorf("AddPhotos() = %v, %v, want nil, nil", rejected, err)
	}
}

func TestAddPhotosStaleEpoch(t *testing.T) {
	s := New(layouts.Layout2x2, filters.None)
	epoch := s.Epoch()
	s.Clear()

	rejected, err := s.AddPhotos(epoch, photo("A"))
	if !errors.Is(err, ErrStale) {
		t.Errorf("AddPhotos() error = %v, want %v", err, ErrStale)
	}
	if len(rejected) != 1 {
		t.Errorf("rejected = %d, want 1", len(rejected))
	}
	if len(s.Snapshot().Photos) != 0 {
		t.Error("stale AddPhotos() modified the store")
	}
}

func TestRemovePhoto(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		want    string
		wantErr bool
	}{
		{"first", 0, "BC", false},
		{"middle", 1, "AC", false},
		{"last", 2, "AB", false},
		{"beyond length", 3, "ABC", true},
		{"negative", -1, "ABC", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(layouts.Layout1x3, filters.None)
			for _, n := range []string{"A", "B", "C"} {
				if err := s.AddPhoto(photo(n)); err != nil {
					t.Fatal(err)
				}
			}
			err := s.RemovePhoto(tt.index)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RemovePhoto(%d) error = %v, wantErr %v", tt.index, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrIndexOutOfRange) {
				t.Errorf("RemovePhoto(%d) error = %v, want %v", tt.index, err, ErrIndexOutOfRange)
			}
			if got := ids(s.Snapshot().Photos); got != tt.want {
				t.Errorf("photos = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetLayoutTruncates(t *testing.T) {
	s := New(layouts.Layout2x2, filters.None)
	for _, n := range []string{"A", "B", "C", "D"} {
		if err := s.AddPhoto(photo(n)); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.SetLayout(layouts.Layout1x2); err != nil {
		t.Fatalf("SetLayout() error = %v", err)
	}
	if got := ids(s.Snapshot().Photos); got != "AB" {
		t.Errorf("photos after 1x2 = %q, want %q", got, "AB")
	}

	if err := s.SetLayout(layouts.Layout1x4); err != nil {
		t.Fatalf("SetLayout() error = %v", err)
	}
	if got := ids(s.Snapshot().Photos); got != "AB" {
		t.Errorf("photos after growing = %q, want %q", got, "AB")
	}
	if s.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2", s.Remaining())
	}

	if err := s.SetLayout(layouts.Layout("5x5")); err == nil {
		t.Error("SetLayout() should reject an unknown layout")
	}
}

func TestSetFilterAndClear(t *testing.T) {
	s := New(layouts.Layout1x2, filters.None)
	if err := s.AddPhoto(photo("A")); err != nil {
		t.Fatal(err)
	}
	s.SetFilter(filters.Juno)
	if err := s.SetTab(TabFilters); err != nil {
		t.Fatalf("SetTab() error = %v", err)
	}
	epoch := s.Epoch()

	s.Clear()
	snap := s.Snapshot()
	if len(snap.Photos) != 0 {
		t.Errorf("Clear() left %d photos", len(snap.Photos))
	}
	if snap.Filter != filters.None {
		t.Errorf("Clear() filter = %q, want %q", snap.Filter, filters.None)
	}
	if snap.Layout != layouts.Layout1x2 {
		t.Errorf("Clear() layout = %q, want %q", snap.Layout, layouts.Layout1x2)
	}
	if snap.Tab != TabUpload {
		t.Errorf("Clear() tab = %q, want %q", snap.Tab, TabUpload)
	}
	if s.Epoch() == epoch {
		t.Error("Clear() did not advance the epoch")
	}
}

func TestSetTab(t *testing.T) {
	s := New(layouts.Layout1x1, filters.None)
	if err := s.SetTab(TabFilters); !errors.Is(err, ErrTabUnavailable) {
		t.Errorf("SetTab(filters) with no photos error = %v, want %v", err, ErrTabUnavailable)
	}
	if err := s.SetTab(TabCamera); err != nil {
		t.Errorf("SetTab(camera) error = %v", err)
	}
	if err := s.SetTab(Tab("settings")); err == nil {
		t.Error("SetTab() should reject an unknown tab")
	}
	if got := s.Snapshot().Tab; got != TabCamera {
		t.Errorf("tab = %q, want %q", got, TabCamera)
	}
}

func TestSubscribe(t *testing.T) {
	s := New(layouts.Layout1x2, filters.None)

	var got []Snapshot
	cancel := s.Subscribe(func(snap Snapshot) {
		got = append(got, snap)
	})

	if err := s.AddPhoto(photo("A")); err != nil {
		t.Fatal(err)
	}
	s.SetFilter(filters.Moon)
	_ = s.RemovePhoto(5)

	if len(got) != 2 {
		t.Fatalf("notifications = %d, want 2", len(got))
	}
	if got[0].Version >= got[1].Version {
		t.Errorf("versions not increasing: %d, %d", got[0].Version, got[1].Version)
	}
	if got[1].Filter != filters.Moon || len(got[1].Photos) != 1 {
		t.Errorf("last snapshot = %+v", got[1])
	}

	cancel()
	s.Clear()
	if len(got) != 2 {
		t.Errorf("notified after cancel: %d", len(got))
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New(layouts.Layout1x2, filters.None)
	if err := s.AddPhoto(photo("A")); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	snap.Photos[0] = photo("Z")
	if got := ids(s.Snapshot().Photos); got != "A" {
		t.Errorf("store photos = %q after mutating snapshot, want %q", got, "A")
	}
	if snap.Full() {
		t.Error("Full() = true with 1 of 2 photos")
	}
}

func TestSubscriberMayReadStore(t *testing.T) {
	s := New(layouts.Layout1x1, filters.None)
	var remaining int
	s.Subscribe(func(Snapshot) {
		remaining = s.Remaining()
	})
	if err := s.AddPhoto(photo("A")); err != nil {
		t.Fatal(err)
	}
	if remaining != 0 {
		t.Errorf("Remaining() in subscriber = %d, want 0", remaining)
	}
}
