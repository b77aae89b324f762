package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/imamik/photobooth/internal/normalize"
	"github.com/imamik/photobooth/internal/session"
)

// FileError is a per-file intake failure.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Report aggregates the outcome of one upload.
type Report struct {
	Added    []*normalize.Photo
	Failed   []*FileError
	Rejected []string
	Capacity *session.CapacityError
}

// Err joins every failure, or returns nil when all files were added.
func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Failed)+1)
	for _, fe := range r.Failed {
		errs = append(errs, fe)
	}
	if r.Capacity != nil {
		errs = append(errs, r.Capacity)
	}
	return errors.Join(errs...)
}

// Summary is the single message shown to the user.
func (r *Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "added %d photo(s)", len(r.Added))
	if len(r.Failed) > 0 {
		names := make([]string, len(r.Failed))
		for i, fe := range r.Failed {
			names[i] = fe.Name
		}
		fmt.Fprintf(&sb, "; could not process %s", strings.Join(names, ", "))
	}
	if r.Capacity != nil {
		fmt.Fprintf(&sb, "; skipped %d: %v", len(r.Rejected), r.Capacity)
	}
	return sb.String()
}

// Upload normalizes paths concurrently and adds them in input order until
// the layout is full. Files are only decoded while slots remain; the rest are
// rejected unread. A failing file never stops the others. The returned error
// is only for failures of the whole batch, such as a Clear racing the upload;
// per-file problems are in the report.
func (b *Booth) Upload(ctx context.Context, paths []string) (*Report, error) {
	report := &Report{}
	if len(paths) == 0 {
		return report, nil
	}

	epoch := b.store.Epoch()
	free := b.store.Remaining()
	if free <= 0 {
		snap := b.store.Snapshot()
		report.Rejected = append(report.Rejected, paths...)
		report.Capacity = &session.CapacityError{Layout: snap.Layout, Max: snap.Slots()}
		return report, nil
	}

	// Each round decodes at most as many files as there are open slots, so
	// files past capacity are never read.
	ok := make([]*normalize.Photo, 0, free)
	next := 0
	for next < len(paths) && len(ok) < free {
		batch := paths[next:min(len(paths), next+free-len(ok))]
		photos, failures, err := b.normalizeBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
		for i, path := range batch {
			if failures[i] != nil {
				klog.Warningf("upload: %s: %v", path, failures[i])
				report.Failed = append(report.Failed, &FileError{Name: path, Err: failures[i]})
				continue
			}
			ok = append(ok, photos[i])
		}
		next += len(batch)
	}
	unread := paths[next:]

	rejected, err := b.store.AddPhotos(epoch, ok...)
	var ce *session.CapacityError
	switch {
	case errors.As(err, &ce):
		report.Capacity = ce
	case err != nil:
		return nil, fmt.Errorf("upload: %w", err)
	}
	report.Added = ok[:len(ok)-len(rejected)]
	for _, p := range rejected {
		report.Rejected = append(report.Rejected, p.Source)
	}
	if len(unread) > 0 {
		report.Rejected = append(report.Rejected, unread...)
		if report.Capacity == nil {
			snap := b.store.Snapshot()
			report.Capacity = &session.CapacityError{Layout: snap.Layout, Max: snap.Slots()}
		}
	}

	klog.Infof("upload: %s", report.Summary())
	return report, nil
}

// normalizeBatch normalizes paths with at most Workers files in flight.
// Per-file errors are returned by index; only cancellation fails the batch.
func (b *Booth) normalizeBatch(ctx context.Context, paths []string) ([]*normalize.Photo, []error, error) {
	photos := make([]*normalize.Photo, len(paths))
	failures := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := b.normalizeFile(path)
			if err != nil {
				failures[i] = err
				return nil
			}
			photos[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return photos, failures, nil
}

func (b *Booth) normalizeFile(path string) (*normalize.Photo, error) {
	f, err := os.Open(path) //nolint:gosec // user-selected input
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return normalize.Normalize(f, path, b.opts.Normalize)
}

// FindImages walks root and returns image files in lexical order. Hidden
// files and directories are skipped.
func FindImages(root string) ([]string, error) {
	var found []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && strings.HasPrefix(filepath.Base(path), ".") {
				return godirwalk.SkipThis
			}
			if de.IsDir() {
				return nil
			}
			if normalize.IsImageFile(path) {
				found = append(found, path)
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("find images in %s: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}

// UploadDir uploads every image found under dir.
func (b *Booth) UploadDir(ctx context.Context, dir string) (*Report, error) {
	paths, err := FindImages(dir)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("upload: found %d images in %s", len(paths), dir)
	return b.Upload(ctx, paths)
}
