package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"k8s.io/klog/v2"

	"github.com/imamik/photobooth/internal/filters"
)

const maxSequence = 999

type ExportOptions struct {
	Format  string // "jpeg" or "png"
	Quality int
	Prefix  string
}

func DefaultExportOptions() ExportOptions {
	return ExportOptions{Format: "jpeg", Quality: 92, Prefix: "photobooth"}
}

func (o ExportOptions) encoder() (imgio.Encoder, string, error) {
	switch strings.ToLower(o.Format) {
	case "", "jpeg", "jpg":
		q := o.Quality
		if q <= 0 || q > 100 {
			q = 92
		}
		return imgio.JPEGEncoder(q), "jpg", nil
	case "png":
		return imgio.PNGEncoder(), "png", nil
	}
	return nil, "", fmt.Errorf("unknown export format: %s (valid: jpeg, png)", o.Format)
}

// Export renders the composition into dir as
// <prefix>-<layout>-<filter>-<NNN>.<ext>, using the first free sequence
// number.
func (b *Booth) Export(dir string) (string, error) {
	snap := b.store.Snapshot()
	if len(snap.Photos) == 0 {
		return "", ErrEmptyComposition
	}
	enc, ext, err := b.opts.Export.encoder()
	if err != nil {
		return "", err
	}

	img, err := b.renderSnapshot(snap)
	if err != nil {
		return "", err
	}
	filter := snap.Filter
	if !filter.Valid() {
		filter = filters.None
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	base := fmt.Sprintf("%s-%s-%s", b.opts.Export.Prefix, snap.Layout, filter)
	path, err := nextFreeName(dir, base, ext)
	if err != nil {
		return "", err
	}

	if err := imgio.Save(path, img, enc); err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	klog.Infof("exported %s (%d photos, %s, %s)", path, len(snap.Photos), snap.Layout, filter)
	return path, nil
}

func nextFreeName(dir, base, ext string) (string, error) {
	for seq := 1; seq <= maxSequence; seq++ {
		path := filepath.Join(dir, fmt.Sprintf("%s-%03d.%s", base, seq, ext))
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("no free file name for %s in %s", base, dir)
}
