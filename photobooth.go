package photobooth

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/imamik/photobooth/internal/filters"
	"github.com/imamik/photobooth/internal/layouts"
	"github.com/imamik/photobooth/internal/normalize"
	"github.com/imamik/photobooth/internal/pipeline"
	"github.com/imamik/photobooth/internal/render"
	"github.com/imamik/photobooth/internal/session"
)

type Layout = layouts.Layout

const (
	Layout1x1 Layout = layouts.Layout1x1
	Layout1x2 Layout = layouts.Layout1x2
	Layout1x3 Layout = layouts.Layout1x3
	Layout1x4 Layout = layouts.Layout1x4
	Layout2x2 Layout = layouts.Layout2x2
)

type FilterID = filters.ID

const (
	FilterNone       FilterID = filters.None
	FilterGrayscale  FilterID = filters.Grayscale
	FilterSepia      FilterID = filters.Sepia
	FilterInvert     FilterID = filters.Invert
	FilterBlur       FilterID = filters.Blur
	FilterBrightness FilterID = filters.Brightness
	FilterContrast   FilterID = filters.Contrast
	FilterClarendon  FilterID = filters.Clarendon
	FilterGingham    FilterID = filters.Gingham
	FilterMoon       FilterID = filters.Moon
	FilterLark       FilterID = filters.Lark
	FilterReyes      FilterID = filters.Reyes
	FilterJuno       FilterID = filters.Juno
	FilterSlumber    FilterID = filters.Slumber
	FilterCrema      FilterID = filters.Crema
	FilterLudwig     FilterID = filters.Ludwig
	FilterAden       FilterID = filters.Aden
	FilterPerpetua   FilterID = filters.Perpetua
)

type Filter = filters.Filter

type Report = pipeline.Report

var (
	ErrEmptyComposition = pipeline.ErrEmptyComposition
	ErrCapacityExceeded = session.ErrCapacityExceeded
)

type Options struct {
	Layout    Layout
	Filter    FilterID
	Watermark string
	CellSize  int
	Workers   int
}

func DefaultOptions() Options {
	return Options{
		Layout:   Layout2x2,
		Filter:   FilterNone,
		CellSize: render.DefaultOptions().CellSize,
		Workers:  4,
	}
}

func (o Options) renderOptions() render.Options {
	ro := render.DefaultOptions()
	if o.CellSize > 0 {
		ro.CellSize = o.CellSize
	}
	return ro
}

// Compose lays out the input files and writes the result to outputPath. The
// format follows the extension of outputPath. Files that fail to decode are
// reported, not fatal.
func Compose(inputs []string, outputPath string, opts Options) (*Report, error) {
	po := pipeline.DefaultOptions()
	po.Layout = opts.Layout
	po.Filter = opts.Filter
	po.Workers = opts.Workers
	po.WatermarkPath = opts.Watermark
	po.Render = opts.renderOptions()

	booth, err := pipeline.New(po)
	if err != nil {
		return nil, err
	}
	defer booth.Close()

	report, err := booth.Upload(context.Background(), inputs)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if len(report.Added) == 0 {
		return report, pipeline.ErrEmptyComposition
	}

	img, err := booth.Render()
	if err != nil {
		return report, err
	}
	if err := imaging.Save(img, outputPath); err != nil {
		return report, fmt.Errorf("failed to save image: %w", err)
	}
	return report, nil
}

// ComposeImages renders already decoded images. Each image is center-cropped
// to a square first.
func ComposeImages(imgs []image.Image, opts Options) (image.Image, error) {
	slots := layouts.SlotCount(opts.Layout)
	if len(imgs) > slots {
		return nil, &session.CapacityError{Layout: opts.Layout, Max: slots}
	}

	ro := opts.renderOptions()
	if opts.Watermark != "" {
		wm, err := render.LoadWatermark(opts.Watermark)
		if err != nil {
			return nil, err
		}
		ro.Watermark = wm
	}

	comp := render.Composition{Layout: opts.Layout, Filter: opts.Filter}
	for i, img := range imgs {
		sq, err := normalize.CropSquare(img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		comp.Cells = append(comp.Cells, sq)
	}
	out, err := render.Render(comp, ro)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func Layouts() []Layout {
	return layouts.All()
}

func Filters() []Filter {
	return filters.All()
}
