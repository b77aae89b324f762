// Package render draws a composition: the layout grid with one filtered,
// rounded photo per filled slot, placeholders for the rest and an optional
// watermark.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/mazznoer/csscolorparser"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"k8s.io/klog/v2"

	"github.com/imamik/photobooth/internal/filters"
	"github.com/imamik/photobooth/internal/layouts"
	"github.com/imamik/photobooth/internal/session"
)

// Options are in output pixels. PixelRatio converts the CSS px amounts of
// blur filters to output pixels.
type Options struct {
	CellSize     int
	Gap          int
	Padding      int
	CornerRadius float64
	PixelRatio   float64

	Background     color.Color
	CellBackground color.Color
	LabelColor     color.Color
	Label          string
	FontPath       string
	FontSize       float64

	Watermark        image.Image
	WatermarkHeight  int
	WatermarkMargin  int
	WatermarkOpacity float64
}

func DefaultOptions() Options {
	return Options{
		CellSize:         600,
		Gap:              16,
		Padding:          32,
		CornerRadius:     16,
		PixelRatio:       2,
		Background:       color.NRGBA{255, 255, 255, 255},
		CellBackground:   color.NRGBA{241, 245, 249, 255},
		LabelColor:       color.NRGBA{100, 116, 139, 255},
		Label:            "Add Photo",
		FontSize:         32,
		WatermarkHeight:  64,
		WatermarkMargin:  16,
		WatermarkOpacity: 0.7,
	}
}

// Composition is what gets drawn. Cells beyond the layout's slot count are
// ignored; a nil cell renders as a placeholder.
type Composition struct {
	Layout layouts.Layout
	Filter filters.ID
	Cells  []image.Image
}

// FromSnapshot decodes the photos of snap.
func FromSnapshot(snap session.Snapshot) (Composition, error) {
	c := Composition{Layout: snap.Layout, Filter: snap.Filter}
	for i, p := range snap.Photos {
		img, err := p.Decode()
		if err != nil {
			return Composition{}, fmt.Errorf("photo %d: %w", i, err)
		}
		c.Cells = append(c.Cells, img)
	}
	return c, nil
}

// Size returns the canvas size for layout l.
func Size(l layouts.Layout, opts Options) (w, h int) {
	rows, cols := layouts.GridShape(l)
	w = opts.Padding*2 + cols*opts.CellSize + (cols-1)*opts.Gap
	h = opts.Padding*2 + rows*opts.CellSize + (rows-1)*opts.Gap
	return w, h
}

func (o Options) validate() error {
	switch {
	case o.CellSize <= 0:
		return fmt.Errorf("cell size must be positive, got %d", o.CellSize)
	case o.Gap < 0 || o.Padding < 0:
		return fmt.Errorf("gap and padding must not be negative")
	case o.WatermarkOpacity < 0 || o.WatermarkOpacity > 1:
		return fmt.Errorf("watermark opacity %.2f out of range [0,1]", o.WatermarkOpacity)
	}
	return nil
}

// Render draws c. The inputs are not modified.
func Render(c Composition, opts Options) (*image.NRGBA, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	spec := layouts.Get(c.Layout)
	w, h := Size(c.Layout, opts)

	bg := opts.Background
	if bg == nil {
		bg = color.White
	}
	canvas := imaging.New(w, h, bg)

	transform := filters.Resolve(c.Filter)
	if opts.PixelRatio > 0 {
		transform = transform.ScaleBlur(opts.PixelRatio)
	}

	var face font.Face
	for i := 0; i < spec.Slots; i++ {
		row, col := i/spec.Cols, i%spec.Cols
		pt := image.Pt(
			opts.Padding+col*(opts.CellSize+opts.Gap),
			opts.Padding+row*(opts.CellSize+opts.Gap),
		)

		var cell image.Image
		if i < len(c.Cells) && c.Cells[i] != nil {
			cell = photoCell(c.Cells[i], transform, opts)
		} else {
			if face == nil {
				f, err := labelFace(opts)
				if err != nil {
					return nil, err
				}
				face = f
			}
			cell = placeholderCell(face, opts)
		}
		canvas = imaging.Overlay(canvas, cell, pt, 1.0)
	}

	if opts.Watermark != nil {
		canvas = overlayWatermark(canvas, opts)
	}

	klog.V(1).Infof("rendered %s %dx%d, %d/%d photos, filter %s",
		c.Layout, w, h, min(len(c.Cells), spec.Slots), spec.Slots, transform)
	return canvas, nil
}

func photoCell(img image.Image, t filters.Transform, opts Options) image.Image {
	size := opts.CellSize
	filled := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
	filtered := filters.Apply(filled, t)

	dc := gg.NewContext(size, size)
	dc.DrawRoundedRectangle(0, 0, float64(size), float64(size), opts.CornerRadius)
	dc.Clip()
	dc.DrawImage(filtered, 0, 0)
	dc.ResetClip()
	return dc.Image()
}

func placeholderCell(face font.Face, opts Options) image.Image {
	size := float64(opts.CellSize)
	dc := gg.NewContext(opts.CellSize, opts.CellSize)

	fill := opts.CellBackground
	if fill == nil {
		fill = color.NRGBA{241, 245, 249, 255}
	}
	dc.DrawRoundedRectangle(0, 0, size, size, opts.CornerRadius)
	dc.SetColor(fill)
	dc.Fill()

	if opts.Label != "" {
		label := opts.LabelColor
		if label == nil {
			label = color.Black
		}
		dc.SetFontFace(face)
		dc.SetColor(label)
		dc.DrawStringAnchored(opts.Label, size/2, size/2, 0.5, 0.5)
	}
	return dc.Image()
}

// overlayWatermark scales the watermark to a fixed height and places it in
// the bottom-right corner.
func overlayWatermark(canvas *image.NRGBA, opts Options) *image.NRGBA {
	wm := opts.Watermark
	if opts.WatermarkHeight > 0 {
		wm = imaging.Resize(wm, 0, opts.WatermarkHeight, imaging.Lanczos)
	}
	b := canvas.Bounds()
	pt := image.Pt(
		b.Max.X-opts.WatermarkMargin-wm.Bounds().Dx(),
		b.Max.Y-opts.WatermarkMargin-wm.Bounds().Dy(),
	)
	return imaging.Overlay(canvas, wm, pt, opts.WatermarkOpacity)
}

var (
	goFontOnce sync.Once
	goFont     *truetype.Font
	goFontErr  error
)

func labelFace(opts Options) (font.Face, error) {
	size := opts.FontSize
	if size <= 0 {
		size = float64(opts.CellSize) / 18
	}
	if opts.FontPath != "" {
		face, err := gg.LoadFontFace(opts.FontPath, size)
		if err != nil {
			return nil, fmt.Errorf("load font %s: %w", opts.FontPath, err)
		}
		return face, nil
	}
	goFontOnce.Do(func() {
		goFont, goFontErr = truetype.Parse(goregular.TTF)
	})
	if goFontErr != nil {
		return nil, fmt.Errorf("parse builtin font: %w", goFontErr)
	}
	return truetype.NewFace(goFont, &truetype.Options{Size: size}), nil
}

// LoadWatermark reads the watermark image once so every render reuses it.
func LoadWatermark(path string) (image.Image, error) {
	if path == "" {
		return nil, errors.New("no watermark path")
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load watermark: %w", err)
	}
	return img, nil
}

// ParseColor reads a CSS color: "#rgb", "#rrggbb", "#rrggbbaa", rgb() or a
// named color.
func ParseColor(s string) (color.NRGBA, error) {
	c, err := csscolorparser.Parse(strings.TrimSpace(s))
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b, a := c.RGBA255()
	return color.NRGBA{R: r, G: g, B: b, A: a}, nil
}
