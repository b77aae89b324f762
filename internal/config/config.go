package config

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imamik/photobooth/internal/capture"
	"github.com/imamik/photobooth/internal/filters"
	"github.com/imamik/photobooth/internal/layouts"
	"github.com/imamik/photobooth/internal/normalize"
	"github.com/imamik/photobooth/internal/render"
)

// Config is the booth configuration file.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Camera    CameraConfig    `yaml:"camera"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Render    RenderConfig    `yaml:"render"`
	Export    ExportConfig    `yaml:"export"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type SessionConfig struct {
	Layout string `yaml:"layout"`
	Filter string `yaml:"filter"`
}

type CameraConfig struct {
	Device              string `yaml:"device"` // "v4l2" or "folder"
	Facing              string `yaml:"facing"`
	Front               string `yaml:"front"` // device node or folder
	Back                string `yaml:"back"`
	Width               int    `yaml:"width"`
	Height              int    `yaml:"height"`
	FrameTimeoutSeconds int    `yaml:"frame_timeout_seconds"`
	SettleMs            int    `yaml:"settle_ms"` // folder only
}

type NormalizeConfig struct {
	Quality int `yaml:"quality"`
	Workers int `yaml:"workers"`
}

type RenderConfig struct {
	CellSize       int             `yaml:"cell_size"`
	Gap            int             `yaml:"gap"`
	Padding        int             `yaml:"padding"`
	CornerRadius   float64         `yaml:"corner_radius"`
	PixelRatio     float64         `yaml:"pixel_ratio"`
	Background     string          `yaml:"background"`
	CellBackground string          `yaml:"cell_background"`
	LabelColor     string          `yaml:"label_color"`
	Label          string          `yaml:"label"`
	FontPath       string          `yaml:"font_path"`
	FontSize       float64         `yaml:"font_size"`
	Watermark      WatermarkConfig `yaml:"watermark"`
}

type WatermarkConfig struct {
	Path    string  `yaml:"path"`
	Height  int     `yaml:"height"`
	Margin  int     `yaml:"margin"`
	Opacity float64 `yaml:"opacity"`
}

type ExportConfig struct {
	Dir     string `yaml:"dir"`
	Format  string `yaml:"format"` // "jpeg" or "png"
	Quality int    `yaml:"quality"`
	Prefix  string `yaml:"prefix"`
}

type LoggingConfig struct {
	Verbosity int `yaml:"verbosity"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	rd := render.DefaultOptions()

	if c.Session.Layout == "" {
		c.Session.Layout = string(layouts.Layout2x2)
	}
	if c.Session.Filter == "" {
		c.Session.Filter = string(filters.None)
	}

	if c.Camera.Device == "" {
		c.Camera.Device = "v4l2"
	}
	if c.Camera.Facing == "" {
		c.Camera.Facing = string(capture.FacingFront)
	}
	if c.Camera.Width == 0 {
		c.Camera.Width = capture.IdealWidth
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = capture.IdealHeight
	}
	if c.Camera.FrameTimeoutSeconds == 0 {
		c.Camera.FrameTimeoutSeconds = 5
	}
	if c.Camera.SettleMs == 0 {
		c.Camera.SettleMs = 300
	}

	if c.Normalize.Quality == 0 {
		c.Normalize.Quality = normalize.DefaultQuality
	}
	if c.Normalize.Workers == 0 {
		c.Normalize.Workers = 4
	}

	if c.Render.CellSize == 0 {
		c.Render.CellSize = rd.CellSize
	}
	if c.Render.Gap == 0 {
		c.Render.Gap = rd.Gap
	}
	if c.Render.Padding == 0 {
		c.Render.Padding = rd.Padding
	}
	if c.Render.CornerRadius == 0 {
		c.Render.CornerRadius = rd.CornerRadius
	}
	if c.Render.PixelRatio == 0 {
		c.Render.PixelRatio = rd.PixelRatio
	}
	if c.Render.Background == "" {
		c.Render.Background = "#ffffff"
	}
	if c.Render.CellBackground == "" {
		c.Render.CellBackground = "#f1f5f9"
	}
	if c.Render.LabelColor == "" {
		c.Render.LabelColor = "#64748b"
	}
	if c.Render.Label == "" {
		c.Render.Label = rd.Label
	}
	if c.Render.FontSize == 0 {
		c.Render.FontSize = rd.FontSize
	}
	if c.Render.Watermark.Height == 0 {
		c.Render.Watermark.Height = rd.WatermarkHeight
	}
	if c.Render.Watermark.Margin == 0 {
		c.Render.Watermark.Margin = rd.WatermarkMargin
	}
	if c.Render.Watermark.Opacity == 0 {
		c.Render.Watermark.Opacity = rd.WatermarkOpacity
	}

	if c.Export.Dir == "" {
		c.Export.Dir = "."
	}
	if c.Export.Format == "" {
		c.Export.Format = "jpeg"
	}
	if c.Export.Quality == 0 {
		c.Export.Quality = 92
	}
	if c.Export.Prefix == "" {
		c.Export.Prefix = "photobooth"
	}
}

// Validate checks values that have a closed set of choices.
func (c *Config) Validate() error {
	if _, err := layouts.Parse(c.Session.Layout); err != nil {
		return fmt.Errorf("session.layout: %w", err)
	}
	if _, err := filters.Parse(c.Session.Filter); err != nil {
		return fmt.Errorf("session.filter: %w", err)
	}
	switch c.Camera.Device {
	case "v4l2", "folder":
	default:
		return fmt.Errorf("camera.device: unknown device %q (valid: v4l2, folder)", c.Camera.Device)
	}
	if _, err := capture.ParseFacing(c.Camera.Facing); err != nil {
		return fmt.Errorf("camera.facing: %w", err)
	}
	if c.Normalize.Quality < 1 || c.Normalize.Quality > 100 {
		return fmt.Errorf("normalize.quality: %d out of range 1-100", c.Normalize.Quality)
	}
	if c.Normalize.Workers < 1 {
		return fmt.Errorf("normalize.workers: must be at least 1")
	}
	switch c.Export.Format {
	case "jpeg", "jpg", "png":
	default:
		return fmt.Errorf("export.format: unknown format %q (valid: jpeg, png)", c.Export.Format)
	}
	if c.Export.Quality < 1 || c.Export.Quality > 100 {
		return fmt.Errorf("export.quality: %d out of range 1-100", c.Export.Quality)
	}
	if _, err := c.RenderOptions(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

func (c *Config) Layout() layouts.Layout {
	l, err := layouts.Parse(c.Session.Layout)
	if err != nil {
		return layouts.Layout1x1
	}
	return l
}

func (c *Config) Filter() filters.ID {
	id, err := filters.Parse(c.Session.Filter)
	if err != nil {
		return filters.None
	}
	return id
}

func (c *Config) FrameTimeout() time.Duration {
	return time.Duration(c.Camera.FrameTimeoutSeconds) * time.Second
}

func (c *Config) Settle() time.Duration {
	return time.Duration(c.Camera.SettleMs) * time.Millisecond
}

func (c *Config) NormalizeOptions() normalize.Options {
	return normalize.Options{Quality: c.Normalize.Quality}
}

// RenderOptions converts the render section. The watermark image is not
// loaded here.
func (c *Config) RenderOptions() (render.Options, error) {
	r := c.Render
	opts := render.Options{
		CellSize:         r.CellSize,
		Gap:              r.Gap,
		Padding:          r.Padding,
		CornerRadius:     r.CornerRadius,
		PixelRatio:       r.PixelRatio,
		Label:            r.Label,
		FontPath:         r.FontPath,
		FontSize:         r.FontSize,
		WatermarkHeight:  r.Watermark.Height,
		WatermarkMargin:  r.Watermark.Margin,
		WatermarkOpacity: r.Watermark.Opacity,
	}

	colors := []struct {
		name string
		in   string
		out  *color.Color
	}{
		{"background", r.Background, &opts.Background},
		{"cell_background", r.CellBackground, &opts.CellBackground},
		{"label_color", r.LabelColor, &opts.LabelColor},
	}
	for _, col := range colors {
		v, err := render.ParseColor(col.in)
		if err != nil {
			return render.Options{}, fmt.Errorf("%s: %w", col.name, err)
		}
		*col.out = v
	}
	return opts, nil
}
