package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/imamik/photobooth/internal/capture"
	"github.com/imamik/photobooth/internal/capture/hotfolder"
	"github.com/imamik/photobooth/internal/capture/v4l2"
	"github.com/imamik/photobooth/internal/config"
	"github.com/imamik/photobooth/internal/filters"
	"github.com/imamik/photobooth/internal/layouts"
	"github.com/imamik/photobooth/internal/pipeline"
	"github.com/imamik/photobooth/internal/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "booth",
	Short: "Compose photo booth strips and grids",
	Long: `Photobooth arranges photos into 1x1, 1x2, 1x3, 1x4 or 2x2 grids,
applies an Instagram-style filter to every cell, adds an optional watermark
and exports the composition as a single image.

Photos come from files, a V4L2 camera or a hot folder fed by a tethered camera.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Compose images from files",
	Long:  `Compose input files, or every image under a directory, into one layout.`,
	RunE:  runCompose,
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Fill a layout from the camera",
	Long:  `Take a photo every interval until the layout is full, then export it.`,
	RunE:  runCapture,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a booth on a hot folder",
	Long: `Add every image dropped into the folder. Each time the layout fills up it is
exported and the booth starts over. Runs until interrupted.`,
	RunE: runWatch,
}

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "List available filters",
	RunE:  runFilters,
}

var layoutsCmd = &cobra.Command{
	Use:   "layouts",
	Short: "List available layouts",
	RunE:  runLayouts,
}

var (
	configPath  string
	inputPaths  []string
	inputDir    string
	outputDir   string
	layoutName  string
	filterName  string
	watermark   string
	format      string
	deviceKind  string
	facingName  string
	interval    time.Duration
	switchAfter int
	watchDir    string
)

var klogFlags = flag.NewFlagSet("klog", flag.ExitOnError)

func init() {
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	for _, cmd := range []*cobra.Command{composeCmd, captureCmd, watchCmd} {
		cmd.Flags().StringVarP(&outputDir, "out", "o", "", "Output directory")
		cmd.Flags().StringVarP(&layoutName, "layout", "l", "", "Layout: 1x1, 1x2, 1x3, 1x4, 2x2")
		cmd.Flags().StringVarP(&filterName, "filter", "f", "", "Filter id, see 'booth filters'")
		cmd.Flags().StringVarP(&watermark, "watermark", "w", "", "Watermark image")
		cmd.Flags().StringVar(&format, "format", "", "Export format: jpeg, png")
	}

	composeCmd.Flags().StringSliceVarP(&inputPaths, "input", "i", nil, "Input image file (repeatable)")
	composeCmd.Flags().StringVarP(&inputDir, "dir", "d", "", "Directory searched recursively for images")

	captureCmd.Flags().StringVar(&deviceKind, "device", "", "Camera device: v4l2, folder")
	captureCmd.Flags().StringVar(&facingName, "facing", "", "Camera facing: front, back")
	captureCmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "Countdown between photos")
	captureCmd.Flags().IntVar(&switchAfter, "switch-after", 0, "Switch camera facing after this many photos (0 = never)")

	watchCmd.Flags().StringVar(&watchDir, "in", "", "Hot folder to watch (default: camera.front from config)")

	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(filtersCmd)
	rootCmd.AddCommand(layoutsCmd)
}

func main() {
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		klog.Flush()
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("layout") {
		cfg.Session.Layout = layoutName
	}
	if flags.Changed("filter") {
		cfg.Session.Filter = filterName
	}
	if flags.Changed("watermark") {
		cfg.Render.Watermark.Path = watermark
	}
	if flags.Changed("out") {
		cfg.Export.Dir = outputDir
	}
	if flags.Changed("format") {
		cfg.Export.Format = format
	}
	if flags.Changed("device") {
		cfg.Camera.Device = deviceKind
	}
	if flags.Changed("facing") {
		cfg.Camera.Facing = facingName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Logging.Verbosity > 0 && !flags.Changed("v") {
		if err := klogFlags.Set("v", strconv.Itoa(cfg.Logging.Verbosity)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func boothOptions(cfg *config.Config, device capture.Device) (pipeline.Options, error) {
	ro, err := cfg.RenderOptions()
	if err != nil {
		return pipeline.Options{}, err
	}
	facing, err := capture.ParseFacing(cfg.Camera.Facing)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Layout:        cfg.Layout(),
		Filter:        cfg.Filter(),
		Normalize:     cfg.NormalizeOptions(),
		Workers:       cfg.Normalize.Workers,
		Render:        ro,
		WatermarkPath: cfg.Render.Watermark.Path,
		Export: pipeline.ExportOptions{
			Format:  cfg.Export.Format,
			Quality: cfg.Export.Quality,
			Prefix:  cfg.Export.Prefix,
		},
		Device:       device,
		Facing:       facing,
		CameraWidth:  cfg.Camera.Width,
		CameraHeight: cfg.Camera.Height,
	}, nil
}

func newDevice(cfg *config.Config) capture.Device {
	if cfg.Camera.Device == "folder" {
		return &hotfolder.Device{Front: cfg.Camera.Front, Back: cfg.Camera.Back, Settle: cfg.Settle()}
	}
	return &v4l2.Device{Front: cfg.Camera.Front, Back: cfg.Camera.Back, Timeout: cfg.FrameTimeout()}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCompose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	paths := append([]string(nil), inputPaths...)
	paths = append(paths, args...)
	if inputDir != "" {
		found, err := pipeline.FindImages(inputDir)
		if err != nil {
			return err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no input images: use -i or --dir")
	}

	opts, err := boothOptions(cfg, nil)
	if err != nil {
		return err
	}
	booth, err := pipeline.New(opts)
	if err != nil {
		return err
	}
	defer booth.Close()

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	fmt.Printf("Composing %d image(s) into %s\n", len(paths), cfg.Layout())
	report, err := booth.Upload(ctx, paths)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	fmt.Println(report.Summary())

	out, err := booth.Export(cfg.Export.Dir)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Printf("Done: %s (%dms)\n", out, time.Since(start).Milliseconds())
	return nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := boothOptions(cfg, newDevice(cfg))
	if err != nil {
		return err
	}
	booth, err := pipeline.New(opts)
	if err != nil {
		return err
	}
	defer booth.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := booth.SetTab(ctx, session.TabCamera); err != nil {
		return err
	}

	slots := layouts.SlotCount(cfg.Layout())
	for n := 1; booth.Store().Remaining() > 0; n++ {
		fmt.Printf("[%d/%d] Get ready", n, slots)
		if err := countdown(ctx, interval); err != nil {
			fmt.Println()
			return err
		}
		photo, err := booth.TakePhoto(ctx)
		if err != nil {
			fmt.Println(" FAILED")
			return fmt.Errorf("take photo: %w", err)
		}
		fmt.Printf(" captured %dx%d\n", photo.Size, photo.Size)

		if switchAfter > 0 && n == switchAfter && booth.Store().Remaining() > 0 {
			if err := booth.SwitchCamera(ctx); err != nil {
				return fmt.Errorf("switch camera: %w", err)
			}
			fmt.Printf("Switched to %s camera\n", booth.Camera().Facing())
		}
	}

	if err := booth.SetTab(ctx, session.TabFilters); err != nil {
		return err
	}
	out, err := booth.Export(cfg.Export.Dir)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Printf("Done: %s\n", out)
	return nil
}

func countdown(ctx context.Context, d time.Duration) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
			fmt.Print(".")
		}
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := watchDir
	if dir == "" {
		dir = cfg.Camera.Front
	}
	if dir == "" {
		return fmt.Errorf("no hot folder: use --in or camera.front")
	}
	if sameDir(dir, cfg.Export.Dir) {
		return fmt.Errorf("export dir %s is the hot folder; exports would be added back", dir)
	}

	opts, err := boothOptions(cfg, nil)
	if err != nil {
		return err
	}
	booth, err := pipeline.New(opts)
	if err != nil {
		return err
	}
	defer booth.Close()

	stream, err := hotfolder.Watch(dir, cfg.Settle())
	if err != nil {
		return err
	}
	defer stream.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Watching %s for %s compositions (Ctrl-C to stop)\n", dir, cfg.Layout())
	exported := 0
	for {
		path, err := stream.Next(ctx)
		if err != nil {
			break
		}
		report, err := booth.Upload(ctx, []string{path})
		if err != nil {
			klog.Warningf("watch: %v", err)
			continue
		}
		if report.Err() != nil {
			fmt.Printf("Skipped: %s\n", report.Summary())
			continue
		}

		snap := booth.Store().Snapshot()
		fmt.Printf("[%d/%d] %s\n", len(snap.Photos), snap.Slots(), path)
		if !snap.Full() {
			continue
		}
		out, err := booth.Export(cfg.Export.Dir)
		if err != nil {
			klog.Errorf("watch: export: %v", err)
			continue
		}
		exported++
		fmt.Printf("Exported: %s\n", out)
		booth.Store().Clear()
	}

	if n := len(booth.Store().Snapshot().Photos); n > 0 {
		fmt.Printf("\nStopped with %d photo(s) pending, not exported\n", n)
	}
	fmt.Printf("\nWatch complete: %d compositions exported\n", exported)
	return nil
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func runFilters(cmd *cobra.Command, args []string) error {
	for _, f := range filters.All() {
		fmt.Printf("%-12s %-12s %s\n", f.ID, f.Name, f.Transform)
	}
	return nil
}

func runLayouts(cmd *cobra.Command, args []string) error {
	for _, l := range layouts.All() {
		spec := layouts.Get(l)
		fmt.Printf("%-4s %d slot(s)  %d row(s) x %d col(s)  aspect %d:%d\n",
			l, spec.Slots, spec.Rows, spec.Cols, spec.Aspect[0], spec.Aspect[1])
	}
	return nil
}
