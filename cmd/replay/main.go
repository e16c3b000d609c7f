package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kinereplay/backend/internal/archive"
	"github.com/kinereplay/backend/internal/config"
	"github.com/kinereplay/backend/internal/frames"
	"github.com/kinereplay/backend/internal/playback"
	"github.com/kinereplay/backend/internal/scene"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const usage = `usage: replay [flags] scene.xml data.txt|-
       replay [flags] -from-archive frames.duckdb scene.xml
       replay [flags] -serve

Keys: space pause, left/right step 1, up/down step 10, Home/End,
      [ and ] seek 1s while paused, q quit.

Flags:
`

type options struct {
	configPath  string
	serve       bool
	archiveOut  string
	archiveIn   string
	startPaused bool
	tick        time.Duration
	startAt     *float64
}

func parseFlags() (options, []string) {
	var opts options
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.configPath, "config", defaultConfigPath(), "path to the XML application config")
	flag.BoolVar(&opts.serve, "serve", false, "run the HTTP server instead of the terminal player")
	flag.StringVar(&opts.archiveOut, "archive", "", "write the ingested frames to a DuckDB archive")
	flag.StringVar(&opts.archiveIn, "from-archive", "", "load frames from a DuckDB archive instead of text data")
	flag.BoolVar(&opts.startPaused, "paused", false, "start the terminal player paused")
	flag.DurationVar(&opts.tick, "tick", 0, "playback tick interval (overrides the config)")
	flag.Func("start", "start at the frame nearest this replay time", func(v string) error {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		opts.startAt = &t
		return nil
	})
	flag.Parse()
	return opts, flag.Args()
}

func defaultConfigPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "replay.config"
	}
	return filepath.Join(filepath.Dir(exePath), "replay.config")
}

func main() {
	opts, args := parseFlags()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if opts.tick > 0 {
		cfg.Playback.TickMilliseconds = int(opts.tick / time.Millisecond)
	}

	if opts.serve {
		if err := serve(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctrl, err := load(cfg, opts, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if opts.startPaused || cfg.Playback.StartPaused {
		ctrl.Pause()
	}

	if err := runPlayer(ctrl, cfg.TickInterval()); err != nil {
		fmt.Fprintf(os.Stderr, "Player error: %v\n", err)
		os.Exit(1)
	}
}

// sceneLoader builds a scene loader from the application config.
func sceneLoader(cfg *config.AppConfig) (*scene.Loader, error) {
	loader := scene.NewLoader()
	loader.Limits = scene.Limits{
		MaxBodies:     cfg.Limits.MaxBodies,
		MaxConnectors: cfg.Limits.MaxConnectors,
		MaxGrounds:    cfg.Limits.MaxGrounds,
		MaxInputs:     cfg.Limits.MaxInputs,
	}
	if cfg.Playback.PaletteFile != "" {
		palette, err := scene.ParsePalette(cfg.Playback.PaletteFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load palette: %w", err)
		}
		loader.Palette = palette
	}
	return loader, nil
}

func archiveOptions(cfg *config.AppConfig) archive.Options {
	return archive.Options{
		MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
		Threads:     cfg.Advanced.DuckDBThreads,
	}
}

// load reads the scene and its frames and returns a controller on the
// first frame.
func load(cfg *config.AppConfig, opts options, args []string) (*playback.Controller, error) {
	want := 2
	if opts.archiveIn != "" {
		want = 1
	}
	if len(args) != want {
		flag.Usage()
		return nil, fmt.Errorf("expected %d arguments, got %d", want, len(args))
	}

	loader, err := sceneLoader(cfg)
	if err != nil {
		return nil, err
	}
	s, err := loader.LoadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", args[0], err)
	}

	ctx := context.Background()
	var store *frames.Store
	start := -1
	if opts.archiveIn != "" {
		a, err := archive.Open(opts.archiveIn, archiveOptions(cfg))
		if err != nil {
			return nil, err
		}
		defer a.Close()
		if !a.Compatible(s.InputMap()) {
			return nil, fmt.Errorf("%s: archive columns do not match the scene input map", opts.archiveIn)
		}
		if store, err = a.Load(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", opts.archiveIn, err)
		}
		if opts.startAt != nil && store.HasTime() {
			if start, err = a.NearestTime(ctx, *opts.startAt); err != nil {
				return nil, fmt.Errorf("%s: %w", opts.archiveIn, err)
			}
		}
	} else {
		if store, err = frames.LoadFile(args[1], s.InputMap()); err != nil {
			return nil, fmt.Errorf("%s: %w", args[1], err)
		}
	}

	if opts.archiveOut != "" {
		if err := archive.Save(ctx, opts.archiveOut, store, archiveOptions(cfg)); err != nil {
			return nil, fmt.Errorf("failed to write archive: %w", err)
		}
		fmt.Printf("[Archive] Wrote %d frames to %s\n", store.Len(), opts.archiveOut)
	}

	ctrl := playback.NewController(s, store)
	switch {
	case start >= 0:
		ctrl.Step(start)
	case opts.startAt != nil:
		// Without an archive the local seek from the first frame is used.
		ctrl.Pause()
		if err := ctrl.Seek(*opts.startAt); err != nil {
			return nil, err
		}
		ctrl.Resume()
	}
	return ctrl, nil
}
