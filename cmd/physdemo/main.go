package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/physlink/handle"
	"github.com/wippyai/physlink/motion"
	"github.com/wippyai/physlink/native/wasmheap"
	"github.com/wippyai/physlink/sim"
)

func main() {
	var (
		configFile  = flag.String("config", "physdemo.yaml", "Path to optional YAML config")
		backend     = flag.String("backend", "", "Foreign heap backend (local, wasm)")
		bodies      = flag.Int("bodies", 0, "Number of simulated bodies")
		duration    = flag.Duration("duration", 0, "Run time before exiting (0 = until interrupted)")
		dropEvery   = flag.Duration("drop", 0, "Interval between body drops")
		strict      = flag.Bool("strict", false, "Panic on registry inconsistencies")
		dev         = flag.Bool("dev", false, "Development logging")
		dump        = flag.Bool("dump", false, "Print live trackers at exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := LoadOptional(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Heap.Backend = *backend
		case "bodies":
			cfg.Sim.Bodies = *bodies
		case "duration":
			cfg.Demo.Duration = *duration
		case "drop":
			cfg.Demo.DropEvery = *dropEvery
		case "strict":
			cfg.Demo.Strict = *strict
		case "dev":
			cfg.Log.Development = *dev
		}
	})
	if err := cfg.Resolve(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "stdout is not a terminal, running without TUI")
		*interactive = false
	}

	log, err := newLogger(cfg, *interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	installLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wrappers on the default registry; each demo drains its own registry.
	handle.Start(ctx, &handle.ReclaimerConfig{
		Logger: log.Named("reclaimer"),
		Strict: cfg.Demo.Strict,
	})

	if *interactive {
		err = runInteractive(ctx, cfg, log)
	} else {
		err = run(ctx, cfg, log, *dump)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *Config, quiet bool) (*zap.Logger, error) {
	if quiet {
		// The TUI owns the terminal.
		return zap.NewNop(), nil
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func installLogger(log *zap.Logger) {
	handle.SetLogger(log.Named("handle"))
	motion.SetLogger(log.Named("motion"))
	sim.SetLogger(log.Named("sim"))
	wasmheap.SetLogger(log.Named("wasmheap"))
}

func run(ctx context.Context, cfg *Config, log *zap.Logger, dump bool) error {
	if cfg.Demo.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Demo.Duration)
		defer cancel()
	}

	d, err := newDemo(ctx, cfg, log)
	if err != nil {
		return err
	}

	fmt.Printf("Backend: %s\n", cfg.Heap.Backend)
	fmt.Printf("Bodies: %d\n", cfg.Sim.Bodies)
	fmt.Printf("Step: %s\n", cfg.Sim.Step)

	start := time.Now()
	runErr := d.run(ctx)

	// Give collected wrappers a last chance before reporting.
	d.reclaimer.Reclaim()
	s := d.snapshot()

	fmt.Printf("\nRan %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Steps: %d  Frames: %d  Bodies: %d\n", s.steps, s.frames, s.bodies)
	fmt.Printf("Dropped: %d\n", d.dropped.Load())
	fmt.Printf("Trackers: %d  Freed: %d  Failed: %d  Pending: %d\n",
		len(s.trackers), s.stats.Freed, s.stats.Failed, s.stats.Pending)
	if s.hasHeap {
		fmt.Printf("Heap objects: %d  Bytes: %d\n", s.heap.Objects, s.heap.BytesUsed)
	}
	if dump {
		fmt.Println()
		if err := d.registry.Dump(os.Stdout); err != nil {
			return err
		}
	}

	if err := d.close(); err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	return runErr
}
