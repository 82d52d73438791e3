// Package ctl implements the pcachectl maintenance commands: inspecting
// and mutating a cache collection directory from the command line.
package ctl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/gozephyr/pcache"
	"github.com/gozephyr/pcache/backend"
	"github.com/gozephyr/pcache/storage"
)

// Config holds pcachectl configuration.
type Config struct {
	Dir             string
	TargetFootprint int64
	MaxOpenCaches   int
	Strategy        string
	InputSignature  int64
	Timeout         time.Duration
	Verbose         bool

	Command string
	Args    []string
}

type envConfig struct {
	Dir             string        `env:"PCACHE_DIR"`
	TargetFootprint int64         `env:"PCACHE_TARGET_FOOTPRINT" envDefault:"268435456"`
	MaxOpenCaches   int           `env:"PCACHE_MAX_OPEN_CACHES" envDefault:"100"`
	Strategy        string        `env:"PCACHE_TRIM_STRATEGY" envDefault:"oldest-first"`
	Timeout         time.Duration `env:"PCACHE_TIMEOUT" envDefault:"30s"`
}

// ParseConfig merges environment defaults and flags into a Config. The
// first non-flag argument selects the command; the rest are its
// positional arguments.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		Dir:             envCfg.Dir,
		TargetFootprint: envCfg.TargetFootprint,
		MaxOpenCaches:   envCfg.MaxOpenCaches,
		Strategy:        envCfg.Strategy,
		Timeout:         envCfg.Timeout,
	}

	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "collection directory (default: PCACHE_DIR)")
	fs.Int64Var(&cfg.TargetFootprint, "target", cfg.TargetFootprint, "target on-disk footprint in bytes (default: PCACHE_TARGET_FOOTPRINT)")
	fs.IntVar(&cfg.MaxOpenCaches, "max-open", cfg.MaxOpenCaches, "maximum simultaneously open caches (default: PCACHE_MAX_OPEN_CACHES)")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "trim strategy: oldest-first or largest-first (default: PCACHE_TRIM_STRATEGY)")
	fs.Int64Var(&cfg.InputSignature, "sig", 0, "input signature stored with put")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout (default: PCACHE_TIMEOUT)")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, fmt.Errorf("a command is required: put|get|stats|trim|wipe|chars")
	}
	cfg.Command = rest[0]
	cfg.Args = rest[1:]
	return cfg, nil
}

// Run executes one pcachectl command against the configured directory.
func Run(ctx context.Context, cfg Config, out, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	// chars needs no collection.
	if cfg.Command == "chars" {
		fmt.Fprintln(out, storage.AllowedCacheIDCharacters())
		return nil
	}

	if cfg.Dir == "" {
		return fmt.Errorf("-dir or PCACHE_DIR is required")
	}
	strategy, err := trimStrategy(cfg.Strategy)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	c, err := pcache.NewCollection(cfg.Dir,
		pcache.WithTargetFootprint(cfg.TargetFootprint),
		pcache.WithMaxOpenCaches(cfg.MaxOpenCaches),
		pcache.WithTrimStrategy(strategy),
		pcache.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "Error: close collection: %v\n", closeErr)
		}
	}()

	switch cfg.Command {
	case "put":
		return runPut(ctx, c, cfg, out)
	case "get":
		return runGet(ctx, c, cfg, out, errOut)
	case "stats":
		return runStats(c, cfg, out)
	case "trim":
		return runTrim(c, out)
	case "wipe":
		return runWipe(c, out)
	default:
		return fmt.Errorf("unknown command %q (want put|get|stats|trim|wipe|chars)", cfg.Command)
	}
}

func runPut(ctx context.Context, c *pcache.Collection, cfg Config, out io.Writer) error {
	if len(cfg.Args) != 3 {
		return fmt.Errorf("put requires 3 arguments: cache-id key content")
	}
	cacheID, key, content := cfg.Args[0], cfg.Args[1], []byte(cfg.Args[2])

	meta := backend.EntryMetadata{InputSignature: cfg.InputSignature}
	if err := c.Insert(ctx, cacheID, key, content, meta); err != nil {
		return err
	}
	fmt.Fprintf(out, "stored %d bytes under %q in cache %q\n", len(content), key, cacheID)
	return nil
}

func runGet(ctx context.Context, c *pcache.Collection, cfg Config, out, errOut io.Writer) error {
	if len(cfg.Args) != 2 {
		return fmt.Errorf("get requires 2 arguments: cache-id key")
	}
	cacheID, key := cfg.Args[0], cfg.Args[1]

	entry, err := c.Find(ctx, cacheID, key)
	if err != nil {
		return err
	}
	if _, err := out.Write(entry.Content); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if cfg.Verbose {
		fmt.Fprintf(errOut, "input_signature=%d write_timestamp=%d\n",
			entry.Metadata.InputSignature, entry.Metadata.WriteTimestamp)
	}
	return nil
}

func runStats(c *pcache.Collection, cfg Config, out io.Writer) error {
	footprint, err := c.Footprint()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "directory: %s\n", c.TopDir())
	fmt.Fprintf(out, "footprint: %d bytes (target %d)\n", footprint, cfg.TargetFootprint)
	fmt.Fprintf(out, "strategy: %s\n", cfg.Strategy)
	fmt.Fprintf(out, "open caches: %d\n", c.OpenCaches())
	return nil
}

func runTrim(c *pcache.Collection, out io.Writer) error {
	before, err := c.Footprint()
	if err != nil {
		return err
	}
	if err := c.ReduceFootprint(); err != nil {
		return err
	}
	after, err := c.Footprint()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "footprint: %d -> %d bytes\n", before, after)
	return nil
}

func runWipe(c *pcache.Collection, out io.Writer) error {
	if err := c.DeleteAllFiles(); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted all cache files under %s\n", c.TopDir())
	return nil
}

func trimStrategy(name string) (storage.TrimStrategy, error) {
	switch name {
	case "", "oldest-first":
		return storage.OldestFirst{}, nil
	case "largest-first":
		return storage.LargestFirst{}, nil
	default:
		return nil, fmt.Errorf("unknown trim strategy %q (want oldest-first or largest-first)", name)
	}
}
