package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/hicann/launchargs/internal/logger"
	"github.com/hicann/launchargs/pkg/argbuf"
)

var (
	configFile    string
	logLevel      string
	logFormat     string
	debug         bool
	wordSize      uint64
	allocLimit    uint64
	allocatorKind string

	cfg Config
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config file",
			Value:       configPath(),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func layoutFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:        "word-size",
			Usage:       "device address width in bytes (4 or 8); a manifest word_size overrides it",
			Value:       8,
			Destination: &wordSize,
		},
		&cli.Uint64Flag{
			Name:        "alloc-limit",
			Usage:       "largest buffer the allocator hands out in bytes (0 = unlimited)",
			Destination: &allocLimit,
		},
		&cli.StringFlag{
			Name:        "allocator",
			Usage:       "buffer allocator (heap, mmap)",
			Value:       "heap",
			Destination: &allocatorKind,
		},
	}
}

// layoutOptions returns the library options for the current flags, logging
// to the command's logger.
func layoutOptions(ctx context.Context) argbuf.Options {
	opts := argbuf.DefaultOptions()
	opts.WordSize = wordSize
	opts.Logger = logger.FromContext(ctx)
	return opts
}
