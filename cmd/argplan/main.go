package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hicann/launchargs/internal/logger"
	"github.com/hicann/launchargs/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "argplan",
		Usage:   "Plan, build and inspect kernel launch-argument buffers",
		Version: version.String(),
		Flags:   append(loggingFlags(), layoutFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg = LoadConfig(configFile)
			applyGlobalConfig(cmd, cfg)

			level, err := logger.ParseLevel(logLevel)
			if err != nil {
				return ctx, err
			}
			if debug {
				level = slog.LevelDebug
			}
			log := logger.ForFormat(os.Stderr, logFormat, level)
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			planCmd(),
			buildCmd(),
			inspectCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
