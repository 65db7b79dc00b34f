package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hicann/launchargs/internal/logger"
	"github.com/hicann/launchargs/internal/manifest"
	"github.com/hicann/launchargs/pkg/argbuf"
)

func buildCmd() *cli.Command {
	var (
		manifestPath string
		nodeName     string
		baseFlag     string
		deviceFlag   string
		outPath      string
	)

	return &cli.Command{
		Name:  "build",
		Usage: "Build, bind and relocate one node's buffer with synthetic addresses",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "node manifest (.yaml or .json)",
				Destination: &manifestPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "node",
				Usage:       "node to build (defaults to the only node)",
				Destination: &nodeName,
			},
			&cli.StringFlag{
				Name:        "base",
				Usage:       "device address the buffer is relocated to",
				Value:       "0x40000000",
				Destination: &baseFlag,
			},
			&cli.StringFlag{
				Name:        "device-base",
				Usage:       "first synthetic argument address",
				Value:       "0x10000000",
				Destination: &deviceFlag,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write the buffer bytes to this file",
				Destination: &outPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			base, err := parseAddress(baseFlag)
			if err != nil {
				return fmt.Errorf("--base: %w", err)
			}
			deviceBase, err := parseAddress(deviceFlag)
			if err != nil {
				return fmt.Errorf("--device-base: %w", err)
			}
			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}
			e, err := pickEntry(m, nodeName)
			if err != nil {
				return err
			}
			alloc, err := argbuf.NewAllocator(allocatorKind, allocLimit)
			if err != nil {
				return err
			}

			b, err := buildBuffer(m.Options(layoutOptions(ctx)), e, alloc, deviceBase, base)
			if err != nil {
				return err
			}
			defer func() { _ = b.Release() }()

			log.Info("buffer built", "node", e.Name, "bytes", b.Len(), "base", base)
			if outPath == "" {
				return writeLayoutText(os.Stdout, e.Name, b.Layout())
			}
			if err := writeBlob(outPath, b.Bytes()); err != nil {
				return err
			}
			log.Info("buffer written", "path", outPath)
			return nil
		},
	}
}

func pickEntry(m *manifest.Manifest, name string) (*manifest.Entry, error) {
	if name != "" {
		return m.Find(name)
	}
	if len(m.Nodes) != 1 {
		return nil, fmt.Errorf("manifest has %d nodes; set --node", len(m.Nodes))
	}
	return &m.Nodes[0], nil
}

// buildBuffer runs the full buffer lifecycle short of launch: compile,
// allocate, bind, seal, relocate and redirect.
func buildBuffer(opts argbuf.Options, e *manifest.Entry, alloc argbuf.Allocator, deviceBase, base uint64) (*argbuf.Buffer, error) {
	l, err := e.Compile(opts)
	if err != nil {
		return nil, err
	}
	b, err := argbuf.NewBuffer(l, alloc)
	if err != nil {
		return nil, err
	}
	if err := manifest.BindSynthetic(b, &manifest.AddressSource{Base: deviceBase}); err != nil {
		_ = b.Release()
		return nil, err
	}
	if err := b.Relocate(base); err != nil {
		_ = b.Release()
		return nil, err
	}
	if err := b.RedirectTilingAddresses(); err != nil {
		_ = b.Release()
		return nil, err
	}
	return b, nil
}

func parseAddress(s string) (uint64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return v, nil
}

func writeBlob(path string, data []byte) error {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
