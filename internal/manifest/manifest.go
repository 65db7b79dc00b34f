// Package manifest loads node manifests: files describing one or more
// operation instances whose launch-argument buffers the tools plan and build.
package manifest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/hicann/launchargs/internal/logger"
	"github.com/hicann/launchargs/pkg/argbuf"
)

// Manifest is the on-disk description of a set of nodes.
type Manifest struct {
	WordSize uint64  `json:"word_size,omitempty" yaml:"word_size,omitempty"`
	Nodes    []Entry `json:"nodes" yaml:"nodes"`
}

// Entry is one named node and its dynamic groups.
type Entry struct {
	Name   string                `json:"name" yaml:"name"`
	Node   argbuf.NodeDescriptor `json:"node" yaml:"node"`
	Groups []argbuf.GroupSpec    `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Format selects the manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the encoding from a file extension. Anything that is not
// .json is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest and checks that node names are present and unique.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode json manifest: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode yaml manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}

	if len(m.Nodes) == 0 {
		return nil, fmt.Errorf("manifest has no nodes")
	}
	seen := make(map[string]struct{}, len(m.Nodes))
	for i, e := range m.Nodes {
		if e.Name == "" {
			return nil, fmt.Errorf("node %d has no name", i)
		}
		if _, ok := seen[e.Name]; ok {
			return nil, fmt.Errorf("duplicate node name %q", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return &m, nil
}

// Find returns the entry called name.
func (m *Manifest) Find(name string) (*Entry, error) {
	for i := range m.Nodes {
		if m.Nodes[i].Name == name {
			return &m.Nodes[i], nil
		}
	}
	return nil, fmt.Errorf("node %q not found", name)
}

// Options returns base with the manifest's word size applied when set.
func (m *Manifest) Options(base argbuf.Options) argbuf.Options {
	if m.WordSize != 0 {
		base.WordSize = m.WordSize
	}
	return base
}

// Compile compiles the entry's layout.
func (e *Entry) Compile(opts argbuf.Options) (*argbuf.Layout, error) {
	l, err := argbuf.Compile(&e.Node, e.Groups, opts)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", e.Name, err)
	}
	return l, nil
}

// CompileAll compiles every node of the manifest. Nodes are independent, so
// they are compiled concurrently; the result keeps manifest order.
func CompileAll(ctx context.Context, m *Manifest, opts argbuf.Options) ([]*argbuf.Layout, error) {
	log := logger.FromContext(ctx)
	opts = m.Options(opts)

	layouts := make([]*argbuf.Layout, len(m.Nodes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range m.Nodes {
		e := &m.Nodes[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			l, err := e.Compile(opts)
			if err != nil {
				return err
			}
			layouts[i] = l
			log.Debug("node compiled", "node", e.Name, "total", l.Total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return layouts, nil
}
