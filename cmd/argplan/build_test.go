package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hicann/launchargs/internal/manifest"
	"github.com/hicann/launchargs/pkg/argbuf"
)

const testManifest = `
nodes:
  - name: matmul
    node:
      input_count: 2
      output_count: 1
      workspace_slot_count: 1
      lane_count: 2
      needs_atomic_variant: true
      max_tiling_bytes: 40
      max_atomic_tiling_bytes: 8
  - name: split
    node:
      input_count: 1
      output_count: 2
      lane_count: 1
      dynamic_arity_folded: true
    groups:
      - kind: output
        positions: [0, 1]
        members:
          - dims: [1, 2]
          - dims: [3]
          - dims: [4, 5, 6]
`

func loadTestManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(testManifest), manifest.FormatYAML)
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	return m
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "0x40000000", want: 0x40000000},
		{in: "0x4000_0000", want: 0x40000000},
		{in: " 4096 ", want: 4096},
		{in: "0o17", want: 15},
		{in: "", wantErr: true},
		{in: "0xZZ", wantErr: true},
		{in: "0x1_0000_0000_0000_0000", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseAddress(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseAddress(%q): expected error, got %#x", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("parseAddress(%q): got %#x, %v want %#x", tt.in, got, err, tt.want)
		}
	}
}

func TestPickEntry(t *testing.T) {
	t.Parallel()

	m := loadTestManifest(t)
	if _, err := pickEntry(m, ""); err == nil || !strings.Contains(err.Error(), "set --node") {
		t.Fatalf("expected --node hint, got %v", err)
	}
	e, err := pickEntry(m, "split")
	if err != nil || e.Name != "split" {
		t.Fatalf("pickEntry(split): %v %v", e, err)
	}
	single := &manifest.Manifest{Nodes: m.Nodes[:1]}
	if e, err := pickEntry(single, ""); err != nil || e.Name != "matmul" {
		t.Fatalf("single node manifest: %v %v", e, err)
	}
}

func TestBuildWriteInspectRoundTrip(t *testing.T) {
	t.Parallel()

	m := loadTestManifest(t)
	for _, name := range []string{"matmul", "split"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			e, err := m.Find(name)
			if err != nil {
				t.Fatal(err)
			}
			const base = 0x4000_0000
			b, err := buildBuffer(argbuf.DefaultOptions(), e, argbuf.HeapAllocator{}, 0x1000_0000, base)
			if err != nil {
				t.Fatalf("buildBuffer: %v", err)
			}
			defer func() { _ = b.Release() }()
			if b.State() != argbuf.StateRelocated {
				t.Fatalf("state: got %v want %v", b.State(), argbuf.StateRelocated)
			}

			// The last flat slot of lane 0 points at the primary tiling data,
			// or stays zero when the node has no tiling.
			l := b.Layout()
			flat := l.Sections[argbuf.SectionAddressTable]
			last := flat.Offset + (l.FlatSlots-1)*8
			got := binary.LittleEndian.Uint64(b.Bytes()[last:])
			var want uint64
			if tiling := l.Sections[argbuf.SectionTiling]; tiling.Size != 0 {
				want = base + tiling.Offset + argbuf.TilingRecordHeaderSize
			}
			if got != want {
				t.Fatalf("tiling slot: got %#x want %#x", got, want)
			}

			path := filepath.Join(t.TempDir(), "out", name+".bin")
			if err := writeBlob(path, b.Bytes()); err != nil {
				t.Fatalf("writeBlob: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			h, err := argbuf.DecodeHeader(data)
			if err != nil {
				t.Fatalf("DecodeHeader: %v", err)
			}
			if h.Node != e.Node || h.Total != l.Total || h.Sections != l.Sections {
				t.Fatalf("decoded header does not match layout")
			}

			var out bytes.Buffer
			if err := writeHeader(&out, h); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out.String(), "address-table") {
				t.Fatalf("inspect output missing section table:\n%s", out.String())
			}
		})
	}
}

func TestBuildBufferNarrowWordRejectsWideBase(t *testing.T) {
	t.Parallel()

	m := loadTestManifest(t)
	e, err := m.Find("matmul")
	if err != nil {
		t.Fatal(err)
	}
	opts := argbuf.DefaultOptions()
	opts.WordSize = 4
	_, err = buildBuffer(opts, e, argbuf.HeapAllocator{}, 0x1000, 0x1_0000_0000)
	if err == nil {
		t.Fatal("expected address overflow for a base past 32 bits")
	}
}
