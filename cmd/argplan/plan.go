package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/hicann/launchargs/internal/manifest"
	"github.com/hicann/launchargs/internal/planapi"
	"github.com/hicann/launchargs/pkg/argbuf"
)

func planCmd() *cli.Command {
	var (
		manifestPath string
		nodeName     string
		format       string
	)

	return &cli.Command{
		Name:  "plan",
		Usage: "Compile the buffer layout of every node in a manifest",
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
				Usage:       "only print this node",
				Destination: &nodeName,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &format,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}
			if nodeName != "" {
				e, err := m.Find(nodeName)
				if err != nil {
					return err
				}
				m = &manifest.Manifest{WordSize: m.WordSize, Nodes: []manifest.Entry{*e}}
			}
			layouts, err := manifest.CompileAll(ctx, m, layoutOptions(ctx))
			if err != nil {
				return err
			}
			return writePlan(os.Stdout, format, m, layouts)
		},
	}
}

func writePlan(w io.Writer, format string, m *manifest.Manifest, layouts []*argbuf.Layout) error {
	switch format {
	case "json":
		views := make([]planapi.LayoutView, len(layouts))
		for i, l := range layouts {
			views[i] = planapi.NewLayoutView(m.Nodes[i].Name, l)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "text", "":
		for i, l := range layouts {
			if i > 0 {
				_, _ = fmt.Fprintln(w)
			}
			if err := writeLayoutText(w, m.Nodes[i].Name, l); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}

func writeLayoutText(w io.Writer, name string, l *argbuf.Layout) error {
	_, _ = fmt.Fprintf(w, "node %s: %d bytes, word %d, %d lanes, %d flat slots, %d atomic slots\n",
		name, l.Total, l.WordSize(), l.Node.LaneCount, l.FlatSlots, l.AtomicSlots)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "SECTION\tOFFSET\tSIZE\t")
	for _, s := range l.Sections {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t\n", s.Tag, s.Offset, s.Size)
	}
	return tw.Flush()
}
