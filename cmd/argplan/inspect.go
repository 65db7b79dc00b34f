package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/hicann/launchargs/pkg/argbuf"
)

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Decode the header of a buffer written by build",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("inspect: FILE is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			h, err := argbuf.DecodeHeader(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return writeHeader(os.Stdout, h)
		},
	}
}

func writeHeader(w io.Writer, h *argbuf.Header) error {
	n := h.Node
	_, _ = fmt.Fprintf(w, "version:    %d.%d\n", h.Major, h.Minor)
	_, _ = fmt.Fprintf(w, "total:      %d bytes\n", h.Total)
	_, _ = fmt.Fprintf(w, "word size:  %d\n", h.WordSize)
	_, _ = fmt.Fprintf(w, "lanes:      %d\n", n.LaneCount)
	_, _ = fmt.Fprintf(w, "arguments:  %d in, %d out, %d extra, %d workspace\n",
		n.InputCount, n.OutputCount, n.ExtraAddressCount, n.WorkspaceSlotCount)
	_, _ = fmt.Fprintf(w, "tiling max: %d primary, %d tail, %d atomic, %d atomic tail\n",
		n.MaxTilingBytes, n.MaxTailTilingBytes, n.MaxAtomicTilingBytes, n.MaxAtomicTailTilingBytes)
	_, _ = fmt.Fprintf(w, "atomic:     %t\n", n.NeedsAtomicVariant)
	_, _ = fmt.Fprintf(w, "folded:     %t\n", n.DynamicArityFolded)
	_, _ = fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "SECTION\tOFFSET\tSIZE\t")
	for _, s := range h.Sections {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t\n", s.Tag, s.Offset, s.Size)
	}
	return tw.Flush()
}
