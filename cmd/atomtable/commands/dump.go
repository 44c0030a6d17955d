package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/atomtable/pkg/export"
	"github.com/Sumatoshi-tech/atomtable/pkg/observability"
)

const (
	formatTable     = "table"
	defaultBasename = "atoms"
)

// ErrTableToFile is returned when --format table is combined with --output.
var ErrTableToFile = errors.New("table format can only be written to stdout")

func newDumpCommand(a *app) *cobra.Command {
	var (
		format    string
		outputDir string
		basename  string
		compress  bool
	)

	cmd := &cobra.Command{
		Use:   "dump [file...]",
		Short: "Export the interned table as a table, JSON or YAML",
		Long: `Interns lines from the given files (stdin when none) and writes the
resulting table ordered by id. With --output the document is saved as
<dir>/<name>.<ext>[.lz4] and the path is printed.`,
		RunE: a.wrap(observability.ModeCLI, func(cmd *cobra.Command, args []string) error {
			// Saved snapshots default to the configured codec rather than the terminal table.
			if !cmd.Flags().Changed("format") && outputDir != "" {
				format = a.cfg.Export.Format
			}

			if !cmd.Flags().Changed("compress") {
				compress = a.cfg.Export.Compress
			}

			if format == formatTable && outputDir != "" {
				return ErrTableToFile
			}

			tbl := a.newTable(cmd.Name())

			var lines int

			err := scanLines(cmd.Context(), cmd.InOrStdin(), args, func(line []byte) {
				lines++

				tbl.InternBytes(line)
			})
			if err != nil {
				return err
			}

			a.metrics.RecordInterned(cmd.Context(), cmd.Name(), lines)

			doc := export.NewDocument(tbl)

			if format == formatTable {
				writeEntriesTable(cmd.OutOrStdout(), doc)

				return nil
			}

			codec, err := export.CodecFor(format)
			if err != nil {
				return err
			}

			if outputDir == "" {
				return export.Write(cmd.OutOrStdout(), doc, codec, compress)
			}

			path, err := export.SaveFile(outputDir, basename, doc, codec, compress)
			if err != nil {
				return err
			}

			a.logger.InfoContext(cmd.Context(), "snapshot saved", "path", path, "atoms", doc.Count)
			fmt.Fprintln(cmd.OutOrStdout(), path)

			return nil
		}),
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json or yaml")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory to save the snapshot in")
	cmd.Flags().StringVar(&basename, "name", defaultBasename, "snapshot file name without extension")
	cmd.Flags().BoolVar(&compress, "compress", false, "wrap JSON/YAML output in an lz4 frame")

	return cmd
}

func writeEntriesTable(w io.Writer, doc export.Document) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"ID", "Text"})

	for _, e := range doc.Atoms {
		tw.AppendRow(table.Row{e.ID, strconv.Quote(e.Text)})
	}

	tw.AppendFooter(table.Row{"Total", doc.Count})
	tw.Render()
}
