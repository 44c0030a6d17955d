package commands

import (
	"bufio"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/atomtable/pkg/atom"
	"github.com/Sumatoshi-tech/atomtable/pkg/observability"
)

const percentScale = 100

func newInternCommand(a *app) *cobra.Command {
	var (
		unique    bool
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "intern [file...]",
		Short: "Assign ids to input lines",
		Long: `Reads lines from the given files (stdin when none) and prints
"<id>\t<line>" for each, in input order. Equal lines get equal ids; ids start
at 0 and follow first appearance.`,
		RunE: a.wrap(observability.ModeCLI, func(cmd *cobra.Command, args []string) error {
			tbl := a.newTable(cmd.Name())
			out := bufio.NewWriter(cmd.OutOrStdout())

			var (
				lines int
				fresh atom.ID
			)

			err := scanLines(cmd.Context(), cmd.InOrStdin(), args, func(line []byte) {
				lines++

				id := tbl.InternBytes(line)

				// IDs are dense, so a first sighting is exactly the next unused one.
				if unique {
					if id != fresh {
						return
					}

					fresh++
				}

				fmt.Fprintf(out, "%d\t%s\n", id, line)
			})
			if err != nil {
				return err
			}

			a.metrics.RecordInterned(cmd.Context(), cmd.Name(), lines)
			a.logger.DebugContext(cmd.Context(), "interned input", "lines", lines, "atoms", tbl.Len())

			if showStats {
				fmt.Fprintln(out)
				writeStats(out, tbl, lines)
			}

			return out.Flush()
		}),
	}

	cmd.Flags().BoolVarP(&unique, "unique", "u", false, "print only the first occurrence of each line")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print table statistics after the ids")

	return cmd
}

// writeStats renders table counters as a go-pretty table.
func writeStats(w io.Writer, tbl *atom.Table, lines int) {
	st := tbl.Stats()

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Stat", "Value"})
	tw.AppendRows([]table.Row{
		{"Lines", humanize.Comma(int64(lines))},
		{"Atoms", humanize.Comma(int64(st.Atoms))},
		{"Hits", humanize.Comma(st.Hits)},
		{"Inserts", humanize.Comma(st.Inserts)},
		{"Hit rate", fmt.Sprintf("%.1f%%", st.HitRate()*percentScale)},
		{"Shards", st.Shards},
		{"Digest", fmt.Sprintf("%016x", tbl.Digest())},
	})
	tw.Render()
}
