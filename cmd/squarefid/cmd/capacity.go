package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MeKo-Tech/squarefid/internal/marker"
)

var capacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Show how many identities a marker grid can encode",
	Long: `Show the number of data bits and distinct identities for a grid width.
All four grid corners are reserved for orientation, so a g x g grid carries
g*g-4 data bits.

Examples:
  squarefid capacity
  squarefid capacity --grid-width 6
  squarefid capacity --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		grids := []int{GetConfig().Marker.GridWidth}
		if cmd.Flags().Changed("grid-width") {
			g, _ := cmd.Flags().GetInt("grid-width")
			grids = []int{g}
		}
		if all {
			grids = grids[:0]
			for g := marker.MinGridWidth; g <= marker.MaxGridWidth; g++ {
				grids = append(grids, g)
			}
		}
		return writeCapacity(cmd.OutOrStdout(), grids)
	},
}

// writeCapacity prints one row per grid width with grouped digits.
func writeCapacity(w io.Writer, grids []int) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "grid\tdata bits\tidentities\t")
	for _, g := range grids {
		n, err := marker.DistinctIdentities(g)
		if err != nil {
			return err
		}
		_, _ = p.Fprintf(tw, "%dx%d\t%d\t%d\t\n", g, g, g*g-4, n)
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(capacityCmd)
	capacityCmd.Flags().Int("grid-width", 4, "data grid cells per side (3..8)")
	capacityCmd.Flags().Bool("all", false, "list every supported grid width")
}
