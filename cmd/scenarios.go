package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trolleyhq/trolley/internal/runner"
	"github.com/trolleyhq/trolley/internal/scenarios"
)

// newScenariosCmd creates the `scenarios` command, listing everything the
// suite ships, in the order the runner would execute it.
func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "Lists the shipped scenarios and their tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := runner.NewRegistry()
			if err := scenarios.Register(registry); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTAGS")
			for _, scenario := range registry.All() {
				fmt.Fprintf(w, "%s\t%s\n", scenario.Name, strings.Join(scenario.Tags, ","))
			}
			return w.Flush()
		},
	}
}
