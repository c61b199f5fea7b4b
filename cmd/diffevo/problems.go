package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/diffevo/internal/problems"
)

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "List the registered problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDIMENSIONS\tGENERATIONS\tPOPULATION\tSIMULATION\tDESCRIPTION")
		for _, def := range problems.All() {
			inst, err := def.Build()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\t%s\n",
				def.Name,
				inst.Space.NumberOfDimensions(),
				def.Generations,
				def.PopulationSize,
				def.Simulation,
				def.Description,
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(problemsCmd)
}
