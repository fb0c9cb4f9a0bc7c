package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seantiz/vantage/internal/function"
)

func newFunctionsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the query functions the gateway serves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			descs := function.NewRegistry(function.Env{}, function.Builtins()...).List()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(descs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tOUTPUT\tCOMPOSITE\tCACHED\tSUMMARY")
			for _, d := range descs {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", d.Name, d.Output, d.Composite, d.Cached, d.Summary)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
