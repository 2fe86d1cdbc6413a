package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print the service counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := newHTTPClient().Metrics(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}
