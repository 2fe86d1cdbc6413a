package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var healthTransport string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check service health",
	Long: `Check service health.

Over HTTP this calls GET /health. Over NATS it asks the instance serving
--model for its status, which also reports the model state and counters.`,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&healthTransport, "transport", "http", "Transport (http, nats)")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	switch healthTransport {
	case "http":
		status, err := newHTTPClient().Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("cannot reach %s: %w", viper.GetString("api_url"), err)
		}
		if jsonOutput() {
			return printJSON(out, map[string]string{"status": status})
		}
		fmt.Fprintf(out, "Status: %s\n", status)
		return nil

	case "nats":
		c, err := newNATSClient()
		if err != nil {
			return err
		}
		defer c.Close()

		health, err := c.CheckHealth(cmd.Context(), viper.GetString("model"))
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(out, health)
		}
		fmt.Fprintf(out, "Model:        %s\n", health.ModelName)
		fmt.Fprintf(out, "Status:       %s\n", health.Status)
		fmt.Fprintf(out, "Model state:  %s\n", health.ModelState)
		fmt.Fprintf(out, "Endpoint:     %s\n", health.Endpoint)
		fmt.Fprintf(out, "Uptime:       %.0fs\n", health.UptimeSeconds)
		fmt.Fprintf(out, "Predictions:  %.0f (errors %.0f)\n", health.TotalPredictions, health.TotalErrors)
		if health.Backpressure != "" {
			fmt.Fprintf(out, "Backpressure: %s\n", health.Backpressure)
		}
		return nil

	default:
		return fmt.Errorf("unknown transport %q", healthTransport)
	}
}
