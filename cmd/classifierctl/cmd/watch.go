package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aigoflow/classifier-service/pkg/client"
)

var staleAfter time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow heartbeats published over NATS",
	Long: `Follow the heartbeats the service publishes on models.<model>.heartbeat.

One line is printed per heartbeat. If none arrives within --stale-after the
service is reported as stale. Press Ctrl+C to exit.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&staleAfter, "stale-after", 2*time.Minute, "Report the service stale after this long without a heartbeat")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := newNATSClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	model := viper.GetString("model")
	beats, err := c.Heartbeats(ctx, model)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Waiting for heartbeats on models.%s.heartbeat...\n\n", model)
	printHeartbeatHeader(out)

	timer := time.NewTimer(staleAfter)
	defer timer.Stop()
	lastSeen := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case hb := <-beats:
			lastSeen = time.Now()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(staleAfter)
			printHeartbeat(out, hb)
		case <-timer.C:
			fmt.Fprintf(out, "%-10s %-10s stale (last heartbeat %v ago)\n",
				time.Now().Format("15:04:05"), model, time.Since(lastSeen).Truncate(time.Second))
			timer.Reset(staleAfter)
		}
	}
}

func printHeartbeatHeader(w io.Writer) {
	fmt.Fprintf(w, "%-10s %-10s %-9s %-9s %-10s %-12s %-8s %-12s\n",
		"TIME", "MODEL", "STATUS", "STATE", "UPTIME", "PREDICTIONS", "ERRORS", "BACKPRESSURE")
}

func printHeartbeat(w io.Writer, hb client.HealthStatus) {
	backpressure := hb.Backpressure
	if backpressure == "" {
		backpressure = "-"
	}
	fmt.Fprintf(w, "%-10s %-10s %-9s %-9s %-10s %-12.0f %-8.0f %-12s\n",
		hb.LastActivity.Local().Format("15:04:05"),
		hb.ModelName,
		hb.Status,
		hb.ModelState,
		(time.Duration(hb.UptimeSeconds) * time.Second).String(),
		hb.TotalPredictions,
		hb.TotalErrors,
		backpressure)
}
