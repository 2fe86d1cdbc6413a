package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/aigoflow/classifier-service/pkg/client"
)

// benchSamples are one record of each Iris species.
var benchSamples = []client.Features{
	{Feature1: 5.1, Feature2: 3.5, Feature3: 1.4, Feature4: 0.2, Feature5: 0.1},
	{Feature1: 7.0, Feature2: 3.2, Feature3: 4.7, Feature4: 1.4, Feature5: 0.5},
	{Feature1: 6.3, Feature2: 3.3, Feature3: 6.0, Feature4: 2.5, Feature5: 1.0},
}

var (
	benchCount int
	benchDelay time.Duration
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Send a series of predictions and report throughput",
	Long: `Send -n predictions one after another over HTTP, cycling through one
sample of each species, and report latency, throughput and the label
distribution.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVarP(&benchCount, "requests", "n", 30, "Number of predictions to send")
	benchCmd.Flags().DurationVar(&benchDelay, "delay", 0, "Pause between requests")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchCount < 1 {
		return fmt.Errorf("-n must be at least 1, got %d", benchCount)
	}

	c := newHTTPClient()
	out := cmd.OutOrStdout()

	var (
		failures  int
		latencies = make([]time.Duration, 0, benchCount)
		labels    = map[int]int{}
	)
	start := time.Now()
	for i := 0; i < benchCount; i++ {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		reqStart := time.Now()
		p, err := c.Predict(cmd.Context(), benchSamples[i%len(benchSamples)])
		latencies = append(latencies, time.Since(reqStart))
		if err != nil {
			failures++
			fmt.Fprintf(cmd.ErrOrStderr(), "request %d failed: %v\n", i+1, err)
		} else {
			labels[p.Label]++
		}
		if benchDelay > 0 && i < benchCount-1 {
			time.Sleep(benchDelay)
		}
	}
	elapsed := time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	fmt.Fprintf(out, "Requests:   %d (%d failed)\n", benchCount, failures)
	fmt.Fprintf(out, "Elapsed:    %v\n", elapsed.Truncate(time.Microsecond))
	fmt.Fprintf(out, "Throughput: %.1f req/s\n", float64(benchCount)/elapsed.Seconds())
	fmt.Fprintf(out, "Latency:    p50 %v  p95 %v  max %v\n",
		percentile(latencies, 0.50), percentile(latencies, 0.95), latencies[len(latencies)-1])

	keys := make([]int, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "Label %d:    %d\n", k, labels[k])
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d requests failed", failures, benchCount)
	}
	return nil
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(q*float64(len(sorted)-1) + 0.5)
	return sorted[idx]
}
