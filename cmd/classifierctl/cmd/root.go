// Package cmd implements the classifierctl commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aigoflow/classifier-service/pkg/client"
)

var (
	apiURL    string
	natsURL   string
	modelName string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "classifierctl",
	Short: "Client for the classifier service",
	Long: `classifierctl calls a running classifier service.

Examples:
  # Check the service is up
  classifierctl health

  # Classify one record
  classifierctl predict --feature1 5.1 --feature2 3.5 --feature3 1.4 --feature4 0.2

  # The same request through the NATS work queue
  classifierctl predict --transport nats --feature1 7.0 --feature2 3.2 --feature3 4.7 --feature4 1.4`,
	SilenceUsage: true,
}

// Execute runs the root command. Ctrl+C cancels the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "u", "http://localhost:8000", "Service base URL")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "iris", "Model name used for NATS subjects")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "Output format (text, json)")

	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("nats_url", rootCmd.PersistentFlags().Lookup("nats-url"))
	_ = viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

// initConfig lets CLASSIFIER_* variables (and API_URL / NATS_URL) stand in
// for flags that were not given.
func initConfig() {
	viper.SetEnvPrefix("CLASSIFIER")
	viper.AutomaticEnv()
	_ = viper.BindEnv("api_url", "CLASSIFIER_API_URL", "API_URL")
	_ = viper.BindEnv("nats_url", "CLASSIFIER_NATS_URL", "NATS_URL")
	_ = viper.BindEnv("model", "CLASSIFIER_MODEL", "MODEL_NAME")
}

func newHTTPClient() *client.HTTPClient {
	return client.NewHTTPClient(viper.GetString("api_url"))
}

func newNATSClient() (*client.NATSClient, error) {
	return client.NewNATSClient(viper.GetString("nats_url"), "classifierctl")
}

func predictionSubject() string {
	return fmt.Sprintf("prediction.request.%s", viper.GetString("model"))
}

func jsonOutput() bool {
	return viper.GetString("output") == "json"
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
