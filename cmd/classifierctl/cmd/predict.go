package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aigoflow/classifier-service/pkg/client"
)

var (
	features         client.Features
	predictTransport string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Classify one record",
	Long: `Classify one record.

All four measurement flags are required. --feature5 is sent but the model
ignores it.

Examples:
  classifierctl predict --feature1 6.3 --feature2 3.3 --feature3 6.0 --feature4 2.5
  classifierctl predict -o json --feature1 5.1 --feature2 3.5 --feature3 1.4 --feature4 0.2`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().Float64Var(&features.Feature1, "feature1", 0, "Sepal length (cm)")
	predictCmd.Flags().Float64Var(&features.Feature2, "feature2", 0, "Sepal width (cm)")
	predictCmd.Flags().Float64Var(&features.Feature3, "feature3", 0, "Petal length (cm)")
	predictCmd.Flags().Float64Var(&features.Feature4, "feature4", 0, "Petal width (cm)")
	predictCmd.Flags().Float64Var(&features.Feature5, "feature5", 0, "Unused by the model")
	predictCmd.Flags().StringVar(&predictTransport, "transport", "http", "Transport (http, nats)")
	for _, name := range []string{"feature1", "feature2", "feature3", "feature4"} {
		_ = predictCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	var (
		p   *client.Prediction
		err error
	)
	switch predictTransport {
	case "http":
		p, err = newHTTPClient().Predict(cmd.Context(), features)
	case "nats":
		p, err = predictOverNATS(cmd, features)
	default:
		return fmt.Errorf("unknown transport %q", predictTransport)
	}
	if err != nil {
		return err
	}

	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), p)
	}
	printPrediction(cmd.OutOrStdout(), p)
	return nil
}

func predictOverNATS(cmd *cobra.Command, f client.Features) (*client.Prediction, error) {
	c, err := newNATSClient()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	resp, err := c.Predict(cmd.Context(), predictionSubject(), f.Map())
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s: %s", resp.ErrorKind, resp.Error)
	}
	if resp.Prediction == nil {
		return nil, errors.New("reply carried no prediction")
	}
	return &client.Prediction{Label: *resp.Prediction, Probabilities: resp.Probabilities}, nil
}

func printPrediction(w io.Writer, p *client.Prediction) {
	fmt.Fprintf(w, "Prediction: %d\n", p.Label)
	if p.Probabilities == nil {
		fmt.Fprintln(w, "Probabilities: not available")
		return
	}
	parts := make([]string, len(p.Probabilities))
	for i, prob := range p.Probabilities {
		parts[i] = fmt.Sprintf("%d=%.4f", i, prob)
	}
	fmt.Fprintf(w, "Probabilities: %s\n", strings.Join(parts, " "))
}
