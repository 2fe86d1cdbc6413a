package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aigoflow/classifier-service/internal/model"
	"github.com/aigoflow/classifier-service/internal/telemetry"
	"github.com/aigoflow/classifier-service/internal/training"
)

func main() {
	defaults := training.DefaultOptions()

	var (
		dataPath   = flag.String("data", "", "CSV dataset (default: bundled Iris)")
		outPath    = flag.String("out", "models/model.pkl", "Artifact path; .json and .yaml select those formats")
		kind       = flag.String("kind", string(defaults.Kind), "Estimator: logistic_regression or decision_tree")
		testSize   = flag.Float64("test-size", defaults.TestSize, "Fraction of each class held out for evaluation")
		seed       = flag.Int64("seed", defaults.Seed, "Random seed for the split")
		maxDepth   = flag.Int("max-depth", defaults.MaxDepth, "Maximum decision tree depth")
		iterations = flag.Int("iterations", defaults.Iterations, "Gradient descent iterations")
		l2         = flag.Float64("l2", defaults.L2, "L2 regularization strength")
		logLevel   = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := telemetry.NewLogger(telemetry.LogConfig{Level: *logLevel, Format: "text"})

	var (
		d   *training.Dataset
		err error
	)
	if *dataPath == "" {
		logger.Info("Loading bundled Iris dataset")
		d, err = training.LoadIris()
	} else {
		logger.Info("Loading dataset", "path", *dataPath)
		d, err = training.LoadCSV(*dataPath)
	}
	if err != nil {
		fail(logger, "Failed to load dataset", err)
	}
	logger.Info("Dataset loaded",
		"samples", d.Len(),
		"features", d.FeatureNames,
		"classes", d.ClassNames)

	result, err := training.Train(d, training.Options{
		Kind:       model.Kind(*kind),
		TestSize:   *testSize,
		Seed:       *seed,
		MaxDepth:   *maxDepth,
		Iterations: *iterations,
		L2:         *l2,
	}, logger)
	if err != nil {
		fail(logger, "Training failed", err)
	}

	if err := training.SaveAndVerify(*outPath, result); err != nil {
		fail(logger, "Failed to save model", err)
	}
	logger.Info("Model saved and verified", "path", *outPath, "format", model.FormatFor(*outPath))

	fmt.Printf("Model training complete! Model saved to: %s (accuracy %.4f)\n", *outPath, result.Scores.Accuracy)
}

func fail(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
