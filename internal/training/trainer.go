package training

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aigoflow/classifier-service/internal/model"
)

// Options configures one training run.
type Options struct {
	Kind       model.Kind
	TestSize   float64
	Seed       int64
	MaxDepth   int
	Iterations int
	L2         float64
}

// DefaultOptions mirrors the flag defaults of cmd/train.
func DefaultOptions() Options {
	return Options{
		Kind:       model.KindLogisticRegression,
		TestSize:   0.2,
		Seed:       42,
		MaxDepth:   5,
		Iterations: 1000,
		L2:         1.0,
	}
}

// Result is a fitted artifact together with its held-out evaluation.
type Result struct {
	Artifact    *model.Artifact
	Scores      Scores
	Test        *Dataset
	Predictions []int
}

// Train splits d, fits the requested estimator and scores it on the test
// split.
func Train(d *Dataset, opts Options, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Splitting dataset",
		"samples", d.Len(),
		"classes", d.Classes,
		"test_size", opts.TestSize)
	train, test, err := StratifiedSplit(d, opts.TestSize, opts.Seed)
	if err != nil {
		return nil, err
	}
	logger.Info("Dataset split", "train", train.Len(), "test", test.Len())

	artifact := &model.Artifact{
		Kind:         opts.Kind,
		FeatureNames: append([]string(nil), d.FeatureNames...),
		Classes:      append([]int(nil), d.Classes...),
		TrainedAt:    time.Now().UTC(),
	}

	logger.Info("Training model", "kind", opts.Kind)
	switch opts.Kind {
	case model.KindLogisticRegression:
		params, err := TrainLogistic(train, LogisticOptions{Iterations: opts.Iterations, L2: opts.L2})
		if err != nil {
			return nil, err
		}
		artifact.Logistic = params
	case model.KindDecisionTree:
		nodes, err := TrainTree(train, TreeOptions{MaxDepth: opts.MaxDepth})
		if err != nil {
			return nil, err
		}
		artifact.Tree = nodes
	default:
		return nil, fmt.Errorf("unsupported model kind %q", opts.Kind)
	}

	clf, err := model.Build(artifact)
	if err != nil {
		return nil, fmt.Errorf("trained artifact is invalid: %w", err)
	}
	predictions, err := PredictAll(clf, test)
	if err != nil {
		return nil, err
	}

	scores := Evaluate(test.Labels(), predictions)
	artifact.Metrics = scores.Map()
	logger.Info("Model performance",
		"accuracy", scores.Accuracy,
		"precision", scores.Precision,
		"recall", scores.Recall,
		"f1", scores.F1)

	return &Result{
		Artifact:    artifact,
		Scores:      scores,
		Test:        test,
		Predictions: predictions,
	}, nil
}

// PredictAll classifies every sample of d.
func PredictAll(clf model.Classifier, d *Dataset) ([]int, error) {
	out := make([]int, d.Len())
	for i, x := range d.X {
		label, err := clf.Classify(x)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = label
	}
	return out, nil
}

// SaveAndVerify writes the artifact to path, reloads it through the same
// loader the server uses and checks the test predictions are unchanged.
func SaveAndVerify(path string, r *Result) error {
	if err := model.Save(path, r.Artifact); err != nil {
		return err
	}
	clf, err := model.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to reload saved model: %w", err)
	}
	reloaded, err := PredictAll(clf, r.Test)
	if err != nil {
		return err
	}
	for i := range reloaded {
		if reloaded[i] != r.Predictions[i] {
			return fmt.Errorf("model verification failed: sample %d predicted %d before saving and %d after", i, r.Predictions[i], reloaded[i])
		}
	}
	return nil
}
