// Package model loads the serialized classifier artifact and guards the single
// process-wide instance behind a Handle.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrModelNotFound means no artifact exists at the configured path.
	ErrModelNotFound = errors.New("model artifact not found")
	// ErrModelLoad means the artifact exists but could not be turned into a classifier.
	ErrModelLoad = errors.New("model artifact could not be loaded")
)

// Kind identifies the estimator stored in an artifact.
type Kind string

const (
	KindLogisticRegression Kind = "logistic_regression"
	KindDecisionTree       Kind = "decision_tree"
)

// Artifact is the on-disk envelope written by the trainer.
type Artifact struct {
	Kind         Kind               `json:"kind" yaml:"kind"`
	FeatureNames []string           `json:"feature_names" yaml:"feature_names"`
	Classes      []int              `json:"classes" yaml:"classes"`
	Logistic     *LogisticParams    `json:"logistic,omitempty" yaml:"logistic,omitempty"`
	Tree         []TreeNode         `json:"tree,omitempty" yaml:"tree,omitempty"`
	TrainedAt    time.Time          `json:"trained_at" yaml:"trained_at"`
	Metrics      map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// LogisticParams holds a multinomial logistic regression: one coefficient
// row and one intercept per class.
type LogisticParams struct {
	Coef      [][]float64 `json:"coef" yaml:"coef"`
	Intercept []float64   `json:"intercept" yaml:"intercept"`
}

// TreeNode is one node of a flattened binary decision tree. Node 0 is the root.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx" yaml:"feature_idx"`
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	LeftChild  int     `json:"left_child" yaml:"left_child"`
	RightChild int     `json:"right_child" yaml:"right_child"`
	ClassLabel int     `json:"class_label" yaml:"class_label"`
	IsLeaf     bool    `json:"is_leaf" yaml:"is_leaf"`
}

// Classifier is an immutable, loaded model. Implementations are safe for
// concurrent use.
type Classifier interface {
	// Classify returns the predicted class label for one sample.
	Classify(x []float64) (int, error)
	// Classes lists the labels in the order probabilities are reported.
	Classes() []int
	FeatureNames() []string
	// ID uniquely identifies this loaded instance.
	ID() string
}

// ProbabilityEstimator is implemented by classifiers that can report a
// probability per class.
type ProbabilityEstimator interface {
	PredictProba(x []float64) ([]float64, error)
}

// Build validates a and returns the classifier it describes.
func Build(a *Artifact) (Classifier, error) {
	if a == nil {
		return nil, errors.New("empty artifact")
	}
	if len(a.FeatureNames) == 0 {
		return nil, errors.New("artifact has no feature names")
	}
	if len(a.Classes) < 2 {
		return nil, fmt.Errorf("artifact needs at least 2 classes, got %d", len(a.Classes))
	}

	meta := meta{
		id:           ulid.Make().String(),
		classes:      append([]int(nil), a.Classes...),
		featureNames: append([]string(nil), a.FeatureNames...),
	}

	switch a.Kind {
	case KindLogisticRegression:
		return newLogisticRegression(meta, a.Logistic)
	case KindDecisionTree:
		return newDecisionTree(meta, a.Tree)
	default:
		return nil, fmt.Errorf("unsupported model kind %q", a.Kind)
	}
}

type meta struct {
	id           string
	classes      []int
	featureNames []string
}

func (m meta) ID() string { return m.id }

func (m meta) Classes() []int { return append([]int(nil), m.classes...) }

func (m meta) FeatureNames() []string { return append([]string(nil), m.featureNames...) }

func (m meta) checkInput(x []float64) error {
	if len(x) != len(m.featureNames) {
		return fmt.Errorf("expected %d features, got %d", len(m.featureNames), len(x))
	}
	return nil
}
