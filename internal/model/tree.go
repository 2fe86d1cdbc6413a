package model

import (
	"errors"
	"fmt"
)

// decisionTree reports labels only; it does not implement ProbabilityEstimator.
type decisionTree struct {
	meta
	nodes []TreeNode
}

func newDecisionTree(m meta, nodes []TreeNode) (*decisionTree, error) {
	if len(nodes) == 0 {
		return nil, errors.New("decision_tree artifact has no nodes")
	}
	known := make(map[int]bool, len(m.classes))
	for _, c := range m.classes {
		known[c] = true
	}
	for i, n := range nodes {
		if n.IsLeaf {
			if !known[n.ClassLabel] {
				return nil, fmt.Errorf("leaf %d has unknown class %d", i, n.ClassLabel)
			}
			continue
		}
		if n.FeatureIdx < 0 || n.FeatureIdx >= len(m.featureNames) {
			return nil, fmt.Errorf("node %d splits on feature %d out of range", i, n.FeatureIdx)
		}
		if n.LeftChild <= i || n.LeftChild >= len(nodes) || n.RightChild <= i || n.RightChild >= len(nodes) {
			return nil, fmt.Errorf("node %d has invalid children (%d, %d)", i, n.LeftChild, n.RightChild)
		}
	}
	return &decisionTree{meta: m, nodes: append([]TreeNode(nil), nodes...)}, nil
}

// Classify walks from the root. Children always follow their parent, so the
// walk terminates.
func (dt *decisionTree) Classify(x []float64) (int, error) {
	if err := dt.checkInput(x); err != nil {
		return 0, err
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, nil
		}
		if x[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}
