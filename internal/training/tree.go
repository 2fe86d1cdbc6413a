package training

import (
	"errors"
	"sort"

	"github.com/aigoflow/classifier-service/internal/model"
)

// TreeOptions configures CART training with gini impurity.
type TreeOptions struct {
	MaxDepth        int
	MinSamplesSplit int
}

// TrainTree grows a decision tree and flattens it in preorder, so every
// child index is greater than its parent's.
func TrainTree(d *Dataset, opts TreeOptions) ([]model.TreeNode, error) {
	if d.Len() == 0 {
		return nil, errors.New("no training samples")
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 5
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}

	idx := make([]int, d.Len())
	for i := range idx {
		idx[i] = i
	}
	b := &treeBuilder{data: d, opts: opts}
	b.grow(idx, 0)
	return b.nodes, nil
}

type treeBuilder struct {
	data  *Dataset
	opts  TreeOptions
	nodes []model.TreeNode
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	at := len(b.nodes)
	b.nodes = append(b.nodes, model.TreeNode{})

	counts := b.classCounts(idx)
	leaf := model.TreeNode{IsLeaf: true, ClassLabel: b.data.Classes[majority(counts)]}

	if depth >= b.opts.MaxDepth || len(idx) < b.opts.MinSamplesSplit || gini(counts, len(idx)) == 0 {
		b.nodes[at] = leaf
		return at
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		b.nodes[at] = leaf
		return at
	}

	var left, right []int
	for _, i := range idx {
		if b.data.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node := model.TreeNode{FeatureIdx: feature, Threshold: threshold}
	node.LeftChild = b.grow(left, depth+1)
	node.RightChild = b.grow(right, depth+1)
	b.nodes[at] = node
	return at
}

// bestSplit returns the split with the lowest weighted gini impurity.
// Thresholds are midpoints between consecutive distinct values.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	k := len(b.data.Classes)
	total := b.classCounts(idx)
	best := gini(total, len(idx))

	sorted := append([]int(nil), idx...)
	for f := range b.data.X[idx[0]] {
		sort.Slice(sorted, func(i, j int) bool { return b.data.X[sorted[i]][f] < b.data.X[sorted[j]][f] })

		left := make([]int, k)
		right := append([]int(nil), total...)
		for pos := 0; pos < len(sorted)-1; pos++ {
			y := b.data.Y[sorted[pos]]
			left[y]++
			right[y]--

			cur, next := b.data.X[sorted[pos]][f], b.data.X[sorted[pos+1]][f]
			if cur == next {
				continue
			}
			nl, nr := pos+1, len(sorted)-pos-1
			impurity := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(len(sorted))
			if impurity < best-1e-12 {
				best, feature, threshold, ok = impurity, f, (cur+next)/2, true
			}
		}
	}
	return feature, threshold, ok
}

func (b *treeBuilder) classCounts(idx []int) []int {
	counts := make([]int, len(b.data.Classes))
	for _, i := range idx {
		counts[b.data.Y[i]]++
	}
	return counts
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

// majority breaks ties toward the lower class index.
func majority(counts []int) int {
	best := 0
	for c, n := range counts {
		if n > counts[best] {
			best = c
		}
	}
	return best
}
