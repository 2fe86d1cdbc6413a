package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type logisticRegression struct {
	meta
	coef      *mat.Dense
	intercept *mat.VecDense
}

func newLogisticRegression(m meta, p *LogisticParams) (*logisticRegression, error) {
	if p == nil {
		return nil, errors.New("logistic_regression artifact has no parameters")
	}
	k, n := len(m.classes), len(m.featureNames)
	if len(p.Coef) != k {
		return nil, fmt.Errorf("coef has %d rows, want one per class (%d)", len(p.Coef), k)
	}
	if len(p.Intercept) != k {
		return nil, fmt.Errorf("intercept has %d values, want %d", len(p.Intercept), k)
	}

	data := make([]float64, 0, k*n)
	for i, row := range p.Coef {
		if len(row) != n {
			return nil, fmt.Errorf("coef row %d has %d values, want %d", i, len(row), n)
		}
		data = append(data, row...)
	}

	return &logisticRegression{
		meta:      m,
		coef:      mat.NewDense(k, n, data),
		intercept: mat.NewVecDense(k, append([]float64(nil), p.Intercept...)),
	}, nil
}

// scores returns the per-class decision function W·x + b.
func (lr *logisticRegression) scores(x []float64) (*mat.VecDense, error) {
	if err := lr.checkInput(x); err != nil {
		return nil, err
	}
	k, _ := lr.coef.Dims()
	s := mat.NewVecDense(k, nil)
	s.MulVec(lr.coef, mat.NewVecDense(len(x), append([]float64(nil), x...)))
	s.AddVec(s, lr.intercept)
	return s, nil
}

func (lr *logisticRegression) Classify(x []float64) (int, error) {
	s, err := lr.scores(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for i := 1; i < s.Len(); i++ {
		if s.AtVec(i) > s.AtVec(best) {
			best = i
		}
	}
	return lr.classes[best], nil
}

// PredictProba applies a numerically stable softmax to the decision function.
func (lr *logisticRegression) PredictProba(x []float64) ([]float64, error) {
	s, err := lr.scores(x)
	if err != nil {
		return nil, err
	}
	top := mat.Max(s)
	out := make([]float64, s.Len())
	var sum float64
	for i := range out {
		out[i] = math.Exp(s.AtVec(i) - top)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}
