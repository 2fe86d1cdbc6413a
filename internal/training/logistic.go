package training

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aigoflow/classifier-service/internal/model"
)

// LogisticOptions configures multinomial logistic regression.
type LogisticOptions struct {
	Iterations   int
	L2           float64 // inverse of the C in sklearn's LogisticRegression
	LearningRate float64
}

// TrainLogistic fits a softmax regression by batch gradient descent on
// standardized features and folds the scaling back into the coefficients,
// so the artifact consumes raw measurements.
func TrainLogistic(d *Dataset, opts LogisticOptions) (*model.LogisticParams, error) {
	if d.Len() == 0 {
		return nil, errors.New("no training samples")
	}
	if opts.Iterations <= 0 {
		opts.Iterations = 1000
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.5
	}

	n, p, k := d.Len(), len(d.X[0]), len(d.Classes)
	mean, scale := standardization(d.X)

	x := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, k, nil)
	for i, row := range d.X {
		for j, v := range row {
			x.Set(i, j, (v-mean[j])/scale[j])
		}
		y.Set(i, d.Y[i], 1)
	}

	w := mat.NewDense(p, k, nil)
	b := make([]float64, k)

	var (
		probs = mat.NewDense(n, k, nil)
		grad  = mat.NewDense(p, k, nil)
	)
	step := opts.LearningRate
	for iter := 0; iter < opts.Iterations; iter++ {
		probs.Mul(x, w)
		for i := 0; i < n; i++ {
			row := probs.RawRowView(i)
			for c := range row {
				row[c] += b[c]
			}
			softmaxInPlace(row)
		}
		// probs now holds the residual P - Y.
		probs.Sub(probs, y)

		grad.Mul(x.T(), probs)
		grad.Scale(1/float64(n), grad)
		if opts.L2 > 0 {
			reg := mat.DenseCopyOf(w)
			reg.Scale(opts.L2/float64(n), reg)
			grad.Add(grad, reg)
		}

		for c := 0; c < k; c++ {
			var g float64
			for i := 0; i < n; i++ {
				g += probs.At(i, c)
			}
			b[c] -= step * g / float64(n)
		}
		grad.Scale(step, grad)
		w.Sub(w, grad)
	}

	params := &model.LogisticParams{
		Coef:      make([][]float64, k),
		Intercept: make([]float64, k),
	}
	for c := 0; c < k; c++ {
		params.Coef[c] = make([]float64, p)
		params.Intercept[c] = b[c]
		for j := 0; j < p; j++ {
			params.Coef[c][j] = w.At(j, c) / scale[j]
			params.Intercept[c] -= w.At(j, c) * mean[j] / scale[j]
		}
	}
	return params, nil
}

func standardization(rows [][]float64) (mean, scale []float64) {
	p := len(rows[0])
	mean = make([]float64, p)
	scale = make([]float64, p)
	for _, row := range rows {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(rows))
	}
	for _, row := range rows {
		for j, v := range row {
			scale[j] += (v - mean[j]) * (v - mean[j])
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(len(rows)))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return mean, scale
}

func softmaxInPlace(z []float64) {
	top := z[0]
	for _, v := range z[1:] {
		top = math.Max(top, v)
	}
	var sum float64
	for i, v := range z {
		z[i] = math.Exp(v - top)
		sum += z[i]
	}
	for i := range z {
		z[i] /= sum
	}
}
