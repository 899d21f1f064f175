package logreg

import (
	"errors"
	"math"
	"strconv"
)

var (
	ErrInvalidDataset = errors.New("invalid training dataset")
	ErrSingleClass    = errors.New("training labels contain a single class")
)

type TrainOptions struct {
	LearningRate float64
	Epochs       int
	L2           float64
	// Balanced reweights samples so up and down bars contribute equally.
	Balanced bool
}

type params struct {
	FeatureNames []string
	Weights      []float64
	Bias         float64
	Means        []float64
	Stds         []float64
}

// Model is a standardized logistic regression returning P(next bar up).
type Model struct {
	params params
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate: 0.05,
		Epochs:       600,
		L2:           0.0001,
		Balanced:     true,
	}
}

func Train(samples [][]float64, labels []float64, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) || len(samples[0]) == 0 {
		return nil, ErrInvalidDataset
	}
	def := DefaultTrainOptions()
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.Epochs <= 0 {
		opts.Epochs = def.Epochs
	}
	if opts.L2 < 0 {
		opts.L2 = def.L2
	}

	width := len(samples[0])
	for _, s := range samples {
		if len(s) != width {
			return nil, ErrInvalidDataset
		}
	}
	posWeight, negWeight, err := classWeights(labels, opts.Balanced)
	if err != nil {
		return nil, err
	}

	means, stds := standardize(samples, width)
	xs := make([][]float64, len(samples))
	for i := range samples {
		xs[i] = normalize(samples[i], means, stds)
	}

	weights := make([]float64, width)
	bias := 0.0
	grads := make([]float64, width)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grads {
			grads[j] = 0
		}
		gradBias, total := 0.0, 0.0
		for i, x := range xs {
			w := negWeight
			if labels[i] >= 0.5 {
				w = posWeight
			}
			diff := w * (sigmoid(dot(weights, x)+bias) - labels[i])
			for j := range grads {
				grads[j] += diff * x[j]
			}
			gradBias += diff
			total += w
		}
		for j := range weights {
			weights[j] -= opts.LearningRate * (grads[j]/total + opts.L2*weights[j])
		}
		bias -= opts.LearningRate * (gradBias / total)
	}

	if len(featureNames) != width {
		featureNames = positionalNames(width)
	}
	a := params{
		FeatureNames: append([]string(nil), featureNames...),
		Weights:      weights,
		Bias:         bias,
		Means:        means,
		Stds:         stds,
	}
	return &Model{params: a}, nil
}

func classWeights(labels []float64, balanced bool) (pos, neg float64, err error) {
	var up int
	for _, y := range labels {
		if y >= 0.5 {
			up++
		}
	}
	down := len(labels) - up
	if up == 0 || down == 0 {
		return 0, 0, ErrSingleClass
	}
	if !balanced {
		return 1, 1, nil
	}
	n := float64(len(labels))
	return n / (2 * float64(up)), n / (2 * float64(down)), nil
}

func standardize(samples [][]float64, width int) (means, stds []float64) {
	means = make([]float64, width)
	stds = make([]float64, width)
	n := float64(len(samples))
	for j := 0; j < width; j++ {
		for i := range samples {
			means[j] += samples[i][j]
		}
		means[j] /= n
		for i := range samples {
			d := samples[i][j] - means[j]
			stds[j] += d * d
		}
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return means, stds
}

// PredictProb returns 0.5 for a nil model or a sample of the wrong width.
func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || len(sample) != len(m.params.Weights) {
		return 0.5
	}
	x := normalize(sample, m.params.Means, m.params.Stds)
	return sigmoid(dot(m.params.Weights, x) + m.params.Bias)
}

func (m *Model) PredictBatch(samples [][]float64) []float64 {
	probs := make([]float64, len(samples))
	for i := range samples {
		probs[i] = m.PredictProb(samples[i])
	}
	return probs
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.params.FeatureNames...)
}

func sigmoid(x float64) float64 {
	if x > 35 {
		return 1
	}
	if x < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalize(in, means, stds []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		out[i] = (in[i] - means[i]) / stds[i]
	}
	return out
}

func positionalNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "f" + strconv.Itoa(i)
	}
	return out
}
