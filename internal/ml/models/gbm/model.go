// Package gbm wraps gradient-boosted trees from boo as a binary up/down classifier.
package gbm

import (
	"errors"
	"math"
	"strconv"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"
)

var (
	ErrInvalidDataset = errors.New("invalid training dataset")
	ErrSingleClass    = errors.New("boosting requires both up and down samples")
)

type TrainOptions struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
}

type Model struct {
	featureNames []string
	opts         TrainOptions
	boost        *boo.MultiClass
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Rounds:       40,
		LearningRate: 0.08,
		MaxDepth:     4,
	}
}

func Train(samples [][]float64, labels []float64, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) || len(samples[0]) == 0 {
		return nil, ErrInvalidDataset
	}
	width := len(samples[0])
	intLabels := make([]int, len(labels))
	var up int
	for i, v := range labels {
		if len(samples[i]) != width {
			return nil, ErrInvalidDataset
		}
		if v >= 0.5 {
			intLabels[i] = 1
			up++
		}
	}
	if up == 0 || up == len(labels) {
		return nil, ErrSingleClass
	}

	def := DefaultTrainOptions()
	if opts.Rounds <= 0 {
		opts.Rounds = def.Rounds
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if len(featureNames) != width {
		featureNames = make([]string, width)
		for i := range featureNames {
			featureNames[i] = "f" + strconv.Itoa(i)
		}
	}

	o := boo.DefaultXOptions()
	o.Rounds = opts.Rounds
	o.LearningRate = opts.LearningRate
	o.MaxDepth = opts.MaxDepth
	o.Verbose = false
	o.EarlyStop = 0

	data := &utils.DataBunch{
		Data:   samples,
		Labels: intLabels,
		Keys:   featureNames,
	}
	model := boo.NewMultiClass(data, o)
	if model == nil {
		return nil, errors.New("boosting produced no model")
	}
	return &Model{featureNames: append([]string(nil), featureNames...), opts: opts, boost: model}, nil
}

// PredictProb returns the probability of the up class, 0.5 when unknown.
func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || m.boost == nil || len(sample) != len(m.featureNames) {
		return 0.5
	}
	probs := m.boost.PredictSingle(sample)
	for i, label := range m.boost.ClassLabels() {
		if label == 1 && i < len(probs) {
			return clamp01(probs[i])
		}
	}
	if len(probs) == 0 {
		return 0.5
	}
	return clamp01(probs[len(probs)-1])
}

func (m *Model) PredictBatch(samples [][]float64) []float64 {
	out := make([]float64, len(samples))
	for i := range samples {
		out[i] = m.PredictProb(samples[i])
	}
	return out
}

func (m *Model) Options() TrainOptions {
	return m.opts
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.featureNames...)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}
