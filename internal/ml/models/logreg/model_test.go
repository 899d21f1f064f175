package logreg

import (
	"errors"
	"math"
	"testing"
)

func TestTrainSeparatesUpAndDownBars(t *testing.T) {
	samples, labels := separableData(40, 40)
	model, err := Train(samples, labels, []string{"rsi", "macd_histogram"}, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	if p := model.PredictProb([]float64{-2, -2}); p >= 0.5 {
		t.Fatalf("expected down sample prob < 0.5, got %.4f", p)
	}
	if p := model.PredictProb([]float64{3, 3}); p <= 0.5 {
		t.Fatalf("expected up sample prob > 0.5, got %.4f", p)
	}
	if p := model.PredictProb([]float64{1}); p != 0.5 {
		t.Fatalf("expected 0.5 for wrong-width sample, got %.4f", p)
	}
	if names := model.FeatureNames(); len(names) != 2 || names[0] != "rsi" {
		t.Fatalf("unexpected feature names: %v", names)
	}
}

func TestTrainPositionalNames(t *testing.T) {
	samples, labels := separableData(10, 50)
	model, err := Train(samples, labels, nil, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if names := model.FeatureNames(); names[1] != "f1" {
		t.Fatalf("expected positional names, got %v", names)
	}

	if p := model.PredictProb([]float64{3, 3}); math.IsNaN(p) || p <= 0.5 {
		t.Fatalf("expected up sample prob > 0.5, got %.4f", p)
	}
}

func TestTrainRejectsBadInput(t *testing.T) {
	if _, err := Train(nil, nil, nil, DefaultTrainOptions()); !errors.Is(err, ErrInvalidDataset) {
		t.Fatalf("expected ErrInvalidDataset, got %v", err)
	}
	samples, _ := separableData(5, 5)
	ones := make([]float64, len(samples))
	for i := range ones {
		ones[i] = 1
	}
	if _, err := Train(samples, ones, nil, DefaultTrainOptions()); !errors.Is(err, ErrSingleClass) {
		t.Fatalf("expected ErrSingleClass, got %v", err)
	}
}

func separableData(down, up int) ([][]float64, []float64) {
	samples := make([][]float64, 0, down+up)
	labels := make([]float64, 0, down+up)
	for i := 0; i < down; i++ {
		samples = append(samples, []float64{-1.5 - float64(i)/40, -1.0 - float64(i)/60})
		labels = append(labels, 0)
	}
	for i := 0; i < up; i++ {
		samples = append(samples, []float64{1.0 + float64(i)/40, 1.4 + float64(i)/60})
		labels = append(labels, 1)
	}
	return samples, labels
}
