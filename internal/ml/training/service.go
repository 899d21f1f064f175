package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"autotrader-core/internal/domain"
	"autotrader-core/internal/ml/ensemble"
	"autotrader-core/internal/ml/features"
	"autotrader-core/internal/ml/models/gbm"
	"autotrader-core/internal/ml/models/logreg"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Model kinds accepted by Train.
const (
	KindLogReg = "logreg"
	KindGBM    = "gbm"
)

var (
	ErrUnknownKind      = errors.New("unknown model kind")
	ErrNotEnoughSamples = errors.New("not enough labeled samples")
)

// HistorySource exposes the bar history a symbol's voters are trained on.
type HistorySource interface {
	History(symbol string) []domain.MarketDataBar
}

// VoterInstaller receives voters that pass evaluation.
type VoterInstaller interface {
	SetVoter(v ensemble.Voter) error
}

type Config struct {
	Horizon       int
	MinSamples    int
	TestFraction  float64
	MinAUC        float64
	FeatureNames  []string
	LogRegOptions logreg.TrainOptions
	GBMOptions    gbm.TrainOptions
}

type Service struct {
	tracer    trace.Tracer
	log       zerolog.Logger
	history   HistorySource
	installer VoterInstaller
	engine    *features.Engine
	cfg       Config
}

type Result struct {
	Symbol      string             `json:"symbol"`
	Kind        string             `json:"kind"`
	Voter       string             `json:"voter"`
	SampleCount int                `json:"sample_count"`
	TestCount   int                `json:"test_count"`
	Metrics     map[string]float64 `json:"metrics"`
	Installed   bool               `json:"installed"`
}

func NewService(tracer trace.Tracer, log zerolog.Logger, history HistorySource, installer VoterInstaller, cfg Config) *Service {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 1
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 150
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = 0.2
	}
	if cfg.MinAUC <= 0 {
		cfg.MinAUC = 0.5
	}
	if len(cfg.FeatureNames) == 0 {
		cfg.FeatureNames = features.ModelFeatureNames
	}
	if cfg.LogRegOptions == (logreg.TrainOptions{}) {
		cfg.LogRegOptions = logreg.DefaultTrainOptions()
	}
	if cfg.GBMOptions == (gbm.TrainOptions{}) {
		cfg.GBMOptions = gbm.DefaultTrainOptions()
	}
	return &Service{
		tracer:    tracer,
		log:       log,
		history:   history,
		installer: installer,
		engine:    features.NewEngine(),
		cfg:       cfg,
	}
}

// VoterFor maps a model kind to the ensemble slot it replaces.
func VoterFor(kind string) (string, error) {
	switch strings.ToLower(kind) {
	case KindLogReg:
		return ensemble.LogisticRegression, nil
	case KindGBM:
		return ensemble.GradientBoosting, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Train fits a model of the given kind on the symbol's history, evaluates it
// on the most recent TestFraction of samples and installs it as a voter when
// its AUC reaches MinAUC. An underperforming model is reported but not installed.
func (s *Service) Train(ctx context.Context, symbol, kind string) (*Result, error) {
	_, span := s.tracer.Start(ctx, "ml-training.train")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("kind", kind))

	voterName, err := VoterFor(kind)
	if err != nil {
		return nil, err
	}

	rows := s.engine.BuildRows(s.history.History(symbol), features.MinHistory-1, s.cfg.Horizon)
	if len(rows) < s.cfg.MinSamples {
		return nil, fmt.Errorf("%w: got %d need >= %d", ErrNotEnoughSamples, len(rows), s.cfg.MinSamples)
	}
	samples, labels := features.Matrix(rows, s.cfg.FeatureNames)
	trainX, trainY, testX, testY := chronologicalSplit(samples, labels, s.cfg.TestFraction)

	var model ensemble.ProbabilityModel
	var probs []float64
	switch strings.ToLower(kind) {
	case KindLogReg:
		m, err := logreg.Train(trainX, trainY, s.cfg.FeatureNames, s.cfg.LogRegOptions)
		if err != nil {
			return nil, fmt.Errorf("train logreg: %w", err)
		}
		model, probs = m, m.PredictBatch(testX)
	case KindGBM:
		m, err := gbm.Train(trainX, trainY, s.cfg.FeatureNames, s.cfg.GBMOptions)
		if err != nil {
			return nil, fmt.Errorf("train gbm: %w", err)
		}
		model, probs = m, m.PredictBatch(testX)
	}

	metrics := computeMetrics(testY, probs)
	result := &Result{
		Symbol:      symbol,
		Kind:        strings.ToLower(kind),
		Voter:       voterName,
		SampleCount: len(samples),
		TestCount:   len(testY),
		Metrics:     metrics,
	}
	if metrics["auc"] < s.cfg.MinAUC {
		s.log.Info().Str("symbol", symbol).Str("kind", kind).Float64("auc", metrics["auc"]).Msg("trained model not installed")
		return result, nil
	}
	if err := s.installer.SetVoter(ensemble.NewModelVoter(voterName, model, s.cfg.FeatureNames)); err != nil {
		return nil, fmt.Errorf("install %s voter: %w", voterName, err)
	}
	result.Installed = true
	s.log.Info().Str("symbol", symbol).Str("voter", voterName).Float64("auc", metrics["auc"]).Msg("trained voter installed")
	return result, nil
}

func chronologicalSplit(samples [][]float64, labels []float64, testFraction float64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	n := len(samples)
	cut := int(float64(n) * (1 - testFraction))
	if cut < 1 {
		cut = 1
	}
	if cut >= n {
		cut = n - 1
	}
	return samples[:cut], labels[:cut], samples[cut:], labels[cut:]
}

func computeMetrics(labels []float64, probs []float64) map[string]float64 {
	n := len(labels)
	if n == 0 || len(probs) != n {
		return map[string]float64{"auc": 0.5, "accuracy": 0, "precision": 0, "recall": 0, "f1": 0, "brier": 0, "n_test": 0}
	}
	var tp, fp, tn, fn, brier float64
	for i := 0; i < n; i++ {
		y := labels[i]
		p := clamp01(probs[i])
		switch {
		case p >= 0.5 && y == 1:
			tp++
		case p >= 0.5:
			fp++
		case y == 0:
			tn++
		default:
			fn++
		}
		brier += (p - y) * (p - y)
	}

	precision := 0.0
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	recall := 0.0
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return map[string]float64{
		"auc":       computeAUC(labels, probs),
		"accuracy":  (tp + tn) / float64(n),
		"precision": precision,
		"recall":    recall,
		"f1":        f1,
		"brier":     brier / float64(n),
		"n_test":    float64(n),
	}
}

// computeAUC is the Mann-Whitney rank statistic with averaged ties.
func computeAUC(labels []float64, probs []float64) float64 {
	type pair struct {
		p float64
		y float64
	}
	pairs := make([]pair, len(labels))
	var pos, neg float64
	for i := range labels {
		pairs[i] = pair{p: clamp01(probs[i]), y: labels[i]}
		if labels[i] >= 0.5 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].p < pairs[j].p })

	sumRankPos := 0.0
	rank := 1.0
	for i := 0; i < len(pairs); {
		j := i + 1
		for j < len(pairs) && math.Abs(pairs[j].p-pairs[i].p) < 1e-12 {
			j++
		}
		avgRank := (rank + float64(j)) / 2
		for k := i; k < j; k++ {
			if pairs[k].y >= 0.5 {
				sumRankPos += avgRank
			}
		}
		rank = float64(j + 1)
		i = j
	}
	auc := (sumRankPos - (pos*(pos+1))/2) / (pos * neg)
	if math.IsNaN(auc) || math.IsInf(auc, 0) {
		return 0.5
	}
	return auc
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}
