package ensemble

import (
	"autotrader-core/internal/domain"
	"autotrader-core/internal/ml/features"
)

// Voter names. Substituted voters keep these names so the configured weights apply.
const (
	RandomForest       = "random_forest"
	GradientBoosting   = "gradient_boosting"
	NeuralNetwork      = "neural_network"
	SVM                = "svm"
	LogisticRegression = "logistic_regression"
)

// StrengthThreshold is the net bullish-bearish score a rule voter needs to leave HOLD.
const StrengthThreshold = 1.5

// Opinion is a single voter's answer.
type Opinion struct {
	Action     domain.Action
	Confidence float64
}

// Voter scores a feature vector. Implementations must not modify the vector.
type Voter interface {
	Name() string
	Score(f features.Vector) Opinion
}

// Rand supplies confidence jitter.
type Rand interface {
	Float64() float64
}

type adjustFunc func(f features.Vector, bull, bear float64) (float64, float64)

// RuleVoter is a heuristic voter: shared indicator rules, a voter-specific
// adjustment of the bullish/bearish totals, a bias and random jitter on confidence.
type RuleVoter struct {
	name   string
	bias   float64
	adjust adjustFunc
	rng    Rand
}

func (v *RuleVoter) Name() string { return v.name }

func (v *RuleVoter) Score(f features.Vector) Opinion {
	bull, bear := baseSignals(f)
	if v.adjust != nil {
		bull, bear = v.adjust(f, bull, bear)
	}
	strength := bull - bear
	jitter := (v.rng.Float64() - 0.5) * 0.1

	switch {
	case strength > StrengthThreshold:
		return Opinion{Action: domain.ActionBuy, Confidence: clamp(0.55+0.1*strength+v.bias+jitter, 0, 0.95)}
	case strength < -StrengthThreshold:
		return Opinion{Action: domain.ActionSell, Confidence: clamp(0.55-0.1*strength+v.bias+jitter, 0, 0.95)}
	default:
		calm := 1 - abs(strength)/StrengthThreshold
		return Opinion{Action: domain.ActionHold, Confidence: clamp(0.5+0.2*calm+v.bias+jitter, 0, 0.95)}
	}
}

// baseSignals counts bullish and bearish evidence shared by every rule voter.
func baseSignals(f features.Vector) (bull, bear float64) {
	rsi := f[features.RSI]
	switch {
	case rsi < 30:
		bull++
	case rsi > 70:
		bear++
	}

	hist := f[features.MACDHistogram]
	switch {
	case hist > 0:
		bull++
	case hist < 0:
		bear++
	}

	ratio := f[features.EMARatio]
	switch {
	case ratio > 1.02:
		bull++
	case ratio < 0.98:
		bear++
	}

	pos := f[features.BollingerPosition]
	switch {
	case pos < 0.3:
		bull += 0.5
	case pos > 0.7:
		bear += 0.5
	}

	if f[features.VolumeRatio] > 1.2 {
		change := f[features.PriceChange1]
		switch {
		case change > 0:
			bull += 0.5
		case change < 0:
			bear += 0.5
		}
	}
	return bull, bear
}

// NewRuleVoters returns the five default heuristic voters sharing one jitter source.
func NewRuleVoters(rng Rand) []Voter {
	return []Voter{
		&RuleVoter{name: RandomForest, bias: 0.02, rng: rng},
		&RuleVoter{name: GradientBoosting, bias: 0.01, rng: rng, adjust: momentumAdjust},
		&RuleVoter{name: NeuralNetwork, bias: 0, rng: rng, adjust: volumeAdjust},
		&RuleVoter{name: SVM, bias: -0.01, rng: rng, adjust: marginAdjust},
		&RuleVoter{name: LogisticRegression, bias: -0.02, rng: rng, adjust: conservativeAdjust},
	}
}

func momentumAdjust(f features.Vector, bull, bear float64) (float64, float64) {
	change := f[features.PriceChange5]
	switch {
	case change > 0.02:
		bull += 0.5
	case change < -0.02:
		bear += 0.5
	}
	return bull, bear
}

func volumeAdjust(f features.Vector, bull, bear float64) (float64, float64) {
	if f[features.VolumeRatio] <= 1.5 {
		return bull, bear
	}
	if bull > bear {
		return bull * 1.2, bear
	}
	if bear > bull {
		return bull, bear * 1.2
	}
	return bull, bear
}

func marginAdjust(f features.Vector, bull, bear float64) (float64, float64) {
	pos := f[features.BollingerPosition]
	switch {
	case pos < 0.2:
		bull += 0.5
	case pos > 0.8:
		bear += 0.5
	}
	return bull, bear
}

func conservativeAdjust(_ features.Vector, bull, bear float64) (float64, float64) {
	return bull * 0.8, bear * 0.8
}

// ProbabilityModel is a trained binary classifier returning P(up).
type ProbabilityModel interface {
	PredictProb(sample []float64) float64
}

// ModelVoter adapts a trained classifier to the Voter interface.
type ModelVoter struct {
	name         string
	model        ProbabilityModel
	featureNames []string
	buyAbove     float64
	sellBelow    float64
}

func NewModelVoter(name string, model ProbabilityModel, featureNames []string) *ModelVoter {
	return &ModelVoter{
		name:         name,
		model:        model,
		featureNames: append([]string(nil), featureNames...),
		buyAbove:     0.6,
		sellBelow:    0.4,
	}
}

func (v *ModelVoter) Name() string { return v.name }

func (v *ModelVoter) Score(f features.Vector) Opinion {
	p := clamp(v.model.PredictProb(f.Values(v.featureNames)), 0, 1)
	switch {
	case p >= v.buyAbove:
		return Opinion{Action: domain.ActionBuy, Confidence: p}
	case p <= v.sellBelow:
		return Opinion{Action: domain.ActionSell, Confidence: 1 - p}
	default:
		return Opinion{Action: domain.ActionHold, Confidence: 1 - 2*abs(p-0.5)}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
