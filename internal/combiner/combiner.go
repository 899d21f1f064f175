// Package combiner reconciles the technical and sentiment opinions on a
// symbol into one trading signal with an ordered reasoning trail.
package combiner

import (
	"errors"
	"fmt"
	"math"
	"time"

	"autotrader-core/internal/domain"
)

var (
	ErrTechnicalRequired = errors.New("technical signal required")
	ErrSentimentRequired = errors.New("sentiment signal required")
	ErrNoSignals         = errors.New("no technical or sentiment signal")
)

const (
	conflictDiscount   = 0.8
	singleSideDiscount = 0.9
	contrarianDiscount = 0.8
	contrarianCap      = 0.7
)

type Config struct {
	TechnicalWeight       float64 `yaml:"technical_weight" validate:"gte=0,lte=1"`
	SentimentWeight       float64 `yaml:"sentiment_weight" validate:"gte=0,lte=1"`
	UseTechnicalFilter    bool    `yaml:"use_technical_filter"`
	UseSentimentFilter    bool    `yaml:"use_sentiment_filter"`
	EnableContrarian      bool    `yaml:"enable_contrarian"`
	ContraryThreshold     float64 `yaml:"contrary_threshold" validate:"gte=0,lte=1"`
	MinCombinedConfidence float64 `yaml:"min_combined_confidence" validate:"gte=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{
		TechnicalWeight:       0.7,
		SentimentWeight:       0.3,
		UseTechnicalFilter:    true,
		UseSentimentFilter:    false,
		EnableContrarian:      true,
		ContraryThreshold:     0.85,
		MinCombinedConfidence: 0.65,
	}
}

type Combiner struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Combiner {
	if cfg.TechnicalWeight+cfg.SentimentWeight <= 0 {
		def := DefaultConfig()
		cfg.TechnicalWeight, cfg.SentimentWeight = def.TechnicalWeight, def.SentimentWeight
	}
	return &Combiner{cfg: cfg, now: time.Now}
}

func (c *Combiner) Config() Config {
	return c.cfg
}

type opinion struct {
	action     domain.Action
	confidence float64
}

// Combine applies, in order: the required-source filters, conflict
// resolution, single-HOLD adoption, HOLD agreement, weighted agreement, the
// contrarian fear/greed override and the minimum-confidence gate. A missing
// optional source counts as HOLD with zero confidence. The result does not
// share memory with its inputs.
func (c *Combiner) Combine(technical *domain.ModelPrediction, sentiment *domain.SentimentSignal, analysis *domain.SentimentAnalysisResult) (*domain.TradingSignal, error) {
	if c.cfg.UseTechnicalFilter && technical == nil {
		return nil, ErrTechnicalRequired
	}
	if c.cfg.UseSentimentFilter && sentiment == nil {
		return nil, ErrSentimentRequired
	}
	if technical == nil && sentiment == nil {
		return nil, ErrNoSignals
	}

	var reasoning []string
	tech := opinion{action: domain.ActionHold}
	if technical != nil {
		tech = opinion{action: technical.Action, confidence: technical.Confidence}
		reasoning = append(reasoning, fmt.Sprintf("Technical analysis: %s with %.1f%% confidence", tech.action, tech.confidence*100))
	} else {
		reasoning = append(reasoning, "Technical analysis: unavailable, treated as HOLD")
	}
	sent := opinion{action: domain.ActionHold}
	if sentiment != nil {
		sent = opinion{action: sentiment.Action, confidence: sentiment.Confidence}
		line := fmt.Sprintf("Sentiment analysis: %s with %.1f%% confidence", sent.action, sent.confidence*100)
		if sentiment.Reason != "" {
			line += " (" + sentiment.Reason + ")"
		}
		reasoning = append(reasoning, line)
	} else {
		reasoning = append(reasoning, "Sentiment analysis: unavailable, treated as HOLD")
	}

	action, confidence := c.resolve(tech, sent, &reasoning)

	if c.cfg.EnableContrarian && analysis != nil {
		fear, greed := analysis.Sentiment.Fear, analysis.Sentiment.Greed
		switch {
		case action == domain.ActionSell && fear > c.cfg.ContraryThreshold:
			action = domain.ActionBuy
			confidence = math.Min(confidence*contrarianDiscount, contrarianCap)
			reasoning = append(reasoning, fmt.Sprintf("Contrarian override: extreme fear (%.2f) turns SELL into BUY at %.1f%% confidence", fear, confidence*100))
		case action == domain.ActionBuy && greed > c.cfg.ContraryThreshold:
			action = domain.ActionSell
			confidence = math.Min(confidence*contrarianDiscount, contrarianCap)
			reasoning = append(reasoning, fmt.Sprintf("Contrarian override: extreme greed (%.2f) turns BUY into SELL at %.1f%% confidence", greed, confidence*100))
		}
	}

	if confidence < c.cfg.MinCombinedConfidence {
		if action != domain.ActionHold {
			reasoning = append(reasoning, fmt.Sprintf("Confidence %.1f%% below minimum %.1f%%, %s downgraded to HOLD", confidence*100, c.cfg.MinCombinedConfidence*100, action))
		} else {
			reasoning = append(reasoning, fmt.Sprintf("Confidence %.1f%% below minimum %.1f%%, holding", confidence*100, c.cfg.MinCombinedConfidence*100))
		}
		action = domain.ActionHold
	}

	sig := &domain.TradingSignal{
		Action:     action,
		Confidence: confidence,
		Timestamp:  c.now().UTC().Format(time.RFC3339),
		Indicators: indicators(technical, sentiment, analysis),
		Reasoning:  reasoning,
	}
	switch {
	case technical != nil:
		sig.Symbol = technical.Symbol
		sig.Price = technical.Price
	case analysis != nil:
		sig.Symbol = analysis.Symbol
	}
	return sig, nil
}

func (c *Combiner) resolve(tech, sent opinion, reasoning *[]string) (domain.Action, float64) {
	techHold := tech.action == domain.ActionHold
	sentHold := sent.action == domain.ActionHold

	switch {
	case !techHold && !sentHold && tech.action != sent.action:
		techScore := tech.confidence * c.cfg.TechnicalWeight
		sentScore := sent.confidence * c.cfg.SentimentWeight
		winner, side := tech, "technical"
		if sentScore > techScore {
			winner, side = sent, "sentiment"
		}
		conf := winner.confidence * conflictDiscount
		*reasoning = append(*reasoning, fmt.Sprintf("Signal conflict: technical %s (%.2f) vs sentiment %s (%.2f); conflict resolved in favor of %s %s at %.1f%% confidence",
			tech.action, techScore, sent.action, sentScore, side, winner.action, conf*100))
		return winner.action, conf

	case techHold && sentHold:
		conf := math.Max(tech.confidence, sent.confidence)
		*reasoning = append(*reasoning, fmt.Sprintf("Both sources HOLD, confidence %.1f%%", conf*100))
		return domain.ActionHold, conf

	case techHold || sentHold:
		active, side := tech, "technical"
		if techHold {
			active, side = sent, "sentiment"
		}
		conf := active.confidence * singleSideDiscount
		*reasoning = append(*reasoning, fmt.Sprintf("Only %s has a directional view, adopting %s at %.1f%% confidence", side, active.action, conf*100))
		return active.action, conf

	default:
		total := c.cfg.TechnicalWeight + c.cfg.SentimentWeight
		conf := (tech.confidence*c.cfg.TechnicalWeight + sent.confidence*c.cfg.SentimentWeight) / total
		*reasoning = append(*reasoning, fmt.Sprintf("Technical and sentiment agree on %s, weighted confidence %.1f%%", tech.action, conf*100))
		return tech.action, conf
	}
}

func indicators(technical *domain.ModelPrediction, sentiment *domain.SentimentSignal, analysis *domain.SentimentAnalysisResult) map[string]float64 {
	out := make(map[string]float64, 16)
	if technical != nil {
		out["technical_confidence"] = technical.Confidence
		out["price"] = technical.Price
		optional := map[string]*float64{
			"price_target":      technical.PriceTarget,
			"stop_loss":         technical.StopLoss,
			"expected_return":   technical.ExpectedReturn,
			"risk_reward_ratio": technical.RiskRewardRatio,
		}
		for k, v := range optional {
			if v != nil {
				out[k] = *v
			}
		}
		for name, vote := range technical.Votes {
			out["vote_"+name] = vote.Confidence
		}
	}
	if sentiment != nil {
		out["sentiment_confidence"] = sentiment.Confidence
	}
	if analysis != nil {
		out["sentiment_score"] = analysis.Sentiment.Score
		out["sentiment_magnitude"] = analysis.Sentiment.Magnitude
		out["fear"] = analysis.Sentiment.Fear
		out["greed"] = analysis.Sentiment.Greed
	}
	return out
}

// TechnicalOnly passes a technical prediction through unchanged, for
// pipelines that run without sentiment. A nil prediction yields nil.
func (c *Combiner) TechnicalOnly(technical *domain.ModelPrediction) *domain.TradingSignal {
	if technical == nil {
		return nil
	}
	return &domain.TradingSignal{
		Symbol:     technical.Symbol,
		Action:     technical.Action,
		Price:      technical.Price,
		Confidence: technical.Confidence,
		Timestamp:  c.now().UTC().Format(time.RFC3339),
		Indicators: indicators(technical, nil, nil),
		Reasoning: []string{
			fmt.Sprintf("Technical analysis: %s with %.1f%% confidence", technical.Action, technical.Confidence*100),
			"Sentiment not consulted",
		},
	}
}
