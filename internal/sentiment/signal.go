package sentiment

import (
	"fmt"
	"math"

	"autotrader-core/internal/domain"
)

const contrarianDiscount = 0.8

// DeriveSignal maps a sentiment snapshot to an action. Scores beyond the buy
// or sell threshold trade with confidence min(0.95, |score|*(1+magnitude));
// anything between holds with confidence 1-|score|. Extreme greed flips a BUY
// to SELL and extreme fear flips a SELL to BUY, with the confidence clamped to
// [0.7, 0.95] and discounted by 0.8. A nil result is a zero-confidence HOLD.
func DeriveSignal(result *domain.SentimentAnalysisResult, cfg Config) domain.SentimentSignal {
	if result == nil {
		return domain.SentimentSignal{Action: domain.ActionHold, Reason: "no sentiment data"}
	}
	s := result.Sentiment
	abs := math.Abs(s.Score)

	var sig domain.SentimentSignal
	switch {
	case s.Score > cfg.BuyThreshold:
		sig = domain.SentimentSignal{
			Action:     domain.ActionBuy,
			Confidence: math.Min(0.95, abs*(1+s.Magnitude)),
			Reason:     fmt.Sprintf("bullish sentiment %.2f above %.2f", s.Score, cfg.BuyThreshold),
		}
	case s.Score < cfg.SellThreshold:
		sig = domain.SentimentSignal{
			Action:     domain.ActionSell,
			Confidence: math.Min(0.95, abs*(1+s.Magnitude)),
			Reason:     fmt.Sprintf("bearish sentiment %.2f below %.2f", s.Score, cfg.SellThreshold),
		}
	default:
		return domain.SentimentSignal{
			Action:     domain.ActionHold,
			Confidence: 1 - abs,
			Reason:     fmt.Sprintf("neutral sentiment %.2f", s.Score),
		}
	}

	switch {
	case sig.Action == domain.ActionBuy && s.Greed > cfg.ContrarianThreshold:
		sig.Action = domain.ActionSell
		sig.Confidence = clamp(sig.Confidence, 0.7, 0.95) * contrarianDiscount
		sig.Reason += fmt.Sprintf("; contrarian: greed %.2f above %.2f, BUY flipped to SELL", s.Greed, cfg.ContrarianThreshold)
	case sig.Action == domain.ActionSell && s.Fear > cfg.ContrarianThreshold:
		sig.Action = domain.ActionBuy
		sig.Confidence = clamp(sig.Confidence, 0.7, 0.95) * contrarianDiscount
		sig.Reason += fmt.Sprintf("; contrarian: fear %.2f above %.2f, SELL flipped to BUY", s.Fear, cfg.ContrarianThreshold)
	}
	return sig
}
