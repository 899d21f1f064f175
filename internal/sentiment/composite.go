package sentiment

import "autotrader-core/internal/domain"

// combineChannels is the weighted average of the per-channel scores. Weights
// are renormalised over the channels present; with none present the result
// is neutral.
func combineChannels(scores map[string]domain.SentimentScore, weights ChannelWeights) domain.SentimentScore {
	active := 0.0
	for ch := range scores {
		active += weights.of(ch)
	}
	if active <= 0 {
		return neutralScore()
	}

	var out domain.SentimentScore
	for ch, s := range scores {
		w := weights.of(ch) / active
		out.Score += w * s.Score
		out.Magnitude += w * s.Magnitude
		out.Bullishness += w * s.Bullishness
		out.Bearishness += w * s.Bearishness
		out.Neutrality += w * s.Neutrality
		out.Fear += w * s.Fear
		out.Greed += w * s.Greed
	}
	out.Score = clamp(out.Score, -1, 1)
	out.Bullishness = clamp(out.Bullishness, 0, 1)
	out.Bearishness = clamp(out.Bearishness, 0, 1)
	out.Neutrality = clamp(out.Neutrality, 0, 1)
	out.Fear = clamp(out.Fear, 0, 1)
	out.Greed = clamp(out.Greed, 0, 1)
	return out
}
