package combiner

import (
	"strings"
	"testing"
	"time"

	"autotrader-core/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCombiner(cfg Config) *Combiner {
	c := New(cfg)
	c.now = func() time.Time { return time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC) }
	return c
}

func tech(action domain.Action, conf float64) *domain.ModelPrediction {
	return &domain.ModelPrediction{
		Symbol:      "AAPL",
		Action:      action,
		Confidence:  conf,
		Price:       190,
		PriceTarget: domain.Float(196),
		Votes:       map[string]domain.VoterVote{"random_forest": {Prediction: action, Confidence: conf, Weight: 0.3}},
	}
}

func sent(action domain.Action, conf float64) *domain.SentimentSignal {
	return &domain.SentimentSignal{Action: action, Confidence: conf, Reason: "test"}
}

func hasReason(reasons []string, fragment string) bool {
	for _, r := range reasons {
		if strings.Contains(r, fragment) {
			return true
		}
	}
	return false
}

func TestConflictResolvesToHeavierSide(t *testing.T) {
	c := newTestCombiner(DefaultConfig())
	sig, err := c.Combine(tech(domain.ActionBuy, 0.9), sent(domain.ActionSell, 0.9), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.InDelta(t, 0.72, sig.Confidence, 1e-9)
	assert.True(t, hasReason(sig.Reasoning, "conflict resolved in favor of technical BUY"), sig.Reasoning)
	assert.Equal(t, "2024-03-01T14:30:00Z", sig.Timestamp)
	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Equal(t, 190.0, sig.Price)
}

func TestConflictCanFavorSentiment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TechnicalWeight, cfg.SentimentWeight = 0.3, 0.7
	cfg.MinCombinedConfidence = 0
	sig, err := newTestCombiner(cfg).Combine(tech(domain.ActionBuy, 0.9), sent(domain.ActionSell, 0.8), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSell, sig.Action)
	assert.InDelta(t, 0.64, sig.Confidence, 1e-9)
}

func TestSingleHoldAdoptsOtherSide(t *testing.T) {
	c := newTestCombiner(DefaultConfig())
	sig, err := c.Combine(tech(domain.ActionSell, 0.8), sent(domain.ActionHold, 0.9), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSell, sig.Action)
	assert.InDelta(t, 0.72, sig.Confidence, 1e-9)
}

func TestBothHoldTakesMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCombinedConfidence = 0.5
	sig, err := newTestCombiner(cfg).Combine(tech(domain.ActionHold, 0.6), sent(domain.ActionHold, 0.7), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, sig.Action)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)
}

func TestAgreementWeightedAverage(t *testing.T) {
	sig, err := newTestCombiner(DefaultConfig()).Combine(tech(domain.ActionBuy, 0.8), sent(domain.ActionBuy, 0.6), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.InDelta(t, 0.8*0.7+0.6*0.3, sig.Confidence, 1e-9)
}

func TestGateForcesHold(t *testing.T) {
	sig, err := newTestCombiner(DefaultConfig()).Combine(tech(domain.ActionBuy, 0.6), sent(domain.ActionBuy, 0.6), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, sig.Action)
	assert.InDelta(t, 0.6, sig.Confidence, 1e-9)
	assert.True(t, hasReason(sig.Reasoning, "downgraded to HOLD"))
}

func TestContrarianOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCombinedConfidence = 0
	c := newTestCombiner(cfg)

	fearful := &domain.SentimentAnalysisResult{Symbol: "AAPL", Sentiment: domain.SentimentScore{Score: -0.6, Fear: 0.9}}
	sig, err := c.Combine(tech(domain.ActionSell, 0.9), sent(domain.ActionSell, 0.9), fearful)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)
	assert.Equal(t, 0.9, sig.Indicators["fear"])

	greedy := &domain.SentimentAnalysisResult{Symbol: "AAPL", Sentiment: domain.SentimentScore{Greed: 0.86}}
	sig, err = c.Combine(tech(domain.ActionBuy, 0.7), nil, greedy)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSell, sig.Action)
	assert.InDelta(t, 0.7*0.9*0.8, sig.Confidence, 1e-9)

	cfg.EnableContrarian = false
	sig, err = newTestCombiner(cfg).Combine(tech(domain.ActionSell, 0.9), sent(domain.ActionSell, 0.9), fearful)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSell, sig.Action)
}

func TestRequiredFilters(t *testing.T) {
	c := newTestCombiner(DefaultConfig())
	_, err := c.Combine(nil, sent(domain.ActionBuy, 0.9), nil)
	assert.ErrorIs(t, err, ErrTechnicalRequired)

	cfg := DefaultConfig()
	cfg.UseSentimentFilter = true
	_, err = newTestCombiner(cfg).Combine(tech(domain.ActionBuy, 0.9), nil, nil)
	assert.ErrorIs(t, err, ErrSentimentRequired)

	cfg = DefaultConfig()
	cfg.UseTechnicalFilter = false
	_, err = newTestCombiner(cfg).Combine(nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoSignals)

	sig, err := newTestCombiner(cfg).Combine(nil, sent(domain.ActionBuy, 0.9), &domain.SentimentAnalysisResult{Symbol: "TSLA"})
	require.NoError(t, err)
	assert.Equal(t, "TSLA", sig.Symbol)
	assert.InDelta(t, 0.81, sig.Confidence, 1e-9)
}

func TestReasoningTrailAndIndicators(t *testing.T) {
	sig, err := newTestCombiner(DefaultConfig()).Combine(tech(domain.ActionBuy, 0.9), sent(domain.ActionBuy, 0.8), &domain.SentimentAnalysisResult{
		Sentiment: domain.SentimentScore{Score: 0.5, Magnitude: 0.3},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(sig.Reasoning), 3)
	assert.True(t, strings.HasPrefix(sig.Reasoning[0], "Technical analysis: BUY"))
	assert.True(t, strings.HasPrefix(sig.Reasoning[1], "Sentiment analysis: BUY"))
	assert.Equal(t, 196.0, sig.Indicators["price_target"])
	assert.Equal(t, 0.9, sig.Indicators["vote_random_forest"])
	assert.Equal(t, 0.5, sig.Indicators["sentiment_score"])
	_, hasStop := sig.Indicators["stop_loss"]
	assert.False(t, hasStop)
}

func TestTechnicalOnly(t *testing.T) {
	c := newTestCombiner(DefaultConfig())
	assert.Nil(t, c.TechnicalOnly(nil))

	sig := c.TechnicalOnly(tech(domain.ActionSell, 0.55))
	require.NotNil(t, sig)
	assert.Equal(t, domain.ActionSell, sig.Action, "no confidence gate in technical-only mode")
	assert.Equal(t, 0.55, sig.Confidence)
	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Equal(t, 190.0, sig.Price)
	assert.Equal(t, "2024-03-01T14:30:00Z", sig.Timestamp)
	_, hasSentiment := sig.Indicators["sentiment_score"]
	assert.False(t, hasSentiment)
}
