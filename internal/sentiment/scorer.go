package sentiment

import (
	"context"
	"math"
	"sort"
	"strings"

	"autotrader-core/internal/domain"
)

// Scorer turns a body of texts into a sentiment score and ranked keywords.
// An empty input scores as fully neutral.
type Scorer interface {
	Score(ctx context.Context, texts []string) domain.SentimentScore
	Keywords(texts []string) []domain.Keyword
}

// Rand supplies the randomness of the simulated scorer.
type Rand interface {
	Float64() float64
}

var (
	bullishTerms = []string{"beat", "bullish", "breakout", "buy", "growth", "rally", "record", "surge", "upgrade", "outperform"}
	bearishTerms = []string{"bearish", "crash", "decline", "downgrade", "lawsuit", "miss", "recall", "sell", "plunge", "layoffs"}
	neutralTerms = []string{"earnings", "revenue", "guidance", "dividend", "valuation", "forecast", "analyst", "margin", "volatility", "inflation"}
)

func vocabulary() []domain.Keyword {
	out := make([]domain.Keyword, 0, len(bullishTerms)+len(bearishTerms)+len(neutralTerms))
	for _, w := range bullishTerms {
		out = append(out, domain.Keyword{Word: w, Sentiment: 1})
	}
	for _, w := range bearishTerms {
		out = append(out, domain.Keyword{Word: w, Sentiment: -1})
	}
	for _, w := range neutralTerms {
		out = append(out, domain.Keyword{Word: w})
	}
	return out
}

func neutralScore() domain.SentimentScore {
	return domain.SentimentScore{Neutrality: 1}
}

// SimulatedScorer draws random bullish/bearish/neutral proportions. The
// proportions sum to 1, score is bullishness minus bearishness, magnitude
// grows with the polarised share, and fear and greed track bearishness and
// bullishness with independent jitter.
type SimulatedScorer struct {
	rng Rand
}

func NewSimulatedScorer(rng Rand) *SimulatedScorer {
	return &SimulatedScorer{rng: rng}
}

func (s *SimulatedScorer) Score(_ context.Context, texts []string) domain.SentimentScore {
	if len(texts) == 0 {
		return neutralScore()
	}
	a, b, c := s.rng.Float64(), s.rng.Float64(), s.rng.Float64()
	total := a + b + c
	if total == 0 {
		return neutralScore()
	}
	bull, bear, neutral := a/total, b/total, c/total
	return domain.SentimentScore{
		Score:       clamp(bull-bear, -1, 1),
		Magnitude:   (bull + bear) * (0.5 + 0.5*s.rng.Float64()),
		Bullishness: bull,
		Bearishness: bear,
		Neutrality:  neutral,
		Fear:        clamp(bear+(s.rng.Float64()-0.5)*0.2, 0, 1),
		Greed:       clamp(bull+(s.rng.Float64()-0.5)*0.2, 0, 1),
	}
}

// Keywords assigns random frequencies and tones to the fixed vocabulary.
func (s *SimulatedScorer) Keywords(texts []string) []domain.Keyword {
	if len(texts) == 0 {
		return nil
	}
	words := vocabulary()
	for i := range words {
		words[i].Frequency = 1 + int(s.rng.Float64()*10)
		words[i].Sentiment = math.Round((s.rng.Float64()*2-1)*100) / 100
	}
	return rankKeywords(words)
}

// LexiconScorer classifies each text by counting bullish and bearish terms.
type LexiconScorer struct{}

func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{}
}

func (LexiconScorer) Score(_ context.Context, texts []string) domain.SentimentScore {
	if len(texts) == 0 {
		return neutralScore()
	}
	var bullTexts, bearTexts, intensity float64
	for _, t := range texts {
		lower := strings.ToLower(t)
		bull := countTerms(lower, bullishTerms)
		bear := countTerms(lower, bearishTerms)
		switch {
		case bull > bear:
			bullTexts++
		case bear > bull:
			bearTexts++
		}
		intensity += math.Min(1, float64(absInt(bull-bear))/3)
	}
	n := float64(len(texts))
	bull, bear := bullTexts/n, bearTexts/n
	return domain.SentimentScore{
		Score:       clamp(bull-bear, -1, 1),
		Magnitude:   (bull + bear) * (intensity / n),
		Bullishness: bull,
		Bearishness: bear,
		Neutrality:  1 - bull - bear,
		Fear:        bear,
		Greed:       bull,
	}
}

// Keywords counts vocabulary terms across texts.
func (LexiconScorer) Keywords(texts []string) []domain.Keyword {
	words := vocabulary()
	out := words[:0]
	for _, w := range words {
		for _, t := range texts {
			w.Frequency += strings.Count(strings.ToLower(t), w.Word)
		}
		if w.Frequency > 0 {
			out = append(out, w)
		}
	}
	return rankKeywords(out)
}

// rankKeywords orders by frequency, then word.
func rankKeywords(words []domain.Keyword) []domain.Keyword {
	sort.SliceStable(words, func(i, j int) bool {
		if words[i].Frequency != words[j].Frequency {
			return words[i].Frequency > words[j].Frequency
		}
		return words[i].Word < words[j].Word
	})
	return words
}

func countTerms(text string, terms []string) int {
	count := 0
	for _, term := range terms {
		count += strings.Count(text, term)
	}
	return count
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
