package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"autotrader-core/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

const maxLLMTexts = 40

type openAIChatClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// LLMScorer asks a chat model for the tone of a batch of texts. Any failure
// falls back to the lexicon scorer, which also supplies keywords.
type LLMScorer struct {
	client   openAIChatClient
	model    string
	fallback *LexiconScorer
	log      zerolog.Logger
}

// NewLLMScorer returns nil when apiKey is empty.
func NewLLMScorer(apiKey, model string, log zerolog.Logger) *LLMScorer {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return newLLMScorer(&openAIClient{client: client}, model, log)
}

func newLLMScorer(client openAIChatClient, model string, log zerolog.Logger) *LLMScorer {
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &LLMScorer{client: client, model: model, fallback: NewLexiconScorer(), log: log}
}

func (s *LLMScorer) Score(ctx context.Context, texts []string) domain.SentimentScore {
	if len(texts) == 0 {
		return neutralScore()
	}
	score, err := s.scoreLLM(ctx, texts)
	if err != nil {
		s.log.Warn().Err(err).Str("model", s.model).Msg("llm sentiment failed, using lexicon")
		return s.fallback.Score(ctx, texts)
	}
	return score
}

func (s *LLMScorer) Keywords(texts []string) []domain.Keyword {
	return s.fallback.Keywords(texts)
}

type llmScore struct {
	Bullishness float64 `json:"bullishness"`
	Bearishness float64 `json:"bearishness"`
	Neutrality  float64 `json:"neutrality"`
	Magnitude   float64 `json:"magnitude"`
	Fear        float64 `json:"fear"`
	Greed       float64 `json:"greed"`
}

func (s *LLMScorer) scoreLLM(ctx context.Context, texts []string) (domain.SentimentScore, error) {
	if len(texts) > maxLLMTexts {
		texts = texts[len(texts)-maxLLMTexts:]
	}
	var sb strings.Builder
	for i, t := range texts {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, strings.TrimSpace(t)))
	}

	systemPrompt := "You score equity market sentiment. Return ONLY a JSON object with numeric fields bullishness, bearishness, neutrality (0..1, summing to 1), magnitude (0..1), fear (0..1), greed (0..1). No markdown."
	completion, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Texts:\n" + sb.String()),
		},
	})
	if err != nil {
		return domain.SentimentScore{}, err
	}
	if len(completion.Choices) == 0 {
		return domain.SentimentScore{}, errors.New("empty scorer completion")
	}

	var parsed llmScore
	raw := trimCodeFence(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.SentimentScore{}, fmt.Errorf("parse scorer json: %w", err)
	}

	bull := clamp(parsed.Bullishness, 0, 1)
	bear := clamp(parsed.Bearishness, 0, 1)
	neutral := clamp(parsed.Neutrality, 0, 1)
	total := bull + bear + neutral
	if total == 0 {
		return domain.SentimentScore{}, errors.New("scorer returned zero proportions")
	}
	bull, bear, neutral = bull/total, bear/total, neutral/total
	return domain.SentimentScore{
		Score:       clamp(bull-bear, -1, 1),
		Magnitude:   clamp(parsed.Magnitude, 0, 1),
		Bullishness: bull,
		Bearishness: bear,
		Neutrality:  neutral,
		Fear:        clamp(parsed.Fear, 0, 1),
		Greed:       clamp(parsed.Greed, 0, 1),
	}, nil
}

func trimCodeFence(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "```") {
		v = strings.TrimSpace(strings.TrimPrefix(v, "```"))
		if strings.HasPrefix(strings.ToLower(v), "json") {
			v = strings.TrimSpace(v[4:])
		}
		v = strings.TrimSpace(strings.TrimSuffix(v, "```"))
	}
	return v
}

type openAIClient struct {
	client openai.Client
}

func (c *openAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
