package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"autotrader-core/internal/backtest"
	"autotrader-core/internal/combiner"
	"autotrader-core/internal/domain"
	"autotrader-core/internal/ml/ensemble"
	"autotrader-core/internal/sentiment"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string
	LogLevel string
	APIKey   string

	DatabaseURL string
	RedisURL    string
	BarInterval string

	KafkaBrokers []string
	KafkaTopic   string

	TelegramBotToken string

	OpenAIAPIKey    string
	OpenAIModel     string
	SentimentScorer string

	TracingEnabled bool
	OTLPEndpoint   string

	Watchlist       []string
	RandomSeed      int64
	SignalCacheTTL  time.Duration
	SignalPollSecs  int
	IngestPollSecs  int
	RSSFeeds        []string
	Subreddits      []string
	RedditUserAgent string

	ModelConfigFile string
}

// Scorer names accepted by SENTIMENT_SCORER.
const (
	ScorerSimulated = "simulated"
	ScorerLexicon   = "lexicon"
	ScorerLLM       = "llm"
)

var defaultFeeds = []string{
	"https://feeds.content.dowjones.io/public/rss/mw_topstories",
	"https://www.cnbc.com/id/100003114/device/rss/rss.html",
}

var defaultSubreddits = []string{"stocks", "wallstreetbets", "investing"}

func Load() *Config {
	cfg := &Config{
		APIKey:           os.Getenv("API_KEY"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OTLPEndpoint:     strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ModelConfigFile:  strings.TrimSpace(os.Getenv("MODEL_CONFIG_FILE")),
	}

	cfg.HTTPAddr = stringEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = strings.ToLower(stringEnv("LOG_LEVEL", "info"))
	cfg.BarInterval = stringEnv("BAR_INTERVAL", "1h")
	cfg.KafkaTopic = stringEnv("KAFKA_TOPIC", "trading-signals")
	cfg.OpenAIModel = stringEnv("OPENAI_MODEL", "gpt-4o-mini")
	cfg.RedditUserAgent = stringEnv("REDDIT_USER_AGENT", "autotrader-core/0.1")

	if cfg.APIKey == "" {
		log.Warn().Msg("API_KEY not set, POST routes are unprotected")
	}
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, bar store disabled")
	}
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.TelegramBotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	cfg.KafkaBrokers = listEnv("KAFKA_BROKERS", nil)
	if len(cfg.KafkaBrokers) == 0 {
		log.Warn().Msg("KAFKA_BROKERS not set, signal publishing disabled")
	}

	cfg.SentimentScorer = strings.ToLower(stringEnv("SENTIMENT_SCORER", ScorerSimulated))
	switch cfg.SentimentScorer {
	case ScorerSimulated, ScorerLexicon:
	case ScorerLLM:
		if cfg.OpenAIAPIKey == "" {
			log.Warn().Msg("SENTIMENT_SCORER=llm without OPENAI_API_KEY, using lexicon")
			cfg.SentimentScorer = ScorerLexicon
		}
	default:
		log.Warn().Str("scorer", cfg.SentimentScorer).Msg("unsupported SENTIMENT_SCORER, defaulting to simulated")
		cfg.SentimentScorer = ScorerSimulated
	}

	cfg.TracingEnabled = !strings.EqualFold(strings.TrimSpace(os.Getenv("TRACING_ENABLED")), "false")

	cfg.Watchlist = listEnv("WATCHLIST", domain.WatchlistSymbols)
	for i, s := range cfg.Watchlist {
		cfg.Watchlist[i] = strings.ToUpper(s)
	}
	cfg.RSSFeeds = listEnv("RSS_FEEDS", defaultFeeds)
	cfg.Subreddits = listEnv("SUBREDDITS", defaultSubreddits)

	if v := strings.TrimSpace(os.Getenv("RANDOM_SEED")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RandomSeed = n
		} else {
			log.Warn().Str("value", v).Msg("invalid RANDOM_SEED, using a time seed")
		}
	}

	cfg.SignalCacheTTL = 5 * time.Minute
	if v := strings.TrimSpace(os.Getenv("SIGNAL_CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SignalCacheTTL = d
		}
	}

	cfg.SignalPollSecs = intEnv("SIGNAL_POLL_SECS", 300)
	cfg.IngestPollSecs = intEnv("INGEST_POLL_SECS", 600)

	return cfg
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// listEnv splits a comma separated variable, dropping blanks. The default is
// copied so callers may modify the result.
func listEnv(key string, def []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 && def != nil {
		out = append([]string(nil), def...)
	}
	return out
}

// ModelConfig carries the tuning of the signal pipeline. Backtest holds
// run defaults only; dates are supplied per run.
type ModelConfig struct {
	Ensemble  ensemble.Config  `yaml:"ensemble"`
	Sentiment sentiment.Config `yaml:"sentiment"`
	Combiner  combiner.Config  `yaml:"combiner"`
	Backtest  backtest.Config  `yaml:"backtest" validate:"-"`
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Ensemble:  ensemble.DefaultConfig(),
		Sentiment: sentiment.DefaultConfig(),
		Combiner:  combiner.DefaultConfig(),
		Backtest:  backtest.DefaultConfig(time.Time{}, time.Time{}),
	}
}

var validate = validator.New()

// LoadModelConfig overlays the YAML file at path on the defaults and
// validates the result.
func LoadModelConfig(path string) (ModelConfig, error) {
	cfg := DefaultModelConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read model config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse model config %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid model config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadModelConfig returns the file-backed tuning when MODEL_CONFIG_FILE is set
// and the defaults otherwise.
func (c *Config) LoadModelConfig() (ModelConfig, error) {
	if c.ModelConfigFile == "" {
		return DefaultModelConfig(), nil
	}
	return LoadModelConfig(c.ModelConfigFile)
}
