package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"autotrader-core/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"API_KEY", "DATABASE_URL", "REDIS_URL", "TELEGRAM_BOT_TOKEN", "OPENAI_API_KEY",
		"KAFKA_BROKERS", "SENTIMENT_SCORER", "TRACING_ENABLED", "WATCHLIST", "RANDOM_SEED",
		"SIGNAL_CACHE_TTL", "SIGNAL_POLL_SECS", "INGEST_POLL_SECS", "MODEL_CONFIG_FILE",
		"RSS_FEEDS", "SUBREDDITS", "HTTP_ADDR", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.HTTPAddr != ":8080" || cfg.LogLevel != "info" || cfg.BarInterval != "1h" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SignalPollSecs != 300 || cfg.IngestPollSecs != 600 {
		t.Fatalf("unexpected poll defaults: %d %d", cfg.SignalPollSecs, cfg.IngestPollSecs)
	}
	if cfg.SignalCacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m cache ttl, got %s", cfg.SignalCacheTTL)
	}
	if !cfg.TracingEnabled {
		t.Fatal("tracing should default to enabled")
	}
	if cfg.SentimentScorer != ScorerSimulated {
		t.Fatalf("expected simulated scorer, got %s", cfg.SentimentScorer)
	}
	if len(cfg.Watchlist) != len(domain.WatchlistSymbols) {
		t.Fatalf("expected default watchlist, got %v", cfg.Watchlist)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("WATCHLIST", "aapl,msft")
	t.Setenv("RANDOM_SEED", "42")
	t.Setenv("SIGNAL_CACHE_TTL", "90s")
	t.Setenv("SIGNAL_POLL_SECS", "30")
	t.Setenv("TRACING_ENABLED", "false")

	cfg := Load()
	if cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected redis url %s", cfg.RedisURL)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if len(cfg.Watchlist) != 2 || cfg.Watchlist[0] != "AAPL" {
		t.Fatalf("unexpected watchlist %v", cfg.Watchlist)
	}
	if cfg.RandomSeed != 42 || cfg.SignalCacheTTL != 90*time.Second || cfg.SignalPollSecs != 30 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.TracingEnabled {
		t.Fatal("tracing should be disabled")
	}

	t.Setenv("SIGNAL_POLL_SECS", "bad")
	if got := Load().SignalPollSecs; got != 300 {
		t.Fatalf("invalid poll secs should fall back to default, got %d", got)
	}
}

func TestLoadDoesNotAliasDefaultWatchlist(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	cfg.Watchlist[0] = "ZZZZ"
	if domain.WatchlistSymbols[0] == "ZZZZ" {
		t.Fatal("watchlist default was modified through the config")
	}
}

func TestLoadScorerSelection(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENTIMENT_SCORER", "llm")
	if got := Load().SentimentScorer; got != ScorerLexicon {
		t.Fatalf("llm without a key should fall back to lexicon, got %s", got)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if got := Load().SentimentScorer; got != ScorerLLM {
		t.Fatalf("expected llm scorer, got %s", got)
	}

	t.Setenv("SENTIMENT_SCORER", "oracle")
	if got := Load().SentimentScorer; got != ScorerSimulated {
		t.Fatalf("unknown scorer should fall back to simulated, got %s", got)
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadModelConfigOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
ensemble:
  confidence_threshold: 0.7
  weights:
    svm: 0.5
sentiment:
  analysis_frequency: 15m
combiner:
  technical_weight: 0.6
  sentiment_weight: 0.4
backtest:
  commission_percent: 0
`)
	cfg, err := LoadModelConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ensemble.ConfidenceThreshold != 0.7 || cfg.Ensemble.MinHistory != 200 {
		t.Fatalf("unexpected ensemble config: %+v", cfg.Ensemble)
	}
	if cfg.Ensemble.Weights["svm"] != 0.5 {
		t.Fatalf("expected svm weight override, got %v", cfg.Ensemble.Weights)
	}
	if cfg.Sentiment.AnalysisFrequency != 15*time.Minute || cfg.Sentiment.MinNewsItems != 5 {
		t.Fatalf("unexpected sentiment config: %+v", cfg.Sentiment)
	}
	if cfg.Combiner.TechnicalWeight != 0.6 || cfg.Combiner.MinCombinedConfidence != 0.65 {
		t.Fatalf("unexpected combiner config: %+v", cfg.Combiner)
	}
	if cfg.Backtest.CommissionPercent != 0 || cfg.Backtest.TakeProfitPercent != 6 {
		t.Fatalf("unexpected backtest config: %+v", cfg.Backtest)
	}
}

func TestLoadModelConfigRejectsInvalid(t *testing.T) {
	if _, err := LoadModelConfig(writeFile(t, "ensemble:\n  confidence_threshold: 1.5\n")); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := LoadModelConfig(writeFile(t, "ensemble:\n  weights:\n    svm: -1\n")); err == nil {
		t.Fatal("expected validation error for negative weight")
	}
	if _, err := LoadModelConfig(writeFile(t, "ensemble: [")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := LoadModelConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestConfigLoadModelConfigWithoutFile(t *testing.T) {
	cfg := &Config{}
	mc, err := cfg.LoadModelConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mc.Ensemble.MinHistory != 200 || mc.Combiner.TechnicalWeight != 0.7 {
		t.Fatalf("expected defaults, got %+v", mc)
	}
}
