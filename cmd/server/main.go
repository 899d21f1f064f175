package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autotrader-core/internal/bot"
	"autotrader-core/internal/cache"
	"autotrader-core/internal/combiner"
	"autotrader-core/internal/config"
	"autotrader-core/internal/db"
	"autotrader-core/internal/handler"
	"autotrader-core/internal/job"
	"autotrader-core/internal/metrics"
	"autotrader-core/internal/ml/ensemble"
	"autotrader-core/internal/ml/training"
	"autotrader-core/internal/provider"
	"autotrader-core/internal/publisher"
	"autotrader-core/internal/repository"
	"autotrader-core/internal/sentiment"
	"autotrader-core/internal/service"
	"autotrader-core/pkg/logging"
	"autotrader-core/pkg/rng"
	"autotrader-core/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "autotrader-core/docs"
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	newPublisherFunc = func(tracer trace.Tracer, brokers []string, topic string) (signalPublisher, error) {
		return publisher.NewSignalPublisher(tracer, brokers, topic)
	}
	startJobFunc           = func(ctx context.Context, start func(context.Context)) { go start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

type signalPublisher interface {
	service.SignalPublisher
	Close() error
}

// @title           Autotrader Core API
// @version         1.0
// @description     Technical ensemble, sentiment analysis, signal combination and backtesting for equities.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	log := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	modelCfg, err := cfg.LoadModelConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model config")
	}

	tp, tracer, err := initTracerFunc(ctx, tracing.Options{Enabled: cfg.TracingEnabled, Endpoint: cfg.OTLPEndpoint})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	m := metrics.New()
	opts := service.SignalOptions{
		Metrics:  m,
		Interval: cfg.BarInterval,
		CacheTTL: cfg.SignalCacheTTL,
	}

	var store service.BarStore
	pool, err := initPostgresFunc(ctx, cfg.DatabaseURL, log)
	switch {
	case err == nil:
		defer pool.Close()
		store = repository.NewBarRepository(pool, tracer)
		opts.Store = store
	case errors.Is(err, db.ErrNoDatabaseURL):
	default:
		log.Warn().Err(err).Msg("postgres unavailable, bar store disabled")
	}

	redisClient, err := initRedisFunc(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, signal cache disabled")
	} else {
		defer redisClient.Close()
		opts.Redis = redisClient
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := newPublisherFunc(tracer, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Warn().Err(err).Msg("kafka publisher unavailable, signals will not be published")
		} else {
			defer pub.Close()
			opts.Publisher = pub
		}
	}

	model := ensemble.NewModel(tracer, log, modelCfg.Ensemble, seededRand(cfg.RandomSeed))
	analyzer := sentiment.NewAnalyzer(tracer, log, modelCfg.Sentiment, newScorer(cfg, log))
	signals := service.NewSignalService(tracer, log, model, analyzer, combiner.New(modelCfg.Combiner), opts)
	if warmed := signals.WarmFromStore(ctx, cfg.Watchlist, modelCfg.Ensemble.MaxHistory); warmed > 0 {
		log.Info().Int("bars", warmed).Msg("warmed ensemble from bar store")
	}

	backtests := service.NewBacktestService(tracer, log, store, analyzer, modelCfg.Ensemble, modelCfg.Combiner, modelCfg.Backtest, m)
	trainer := training.NewService(tracer, log, model, model, training.Config{})

	ingestion := job.NewIngestionJob(tracer, log,
		provider.NewRSSProvider(tracer),
		provider.NewRedditProvider(tracer, cfg.RedditUserAgent),
		signals, cfg.RSSFeeds, cfg.Subreddits, cfg.IngestPollSecs)
	startJobFunc(ctx, ingestion.Start)
	startJobFunc(ctx, job.NewSignalJob(tracer, log, signals, cfg.Watchlist, cfg.SignalPollSecs).Start)

	if b, err := startTelegramBotFunc(cfg.TelegramBotToken, signals, log); err != nil {
		log.Error().Err(err).Msg("telegram bot failed to start")
	} else if b != nil {
		defer b.Stop()
	}

	h := handler.New(tracer, signals)
	h.SetBacktestRunner(backtests)
	h.SetMLTrainingRunner(trainer)
	h.SetMetricsHandler(m.Handler())

	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName))
	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("server started")

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exiting")
}

func seededRand(seed int64) *rng.Source {
	if seed == 0 {
		return rng.NewTimeSeeded()
	}
	return rng.New(seed)
}

// newScorer picks the sentiment scorer named by SENTIMENT_SCORER.
func newScorer(cfg *config.Config, log zerolog.Logger) sentiment.Scorer {
	switch cfg.SentimentScorer {
	case config.ScorerLLM:
		if s := sentiment.NewLLMScorer(cfg.OpenAIAPIKey, cfg.OpenAIModel, log); s != nil {
			return s
		}
		return sentiment.NewLexiconScorer()
	case config.ScorerLexicon:
		return sentiment.NewLexiconScorer()
	default:
		seed := cfg.RandomSeed
		if seed != 0 {
			seed++
		}
		return sentiment.NewSimulatedScorer(seededRand(seed))
	}
}
