package handler

import (
	"context"
	"net/http"

	"autotrader-core/internal/domain"
	"autotrader-core/internal/ml/training"
	"autotrader-core/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// SignalAPI is the slice of the signal service the HTTP surface drives.
type SignalAPI interface {
	IngestBars(ctx context.Context, symbol string, bars []domain.MarketDataBar) (int, error)
	IngestNews(items []domain.NewsItem) int
	IngestSocial(posts []domain.SocialMediaPost) int
	GetSentiment(ctx context.Context, symbol string) (*service.SentimentView, error)
	GetSignal(ctx context.Context, symbol string) (*domain.TradingSignal, error)
	GenerateSignals(ctx context.Context, symbols []string) service.SignalBatch
}

type BacktestRunner interface {
	NewRequest() *service.BacktestRequest
	Run(ctx context.Context, req *service.BacktestRequest) (*domain.BacktestResult, error)
}

type MLTrainingRunner interface {
	Train(ctx context.Context, symbol, kind string) (*training.Result, error)
}

type Handler struct {
	tracer         trace.Tracer
	signals        SignalAPI
	backtests      BacktestRunner
	mlTrainer      MLTrainingRunner
	metricsHandler http.Handler
}

func New(tracer trace.Tracer, signals SignalAPI) *Handler {
	return &Handler{
		tracer:  tracer,
		signals: signals,
	}
}

func (h *Handler) SetBacktestRunner(r BacktestRunner) {
	h.backtests = r
}

func (h *Handler) SetMLTrainingRunner(r MLTrainingRunner) {
	h.mlTrainer = r
}

func (h *Handler) SetMetricsHandler(m http.Handler) {
	h.metricsHandler = m
}

// RegisterRoutes mounts the API. POST routes require apiKey when it is set.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)
	if h.metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(h.metricsHandler))
	}

	api := r.Group("/api")
	api.GET("/sentiment/:symbol", h.GetSentiment)
	api.GET("/signals/:symbol", h.GetSignal)

	protected := api.Group("", APIKeyAuth(apiKey))
	protected.POST("/market-data/:symbol", h.IngestMarketData)
	protected.POST("/news", h.IngestNews)
	protected.POST("/social", h.IngestSocial)
	protected.POST("/signals/batch", h.GenerateSignals)
	protected.POST("/backtest", h.RunBacktest)
	protected.POST("/ml/train", h.TriggerMLTraining)
}
