package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure stages.
const (
	StageTechnical = "technical"
	StageSentiment = "sentiment"
	StageCombine   = "combine"
	StageCache     = "cache"
	StagePublish   = "publish"
	StageIngest    = "ingest"
)

// Metrics groups the collectors of the signal pipeline. Components accept a
// nil *Metrics and skip recording.
type Metrics struct {
	registry *prometheus.Registry

	SignalsTotal     *prometheus.CounterVec
	SignalFailures   *prometheus.CounterVec
	SentimentItems   *prometheus.CounterVec
	BacktestRuns     *prometheus.CounterVec
	BacktestTrades   prometheus.Counter
	BacktestDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "autotrader_signals_total", Help: "Combined trading signals generated"},
			[]string{"action"},
		),
		SignalFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "autotrader_signal_failures_total", Help: "Signal pipeline failures by stage"},
			[]string{"stage"},
		),
		SentimentItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "autotrader_sentiment_items_total", Help: "News and social items accepted by channel"},
			[]string{"channel"},
		),
		BacktestRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "autotrader_backtest_runs_total", Help: "Backtest runs by mode and outcome"},
			[]string{"mode", "outcome"},
		),
		BacktestTrades: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "autotrader_backtest_trades_total", Help: "Trades closed across backtest runs"},
		),
		BacktestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotrader_backtest_duration_seconds",
			Help:    "Wall time of backtest runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	m.registry.MustRegister(
		m.SignalsTotal, m.SignalFailures, m.SentimentItems,
		m.BacktestRuns, m.BacktestTrades, m.BacktestDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Signal(action string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) Failure(stage string) {
	if m == nil {
		return
	}
	m.SignalFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) Items(channel string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SentimentItems.WithLabelValues(channel).Add(float64(n))
}

func (m *Metrics) Backtest(mode string, err error, trades int, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.BacktestRuns.WithLabelValues(mode, outcome).Inc()
	m.BacktestTrades.Add(float64(trades))
	m.BacktestDuration.Observe(elapsed.Seconds())
}
