package job

import (
	"context"
	"time"

	"autotrader-core/internal/service"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type SignalGenerator interface {
	GenerateSignals(ctx context.Context, symbols []string) service.SignalBatch
}

// SignalJob regenerates watchlist signals on a fixed interval, which refreshes
// the signal cache and publishes the results.
type SignalJob struct {
	tracer    trace.Tracer
	log       zerolog.Logger
	generator SignalGenerator
	watchlist []string
	interval  time.Duration
}

func NewSignalJob(tracer trace.Tracer, log zerolog.Logger, generator SignalGenerator, watchlist []string, intervalSecs int) *SignalJob {
	interval := time.Duration(intervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SignalJob{
		tracer:    tracer,
		log:       log,
		generator: generator,
		watchlist: watchlist,
		interval:  interval,
	}
}

// Start blocks until ctx is cancelled.
func (j *SignalJob) Start(ctx context.Context) {
	if len(j.watchlist) == 0 {
		j.log.Info().Msg("signal job disabled: empty watchlist")
		<-ctx.Done()
		return
	}
	pollLoop(ctx, j.log, "signals", j.interval, func(ctx context.Context) error {
		j.RunOnce(ctx)
		return nil
	})
}

func (j *SignalJob) RunOnce(ctx context.Context) service.SignalBatch {
	ctx, span := j.tracer.Start(ctx, "signal-job.run-once")
	defer span.End()

	batch := j.generator.GenerateSignals(ctx, j.watchlist)
	span.SetAttributes(attribute.Int("signals", len(batch.Signals)), attribute.Int("errors", len(batch.Errors)))

	ev := j.log.Info()
	if len(batch.Errors) > 0 {
		ev = j.log.Warn()
	}
	ev.Int("symbols", len(j.watchlist)).
		Int("signals", len(batch.Signals)).
		Int("errors", len(batch.Errors)).
		Msg("signal cycle complete")
	return batch
}
