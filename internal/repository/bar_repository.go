package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"autotrader-core/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// BarRepository stores OHLCV bars keyed by symbol, interval and timestamp.
type BarRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewBarRepository(pool PgxPool, tracer trace.Tracer) *BarRepository {
	return &BarRepository{pool: pool, tracer: tracer}
}

const upsertBarSQL = `INSERT INTO market_bars (symbol, interval, ts, open, high, low, close, volume, indicators)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
 ON CONFLICT (symbol, interval, ts) DO UPDATE SET
     open = EXCLUDED.open,
     high = EXCLUDED.high,
     low = EXCLUDED.low,
     close = EXCLUDED.close,
     volume = EXCLUDED.volume,
     indicators = COALESCE(EXCLUDED.indicators, market_bars.indicators)`

// UpsertBars writes bars in one batch. Bars arriving again replace the
// stored OHLCV; stored indicators survive a re-upsert without them.
func (r *BarRepository) UpsertBars(ctx context.Context, interval string, bars []domain.MarketDataBar) error {
	if len(bars) == 0 {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "bar-repo.upsert-bars")
	defer span.End()
	span.SetAttributes(attribute.Int("bars", len(bars)), attribute.String("interval", interval))

	batch := &pgx.Batch{}
	for _, b := range bars {
		var ind []byte
		if b.Indicators != nil {
			raw, err := json.Marshal(b.Indicators)
			if err != nil {
				return fmt.Errorf("encode indicators for %s: %w", b.Symbol, err)
			}
			ind = raw
		}
		batch.Queue(upsertBarSQL,
			b.Symbol, interval, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume, ind,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetBarsInRange returns the bars in [from, to], oldest first.
func (r *BarRepository) GetBarsInRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.MarketDataBar, error) {
	ctx, span := r.tracer.Start(ctx, "bar-repo.get-bars-in-range")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, ts, open, high, low, close, volume, indicators
		 FROM market_bars
		 WHERE symbol = $1 AND interval = $2 AND ts >= $3 AND ts <= $4
		 ORDER BY ts ASC`,
		symbol, interval, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	return scanBars(rows)
}

// GetRecentBars returns up to limit of the newest bars, oldest first.
func (r *BarRepository) GetRecentBars(ctx context.Context, symbol, interval string, limit int) ([]domain.MarketDataBar, error) {
	ctx, span := r.tracer.Start(ctx, "bar-repo.get-recent-bars")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, ts, open, high, low, close, volume, indicators
		 FROM market_bars
		 WHERE symbol = $1 AND interval = $2
		 ORDER BY ts DESC
		 LIMIT $3`,
		symbol, interval, limit,
	)
	if err != nil {
		return nil, err
	}
	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func scanBars(rows pgx.Rows) ([]domain.MarketDataBar, error) {
	defer rows.Close()

	var bars []domain.MarketDataBar
	for rows.Next() {
		var (
			b   domain.MarketDataBar
			ind []byte
		)
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &ind); err != nil {
			return nil, err
		}
		if len(ind) > 0 {
			b.Indicators = &domain.Indicators{}
			if err := json.Unmarshal(ind, b.Indicators); err != nil {
				return nil, fmt.Errorf("decode indicators for %s at %s: %w", b.Symbol, b.Timestamp, err)
			}
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
