package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autotrader-core/internal/config"
	"autotrader-core/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-symbols", " aapl, msft ,", "-start", "2024-03-01", "-end", "2024-03-03", "-capital", "5000"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, opts.symbols)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), opts.start)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), opts.end)
	assert.Equal(t, "technical", opts.mode)
	assert.Equal(t, "1h", opts.interval)
	assert.Equal(t, int64(42), opts.seed)
	assert.Equal(t, 5000.0, opts.capital)
}

func TestParseFlagsErrors(t *testing.T) {
	cases := map[string][]string{
		"no symbols": {"-start", "2024-03-01", "-end", "2024-03-02"},
		"bad start":  {"-symbols", "AAPL", "-start", "03/01/2024", "-end", "2024-03-02"},
		"bad end":    {"-symbols", "AAPL", "-start", "2024-03-01"},
		"bad flag":   {"-nope"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseFlags(args)
			assert.Error(t, err)
		})
	}
}

func writeBarsFile(t *testing.T, start time.Time) string {
	t.Helper()
	var bars []domain.MarketDataBar
	from := start.Add(-150 * time.Hour)
	for i := 0; i < 222; i++ {
		c := 100 + float64(i)*0.05 + 4*math.Sin(float64(i)/6)
		bars = append(bars, domain.MarketDataBar{
			Timestamp: from.Add(time.Duration(i) * time.Hour),
			Open:      c - 0.2,
			High:      c + 0.6,
			Low:       c - 0.6,
			Close:     c,
			Volume:    1000,
		})
	}
	raw, err := json.Marshal(map[string][]domain.MarketDataBar{"AAPL": bars})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "bars.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestRunFromBarsFile(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	path := writeBarsFile(t, start)

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-symbols", "aapl", "-start", "2024-03-01", "-end", "2024-03-03", "-bars", path, "-capital", "25000",
	}, &config.Config{}, zerolog.Nop(), &out)
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 25000.0, res["initial_capital"])
	assert.Contains(t, res, "final_capital")
	curve, ok := res["equity_curve"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, curve)
}

func TestRunRequiresDatabaseWithoutBarsFile(t *testing.T) {
	orig := initPostgresFunc
	defer func() { initPostgresFunc = orig }()
	dbErr := errors.New("no database")
	initPostgresFunc = func(context.Context, string, zerolog.Logger) (*pgxpool.Pool, error) {
		return nil, dbErr
	}

	err := run(context.Background(), []string{"-symbols", "AAPL", "-start", "2024-03-01", "-end", "2024-03-02"},
		&config.Config{}, zerolog.Nop(), &bytes.Buffer{})
	assert.ErrorIs(t, err, dbErr)
}

func TestRunMissingBarsFile(t *testing.T) {
	err := run(context.Background(), []string{
		"-symbols", "AAPL", "-start", "2024-03-01", "-end", "2024-03-02", "-bars", filepath.Join(t.TempDir(), "missing.json"),
	}, &config.Config{}, zerolog.Nop(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "read bars")
}
