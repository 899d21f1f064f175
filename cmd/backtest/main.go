package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"autotrader-core/internal/config"
	"autotrader-core/internal/db"
	"autotrader-core/internal/domain"
	"autotrader-core/internal/metrics"
	"autotrader-core/internal/repository"
	"autotrader-core/internal/service"
	"autotrader-core/pkg/logging"
	"autotrader-core/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	exitFunc         = os.Exit
)

type options struct {
	symbols  []string
	start    time.Time
	end      time.Time
	mode     string
	interval string
	seed     int64
	capital  float64
	barsFile string
}

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], cfg, log, os.Stdout); err != nil {
		log.Error().Err(err).Msg("backtest failed")
		exitFunc(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	symbols := fs.String("symbols", "", "comma separated symbols")
	start := fs.String("start", "", "first day, YYYY-MM-DD")
	end := fs.String("end", "", "last day, YYYY-MM-DD")
	mode := fs.String("mode", service.ModeTechnical, "combined or technical")
	interval := fs.String("interval", "1h", "bar interval")
	seed := fs.Int64("seed", 42, "random seed")
	capital := fs.Float64("capital", 0, "initial capital, 0 keeps the configured default")
	barsFile := fs.String("bars", "", "JSON file of bars keyed by symbol, replaces the database")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		mode:     *mode,
		interval: *interval,
		seed:     *seed,
		capital:  *capital,
		barsFile: *barsFile,
	}
	for _, s := range strings.Split(*symbols, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			opts.symbols = append(opts.symbols, s)
		}
	}
	if len(opts.symbols) == 0 {
		return options{}, errors.New("-symbols is required")
	}

	var err error
	if opts.start, err = time.Parse(dateLayout, *start); err != nil {
		return options{}, fmt.Errorf("invalid -start: %w", err)
	}
	if opts.end, err = time.Parse(dateLayout, *end); err != nil {
		return options{}, fmt.Errorf("invalid -end: %w", err)
	}
	// the end day is inclusive
	opts.end = opts.end.Add(24*time.Hour - time.Nanosecond)
	return opts, nil
}

func run(ctx context.Context, args []string, cfg *config.Config, log zerolog.Logger, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	modelCfg, err := cfg.LoadModelConfig()
	if err != nil {
		return err
	}

	tp, tracer, err := tracing.InitTracer(ctx, tracing.Options{Enabled: cfg.TracingEnabled, Endpoint: cfg.OTLPEndpoint})
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	req := &service.BacktestRequest{
		Symbols:  opts.symbols,
		Mode:     opts.mode,
		Interval: opts.interval,
		Seed:     opts.seed,
		Config:   modelCfg.Backtest,
	}
	req.Config.StartDate, req.Config.EndDate = opts.start, opts.end
	if opts.capital > 0 {
		req.Config.InitialCapital = opts.capital
	}

	var store service.BarStore
	if opts.barsFile != "" {
		if req.Bars, err = readBars(opts.barsFile); err != nil {
			return err
		}
	} else {
		pool, err := initPostgresFunc(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = repository.NewBarRepository(pool, tracer)
	}

	svc := service.NewBacktestService(tracer, log, store, nil, modelCfg.Ensemble, modelCfg.Combiner, modelCfg.Backtest, metrics.New())
	res, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func readBars(path string) (map[string][]domain.MarketDataBar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	var bars map[string][]domain.MarketDataBar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("parse bars: %w", err)
	}
	for symbol, series := range bars {
		for i := range series {
			if series[i].Symbol == "" {
				series[i].Symbol = symbol
			}
		}
	}
	return bars, nil
}
