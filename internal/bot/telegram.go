package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autotrader-core/internal/domain"
	"autotrader-core/internal/service"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
)

const replyTimeout = 10 * time.Second

// SignalSource answers the bot's commands.
type SignalSource interface {
	GetSignal(ctx context.Context, symbol string) (*domain.TradingSignal, error)
	GetSentiment(ctx context.Context, symbol string) (*service.SentimentView, error)
	CachedSignal(ctx context.Context, symbol string) (*domain.TradingSignal, error)
}

var newBot = tele.NewBot

// StartTelegramBot registers /ping, /signal and /sentiment and starts long
// polling in the background. An empty token skips startup.
func StartTelegramBot(token string, signals SignalSource, log zerolog.Logger) (*tele.Bot, error) {
	if strings.TrimSpace(token) == "" {
		log.Info().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}
	b, err := newBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/signal", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		return c.Send(signalReply(ctx, signals, c.Args()))
	})
	b.Handle("/sentiment", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		return c.Send(sentimentReply(ctx, signals, c.Args()))
	})

	log.Info().Msg("Telegram bot started")
	go b.Start()
	return b, nil
}

func usage(cmd string) string {
	return fmt.Sprintf("Usage: /%s AAPL\nWatchlist: %s", cmd, strings.Join(domain.WatchlistSymbols, ", "))
}

func signalReply(ctx context.Context, signals SignalSource, args []string) string {
	if len(args) == 0 {
		return usage("signal")
	}
	symbol := strings.ToUpper(strings.TrimSpace(args[0]))
	sig, err := signals.GetSignal(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("Error generating signal for %s: %v", symbol, err)
	}
	if sig == nil {
		cached, err := signals.CachedSignal(ctx, symbol)
		if err != nil || cached == nil {
			return fmt.Sprintf("No signal for %s yet: not enough market data or sentiment.", symbol)
		}
		return fmt.Sprintf("No fresh signal for %s. Last cached signal from %s:\n%s", symbol, cached.Timestamp, formatSignal(symbol, cached))
	}
	return formatSignal(symbol, sig)
}

func formatSignal(symbol string, sig *domain.TradingSignal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\nConfidence: %.1f%%\nPrice: $%.2f", symbol, sig.Action, sig.Confidence*100, sig.Price)
	if v, ok := sig.Indicators["stop_loss"]; ok {
		fmt.Fprintf(&sb, "\nStop loss: $%.2f", v)
	}
	if v, ok := sig.Indicators["price_target"]; ok {
		fmt.Fprintf(&sb, "\nTarget: $%.2f", v)
	}
	for _, r := range sig.Reasoning {
		sb.WriteString("\n- " + r)
	}
	return sb.String()
}

func sentimentReply(ctx context.Context, signals SignalSource, args []string) string {
	if len(args) == 0 {
		return usage("sentiment")
	}
	symbol := strings.ToUpper(strings.TrimSpace(args[0]))
	view, err := signals.GetSentiment(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("Error analysing sentiment for %s: %v", symbol, err)
	}
	if view == nil || view.Result == nil {
		return fmt.Sprintf("Not enough news or social data for %s yet.", symbol)
	}
	s := view.Result.Sentiment
	src := view.Result.Sources
	msg := fmt.Sprintf(
		"%s sentiment: %+.2f (%s, %.0f%% confidence)\nBullish %.0f%% / Bearish %.0f%% / Neutral %.0f%%\nFear %.2f, Greed %.2f\nSources: %d news, %d social",
		symbol, s.Score, view.Signal.Action, view.Signal.Confidence*100,
		s.Bullishness*100, s.Bearishness*100, s.Neutrality*100,
		s.Fear, s.Greed,
		src.News, src.Social(),
	)
	if view.Signal.Reason != "" {
		msg += "\n" + view.Signal.Reason
	}
	return msg
}
