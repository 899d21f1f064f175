package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"autotrader-core/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

type stubWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

var _ messageWriter = (*stubWriter)(nil)

func TestPublishKeysBySymbol(t *testing.T) {
	w := &stubWriter{}
	p := newSignalPublisher(trace.NewNoopTracerProvider().Tracer("test"), w, "trading-signals")

	err := p.Publish(context.Background(),
		&domain.TradingSignal{Symbol: "AAPL", Action: domain.ActionBuy, Confidence: 0.8},
		nil,
		&domain.TradingSignal{Symbol: "MSFT", Action: domain.ActionHold},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "AAPL" || string(w.msgs[0].Headers[0].Value) != "BUY" {
		t.Fatalf("unexpected first message: %+v", w.msgs[0])
	}
	var decoded domain.TradingSignal
	if err := json.Unmarshal(w.msgs[1].Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Symbol != "MSFT" || decoded.Action != domain.ActionHold {
		t.Fatalf("unexpected payload: %+v", decoded)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatal("expected writer to be closed")
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("leader not available")
	p := newSignalPublisher(trace.NewNoopTracerProvider().Tracer("test"), &stubWriter{err: boom}, "t")
	err := p.Publish(context.Background(), &domain.TradingSignal{Symbol: "AAPL"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestPublishNothingIsNoop(t *testing.T) {
	w := &stubWriter{err: errors.New("should not be called")}
	p := newSignalPublisher(trace.NewNoopTracerProvider().Tracer("test"), w, "t")
	if err := p.Publish(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Publish(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSignalPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewSignalPublisher(trace.NewNoopTracerProvider().Tracer("test"), nil, "t"); !errors.Is(err, ErrNoBrokers) {
		t.Fatalf("expected ErrNoBrokers, got %v", err)
	}
	p, err := NewSignalPublisher(trace.NewNoopTracerProvider().Tracer("test"), []string{"localhost:9092"}, "t")
	if err != nil || p == nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Close()
}
