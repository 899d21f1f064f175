package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autotrader-core/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoBrokers = errors.New("kafka brokers are required")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SignalPublisher hands combined signals to order routing. Messages are JSON
// keyed by symbol so one symbol's signals stay ordered on a partition.
type SignalPublisher struct {
	writer messageWriter
	tracer trace.Tracer
	topic  string
}

func NewSignalPublisher(tracer trace.Tracer, brokers []string, topic string) (*SignalPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newSignalPublisher(tracer, w, topic), nil
}

func newSignalPublisher(tracer trace.Tracer, w messageWriter, topic string) *SignalPublisher {
	return &SignalPublisher{writer: w, tracer: tracer, topic: topic}
}

func (p *SignalPublisher) Publish(ctx context.Context, signals ...*domain.TradingSignal) error {
	if len(signals) == 0 {
		return nil
	}
	ctx, span := p.tracer.Start(ctx, "signal-publisher.publish")
	defer span.End()
	span.SetAttributes(attribute.String("topic", p.topic), attribute.Int("signals", len(signals)))

	msgs := make([]kafka.Message, 0, len(signals))
	for _, sig := range signals {
		if sig == nil {
			continue
		}
		value, err := json.Marshal(sig)
		if err != nil {
			return fmt.Errorf("marshal signal for %s: %w", sig.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(sig.Symbol),
			Value: value,
			Headers: []kafka.Header{
				{Key: "action", Value: []byte(sig.Action)},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish signals to %s: %w", p.topic, err)
	}
	return nil
}

func (p *SignalPublisher) Close() error {
	return p.writer.Close()
}
