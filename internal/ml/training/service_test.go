package training

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"autotrader-core/internal/domain"
	"autotrader-core/internal/ml/ensemble"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type stubHistory struct {
	bars []domain.MarketDataBar
}

func (s stubHistory) History(string) []domain.MarketDataBar { return s.bars }

type stubInstaller struct {
	installed []ensemble.Voter
}

func (s *stubInstaller) SetVoter(v ensemble.Voter) error {
	s.installed = append(s.installed, v)
	return nil
}

var (
	_ HistorySource  = stubHistory{}
	_ VoterInstaller = (*stubInstaller)(nil)
)

func waveBars(n int) []domain.MarketDataBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.MarketDataBar, n)
	for i := range bars {
		price := 100 + 5*math.Sin(float64(i)/6) + float64(i)*0.02
		bars[i] = domain.MarketDataBar{
			Symbol:    "AAPL",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000 + float64(i%7)*50,
		}
	}
	return bars
}

func newTestService(bars []domain.MarketDataBar, installer *stubInstaller) *Service {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	return NewService(tracer, zerolog.Nop(), stubHistory{bars: bars}, installer, Config{MinSamples: 100, MinAUC: 0.01})
}

func TestTrainInstallsLogRegVoter(t *testing.T) {
	installer := &stubInstaller{}
	svc := newTestService(waveBars(300), installer)

	res, err := svc.Train(context.Background(), "AAPL", "logreg")
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if res.Voter != ensemble.LogisticRegression || !res.Installed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TestCount == 0 || res.SampleCount <= res.TestCount {
		t.Fatalf("unexpected split: samples=%d test=%d", res.SampleCount, res.TestCount)
	}
	if len(installer.installed) != 1 || installer.installed[0].Name() != ensemble.LogisticRegression {
		t.Fatalf("expected logistic regression voter installed, got %v", installer.installed)
	}
}

func TestTrainGBMTargetsGradientBoostingSlot(t *testing.T) {
	installer := &stubInstaller{}
	svc := newTestService(waveBars(260), installer)

	res, err := svc.Train(context.Background(), "AAPL", "GBM")
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if res.Voter != ensemble.GradientBoosting {
		t.Fatalf("expected gradient boosting slot, got %s", res.Voter)
	}
	if auc := res.Metrics["auc"]; auc < 0 || auc > 1 {
		t.Fatalf("auc out of range: %.4f", auc)
	}
}

func TestTrainErrors(t *testing.T) {
	svc := newTestService(waveBars(60), &stubInstaller{})
	if _, err := svc.Train(context.Background(), "AAPL", "svm"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := svc.Train(context.Background(), "AAPL", "logreg"); !errors.Is(err, ErrNotEnoughSamples) {
		t.Fatalf("expected ErrNotEnoughSamples, got %v", err)
	}
}

func TestComputeAUC(t *testing.T) {
	labels := []float64{0, 0, 1, 1}
	if auc := computeAUC(labels, []float64{0.1, 0.2, 0.8, 0.9}); auc != 1 {
		t.Fatalf("expected perfect auc, got %.4f", auc)
	}
	if auc := computeAUC(labels, []float64{0.9, 0.8, 0.2, 0.1}); auc != 0 {
		t.Fatalf("expected inverted auc 0, got %.4f", auc)
	}
	if auc := computeAUC(labels, []float64{0.5, 0.5, 0.5, 0.5}); auc != 0.5 {
		t.Fatalf("expected tied auc 0.5, got %.4f", auc)
	}
}
