package features

import (
	"sort"

	"autotrader-core/internal/domain"
	"autotrader-core/internal/ta"
)

// Row is one labelled training sample.
type Row struct {
	Timestamp string
	Vector    Vector
	Up        bool
}

// BuildRows walks history and emits one row per bar that has warmup bars
// behind it and a bar horizon steps ahead to label against.
func (e *Engine) BuildRows(history []domain.MarketDataBar, warmup, horizon int) []Row {
	if horizon <= 0 {
		horizon = 1
	}
	if warmup < MinHistory-1 {
		warmup = MinHistory - 1
	}
	sorted := make([]domain.MarketDataBar, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	annotated := ta.Annotate(sorted)

	rows := make([]Row, 0, len(annotated))
	for i := warmup; i+horizon < len(annotated); i++ {
		rows = append(rows, Row{
			Timestamp: annotated[i].Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			Vector:    e.extractAt(annotated, i),
			Up:        annotated[i+horizon].Close > annotated[i].Close,
		})
	}
	return rows
}

// Matrix flattens rows into model inputs ordered by names.
func Matrix(rows []Row, names []string) ([][]float64, []float64) {
	samples := make([][]float64, len(rows))
	labels := make([]float64, len(rows))
	for i, row := range rows {
		samples[i] = row.Vector.Values(names)
		if row.Up {
			labels[i] = 1
		}
	}
	return samples, labels
}
