package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")
	if log.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}
	log.Info().Msg("hidden")
	log.Warn().Str("symbol", "AAPL").Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"symbol":"AAPL"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestNewWithWriterFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	if lvl := NewWithWriter(&buf, "verbose").GetLevel(); lvl != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", lvl)
	}
	if lvl := NewWithWriter(&buf, "").GetLevel(); lvl != zerolog.InfoLevel {
		t.Fatalf("expected info for empty level, got %s", lvl)
	}
}
