package observe

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		t.Run(format, func(t *testing.T) {
			obs := NewFormat(&bytes.Buffer{}, format, true)
			if obs == nil || obs.log == nil {
				t.Fatal("expected non-nil Observer with logger")
			}
		})
	}
}

func TestObserver_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	obs := New(buf, false)

	obs.Log().Info().Msg("retrieved evidence")
	if strings.Contains(buf.String(), "retrieved evidence") {
		t.Errorf("expected info to be filtered when not verbose, got %q", buf.String())
	}

	obs.Log().Warn().Msg("query embedding failed")
	if !strings.Contains(buf.String(), "query embedding failed") {
		t.Errorf("expected warning to be logged, got %q", buf.String())
	}
}

func TestObserver_LogLevels(t *testing.T) {
	testCases := []string{"debug", "info", "warn", "error"}

	for _, level := range testCases {
		t.Run(level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := New(buf, true).Log()

			switch level {
			case "debug":
				logger.Debug().Msg("reply generated")
			case "info":
				logger.Info().Msg("reply generated")
			case "warn":
				logger.Warn().Msg("reply generated")
			case "error":
				logger.Error().Msg("reply generated")
			}

			if !strings.Contains(buf.String(), "reply generated") {
				t.Errorf("expected output to contain 'reply generated', got %q", buf.String())
			}
		})
	}
}

func TestObserver_JSONFields(t *testing.T) {
	buf := &bytes.Buffer{}
	obs := NewJSON(buf, true)

	obs.Log().Warn().
		Str("provider", "openai").
		Int("attempt", 2).
		Msg("model call failed, retrying")

	out := buf.String()
	for _, want := range []string{"model call failed, retrying", "openai", "attempt"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestObserver_StartSpan(t *testing.T) {
	obs := Discard()

	spanCtx, span := obs.StartSpan(context.Background(), "generate.Generate")
	if spanCtx == nil || span == nil {
		t.Fatal("expected non-nil context and span")
	}
	span.End()

	if err := obs.Close(); err != nil {
		t.Errorf("expected nil error from Close, got %v", err)
	}
}
