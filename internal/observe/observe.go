// Package observe bundles the structured logger and the OpenTelemetry tracer
// shared by every component.
package observe

import (
	"context"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/felixgeelhaar/syno")

// Observer handles logging and tracing
type Observer struct {
	log *bolt.Logger
}

// New creates an Observer writing human-readable lines.
// If verbose is false, only warnings and errors are shown.
func New(out io.Writer, verbose bool) *Observer {
	return newObserver(bolt.New(bolt.NewConsoleHandler(out)), verbose)
}

// NewJSON creates an Observer writing one JSON object per line.
func NewJSON(out io.Writer, verbose bool) *Observer {
	return newObserver(bolt.New(bolt.NewJSONHandler(out)), verbose)
}

// NewFormat picks the handler by name: "json" or anything else for console.
func NewFormat(out io.Writer, format string, verbose bool) *Observer {
	if format == "json" {
		return NewJSON(out, verbose)
	}
	return New(out, verbose)
}

// Discard returns an Observer that drops everything.
func Discard() *Observer {
	return New(io.Discard, false)
}

func newObserver(l *bolt.Logger, verbose bool) *Observer {
	if !verbose {
		l.SetLevel(bolt.WARN)
	}
	return &Observer{log: l}
}

// Log returns the underlying logger
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan starts a new OTel span
func (o *Observer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// Close flushes nothing today; the exporter is installed by the host process.
func (o *Observer) Close() error {
	return nil
}
