package core

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nulltea/latpir"

type Span struct {
	name      string
	startTime time.Time
	parent    *Span
	depth     int
	span      trace.Span
}

var (
	mu     sync.Mutex
	logger = logr.Discard()
)

// SetLogger sets the sink span durations are written to at verbosity 1.
func SetLogger(l logr.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func getLogger() logr.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// StartSpan starts a new span with the given name and optional parent span. The
// returned context carries the OpenTelemetry span.
func StartSpan(ctx context.Context, name string, parent *Span, attrs ...attribute.KeyValue) (context.Context, *Span) {
	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}

	ctx, otelSpan := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))

	return ctx, &Span{
		name:      name,
		startTime: time.Now(),
		parent:    parent,
		depth:     depth,
		span:      otelSpan,
	}
}

// WithSpan executes the given function within a span and returns its result
func WithSpan[T any](ctx context.Context, name string, parent *Span, fn func(context.Context, *Span) (T, error)) (T, error) {
	ctx, span := StartSpan(ctx, name, parent)
	res, err := fn(ctx, span)
	span.EndWithError(err)
	return res, err
}

// End ends the span and logs its duration
func (s *Span) End() {
	duration := time.Since(s.startTime)
	s.span.End()
	getLogger().V(1).Info(s.name, "depth", s.depth, "duration", duration)
}

// EndWithError records err on the span, if any, then ends it.
func (s *Span) EndWithError(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.End()
}

func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}
