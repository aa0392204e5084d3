package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MetricsRecorder receives per-operation outcomes from the service layer.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span started by a Tracer.
type TraceSpan interface {
	End(err error)
}

// ServiceOption customizes a Service at construction time.
type ServiceOption func(*Service)

// WithLogger attaches a structured logger to the service.
func WithLogger(log *zap.SugaredLogger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder to the service.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer attaches a tracer to the service.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
