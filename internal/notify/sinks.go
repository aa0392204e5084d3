package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemorySink retains delivered notifications for inspection. Intended for
// tests.
type MemorySink struct {
	mu   sync.Mutex
	sent []Notification
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Deliver implements Sink.
func (s *MemorySink) Deliver(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (s *MemorySink) Sent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.sent))
	copy(out, s.sent)
	return out
}

// LogSink writes notifications to the log instead of delivering them.
// Useful for development deployments without a mail relay.
type LogSink struct {
	log *zap.SugaredLogger
}

// NewLogSink returns a sink that logs deliveries.
func NewLogSink(log *zap.SugaredLogger) *LogSink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LogSink{log: log}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, n Notification) error {
	s.log.Infow("notification",
		"kind", n.Kind, "recipient", n.Recipient, "subject", n.Subject)
	return nil
}
