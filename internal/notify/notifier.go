// Package notify delivers outbound messages (escalation reminders, grant
// alerts, share requests) through a pluggable sink with retrying delivery and
// a bounded queue.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// Kind classifies an outbound notification.
type Kind string

const (
	KindReminder     Kind = "reminder"      // escalation reminder before a deadline
	KindTriggerFired Kind = "trigger_fired" // a trigger tripped
	KindGrantAlert   Kind = "grant_alert"   // activation request state change
	KindShareRequest Kind = "share_request" // recovery ceremony asks for a share
)

// Notification is one outbound message.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
	Kind      Kind
	CreatedAt time.Time
}

// Sink performs the actual delivery. Implementations are expected to be safe
// for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

const (
	defaultQueueSize = 256
	defaultAttempts  = 4
	defaultBaseDelay = 200 * time.Millisecond
	defaultMaxDelay  = 5 * time.Second
)

// Notifier drains a bounded queue through a sink on a worker goroutine.
// When the queue is full the oldest entry is dropped, never the producer
// blocked.
type Notifier struct {
	sink     Sink
	log      *zap.SugaredLogger
	queue    chan Notification
	attempts uint
	dropped  atomic.Uint64
	wg       sync.WaitGroup
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithLogger attaches a structured logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(n *Notifier) {
		if log != nil {
			n.log = log
		}
	}
}

// WithQueueSize bounds the pending queue.
func WithQueueSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.queue = make(chan Notification, size)
		}
	}
}

// WithAttempts sets the per-message delivery attempt budget.
func WithAttempts(attempts uint) Option {
	return func(n *Notifier) {
		if attempts > 0 {
			n.attempts = attempts
		}
	}
}

// New constructs a stopped notifier over sink. Call Start to begin draining.
func New(sink Sink, opts ...Option) *Notifier {
	n := &Notifier{
		sink:     sink,
		log:      zap.NewNop().Sugar(),
		queue:    make(chan Notification, defaultQueueSize),
		attempts: defaultAttempts,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start launches the worker; it runs until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.loop(ctx)
	}()
}

// Wait blocks until the worker has exited.
func (n *Notifier) Wait() { n.wg.Wait() }

// Dropped reports how many notifications were evicted from a full queue.
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }

// Pending reports the queue depth.
func (n *Notifier) Pending() int { return len(n.queue) }

// Enqueue offers a notification without blocking. On a full queue the oldest
// entry is evicted to make room; false is returned only when even that fails.
func (n *Notifier) Enqueue(notification Notification) bool {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	select {
	case n.queue <- notification:
		return true
	default:
	}
	select {
	case old := <-n.queue:
		n.dropped.Add(1)
		n.log.Warnw("notification queue full, dropped oldest",
			"kind", old.Kind, "recipient", old.Recipient)
	default:
	}
	select {
	case n.queue <- notification:
		return true
	default:
		n.dropped.Add(1)
		return false
	}
}

func (n *Notifier) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			n.deliver(ctx, msg)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, msg Notification) {
	err := retry.Do(
		func() error { return n.sink.Deliver(ctx, msg) },
		retry.Context(ctx),
		retry.Attempts(n.attempts),
		retry.Delay(defaultBaseDelay),
		retry.MaxDelay(defaultMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		n.log.Errorw("notification delivery failed",
			"kind", msg.Kind, "recipient", msg.Recipient, "error", err)
		return
	}
	n.log.Debugw("notification delivered", "kind", msg.Kind, "recipient", msg.Recipient)
}
