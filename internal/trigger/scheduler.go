// Package trigger runs the periodic sweep that makes emergency triggers act:
// escalation reminders before an inactivity deadline, tripping once deadline
// plus grace has elapsed, firing scheduled triggers, and expiring stale
// activations and petitions.
package trigger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"legacycore/internal/core"
	"legacycore/internal/notify"
	"legacycore/pkg/domain"
)

// NotificationSink receives outbound messages produced by sweeps.
type NotificationSink interface {
	Enqueue(n notify.Notification) bool
}

type discardSink struct{}

func (discardSink) Enqueue(notify.Notification) bool { return true }

// DefaultInterval is how often the scheduler sweeps.
const DefaultInterval = time.Minute

// Scheduler drives trigger evaluation against the service clock.
type Scheduler struct {
	svc      *core.Service
	sink     NotificationSink
	log      *zap.SugaredLogger
	interval time.Duration
	now      func() time.Time
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger attaches a structured logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithNotifications routes reminder and alert messages to sink.
func WithNotifications(sink NotificationSink) Option {
	return func(s *Scheduler) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithInterval overrides the sweep cadence.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a scheduler over the service.
func New(svc *core.Service, opts ...Option) *Scheduler {
	s := &Scheduler{
		svc:      svc,
		sink:     discardSink{},
		log:      zap.NewNop().Sugar(),
		interval: DefaultInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Errorw("sweep failed", "error", err)
			}
		}
	}
}

// Sweep evaluates every owner's triggers once and expires stale requests.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.now()
	store := s.svc.Store()
	for _, owner := range store.ListOwners() {
		if owner.Status != domain.OwnerActive {
			continue
		}
		for _, trig := range store.ListTriggers(owner.ID) {
			if trig.State != domain.TriggerArmed {
				continue
			}
			switch trig.Kind {
			case domain.TriggerInactivity:
				if err := s.sweepInactivity(ctx, owner, trig, now); err != nil {
					return err
				}
			case domain.TriggerScheduled:
				if trig.ScheduledAt != nil && !now.Before(*trig.ScheduledAt) {
					if err := s.trip(ctx, owner, trig); err != nil {
						return err
					}
				}
			}
		}
	}

	if expired, _, err := s.svc.ExpireActivations(ctx, now); err != nil {
		return err
	} else if len(expired) > 0 {
		s.log.Infow("activations expired", "count", len(expired))
	}
	if expired, _, err := s.svc.ExpirePetitions(ctx, now); err != nil {
		return err
	} else if len(expired) > 0 {
		s.log.Infow("petitions expired", "count", len(expired))
	}
	return nil
}

func (s *Scheduler) sweepInactivity(ctx context.Context, owner core.OwnerAccount, trig core.TriggerCondition, now time.Time) error {
	if trig.Deadline == nil {
		return nil
	}
	tripAt := trig.Deadline.AddDate(0, 0, trig.GraceDays)
	if !now.Before(tripAt) {
		return s.trip(ctx, owner, trig)
	}

	// Inside the escalation window: fire the most urgent due reminder once.
	// Offsets strictly decrease toward the deadline, so scan from the end.
	for i := len(trig.Escalation) - 1; i >= 0; i-- {
		step := trig.Escalation[i]
		fireAt := trig.Deadline.AddDate(0, 0, -step.DaysBefore)
		if now.Before(fireAt) {
			continue
		}
		if trig.LastFiredAt != nil && !trig.LastFiredAt.Before(fireAt) {
			break
		}
		s.sink.Enqueue(notify.Notification{
			Recipient: owner.Email,
			Subject:   "Check-in reminder",
			Body:      fmt.Sprintf("Your vault trigger %q fires in %d day(s) unless you check in.", trig.Label, step.DaysBefore),
			Kind:      notify.KindReminder,
			CreatedAt: now,
		})
		if _, _, err := s.svc.MarkTriggerReminder(ctx, trig.ID, now); err != nil {
			return err
		}
		s.log.Infow("escalation reminder sent", "owner_id", owner.ID, "trigger_id", trig.ID, "days_before", step.DaysBefore)
		break
	}
	return nil
}

func (s *Scheduler) trip(ctx context.Context, owner core.OwnerAccount, trig core.TriggerCondition) error {
	_, spawned, _, err := s.svc.TripTrigger(ctx, trig.ID)
	if err != nil {
		return err
	}
	s.log.Warnw("trigger tripped", "owner_id", owner.ID, "trigger_id", trig.ID, "requests", len(spawned))
	s.sink.Enqueue(notify.Notification{
		Recipient: owner.Email,
		Subject:   "Emergency trigger fired",
		Body:      fmt.Sprintf("Trigger %q fired and opened %d emergency access request(s).", trig.Label, len(spawned)),
		Kind:      notify.KindTriggerFired,
	})
	for _, req := range spawned {
		contact, ok := s.svc.Store().GetContact(req.ContactID)
		if !ok {
			continue
		}
		s.sink.Enqueue(notify.Notification{
			Recipient: contact.Email,
			Subject:   "Emergency access request opened",
			Body:      fmt.Sprintf("An emergency access request was opened on your behalf for %s.", owner.DisplayName),
			Kind:      notify.KindGrantAlert,
		})
	}
	return nil
}
