package core

import (
	"context"
	"fmt"
	"time"

	"legacycore/pkg/domain"
)

// TripTrigger fires a trigger: it moves the trigger to tripped and opens an
// inactivity-source activation request for every trustee contact of the
// owner. Pairs that already carry a live request are skipped.
func (s *Service) TripTrigger(ctx context.Context, triggerID string) (TriggerCondition, []ActivationRequest, Result, error) {
	now := s.now()
	var tripped TriggerCondition
	var spawned []ActivationRequest
	res, err := s.run(ctx, "trip_trigger", func(tx Transaction) error {
		spawned = nil
		trig, ok := tx.Snapshot().FindTrigger(triggerID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityTrigger, ID: triggerID}
		}
		if trig.State != domain.TriggerArmed {
			return fmt.Errorf("trigger %s is %s, only armed triggers trip", triggerID, trig.State)
		}
		var err error
		tripped, err = tx.UpdateTrigger(triggerID, func(t *TriggerCondition) error {
			t.State = domain.TriggerTripped
			t.TrippedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		for _, contact := range tx.Snapshot().ListContacts(trig.OwnerID) {
			if !contact.HasRole(domain.RoleTrustee) {
				continue
			}
			if hasOpenActivation(tx.Snapshot(), trig.OwnerID, contact.ID) {
				continue
			}
			req, err := s.openActivation(tx, ActivationRequest{
				OwnerID:   trig.OwnerID,
				ContactID: contact.ID,
				Source:    domain.SourceInactivity,
				Reason:    fmt.Sprintf("trigger %q fired", trig.Label),
				TriggerID: trig.ID,
			}, now, domain.ActivationVerifying, 0)
			if err != nil {
				return err
			}
			spawned = append(spawned, req)
		}
		return audit(tx, trig.OwnerID, "", "trip_trigger", domain.EntityTrigger, triggerID, map[string]any{"requests": len(spawned)})
	})
	if err != nil {
		return TriggerCondition{}, nil, res, err
	}
	return tripped, spawned, res, nil
}

// MarkTriggerReminder stamps the time an escalation reminder went out so the
// sweep does not refire the same step.
func (s *Service) MarkTriggerReminder(ctx context.Context, triggerID string, at time.Time) (TriggerCondition, Result, error) {
	return s.UpdateTrigger(ctx, triggerID, func(t *TriggerCondition) error {
		t.LastFiredAt = &at
		return nil
	})
}
