package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"legacycore/internal/infra/persistence/memory"
	"legacycore/pkg/domain"
)

// Default check-in cadence applied when an owner does not choose one.
const (
	DefaultCheckInDays = 30
	DefaultGraceDays   = 7
)

// Service exposes transactional operations over the legacy vault schema.
// Every mutation runs inside a store transaction so the rules engine sees it
// before commit, and every operation reports to the configured logger,
// metrics recorder, and tracer.
type Service struct {
	store   PersistentStore
	log     *zap.SugaredLogger
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		log:     zap.NewNop().Sugar(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// ErrNotFound aliases the store-level missing-entity error so callers can
// match it regardless of whether the service or the store raised it.
type ErrNotFound = domain.NotFoundError

// run executes fn in a transaction with instrumentation around it.
func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error) (Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.log.Errorw("operation failed", "operation", op, "error", err)
	} else {
		s.log.Debugw("operation committed", "operation", op, "duration", duration)
	}
	return res, err
}

func audit(tx Transaction, ownerID, actor, action string, entity EntityType, entityID string, detail map[string]any) error {
	_, err := tx.AppendAudit(AuditEvent{
		OwnerID:  ownerID,
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Detail:   detail,
	})
	return err
}

// CreateOwner persists a new vault owner, applying cadence defaults.
func (s *Service) CreateOwner(ctx context.Context, owner OwnerAccount) (OwnerAccount, Result, error) {
	if owner.Status == "" {
		owner.Status = domain.OwnerActive
	}
	if owner.CheckInDays == 0 {
		owner.CheckInDays = DefaultCheckInDays
	}
	if owner.GraceDays == 0 {
		owner.GraceDays = DefaultGraceDays
	}
	var created OwnerAccount
	res, err := s.run(ctx, "create_owner", func(tx Transaction) error {
		var err error
		if created, err = tx.CreateOwner(owner); err != nil {
			return err
		}
		return audit(tx, created.ID, created.Email, "create_owner", domain.EntityOwner, created.ID, nil)
	})
	return created, res, err
}

// UpdateOwner mutates an owner using the provided mutator.
func (s *Service) UpdateOwner(ctx context.Context, id string, mutator func(*OwnerAccount) error) (OwnerAccount, Result, error) {
	var updated OwnerAccount
	res, err := s.run(ctx, "update_owner", func(tx Transaction) error {
		var err error
		if updated, err = tx.UpdateOwner(id, mutator); err != nil {
			return err
		}
		return audit(tx, id, updated.Email, "update_owner", domain.EntityOwner, id, nil)
	})
	return updated, res, err
}

// DeleteOwner removes an owner record.
func (s *Service) DeleteOwner(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_owner", func(tx Transaction) error {
		if err := tx.DeleteOwner(id); err != nil {
			return err
		}
		return audit(tx, id, "", "delete_owner", domain.EntityOwner, id, nil)
	})
}

// CheckIn stamps the owner's liveness probe and re-arms inactivity triggers
// whose deadline derives from it. Memorialized accounts refuse check-ins.
func (s *Service) CheckIn(ctx context.Context, ownerID string) (OwnerAccount, Result, error) {
	now := s.now()
	var updated OwnerAccount
	res, err := s.run(ctx, "check_in", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateOwner(ownerID, func(o *OwnerAccount) error {
			if o.Status == domain.OwnerMemorialized {
				return fmt.Errorf("owner %s is memorialized and cannot check in", ownerID)
			}
			o.LastCheckInAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		for _, trig := range tx.Snapshot().ListTriggers(ownerID) {
			if trig.Kind != domain.TriggerInactivity {
				continue
			}
			if trig.State != domain.TriggerArmed && trig.State != domain.TriggerTripped {
				continue
			}
			// A tripped trigger with an already granted request stays
			// tripped; the grant lifecycle owns it from here.
			if trig.State == domain.TriggerTripped && hasLiveActivationForTrigger(tx.Snapshot(), ownerID, trig.ID) {
				continue
			}
			deadline := now.AddDate(0, 0, trig.InactivityD)
			if _, err := tx.UpdateTrigger(trig.ID, func(t *TriggerCondition) error {
				t.State = domain.TriggerArmed
				t.Deadline = &deadline
				t.TrippedAt = nil
				return nil
			}); err != nil {
				return err
			}
		}
		return audit(tx, ownerID, updated.Email, "check_in", domain.EntityOwner, ownerID, nil)
	})
	return updated, res, err
}

func hasLiveActivationForTrigger(view RuleView, ownerID, triggerID string) bool {
	for _, act := range view.ListActivations(ownerID) {
		if act.TriggerID == triggerID && act.Status == domain.ActivationActive {
			return true
		}
	}
	return false
}

// CreateContact persists a trusted contact for an owner.
func (s *Service) CreateContact(ctx context.Context, contact Contact) (Contact, Result, error) {
	var created Contact
	res, err := s.run(ctx, "create_contact", func(tx Transaction) error {
		var err error
		if created, err = tx.CreateContact(contact); err != nil {
			return err
		}
		return audit(tx, created.OwnerID, "", "create_contact", domain.EntityContact, created.ID, map[string]any{"roles": created.Roles})
	})
	return created, res, err
}

// UpdateContact mutates a contact.
func (s *Service) UpdateContact(ctx context.Context, id string, mutator func(*Contact) error) (Contact, Result, error) {
	var updated Contact
	res, err := s.run(ctx, "update_contact", func(tx Transaction) error {
		var err error
		if updated, err = tx.UpdateContact(id, mutator); err != nil {
			return err
		}
		return audit(tx, updated.OwnerID, "", "update_contact", domain.EntityContact, id, nil)
	})
	return updated, res, err
}

// DeleteContact removes a contact record.
func (s *Service) DeleteContact(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_contact", func(tx Transaction) error {
		contact, ok := tx.FindContact(id)
		if !ok {
			return ErrNotFound{Entity: domain.EntityContact, ID: id}
		}
		if err := tx.DeleteContact(id); err != nil {
			return err
		}
		return audit(tx, contact.OwnerID, "", "delete_contact", domain.EntityContact, id, nil)
	})
}

// CreateVaultItem persists an encrypted vault item, defaulting the release
// policy to on-activation.
func (s *Service) CreateVaultItem(ctx context.Context, item VaultItem) (VaultItem, Result, error) {
	if item.Release == "" {
		item.Release = domain.ReleaseOnActivation
	}
	var created VaultItem
	res, err := s.run(ctx, "create_vault_item", func(tx Transaction) error {
		var err error
		if created, err = tx.CreateVaultItem(item); err != nil {
			return err
		}
		return audit(tx, created.OwnerID, "", "create_vault_item", domain.EntityVaultItem, created.ID, map[string]any{"kind": created.Kind})
	})
	return created, res, err
}

// UpdateVaultItem mutates a vault item.
func (s *Service) UpdateVaultItem(ctx context.Context, id string, mutator func(*VaultItem) error) (VaultItem, Result, error) {
	var updated VaultItem
	res, err := s.run(ctx, "update_vault_item", func(tx Transaction) error {
		var err error
		if updated, err = tx.UpdateVaultItem(id, mutator); err != nil {
			return err
		}
		return audit(tx, updated.OwnerID, "", "update_vault_item", domain.EntityVaultItem, id, nil)
	})
	return updated, res, err
}

// DeleteVaultItem removes a vault item record. Blob content, when present,
// is the caller's to delete.
func (s *Service) DeleteVaultItem(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_vault_item", func(tx Transaction) error {
		item, ok := tx.Snapshot().FindVaultItem(id)
		if !ok {
			return ErrNotFound{Entity: domain.EntityVaultItem, ID: id}
		}
		if err := tx.DeleteVaultItem(id); err != nil {
			return err
		}
		return audit(tx, item.OwnerID, "", "delete_vault_item", domain.EntityVaultItem, id, nil)
	})
}

// CreateTrigger persists an emergency trigger in the armed state, computing
// the first deadline for inactivity triggers.
func (s *Service) CreateTrigger(ctx context.Context, trigger TriggerCondition) (TriggerCondition, Result, error) {
	now := s.now()
	if trigger.State == "" {
		trigger.State = domain.TriggerArmed
	}
	var created TriggerCondition
	res, err := s.run(ctx, "create_trigger", func(tx Transaction) error {
		if trigger.Kind == domain.TriggerInactivity && trigger.Deadline == nil {
			base := now
			if owner, ok := tx.FindOwner(trigger.OwnerID); ok && owner.LastCheckInAt != nil {
				base = *owner.LastCheckInAt
			}
			deadline := base.AddDate(0, 0, trigger.InactivityD)
			trigger.Deadline = &deadline
		}
		var err error
		if created, err = tx.CreateTrigger(trigger); err != nil {
			return err
		}
		return audit(tx, created.OwnerID, "", "create_trigger", domain.EntityTrigger, created.ID, map[string]any{"kind": created.Kind})
	})
	return created, res, err
}

// UpdateTrigger mutates a trigger.
func (s *Service) UpdateTrigger(ctx context.Context, id string, mutator func(*TriggerCondition) error) (TriggerCondition, Result, error) {
	var updated TriggerCondition
	res, err := s.run(ctx, "update_trigger", func(tx Transaction) error {
		var err error
		if updated, err = tx.UpdateTrigger(id, mutator); err != nil {
			return err
		}
		return audit(tx, updated.OwnerID, "", "update_trigger", domain.EntityTrigger, id, nil)
	})
	return updated, res, err
}

// PauseTrigger suspends an armed trigger.
func (s *Service) PauseTrigger(ctx context.Context, id string) (TriggerCondition, Result, error) {
	return s.UpdateTrigger(ctx, id, func(t *TriggerCondition) error {
		t.State = domain.TriggerPaused
		return nil
	})
}

// ArmTrigger resumes a paused trigger, refreshing the inactivity deadline.
func (s *Service) ArmTrigger(ctx context.Context, id string) (TriggerCondition, Result, error) {
	now := s.now()
	return s.UpdateTrigger(ctx, id, func(t *TriggerCondition) error {
		t.State = domain.TriggerArmed
		if t.Kind == domain.TriggerInactivity {
			deadline := now.AddDate(0, 0, t.InactivityD)
			t.Deadline = &deadline
		}
		return nil
	})
}

// DeleteTrigger removes a trigger record.
func (s *Service) DeleteTrigger(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_trigger", func(tx Transaction) error {
		trig, ok := tx.Snapshot().FindTrigger(id)
		if !ok {
			return ErrNotFound{Entity: domain.EntityTrigger, ID: id}
		}
		if err := tx.DeleteTrigger(id); err != nil {
			return err
		}
		return audit(tx, trig.OwnerID, "", "delete_trigger", domain.EntityTrigger, id, nil)
	})
}

// DeleteEscrow removes an escrow policy that has not produced a ceremony.
func (s *Service) DeleteEscrow(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_escrow", func(tx Transaction) error {
		escrow, ok := tx.FindEscrow(id)
		if !ok {
			return ErrNotFound{Entity: domain.EntityEscrow, ID: id}
		}
		for _, cer := range tx.Snapshot().ListCeremonies(escrow.OwnerID) {
			if cer.EscrowID == id && cer.Status == domain.CeremonyOpen {
				return fmt.Errorf("escrow %s has an open recovery ceremony", id)
			}
		}
		if err := tx.DeleteEscrow(id); err != nil {
			return err
		}
		return audit(tx, escrow.OwnerID, "", "delete_escrow", domain.EntityEscrow, id, nil)
	})
}
