package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"legacycore/pkg/domain"
)

func newTestService(t *testing.T, now *time.Time) *Service {
	t.Helper()
	return NewInMemoryService(DefaultRulesEngine(), WithClock(func() time.Time { return *now }))
}

func seedOwner(t *testing.T, svc *Service) OwnerAccount {
	t.Helper()
	owner, _, err := svc.CreateOwner(context.Background(), OwnerAccount{Email: "ada@example.com", DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return owner
}

func seedContact(t *testing.T, svc *Service, ownerID string, roles []domain.ContactRole, verified bool) Contact {
	t.Helper()
	contact, _, err := svc.CreateContact(context.Background(), Contact{
		OwnerID:  ownerID,
		Name:     "Grace",
		Email:    "grace@example.com",
		Roles:    roles,
		Verified: verified,
	})
	if err != nil {
		t.Fatalf("create contact: %v", err)
	}
	return contact
}

func TestOwnerDefaultsAndCRUD(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	if owner.Status != domain.OwnerActive || owner.CheckInDays != DefaultCheckInDays || owner.GraceDays != DefaultGraceDays {
		t.Fatalf("defaults not applied: %+v", owner)
	}

	updated, _, err := svc.UpdateOwner(ctx, owner.ID, func(o *OwnerAccount) error {
		o.DisplayName = "Ada Lovelace"
		return nil
	})
	if err != nil {
		t.Fatalf("update owner: %v", err)
	}
	if updated.DisplayName != "Ada Lovelace" {
		t.Fatalf("update not applied")
	}

	if _, _, err := svc.UpdateOwner(ctx, "missing", func(*OwnerAccount) error { return nil }); err == nil {
		t.Fatalf("expected missing owner error")
	}

	if _, err := svc.DeleteOwner(ctx, owner.ID); err != nil {
		t.Fatalf("delete owner: %v", err)
	}
	if _, ok := svc.Store().GetOwner(owner.ID); ok {
		t.Fatalf("owner still present after delete")
	}
}

func TestCheckInRearmsInactivityTrigger(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	trig, _, err := svc.CreateTrigger(ctx, TriggerCondition{
		OwnerID:     owner.ID,
		Kind:        domain.TriggerInactivity,
		Label:       "dead man's switch",
		InactivityD: 30,
		GraceDays:   7,
	})
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	if trig.State != domain.TriggerArmed || trig.Deadline == nil {
		t.Fatalf("trigger not armed with deadline: %+v", trig)
	}
	firstDeadline := *trig.Deadline

	now = now.Add(10 * 24 * time.Hour)
	checked, _, err := svc.CheckIn(ctx, owner.ID)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if checked.LastCheckInAt == nil || !checked.LastCheckInAt.Equal(now) {
		t.Fatalf("check-in not stamped")
	}
	rearmed, _ := svc.Store().GetTrigger(trig.ID)
	if rearmed.Deadline == nil || !rearmed.Deadline.After(firstDeadline) {
		t.Fatalf("deadline not pushed forward: %v vs %v", rearmed.Deadline, firstDeadline)
	}
}

func TestCheckInRefusedForMemorializedOwner(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	if _, _, err := svc.UpdateOwner(ctx, owner.ID, func(o *OwnerAccount) error {
		o.Status = domain.OwnerMemorialized
		return nil
	}); err != nil {
		t.Fatalf("memorialize: %v", err)
	}
	if _, _, err := svc.CheckIn(ctx, owner.ID); err == nil {
		t.Fatalf("expected memorialized check-in refusal")
	}
}

func TestTriggerScheduleRuleBlocksShortThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)

	owner := seedOwner(t, svc)
	_, _, err := svc.CreateTrigger(context.Background(), TriggerCondition{
		OwnerID:     owner.ID,
		Kind:        domain.TriggerInactivity,
		InactivityD: 3,
		GraceDays:   1,
	})
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(ruleErr.Result.Violations) == 0 || ruleErr.Result.Violations[0].Rule != "trigger_schedule" {
		t.Fatalf("unexpected violations: %+v", ruleErr.Result.Violations)
	}
}

func TestPauseAndArmTrigger(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	trig, _, err := svc.CreateTrigger(ctx, TriggerCondition{
		OwnerID:     owner.ID,
		Kind:        domain.TriggerInactivity,
		InactivityD: 30,
		GraceDays:   7,
	})
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	paused, _, err := svc.PauseTrigger(ctx, trig.ID)
	if err != nil || paused.State != domain.TriggerPaused {
		t.Fatalf("pause: %v %+v", err, paused)
	}
	armed, _, err := svc.ArmTrigger(ctx, trig.ID)
	if err != nil || armed.State != domain.TriggerArmed {
		t.Fatalf("arm: %v %+v", err, armed)
	}
	if armed.Deadline == nil || !armed.Deadline.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("arm did not refresh deadline: %v", armed.Deadline)
	}
}

func TestVaultItemLifecycleAndAudit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	item, _, err := svc.CreateVaultItem(ctx, VaultItem{
		OwnerID: owner.ID,
		Kind:    domain.ItemNote,
		Title:   "safe combination",
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if item.Release != domain.ReleaseOnActivation {
		t.Fatalf("release policy default missing")
	}

	if _, _, err := svc.UpdateVaultItem(ctx, item.ID, func(v *VaultItem) error {
		v.Release = domain.ReleaseNever
		return nil
	}); err != nil {
		t.Fatalf("update item: %v", err)
	}
	if _, err := svc.DeleteVaultItem(ctx, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}

	events := svc.Store().ListAudit(owner.ID)
	actions := make(map[string]bool, len(events))
	for _, e := range events {
		actions[e.Action] = true
	}
	for _, want := range []string{"create_owner", "create_vault_item", "update_vault_item", "delete_vault_item"} {
		if !actions[want] {
			t.Fatalf("missing audit action %s in %v", want, actions)
		}
	}
}

func TestDeleteContactAndNotFound(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	contact := seedContact(t, svc, owner.ID, []domain.ContactRole{domain.RoleTrustee}, true)

	if _, err := svc.DeleteContact(ctx, "missing"); err == nil {
		t.Fatalf("expected not found")
	} else {
		var nf ErrNotFound
		if !errors.As(err, &nf) || nf.Entity != domain.EntityContact {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := svc.DeleteContact(ctx, contact.ID); err != nil {
		t.Fatalf("delete contact: %v", err)
	}
}
