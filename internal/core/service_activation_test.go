package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"legacycore/pkg/domain"
)

func TestRequestActivationFlow(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	contact := seedContact(t, svc, owner.ID, []domain.ContactRole{domain.RoleTrustee}, true)

	req, _, err := svc.RequestActivation(ctx, ActivationRequest{
		OwnerID:   owner.ID,
		ContactID: contact.ID,
		Reason:    "owner unreachable",
	})
	if err != nil {
		t.Fatalf("request activation: %v", err)
	}
	if req.Status != domain.ActivationVerifying {
		t.Fatalf("expected verifying, got %s", req.Status)
	}
	if req.Risk != domain.RiskLow || req.WaitingUntil == nil || !req.WaitingUntil.Equal(now.Add(WaitLowRisk)) {
		t.Fatalf("unexpected risk computation: %+v", req)
	}

	verified, _, err := svc.VerifyActivation(ctx, req.ID)
	if err != nil || verified.Status != domain.ActivationWaiting || verified.VerifiedAt == nil {
		t.Fatalf("verify: %v %+v", err, verified)
	}

	// Cooling off: approval before the deadline must fail.
	if _, _, err := svc.ApproveActivation(ctx, req.ID); err == nil || !strings.Contains(err.Error(), "cooling off") {
		t.Fatalf("expected cooling-off refusal, got %v", err)
	}

	now = now.Add(WaitLowRisk + time.Minute)
	granted, _, err := svc.ApproveActivation(ctx, req.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if granted.Status != domain.ActivationActive || granted.ExpiresAt == nil || !granted.ExpiresAt.Equal(now.Add(AccessWindow)) {
		t.Fatalf("unexpected grant: %+v", granted)
	}

	now = granted.ExpiresAt.Add(time.Hour)
	expired, _, err := svc.ExpireActivations(ctx, now)
	if err != nil || len(expired) != 1 || expired[0].Status != domain.ActivationExpired {
		t.Fatalf("expire sweep: %v %+v", err, expired)
	}

	// Terminal records accept no further mutation.
	_, _, err = svc.RevokeActivation(ctx, req.ID, "late")
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected transition violation, got %v", err)
	}
}

func TestDenyAndRevokeActivation(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	contact := seedContact(t, svc, owner.ID, []domain.ContactRole{domain.RoleTrustee}, true)

	req, _, err := svc.RequestActivation(ctx, ActivationRequest{OwnerID: owner.ID, ContactID: contact.ID})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	denied, _, err := svc.DenyActivation(ctx, req.ID, "not convincing")
	if err != nil || denied.Status != domain.ActivationDenied || denied.CloseReason != "not convincing" {
		t.Fatalf("deny: %v %+v", err, denied)
	}

	// A denied request frees the pair for a fresh one.
	second, _, err := svc.RequestActivation(ctx, ActivationRequest{OwnerID: owner.ID, ContactID: contact.ID})
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if second.RiskScore <= req.RiskScore {
		t.Fatalf("repeat request should raise the score: %d then %d", req.RiskScore, second.RiskScore)
	}
	if _, _, err := svc.VerifyActivation(ctx, second.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	revoked, _, err := svc.RevokeActivation(ctx, second.ID, "owner resurfaced")
	if err != nil || revoked.Status != domain.ActivationRevoked {
		t.Fatalf("revoke: %v %+v", err, revoked)
	}
}

func TestGrantExclusivityBlocksSecondLiveRequest(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	contact := seedContact(t, svc, owner.ID, []domain.ContactRole{domain.RoleTrustee}, true)

	if _, _, err := svc.RequestActivation(ctx, ActivationRequest{OwnerID: owner.ID, ContactID: contact.ID}); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, _, err := svc.RequestActivation(ctx, ActivationRequest{OwnerID: owner.ID, ContactID: contact.ID})
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected exclusivity violation, got %v", err)
	}
	if ruleErr.Result.Violations[0].Rule != "grant_exclusivity" {
		t.Fatalf("unexpected rule: %+v", ruleErr.Result.Violations)
	}
}

func TestPanicActivateShortWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	contact := seedContact(t, svc, owner.ID, []domain.ContactRole{domain.RoleTrustee}, true)

	req, _, err := svc.PanicActivate(ctx, owner.ID, contact.ID, "hospitalized")
	if err != nil {
		t.Fatalf("panic activate: %v", err)
	}
	if req.Status != domain.ActivationWaiting || req.VerifiedAt == nil {
		t.Fatalf("panic request should land in waiting: %+v", req)
	}
	if req.WaitingUntil == nil || !req.WaitingUntil.Equal(now.Add(PanicWait)) {
		t.Fatalf("panic window not applied: %v", req.WaitingUntil)
	}

	now = now.Add(PanicWait + time.Minute)
	granted, _, err := svc.ApproveActivation(ctx, req.ID)
	if err != nil || granted.Status != domain.ActivationActive {
		t.Fatalf("approve after panic wait: %v %+v", err, granted)
	}
}

func TestActivationRequiresKnownReferences(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner := seedOwner(t, svc)
	if _, _, err := svc.RequestActivation(ctx, ActivationRequest{OwnerID: "ghost", ContactID: "ghost"}); err == nil {
		t.Fatalf("expected owner not found")
	}
	if _, _, err := svc.RequestActivation(ctx, ActivationRequest{OwnerID: owner.ID, ContactID: "ghost"}); err == nil {
		t.Fatalf("expected contact not found")
	}
}

func TestRecordSignalSpawnsTrusteeRequests(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	owner, _, err := svc.CreateOwner(ctx, OwnerAccount{
		Email:           "ada@example.com",
		SignalSources:   []string{"registry"},
		SignalTokenHash: HashSignalToken("s3cret"),
	})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	trustee := seedContact(t, svc, owner.ID, []domain.ContactRole{domain.RoleTrustee}, true)
	if _, _, err := svc.CreateContact(ctx, Contact{OwnerID: owner.ID, Name: "Ben", Email: "ben@example.com", Roles: []domain.ContactRole{domain.RoleBeneficiary}}); err != nil {
		t.Fatalf("create beneficiary: %v", err)
	}

	created, _, err := svc.RecordSignal(ctx, owner.ID, "registry", "s3cret", "death certificate filed")
	if err != nil {
		t.Fatalf("record signal: %v", err)
	}
	if len(created) != 1 || created[0].ContactID != trustee.ID || created[0].Source != domain.SourceThirdParty {
		t.Fatalf("unexpected requests: %+v", created)
	}

	if _, _, err := svc.RecordSignal(ctx, owner.ID, "registry", "wrong", ""); err == nil {
		t.Fatalf("expected token rejection")
	}
	if _, _, err := svc.RecordSignal(ctx, owner.ID, "unknown", "s3cret", ""); err == nil {
		t.Fatalf("expected unknown source rejection")
	}
}
