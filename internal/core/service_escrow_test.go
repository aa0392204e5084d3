package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"legacycore/internal/crypto"
	"legacycore/internal/shamir"
	"legacycore/pkg/domain"
)

type escrowFixture struct {
	owner    OwnerAccount
	trustees []Contact
	escrow   KeyEscrow
	shares   []shamir.Share
	secret   []byte
}

func seedEscrowFixture(t *testing.T, svc *Service, threshold, holders int) escrowFixture {
	t.Helper()
	ctx := context.Background()
	owner := seedOwner(t, svc)
	fx := escrowFixture{owner: owner, secret: []byte("the vault master key material")}
	ids := make([]string, 0, holders)
	for i := 0; i < holders; i++ {
		trustee, _, err := svc.CreateContact(ctx, Contact{
			OwnerID:  owner.ID,
			Name:     "Trustee",
			Email:    "trustee@example.com",
			Roles:    []domain.ContactRole{domain.RoleTrustee},
			Verified: true,
		})
		if err != nil {
			t.Fatalf("create trustee: %v", err)
		}
		fx.trustees = append(fx.trustees, trustee)
		ids = append(ids, trustee.ID)
	}
	escrow, shares, _, err := svc.SetupEscrow(ctx, owner.ID, fx.secret, threshold, ids)
	if err != nil {
		t.Fatalf("setup escrow: %v", err)
	}
	fx.escrow = escrow
	fx.shares = shares
	return fx
}

func activateGrant(t *testing.T, svc *Service, now *time.Time, ownerID, contactID string) ActivationRequest {
	t.Helper()
	ctx := context.Background()
	req, _, err := svc.PanicActivate(ctx, ownerID, contactID, "recovery test")
	if err != nil {
		t.Fatalf("panic activate: %v", err)
	}
	*now = now.Add(PanicWait + time.Minute)
	granted, _, err := svc.ApproveActivation(ctx, req.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return granted
}

func TestSetupEscrowPersistsFingerprintsOnly(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	fx := seedEscrowFixture(t, svc, 2, 3)

	if fx.escrow.Threshold != 2 || fx.escrow.TotalShares != 3 || len(fx.escrow.Shares) != 3 {
		t.Fatalf("unexpected escrow shape: %+v", fx.escrow)
	}
	if fx.escrow.KeyFingerprint != crypto.Fingerprint(fx.secret) {
		t.Fatalf("fingerprint mismatch")
	}
	for i, rec := range fx.escrow.Shares {
		if rec.Status != domain.ShareIssued {
			t.Fatalf("share %d not issued", rec.Index)
		}
		if rec.Fingerprint != fx.shares[i].Fingerprint() {
			t.Fatalf("share %d fingerprint mismatch", rec.Index)
		}
	}
}

func TestSetupEscrowRejectsNonTrusteeHolder(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()
	owner := seedOwner(t, svc)
	outsider, _, err := svc.CreateContact(ctx, Contact{
		OwnerID: owner.ID,
		Name:    "Ben",
		Email:   "ben@example.com",
		Roles:   []domain.ContactRole{domain.RoleBeneficiary},
	})
	if err != nil {
		t.Fatalf("create contact: %v", err)
	}
	trustee := seedContact(t, svc, owner.ID, []domain.ContactRole{domain.RoleTrustee}, true)

	_, _, _, err = svc.SetupEscrow(ctx, owner.ID, []byte("secret"), 2, []string{trustee.ID, outsider.ID})
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected threshold rule violation, got %v", err)
	}
}

func TestRecoveryCeremonyRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()
	fx := seedEscrowFixture(t, svc, 2, 3)
	grant := activateGrant(t, svc, &now, fx.owner.ID, fx.trustees[0].ID)

	ceremony, _, err := svc.OpenRecovery(ctx, fx.escrow.ID, grant.ID)
	if err != nil || ceremony.Status != domain.CeremonyOpen {
		t.Fatalf("open recovery: %v %+v", err, ceremony)
	}

	// Not enough shares yet.
	if _, _, _, err := svc.CompleteRecovery(ctx, ceremony.ID); err == nil {
		t.Fatalf("expected completion refusal below threshold")
	}

	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[0].ID, fx.shares[0]); err != nil {
		t.Fatalf("deposit 1: %v", err)
	}
	// Same share again is refused.
	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[0].ID, fx.shares[0]); err == nil {
		t.Fatalf("expected duplicate deposit refusal")
	}
	// Wrong holder is refused.
	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[0].ID, fx.shares[1]); err == nil {
		t.Fatalf("expected holder mismatch refusal")
	}
	// Tampered material is refused.
	tampered := shamir.Share{Index: fx.shares[1].Index, Bytes: append([]byte{}, fx.shares[1].Bytes...)}
	tampered.Bytes[0] ^= 0xff
	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[1].ID, tampered); err == nil {
		t.Fatalf("expected fingerprint mismatch refusal")
	}

	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[1].ID, fx.shares[1]); err != nil {
		t.Fatalf("deposit 2: %v", err)
	}

	secret, done, _, err := svc.CompleteRecovery(ctx, ceremony.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !bytes.Equal(secret, fx.secret) {
		t.Fatalf("recovered secret mismatch")
	}
	if done.Status != domain.CeremonyCompleted || done.CompletedAt == nil {
		t.Fatalf("ceremony not closed: %+v", done)
	}
	for _, dep := range done.Deposited {
		if dep.Hex != "" {
			t.Fatalf("deposited material not cleared")
		}
	}
	stored, _ := svc.Store().GetEscrow(fx.escrow.ID)
	deposited := 0
	for _, rec := range stored.Shares {
		if rec.Status == domain.ShareDeposited {
			deposited++
		}
	}
	if deposited != 2 {
		t.Fatalf("expected 2 deposited share records, got %d", deposited)
	}
}

func TestOpenRecoveryRequiresActiveGrant(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()
	fx := seedEscrowFixture(t, svc, 2, 2)

	req, _, err := svc.RequestActivation(ctx, ActivationRequest{OwnerID: fx.owner.ID, ContactID: fx.trustees[0].ID})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, _, err := svc.OpenRecovery(ctx, fx.escrow.ID, req.ID); err == nil {
		t.Fatalf("expected refusal without an active grant")
	}
	if _, _, err := svc.OpenRecovery(ctx, "ghost", req.ID); err == nil {
		t.Fatalf("expected escrow not found")
	}
}

func TestAbortRecoveryClearsDeposits(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()
	fx := seedEscrowFixture(t, svc, 2, 2)
	grant := activateGrant(t, svc, &now, fx.owner.ID, fx.trustees[0].ID)

	ceremony, _, err := svc.OpenRecovery(ctx, fx.escrow.ID, grant.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[0].ID, fx.shares[0]); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	aborted, _, err := svc.AbortRecovery(ctx, ceremony.ID, "owner resurfaced")
	if err != nil || aborted.Status != domain.CeremonyAborted {
		t.Fatalf("abort: %v %+v", err, aborted)
	}
	for _, dep := range aborted.Deposited {
		if dep.Hex != "" {
			t.Fatalf("material not cleared on abort")
		}
	}
	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[1].ID, fx.shares[1]); err == nil {
		t.Fatalf("aborted ceremony must refuse deposits")
	}
}

func TestRevokedGrantEndsCeremonyAuthority(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()
	fx := seedEscrowFixture(t, svc, 2, 3)
	grant := activateGrant(t, svc, &now, fx.owner.ID, fx.trustees[0].ID)

	ceremony, _, err := svc.OpenRecovery(ctx, fx.escrow.ID, grant.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[0].ID, fx.shares[0]); err != nil {
		t.Fatalf("deposit 1: %v", err)
	}
	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[1].ID, fx.shares[1]); err != nil {
		t.Fatalf("deposit 2: %v", err)
	}

	if _, _, err := svc.RevokeActivation(ctx, grant.ID, "owner back online"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// The ceremony is still open, but its backing grant is gone.
	if _, _, err := svc.DepositShare(ctx, ceremony.ID, fx.trustees[2].ID, fx.shares[2]); err == nil {
		t.Fatalf("expected deposit refusal after revocation")
	} else if !strings.Contains(err.Error(), "revoked") {
		t.Fatalf("unexpected deposit error: %v", err)
	}
	if _, _, _, err := svc.CompleteRecovery(ctx, ceremony.ID); err == nil {
		t.Fatalf("expected completion refusal after revocation")
	} else if !strings.Contains(err.Error(), "revoked") {
		t.Fatalf("unexpected completion error: %v", err)
	}
}

func TestDeleteEscrowGuards(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()
	fx := seedEscrowFixture(t, svc, 2, 2)
	grant := activateGrant(t, svc, &now, fx.owner.ID, fx.trustees[0].ID)

	if _, _, err := svc.OpenRecovery(ctx, fx.escrow.ID, grant.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.DeleteEscrow(ctx, fx.escrow.ID); err == nil {
		t.Fatalf("expected refusal while a ceremony is open")
	}
}
