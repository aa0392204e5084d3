package core

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"legacycore/pkg/domain"
)

// ErrSignalRejected reports a third-party signal whose source or token did
// not match the owner's registered credentials.
var ErrSignalRejected = errors.New("signal rejected")

// ErrCoolingOff reports an approval attempted before the waiting period
// elapsed. The request stays in the waiting state.
var ErrCoolingOff = errors.New("cooling off")

// AccessWindow is how long a granted request stays active before expiry.
const AccessWindow = 7 * 24 * time.Hour

// PanicWait is the shortened cooling-off applied to owner-initiated panic
// grants. The owner vouched for the grantee directly, so the window only
// guards against a coerced or compromised session.
const PanicWait = 6 * time.Hour

// RequestActivation submits an emergency-access request for an owner's
// contact. The request lands in the verifying state with its risk level and
// cooling-off deadline already computed.
func (s *Service) RequestActivation(ctx context.Context, req ActivationRequest) (ActivationRequest, Result, error) {
	if req.Source == "" {
		req.Source = domain.SourceManual
	}
	now := s.now()
	var created ActivationRequest
	res, err := s.run(ctx, "request_activation", func(tx Transaction) error {
		var err error
		created, err = s.openActivation(tx, req, now, domain.ActivationVerifying, 0)
		return err
	})
	return created, res, err
}

// PanicActivate is the owner-initiated path: the request skips identity
// verification and enters waiting with the shortened panic window.
func (s *Service) PanicActivate(ctx context.Context, ownerID, contactID, reason string) (ActivationRequest, Result, error) {
	now := s.now()
	req := ActivationRequest{
		OwnerID:   ownerID,
		ContactID: contactID,
		Source:    domain.SourceManual,
		Reason:    reason,
	}
	var created ActivationRequest
	res, err := s.run(ctx, "panic_activate", func(tx Transaction) error {
		var err error
		created, err = s.openActivation(tx, req, now, domain.ActivationWaiting, PanicWait)
		return err
	})
	return created, res, err
}

// openActivation creates a request in pending and walks it to target within
// the same transaction, so the transition rule sees only legal edges.
func (s *Service) openActivation(tx Transaction, req ActivationRequest, now time.Time, target domain.ActivationStatus, waitOverride time.Duration) (ActivationRequest, error) {
	if _, ok := tx.FindOwner(req.OwnerID); !ok {
		return ActivationRequest{}, ErrNotFound{Entity: domain.EntityOwner, ID: req.OwnerID}
	}
	if _, ok := tx.FindContact(req.ContactID); !ok {
		return ActivationRequest{}, ErrNotFound{Entity: domain.EntityContact, ID: req.ContactID}
	}

	req.Status = domain.ActivationPending
	req.RiskScore = scoreActivation(tx.Snapshot(), req, now)
	req.Risk = riskLevel(req.RiskScore)
	wait := waitingPeriod(req.Risk)
	if waitOverride > 0 {
		wait = waitOverride
	}
	until := now.Add(wait)
	req.WaitingUntil = &until

	created, err := tx.CreateActivation(req)
	if err != nil {
		return ActivationRequest{}, err
	}
	for _, step := range activationPath(target) {
		created, err = tx.UpdateActivation(created.ID, func(a *ActivationRequest) error {
			a.Status = step
			if step == domain.ActivationWaiting && a.VerifiedAt == nil {
				a.VerifiedAt = &now
			}
			return nil
		})
		if err != nil {
			return ActivationRequest{}, err
		}
	}
	if err := audit(tx, created.OwnerID, created.ContactID, "request_activation", domain.EntityActivation, created.ID, map[string]any{
		"source": created.Source,
		"risk":   created.Risk,
		"score":  created.RiskScore,
	}); err != nil {
		return ActivationRequest{}, err
	}
	return created, nil
}

// activationPath lists the intermediate statuses between pending and target.
func activationPath(target domain.ActivationStatus) []domain.ActivationStatus {
	switch target {
	case domain.ActivationVerifying:
		return []domain.ActivationStatus{domain.ActivationVerifying}
	case domain.ActivationWaiting:
		return []domain.ActivationStatus{domain.ActivationVerifying, domain.ActivationWaiting}
	default:
		return nil
	}
}

// VerifyActivation confirms the requester's identity, starting the
// cooling-off countdown.
func (s *Service) VerifyActivation(ctx context.Context, id string) (ActivationRequest, Result, error) {
	now := s.now()
	var updated ActivationRequest
	res, err := s.run(ctx, "verify_activation", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateActivation(id, func(a *ActivationRequest) error {
			a.Status = domain.ActivationWaiting
			a.VerifiedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, updated.OwnerID, updated.ContactID, "verify_activation", domain.EntityActivation, id, nil)
	})
	return updated, res, err
}

// ApproveActivation grants access once the cooling-off deadline has passed.
func (s *Service) ApproveActivation(ctx context.Context, id string) (ActivationRequest, Result, error) {
	now := s.now()
	var updated ActivationRequest
	res, err := s.run(ctx, "approve_activation", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateActivation(id, func(a *ActivationRequest) error {
			if a.WaitingUntil != nil && now.Before(*a.WaitingUntil) {
				return fmt.Errorf("activation %s is %w until %s", id, ErrCoolingOff, a.WaitingUntil.Format(time.RFC3339))
			}
			a.Status = domain.ActivationActive
			a.GrantedAt = &now
			expires := now.Add(AccessWindow)
			a.ExpiresAt = &expires
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, updated.OwnerID, updated.ContactID, "approve_activation", domain.EntityActivation, id, nil)
	})
	return updated, res, err
}

// DenyActivation refuses a request that has not yet been granted.
func (s *Service) DenyActivation(ctx context.Context, id, reason string) (ActivationRequest, Result, error) {
	return s.closeActivation(ctx, "deny_activation", id, domain.ActivationDenied, reason)
}

// RevokeActivation withdraws a waiting or granted request.
func (s *Service) RevokeActivation(ctx context.Context, id, reason string) (ActivationRequest, Result, error) {
	return s.closeActivation(ctx, "revoke_activation", id, domain.ActivationRevoked, reason)
}

func (s *Service) closeActivation(ctx context.Context, op, id string, status domain.ActivationStatus, reason string) (ActivationRequest, Result, error) {
	now := s.now()
	var updated ActivationRequest
	res, err := s.run(ctx, op, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateActivation(id, func(a *ActivationRequest) error {
			a.Status = status
			a.ClosedAt = &now
			a.CloseReason = reason
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, updated.OwnerID, updated.ContactID, op, domain.EntityActivation, id, map[string]any{"reason": reason})
	})
	return updated, res, err
}

// ExpireActivations closes every active grant whose access window has
// elapsed and returns the expired requests.
func (s *Service) ExpireActivations(ctx context.Context, now time.Time) ([]ActivationRequest, Result, error) {
	var expired []ActivationRequest
	res, err := s.run(ctx, "expire_activations", func(tx Transaction) error {
		expired = nil
		for _, owner := range tx.Snapshot().ListOwners() {
			for _, act := range tx.Snapshot().ListActivations(owner.ID) {
				if act.Status != domain.ActivationActive || act.ExpiresAt == nil || now.Before(*act.ExpiresAt) {
					continue
				}
				updated, err := tx.UpdateActivation(act.ID, func(a *ActivationRequest) error {
					a.Status = domain.ActivationExpired
					a.ClosedAt = &now
					a.CloseReason = "access window elapsed"
					return nil
				})
				if err != nil {
					return err
				}
				if err := audit(tx, updated.OwnerID, "", "expire_activation", domain.EntityActivation, updated.ID, nil); err != nil {
					return err
				}
				expired = append(expired, updated)
			}
		}
		return nil
	})
	return expired, res, err
}

// RecordSignal ingests an authenticated third-party signal for an owner and
// opens a third-party activation request for every trustee contact.
func (s *Service) RecordSignal(ctx context.Context, ownerID, source, token, detail string) ([]ActivationRequest, Result, error) {
	now := s.now()
	var created []ActivationRequest
	res, err := s.run(ctx, "record_signal", func(tx Transaction) error {
		created = nil
		owner, ok := tx.FindOwner(ownerID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityOwner, ID: ownerID}
		}
		if !ownerAcceptsSignal(owner, source, token) {
			return fmt.Errorf("%w: source %s for owner %s", ErrSignalRejected, source, ownerID)
		}
		for _, contact := range tx.Snapshot().ListContacts(ownerID) {
			if !contact.HasRole(domain.RoleTrustee) {
				continue
			}
			if hasOpenActivation(tx.Snapshot(), ownerID, contact.ID) {
				continue
			}
			req, err := s.openActivation(tx, ActivationRequest{
				OwnerID:   ownerID,
				ContactID: contact.ID,
				Source:    domain.SourceThirdParty,
				Reason:    fmt.Sprintf("signal from %s: %s", source, detail),
			}, now, domain.ActivationVerifying, 0)
			if err != nil {
				return err
			}
			created = append(created, req)
		}
		return audit(tx, ownerID, source, "record_signal", domain.EntityOwner, ownerID, map[string]any{
			"source":   source,
			"requests": len(created),
		})
	})
	return created, res, err
}

func ownerAcceptsSignal(owner OwnerAccount, source, token string) bool {
	known := false
	for _, s := range owner.SignalSources {
		if s == source {
			known = true
			break
		}
	}
	if !known || owner.SignalTokenHash == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(owner.SignalTokenHash)) == 1
}

// HashSignalToken derives the stored form of a third-party signal token.
func HashSignalToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func hasOpenActivation(view RuleView, ownerID, contactID string) bool {
	for _, act := range view.ListActivations(ownerID) {
		if act.ContactID == contactID && !act.Terminal() {
			return true
		}
	}
	return false
}
