package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"legacycore/internal/crypto"
	"legacycore/internal/shamir"
	"legacycore/pkg/domain"
)

// SetupEscrow splits the owner master key into n shares with reconstruction
// threshold k and records one escrow share per holder contact. The plaintext
// shares are returned exactly once and never persisted; only their
// fingerprints are kept for deposit verification.
func (s *Service) SetupEscrow(ctx context.Context, ownerID string, secret []byte, threshold int, holderIDs []string) (KeyEscrow, []shamir.Share, Result, error) {
	now := s.now()
	shares, err := shamir.Split(secret, len(holderIDs), threshold)
	if err != nil {
		return KeyEscrow{}, nil, Result{}, err
	}
	escrow := KeyEscrow{
		OwnerID:        ownerID,
		Threshold:      threshold,
		TotalShares:    len(holderIDs),
		KeyFingerprint: crypto.Fingerprint(secret),
	}
	for i, share := range shares {
		escrow.Shares = append(escrow.Shares, EscrowShare{
			Index:       share.Index,
			ContactID:   holderIDs[i],
			Fingerprint: share.Fingerprint(),
			Status:      domain.ShareIssued,
			IssuedAt:    now,
		})
	}
	var created KeyEscrow
	res, err := s.run(ctx, "setup_escrow", func(tx Transaction) error {
		if _, ok := tx.FindOwner(ownerID); !ok {
			return ErrNotFound{Entity: domain.EntityOwner, ID: ownerID}
		}
		var err error
		if created, err = tx.CreateEscrow(escrow); err != nil {
			return err
		}
		return audit(tx, ownerID, "", "setup_escrow", domain.EntityEscrow, created.ID, map[string]any{
			"threshold": threshold,
			"shares":    len(holderIDs),
		})
	})
	if err != nil {
		return KeyEscrow{}, nil, res, err
	}
	return created, shares, res, nil
}

// OpenRecovery starts a share-collection ceremony against an escrow. It
// requires an activation request that is currently active for the same owner.
func (s *Service) OpenRecovery(ctx context.Context, escrowID, activationID string) (RecoveryCeremony, Result, error) {
	var created RecoveryCeremony
	res, err := s.run(ctx, "open_recovery", func(tx Transaction) error {
		escrow, ok := tx.FindEscrow(escrowID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityEscrow, ID: escrowID}
		}
		act, ok := tx.FindActivation(activationID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityActivation, ID: activationID}
		}
		if act.OwnerID != escrow.OwnerID {
			return fmt.Errorf("activation %s does not belong to the escrow owner", activationID)
		}
		if act.Status != domain.ActivationActive {
			return fmt.Errorf("activation %s is %s; recovery requires an active grant", activationID, act.Status)
		}
		var err error
		created, err = tx.CreateCeremony(RecoveryCeremony{
			OwnerID:      escrow.OwnerID,
			EscrowID:     escrowID,
			ActivationID: activationID,
			Status:       domain.CeremonyOpen,
		})
		if err != nil {
			return err
		}
		return audit(tx, escrow.OwnerID, act.ContactID, "open_recovery", domain.EntityCeremony, created.ID, map[string]any{"escrow_id": escrowID})
	})
	return created, res, err
}

// DepositShare collects one holder's share into an open ceremony after
// checking it against the fingerprint recorded at split time.
func (s *Service) DepositShare(ctx context.Context, ceremonyID, contactID string, share shamir.Share) (RecoveryCeremony, Result, error) {
	now := s.now()
	var updated RecoveryCeremony
	res, err := s.run(ctx, "deposit_share", func(tx Transaction) error {
		ceremony, ok := tx.Snapshot().FindCeremony(ceremonyID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityCeremony, ID: ceremonyID}
		}
		if ceremony.Status != domain.CeremonyOpen {
			return fmt.Errorf("ceremony %s is %s and no longer accepts shares", ceremonyID, ceremony.Status)
		}
		if err := requireLiveGrant(tx, ceremony, now); err != nil {
			return err
		}
		escrow, ok := tx.FindEscrow(ceremony.EscrowID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityEscrow, ID: ceremony.EscrowID}
		}
		issued, ok := findEscrowShare(escrow, share.Index)
		if !ok {
			return fmt.Errorf("escrow %s never issued share index %d", escrow.ID, share.Index)
		}
		if issued.Status == domain.ShareRevoked {
			return fmt.Errorf("share %d was revoked", share.Index)
		}
		if issued.ContactID != contactID {
			return fmt.Errorf("share %d is not held by contact %s", share.Index, contactID)
		}
		if issued.Fingerprint != share.Fingerprint() {
			return fmt.Errorf("share %d fingerprint mismatch", share.Index)
		}
		if ceremony.HasDeposit(share.Index) {
			return fmt.Errorf("share %d already deposited", share.Index)
		}

		var err error
		updated, err = tx.UpdateCeremony(ceremonyID, func(c *RecoveryCeremony) error {
			c.Deposited = append(c.Deposited, DepositedShare{
				Index:       share.Index,
				ContactID:   contactID,
				Hex:         hex.EncodeToString(share.Bytes),
				DepositedAt: now,
			})
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := tx.UpdateEscrow(escrow.ID, func(e *KeyEscrow) error {
			for i := range e.Shares {
				if e.Shares[i].Index == share.Index {
					e.Shares[i].Status = domain.ShareDeposited
				}
			}
			return nil
		}); err != nil {
			return err
		}
		return audit(tx, updated.OwnerID, contactID, "deposit_share", domain.EntityCeremony, ceremonyID, map[string]any{"index": share.Index})
	})
	return updated, res, err
}

// CompleteRecovery combines the deposited shares, verifies the recovered key
// against the escrow fingerprint, and clears the collected material.
func (s *Service) CompleteRecovery(ctx context.Context, ceremonyID string) ([]byte, RecoveryCeremony, Result, error) {
	now := s.now()
	var secret []byte
	var updated RecoveryCeremony
	res, err := s.run(ctx, "complete_recovery", func(tx Transaction) error {
		ceremony, ok := tx.Snapshot().FindCeremony(ceremonyID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityCeremony, ID: ceremonyID}
		}
		if ceremony.Status != domain.CeremonyOpen {
			return fmt.Errorf("ceremony %s is %s", ceremonyID, ceremony.Status)
		}
		if err := requireLiveGrant(tx, ceremony, now); err != nil {
			return err
		}
		escrow, ok := tx.FindEscrow(ceremony.EscrowID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityEscrow, ID: ceremony.EscrowID}
		}
		if len(ceremony.Deposited) < escrow.Threshold {
			return fmt.Errorf("ceremony %s holds %d of %d required shares", ceremonyID, len(ceremony.Deposited), escrow.Threshold)
		}
		shares := make([]shamir.Share, 0, len(ceremony.Deposited))
		for _, dep := range ceremony.Deposited {
			raw, err := hex.DecodeString(dep.Hex)
			if err != nil {
				return fmt.Errorf("decode deposited share %d: %w", dep.Index, err)
			}
			shares = append(shares, shamir.Share{Index: dep.Index, Bytes: raw})
		}
		recovered, err := shamir.Combine(shares)
		if err != nil {
			return err
		}
		if crypto.Fingerprint(recovered) != escrow.KeyFingerprint {
			crypto.Zero(recovered)
			return fmt.Errorf("recovered key does not match escrow fingerprint")
		}
		secret = recovered

		updated, err = tx.UpdateCeremony(ceremonyID, func(c *RecoveryCeremony) error {
			c.Status = domain.CeremonyCompleted
			c.CompletedAt = &now
			for i := range c.Deposited {
				c.Deposited[i].Hex = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, updated.OwnerID, "", "complete_recovery", domain.EntityCeremony, ceremonyID, map[string]any{"shares": len(shares)})
	})
	if err != nil {
		return nil, RecoveryCeremony{}, res, err
	}
	return secret, updated, res, nil
}

// AbortRecovery closes an open ceremony and discards any collected material.
func (s *Service) AbortRecovery(ctx context.Context, ceremonyID, reason string) (RecoveryCeremony, Result, error) {
	var updated RecoveryCeremony
	res, err := s.run(ctx, "abort_recovery", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateCeremony(ceremonyID, func(c *RecoveryCeremony) error {
			if c.Status != domain.CeremonyOpen {
				return fmt.Errorf("ceremony %s is %s", ceremonyID, c.Status)
			}
			c.Status = domain.CeremonyAborted
			for i := range c.Deposited {
				c.Deposited[i].Hex = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		return audit(tx, updated.OwnerID, "", "abort_recovery", domain.EntityCeremony, ceremonyID, map[string]any{"reason": reason})
	})
	return updated, res, err
}

// requireLiveGrant re-checks the activation a ceremony was opened under.
// Revoking or expiring the grant ends the ceremony's authority, so share
// deposits and key reconstruction refuse once it is no longer active.
func requireLiveGrant(tx Transaction, ceremony RecoveryCeremony, now time.Time) error {
	act, ok := tx.FindActivation(ceremony.ActivationID)
	if !ok {
		return ErrNotFound{Entity: domain.EntityActivation, ID: ceremony.ActivationID}
	}
	if act.Status != domain.ActivationActive {
		return fmt.Errorf("activation %s backing ceremony %s is %s", act.ID, ceremony.ID, act.Status)
	}
	if act.ExpiresAt != nil && now.After(*act.ExpiresAt) {
		return fmt.Errorf("activation %s backing ceremony %s expired at %s", act.ID, ceremony.ID, act.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func findEscrowShare(escrow KeyEscrow, index int) (EscrowShare, bool) {
	for _, s := range escrow.Shares {
		if s.Index == index {
			return s, true
		}
	}
	return EscrowShare{}, false
}
