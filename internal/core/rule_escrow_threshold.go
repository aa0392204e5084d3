package core

import (
	"context"
	"fmt"

	"legacycore/internal/shamir"
	"legacycore/pkg/domain"
)

// EscrowThresholdRule enforces Shamir policy shape on every escrow: a sane
// threshold, one share record per issued share with unique in-range indexes,
// and trustee contacts as holders.
func EscrowThresholdRule() domain.Rule {
	return escrowThresholdRule{}
}

type escrowThresholdRule struct{}

func (escrowThresholdRule) Name() string { return "escrow_threshold" }

func (escrowThresholdRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "escrow_threshold",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityEscrow,
			EntityID: id,
		})
	}

	for _, owner := range view.ListOwners() {
		for _, escrow := range view.ListEscrows(owner.ID) {
			k, n := escrow.Threshold, escrow.TotalShares
			if k < shamir.MinThreshold || k > n || n > shamir.MaxShares {
				block(escrow.ID, fmt.Sprintf("escrow %s has invalid threshold %d of %d shares", escrow.ID, k, n))
				continue
			}
			if len(escrow.Shares) != n {
				block(escrow.ID, fmt.Sprintf("escrow %s records %d shares, expected %d", escrow.ID, len(escrow.Shares), n))
				continue
			}
			seen := make(map[int]struct{}, n)
			for _, share := range escrow.Shares {
				if share.Index < 1 || share.Index > n {
					block(escrow.ID, fmt.Sprintf("escrow %s share index %d out of range 1..%d", escrow.ID, share.Index, n))
				}
				if _, dup := seen[share.Index]; dup {
					block(escrow.ID, fmt.Sprintf("escrow %s share index %d issued twice", escrow.ID, share.Index))
				}
				seen[share.Index] = struct{}{}

				holder, ok := view.FindContact(share.ContactID)
				if !ok || holder.OwnerID != escrow.OwnerID {
					block(escrow.ID, fmt.Sprintf("escrow %s share %d holder %s is not a contact of the owner", escrow.ID, share.Index, share.ContactID))
					continue
				}
				if !holder.HasRole(domain.RoleTrustee) {
					block(escrow.ID, fmt.Sprintf("escrow %s share %d holder %s lacks the trustee role", escrow.ID, share.Index, share.ContactID))
				}
			}
		}
	}
	return res, nil
}
