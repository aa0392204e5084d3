package core

import (
	"context"
	"fmt"
	"time"

	"legacycore/pkg/domain"
)

// PetitionTTL is how long an open petition collects votes before expiring.
const PetitionTTL = 14 * 24 * time.Hour

// SubmitPetition opens a beneficiary petition. A zero quorum defaults to a
// majority of the owner's trustees.
func (s *Service) SubmitPetition(ctx context.Context, petition BeneficiaryPetition) (BeneficiaryPetition, Result, error) {
	now := s.now()
	var created BeneficiaryPetition
	res, err := s.run(ctx, "submit_petition", func(tx Transaction) error {
		if _, ok := tx.FindOwner(petition.OwnerID); !ok {
			return ErrNotFound{Entity: domain.EntityOwner, ID: petition.OwnerID}
		}
		if _, ok := tx.FindContact(petition.PetitionerID); !ok {
			return ErrNotFound{Entity: domain.EntityContact, ID: petition.PetitionerID}
		}
		petition.Status = domain.PetitionOpen
		if petition.Quorum == 0 {
			petition.Quorum = countTrustees(tx.Snapshot(), petition.OwnerID)/2 + 1
		}
		if petition.ExpiresAt == nil {
			expires := now.Add(PetitionTTL)
			petition.ExpiresAt = &expires
		}
		var err error
		if created, err = tx.CreatePetition(petition); err != nil {
			return err
		}
		return audit(tx, created.OwnerID, created.PetitionerID, "submit_petition", domain.EntityPetition, created.ID, map[string]any{"quorum": created.Quorum})
	})
	return created, res, err
}

// CastPetitionVote records one trustee vote. Reaching the quorum approves
// the petition and opens a petition-source activation for the petitioner;
// a quorum made unreachable by rejections denies it.
func (s *Service) CastPetitionVote(ctx context.Context, petitionID, contactID string, approve bool) (BeneficiaryPetition, Result, error) {
	now := s.now()
	var updated BeneficiaryPetition
	res, err := s.run(ctx, "cast_petition_vote", func(tx Transaction) error {
		petition, ok := tx.Snapshot().FindPetition(petitionID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityPetition, ID: petitionID}
		}
		if petition.Status != domain.PetitionOpen {
			return fmt.Errorf("petition %s is %s and no longer accepts votes", petitionID, petition.Status)
		}
		if petition.ExpiresAt != nil && now.After(*petition.ExpiresAt) {
			return fmt.Errorf("petition %s voting window has closed", petitionID)
		}
		voter, ok := tx.FindContact(contactID)
		if !ok {
			return ErrNotFound{Entity: domain.EntityContact, ID: contactID}
		}
		if voter.OwnerID != petition.OwnerID || !voter.HasRole(domain.RoleTrustee) {
			return fmt.Errorf("contact %s is not a trustee for owner %s", contactID, petition.OwnerID)
		}
		if contactID == petition.PetitionerID {
			return fmt.Errorf("petitioner %s cannot vote on their own petition", contactID)
		}
		for _, v := range petition.Votes {
			if v.ContactID == contactID {
				return fmt.Errorf("contact %s already voted on petition %s", contactID, petitionID)
			}
		}

		var err error
		updated, err = tx.UpdatePetition(petitionID, func(p *BeneficiaryPetition) error {
			p.Votes = append(p.Votes, PetitionVote{ContactID: contactID, Approve: approve, CastAt: now})
			return nil
		})
		if err != nil {
			return err
		}
		if err := audit(tx, updated.OwnerID, contactID, "cast_petition_vote", domain.EntityPetition, petitionID, map[string]any{"approve": approve}); err != nil {
			return err
		}

		trustees := countTrustees(tx.Snapshot(), updated.OwnerID)
		approvals := updated.Approvals()
		rejections := len(updated.Votes) - approvals
		switch {
		case approvals >= updated.Quorum:
			act, err := s.openActivation(tx, ActivationRequest{
				OwnerID:    updated.OwnerID,
				ContactID:  updated.PetitionerID,
				Source:     domain.SourcePetition,
				Reason:     updated.Reason,
				PetitionID: updated.ID,
			}, now, domain.ActivationWaiting, 0)
			if err != nil {
				return err
			}
			updated, err = tx.UpdatePetition(petitionID, func(p *BeneficiaryPetition) error {
				p.Status = domain.PetitionApproved
				p.ActivationID = act.ID
				return nil
			})
			if err != nil {
				return err
			}
			return audit(tx, updated.OwnerID, "", "approve_petition", domain.EntityPetition, petitionID, map[string]any{"activation_id": act.ID})
		case trustees-rejections < updated.Quorum:
			updated, err = tx.UpdatePetition(petitionID, func(p *BeneficiaryPetition) error {
				p.Status = domain.PetitionDenied
				return nil
			})
			if err != nil {
				return err
			}
			return audit(tx, updated.OwnerID, "", "deny_petition", domain.EntityPetition, petitionID, nil)
		}
		return nil
	})
	return updated, res, err
}

// ExpirePetitions closes every open petition past its voting window and
// returns the expired records.
func (s *Service) ExpirePetitions(ctx context.Context, now time.Time) ([]BeneficiaryPetition, Result, error) {
	var expired []BeneficiaryPetition
	res, err := s.run(ctx, "expire_petitions", func(tx Transaction) error {
		expired = nil
		for _, owner := range tx.Snapshot().ListOwners() {
			for _, pet := range tx.Snapshot().ListPetitions(owner.ID) {
				if pet.Status != domain.PetitionOpen || pet.ExpiresAt == nil || now.Before(*pet.ExpiresAt) {
					continue
				}
				updated, err := tx.UpdatePetition(pet.ID, func(p *BeneficiaryPetition) error {
					p.Status = domain.PetitionExpired
					return nil
				})
				if err != nil {
					return err
				}
				if err := audit(tx, updated.OwnerID, "", "expire_petition", domain.EntityPetition, updated.ID, nil); err != nil {
					return err
				}
				expired = append(expired, updated)
			}
		}
		return nil
	})
	return expired, res, err
}

func countTrustees(view RuleView, ownerID string) int {
	n := 0
	for _, c := range view.ListContacts(ownerID) {
		if c.HasRole(domain.RoleTrustee) {
			n++
		}
	}
	return n
}
