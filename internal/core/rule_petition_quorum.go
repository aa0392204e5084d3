package core

import (
	"context"
	"fmt"

	"legacycore/pkg/domain"
)

// PetitionQuorumRule enforces voting integrity on beneficiary petitions: a
// reachable quorum, beneficiary-role petitioners, trustee-only voters with
// one vote each, and approvals backed by enough affirmative votes.
func PetitionQuorumRule() domain.Rule {
	return petitionQuorumRule{}
}

type petitionQuorumRule struct{}

func (petitionQuorumRule) Name() string { return "petition_quorum" }

func (petitionQuorumRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "petition_quorum",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityPetition,
			EntityID: id,
		})
	}

	for _, owner := range view.ListOwners() {
		trustees := 0
		for _, c := range view.ListContacts(owner.ID) {
			if c.HasRole(domain.RoleTrustee) {
				trustees++
			}
		}
		for _, pet := range view.ListPetitions(owner.ID) {
			if pet.Status == domain.PetitionOpen {
				if pet.Quorum < 1 {
					block(pet.ID, fmt.Sprintf("petition %s quorum must be at least 1", pet.ID))
				} else if pet.Quorum > trustees {
					block(pet.ID, fmt.Sprintf("petition %s quorum %d exceeds the %d available trustees", pet.ID, pet.Quorum, trustees))
				}
			}

			petitioner, ok := view.FindContact(pet.PetitionerID)
			if !ok || petitioner.OwnerID != owner.ID {
				block(pet.ID, fmt.Sprintf("petition %s petitioner %s is not a contact of the owner", pet.ID, pet.PetitionerID))
			} else if !petitioner.HasRole(domain.RoleBeneficiary) {
				block(pet.ID, fmt.Sprintf("petition %s petitioner %s lacks the beneficiary role", pet.ID, pet.PetitionerID))
			}

			seen := make(map[string]struct{}, len(pet.Votes))
			for _, vote := range pet.Votes {
				if vote.ContactID == pet.PetitionerID {
					block(pet.ID, fmt.Sprintf("petition %s petitioner voted on their own petition", pet.ID))
					continue
				}
				if _, dup := seen[vote.ContactID]; dup {
					block(pet.ID, fmt.Sprintf("petition %s records multiple votes from contact %s", pet.ID, vote.ContactID))
				}
				seen[vote.ContactID] = struct{}{}
				voter, ok := view.FindContact(vote.ContactID)
				if !ok || voter.OwnerID != owner.ID || !voter.HasRole(domain.RoleTrustee) {
					block(pet.ID, fmt.Sprintf("petition %s vote from %s who is not an owner trustee", pet.ID, vote.ContactID))
				}
			}

			if pet.Status == domain.PetitionApproved && pet.Approvals() < pet.Quorum {
				block(pet.ID, fmt.Sprintf("petition %s approved with %d of %d required approvals", pet.ID, pet.Approvals(), pet.Quorum))
			}
		}
	}
	return res, nil
}
