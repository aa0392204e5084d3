package core

import (
	"context"
	"fmt"

	"legacycore/pkg/domain"
)

// GrantExclusivityRule blocks a second live activation request for the same
// owner and contact pair; closed requests do not count.
func GrantExclusivityRule() domain.Rule {
	return grantExclusivityRule{}
}

type grantExclusivityRule struct{}

func (grantExclusivityRule) Name() string { return "grant_exclusivity" }

func (grantExclusivityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, owner := range view.ListOwners() {
		live := make(map[string]int)
		for _, act := range view.ListActivations(owner.ID) {
			if act.Terminal() {
				continue
			}
			live[act.ContactID]++
		}
		for contactID, count := range live {
			if count > 1 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "grant_exclusivity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("contact %s has %d live activation requests for owner %s", contactID, count, owner.ID),
					Entity:   domain.EntityActivation,
					EntityID: contactID,
				})
			}
		}
	}
	return res, nil
}
