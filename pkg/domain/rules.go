package domain

import "context"

// RuleView provides read-only access to domain entities for rule evaluation.
type RuleView interface {
	ListOwners() []OwnerAccount
	ListContacts(ownerID string) []Contact
	ListVaultItems(ownerID string) []VaultItem
	ListTriggers(ownerID string) []TriggerCondition
	ListActivations(ownerID string) []ActivationRequest
	ListPetitions(ownerID string) []BeneficiaryPetition
	ListEscrows(ownerID string) []KeyEscrow
	ListCeremonies(ownerID string) []RecoveryCeremony
	FindOwner(id string) (OwnerAccount, bool)
	FindContact(id string) (Contact, bool)
	FindVaultItem(id string) (VaultItem, bool)
	FindTrigger(id string) (TriggerCondition, bool)
	FindActivation(id string) (ActivationRequest, bool)
	FindPetition(id string) (BeneficiaryPetition, bool)
	FindEscrow(id string) (KeyEscrow, bool)
	FindCeremony(id string) (RecoveryCeremony, bool)
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule set in registration order.
func (e *RulesEngine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
