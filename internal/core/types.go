package core

import "legacycore/pkg/domain"

// Aliases keep service call sites terse while the canonical definitions live
// in pkg/domain.
type (
	OwnerAccount        = domain.OwnerAccount
	Contact             = domain.Contact
	VaultItem           = domain.VaultItem
	TriggerCondition    = domain.TriggerCondition
	ActivationRequest   = domain.ActivationRequest
	BeneficiaryPetition = domain.BeneficiaryPetition
	PetitionVote        = domain.PetitionVote
	KeyEscrow           = domain.KeyEscrow
	EscrowShare         = domain.EscrowShare
	RecoveryCeremony    = domain.RecoveryCeremony
	DepositedShare      = domain.DepositedShare
	AuditEvent          = domain.AuditEvent
	SealedEnvelope      = domain.SealedEnvelope
	EscalationStep      = domain.EscalationStep

	EntityType  = domain.EntityType
	Change      = domain.Change
	Violation   = domain.Violation
	Result      = domain.Result
	Rule        = domain.Rule
	RuleView    = domain.RuleView
	RulesEngine = domain.RulesEngine

	Transaction     = domain.Transaction
	PersistentStore = domain.PersistentStore
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
