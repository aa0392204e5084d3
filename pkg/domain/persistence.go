package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() RuleView
	CreateOwner(OwnerAccount) (OwnerAccount, error)
	UpdateOwner(id string, mutator func(*OwnerAccount) error) (OwnerAccount, error)
	DeleteOwner(id string) error
	CreateContact(Contact) (Contact, error)
	UpdateContact(id string, mutator func(*Contact) error) (Contact, error)
	DeleteContact(id string) error
	CreateVaultItem(VaultItem) (VaultItem, error)
	UpdateVaultItem(id string, mutator func(*VaultItem) error) (VaultItem, error)
	DeleteVaultItem(id string) error
	CreateTrigger(TriggerCondition) (TriggerCondition, error)
	UpdateTrigger(id string, mutator func(*TriggerCondition) error) (TriggerCondition, error)
	DeleteTrigger(id string) error
	CreateActivation(ActivationRequest) (ActivationRequest, error)
	UpdateActivation(id string, mutator func(*ActivationRequest) error) (ActivationRequest, error)
	CreatePetition(BeneficiaryPetition) (BeneficiaryPetition, error)
	UpdatePetition(id string, mutator func(*BeneficiaryPetition) error) (BeneficiaryPetition, error)
	CreateEscrow(KeyEscrow) (KeyEscrow, error)
	UpdateEscrow(id string, mutator func(*KeyEscrow) error) (KeyEscrow, error)
	DeleteEscrow(id string) error
	CreateCeremony(RecoveryCeremony) (RecoveryCeremony, error)
	UpdateCeremony(id string, mutator func(*RecoveryCeremony) error) (RecoveryCeremony, error)
	AppendAudit(AuditEvent) (AuditEvent, error)
	FindOwner(id string) (OwnerAccount, bool)
	FindContact(id string) (Contact, bool)
	FindActivation(id string) (ActivationRequest, bool)
	FindEscrow(id string) (KeyEscrow, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(RuleView) error) error
	GetOwner(id string) (OwnerAccount, bool)
	ListOwners() []OwnerAccount
	GetContact(id string) (Contact, bool)
	ListContacts(ownerID string) []Contact
	GetVaultItem(id string) (VaultItem, bool)
	ListVaultItems(ownerID string) []VaultItem
	GetTrigger(id string) (TriggerCondition, bool)
	ListTriggers(ownerID string) []TriggerCondition
	GetActivation(id string) (ActivationRequest, bool)
	ListActivations(ownerID string) []ActivationRequest
	GetPetition(id string) (BeneficiaryPetition, bool)
	ListPetitions(ownerID string) []BeneficiaryPetition
	GetEscrow(id string) (KeyEscrow, bool)
	ListEscrows(ownerID string) []KeyEscrow
	GetCeremony(id string) (RecoveryCeremony, bool)
	ListCeremonies(ownerID string) []RecoveryCeremony
	ListAudit(ownerID string) []AuditEvent
}
