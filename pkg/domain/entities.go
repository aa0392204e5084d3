// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by legacycore.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityOwner identifies a vault owner account record.
	EntityOwner EntityType = "owner"
	// EntityContact identifies a trusted contact record.
	EntityContact EntityType = "contact"
	// EntityVaultItem identifies an encrypted vault item record.
	EntityVaultItem EntityType = "vault_item"
	// EntityTrigger identifies an emergency trigger condition record.
	EntityTrigger EntityType = "trigger"
	// EntityActivation identifies an emergency-access activation request.
	EntityActivation EntityType = "activation"
	// EntityPetition identifies a beneficiary petition record.
	EntityPetition EntityType = "petition"
	// EntityEscrow identifies a key escrow policy record.
	EntityEscrow EntityType = "escrow"
	// EntityCeremony identifies a key recovery ceremony record.
	EntityCeremony EntityType = "ceremony"
	// EntityAudit identifies an append-only audit event record.
	EntityAudit EntityType = "audit"
)

// OwnerStatus enumerates vault owner account states.
type OwnerStatus string

// Canonical owner statuses. Memorialized accounts accept no further check-ins.
const (
	OwnerActive       OwnerStatus = "active"
	OwnerSuspended    OwnerStatus = "suspended"
	OwnerMemorialized OwnerStatus = "memorialized"
)

// ContactRole describes what a trusted contact is allowed to do.
type ContactRole string

// Contact roles. A contact may hold several.
const (
	// RoleTrustee may hold escrow shares and vote on petitions.
	RoleTrustee ContactRole = "trustee"
	// RoleBeneficiary may petition for emergency access.
	RoleBeneficiary ContactRole = "beneficiary"
	// RoleProfessional is a legal or fiduciary contact (attorney, executor).
	RoleProfessional ContactRole = "professional"
)

// VaultItemKind distinguishes stored secret types.
type VaultItemKind string

// Vault item kinds.
const (
	ItemNote     VaultItemKind = "note"
	ItemPassword VaultItemKind = "password"
	ItemDocument VaultItemKind = "document"
)

// ReleasePolicy controls whether an item is released on emergency activation.
type ReleasePolicy string

// Release policies.
const (
	// ReleaseOnActivation releases the item to the grantee of an active grant.
	ReleaseOnActivation ReleasePolicy = "on_activation"
	// ReleaseNever keeps the item private even during emergency access.
	ReleaseNever ReleasePolicy = "never"
)

// TriggerKind enumerates emergency trigger mechanisms.
type TriggerKind string

// Trigger kinds.
const (
	// TriggerInactivity is the dead man's switch: missed check-ins trip it.
	TriggerInactivity TriggerKind = "inactivity"
	// TriggerScheduled trips at a fixed future instant.
	TriggerScheduled TriggerKind = "scheduled"
	// TriggerPanic is tripped explicitly by the owner.
	TriggerPanic TriggerKind = "panic"
	// TriggerThirdParty trips on an authenticated external signal.
	TriggerThirdParty TriggerKind = "third_party"
)

// TriggerState enumerates trigger lifecycle states.
type TriggerState string

// Canonical trigger states used by the scheduler and transition rule.
const (
	TriggerArmed   TriggerState = "armed"
	TriggerPaused  TriggerState = "paused"
	TriggerTripped TriggerState = "tripped"
)

// ActivationSource identifies which path produced an activation request.
type ActivationSource string

// Activation sources.
const (
	SourceManual       ActivationSource = "manual"
	SourceInactivity   ActivationSource = "inactivity"
	SourcePetition     ActivationSource = "petition"
	SourceProfessional ActivationSource = "professional"
	SourceThirdParty   ActivationSource = "third_party"
)

// ActivationStatus enumerates the emergency-access grant state machine.
type ActivationStatus string

// Canonical activation statuses. Denied, revoked and expired are terminal.
const (
	// ActivationPending is the initial state of a new request.
	ActivationPending ActivationStatus = "pending"
	// ActivationVerifying means identity verification is outstanding.
	ActivationVerifying ActivationStatus = "verifying"
	// ActivationWaiting means the cooling-off period is running.
	ActivationWaiting ActivationStatus = "waiting"
	// ActivationActive means access is granted until the window expires.
	ActivationActive  ActivationStatus = "active"
	ActivationDenied  ActivationStatus = "denied"
	ActivationRevoked ActivationStatus = "revoked"
	ActivationExpired ActivationStatus = "expired"
)

// RiskLevel buckets an activation risk score.
type RiskLevel string

// Risk levels determine the cooling-off period applied to a request.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// PetitionStatus enumerates beneficiary petition states.
type PetitionStatus string

// Canonical petition statuses. Approved, denied and expired are terminal.
const (
	PetitionOpen     PetitionStatus = "open"
	PetitionApproved PetitionStatus = "approved"
	PetitionDenied   PetitionStatus = "denied"
	PetitionExpired  PetitionStatus = "expired"
)

// ShareStatus enumerates escrow share custody states.
type ShareStatus string

// Canonical share statuses.
const (
	ShareIssued    ShareStatus = "issued"
	ShareDeposited ShareStatus = "deposited"
	ShareRevoked   ShareStatus = "revoked"
)

// CeremonyStatus enumerates key recovery ceremony states.
type CeremonyStatus string

// Canonical ceremony statuses. Completed and aborted are terminal.
const (
	CeremonyOpen      CeremonyStatus = "open"
	CeremonyCompleted CeremonyStatus = "completed"
	CeremonyAborted   CeremonyStatus = "aborted"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnerAccount represents a vault owner.
type OwnerAccount struct {
	Base
	Email           string      `json:"email"`
	DisplayName     string      `json:"display_name"`
	Status          OwnerStatus `json:"status"`
	CheckInDays     int         `json:"check_in_days"`
	GraceDays       int         `json:"grace_days"`
	LastCheckInAt   *time.Time  `json:"last_check_in_at,omitempty"`
	KeySalt         []byte      `json:"key_salt,omitempty"`
	KeyFingerprint  string      `json:"key_fingerprint,omitempty"`
	SignalSources   []string    `json:"signal_sources,omitempty"`
	SignalTokenHash string      `json:"signal_token_hash,omitempty"`
}

// Contact represents a trusted party designated by an owner.
type Contact struct {
	Base
	OwnerID  string        `json:"owner_id"`
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	Roles    []ContactRole `json:"roles"`
	Verified bool          `json:"verified"`
}

// HasRole reports whether the contact carries the given role.
func (c Contact) HasRole(role ContactRole) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SealedEnvelope carries an encrypted payload alongside its KDF parameters.
// The plaintext is recoverable only with the owner passphrase.
type SealedEnvelope struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Cipher  []byte `json:"cipher"`
}

// Empty reports whether the envelope holds no ciphertext.
func (e SealedEnvelope) Empty() bool { return len(e.Cipher) == 0 }

// VaultItem represents an encrypted note, password, or document.
// Document ciphertext lives in the blob store under BlobKey; notes and
// passwords keep the sealed envelope inline.
type VaultItem struct {
	Base
	OwnerID  string         `json:"owner_id"`
	Kind     VaultItemKind  `json:"kind"`
	Title    string         `json:"title"`
	Tags     []string       `json:"tags,omitempty"`
	Release  ReleasePolicy  `json:"release"`
	Envelope SealedEnvelope `json:"envelope,omitempty"`
	BlobKey  string         `json:"blob_key,omitempty"`
	Size     int64          `json:"size,omitempty"`
}

// EscalationStep schedules a reminder a number of days before the trigger
// deadline. Offsets must decrease strictly toward zero.
type EscalationStep struct {
	DaysBefore int    `json:"days_before"`
	Channel    string `json:"channel"`
}

// TriggerCondition represents a configured emergency trigger.
type TriggerCondition struct {
	Base
	OwnerID     string           `json:"owner_id"`
	Kind        TriggerKind      `json:"kind"`
	State       TriggerState     `json:"state"`
	Label       string           `json:"label"`
	InactivityD int              `json:"inactivity_days,omitempty"`
	GraceDays   int              `json:"grace_days,omitempty"`
	Escalation  []EscalationStep `json:"escalation,omitempty"`
	ScheduledAt *time.Time       `json:"scheduled_at,omitempty"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	LastFiredAt *time.Time       `json:"last_fired_at,omitempty"`
	TrippedAt   *time.Time       `json:"tripped_at,omitempty"`
	Source      string           `json:"source,omitempty"`
}

// ActivationRequest represents one emergency-access grant request.
type ActivationRequest struct {
	Base
	OwnerID      string           `json:"owner_id"`
	ContactID    string           `json:"contact_id"`
	Source       ActivationSource `json:"source"`
	Status       ActivationStatus `json:"status"`
	Reason       string           `json:"reason,omitempty"`
	TriggerID    string           `json:"trigger_id,omitempty"`
	PetitionID   string           `json:"petition_id,omitempty"`
	RiskScore    int              `json:"risk_score"`
	Risk         RiskLevel        `json:"risk"`
	WaitingUntil *time.Time       `json:"waiting_until,omitempty"`
	VerifiedAt   *time.Time       `json:"verified_at,omitempty"`
	GrantedAt    *time.Time       `json:"granted_at,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	CloseReason  string           `json:"close_reason,omitempty"`
}

// Terminal reports whether the request can no longer change state.
func (a ActivationRequest) Terminal() bool {
	switch a.Status {
	case ActivationDenied, ActivationRevoked, ActivationExpired:
		return true
	}
	return false
}

// PetitionVote records one trustee's decision on a petition.
type PetitionVote struct {
	ContactID string    `json:"contact_id"`
	Approve   bool      `json:"approve"`
	CastAt    time.Time `json:"cast_at"`
}

// BeneficiaryPetition represents a beneficiary request that trustees vote on.
type BeneficiaryPetition struct {
	Base
	OwnerID      string         `json:"owner_id"`
	PetitionerID string         `json:"petitioner_id"`
	Reason       string         `json:"reason"`
	Status       PetitionStatus `json:"status"`
	Quorum       int            `json:"quorum"`
	Votes        []PetitionVote `json:"votes,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	ActivationID string         `json:"activation_id,omitempty"`
}

// Approvals counts affirmative votes.
func (p BeneficiaryPetition) Approvals() int {
	n := 0
	for _, v := range p.Votes {
		if v.Approve {
			n++
		}
	}
	return n
}

// EscrowShare records metadata for one issued Shamir share. The share bytes
// themselves are never persisted; only the fingerprint is kept for later
// deposit verification.
type EscrowShare struct {
	Index       int         `json:"index"`
	ContactID   string      `json:"contact_id"`
	Fingerprint string      `json:"fingerprint"`
	Status      ShareStatus `json:"status"`
	IssuedAt    time.Time   `json:"issued_at"`
}

// KeyEscrow represents an owner's Shamir split policy for the master key.
type KeyEscrow struct {
	Base
	OwnerID        string        `json:"owner_id"`
	Threshold      int           `json:"threshold"`
	TotalShares    int           `json:"total_shares"`
	KeyFingerprint string        `json:"key_fingerprint"`
	Shares         []EscrowShare `json:"shares"`
}

// DepositedShare holds share material collected during a recovery ceremony.
// Bytes are hex-encoded and cleared when the ceremony closes.
type DepositedShare struct {
	Index       int       `json:"index"`
	ContactID   string    `json:"contact_id"`
	Hex         string    `json:"hex,omitempty"`
	DepositedAt time.Time `json:"deposited_at"`
}

// RecoveryCeremony represents one share-collection session against an escrow.
type RecoveryCeremony struct {
	Base
	OwnerID      string           `json:"owner_id"`
	EscrowID     string           `json:"escrow_id"`
	ActivationID string           `json:"activation_id"`
	Status       CeremonyStatus   `json:"status"`
	Deposited    []DepositedShare `json:"deposited,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// HasDeposit reports whether a share with the given index was deposited.
func (c RecoveryCeremony) HasDeposit(index int) bool {
	for _, d := range c.Deposited {
		if d.Index == index {
			return true
		}
	}
	return false
}

// AuditEvent is an append-only record of a mutation or security-relevant act.
type AuditEvent struct {
	Base
	OwnerID  string         `json:"owner_id"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   EntityType     `json:"entity"`
	EntityID string         `json:"entity_id"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// NotFoundError reports a reference to a missing entity. Stores return it
// from lookups and mutations so callers can distinguish absent records from
// other failures.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
