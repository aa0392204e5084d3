// Package memory provides the in-memory implementation of the core
// persistence store used for tests, ephemeral environments, and as the
// transactional engine behind the durable backends.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"legacycore/pkg/domain"
)

// Compile-time contract assertion for the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// OwnerAccount aliases domain.OwnerAccount for persistence operations.
	OwnerAccount = domain.OwnerAccount
	// Contact aliases domain.Contact.
	Contact = domain.Contact
	// VaultItem aliases domain.VaultItem.
	VaultItem = domain.VaultItem
	// TriggerCondition aliases domain.TriggerCondition.
	TriggerCondition = domain.TriggerCondition
	// ActivationRequest aliases domain.ActivationRequest.
	ActivationRequest = domain.ActivationRequest
	// BeneficiaryPetition aliases domain.BeneficiaryPetition.
	BeneficiaryPetition = domain.BeneficiaryPetition
	// KeyEscrow aliases domain.KeyEscrow.
	KeyEscrow = domain.KeyEscrow
	// RecoveryCeremony aliases domain.RecoveryCeremony.
	RecoveryCeremony = domain.RecoveryCeremony
	// AuditEvent aliases domain.AuditEvent.
	AuditEvent = domain.AuditEvent
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a unit of work.
	Transaction = domain.Transaction
	// RuleView aliases the read-only snapshot interface.
	RuleView = domain.RuleView
)

type memoryState struct {
	owners      map[string]OwnerAccount
	contacts    map[string]Contact
	items       map[string]VaultItem
	triggers    map[string]TriggerCondition
	activations map[string]ActivationRequest
	petitions   map[string]BeneficiaryPetition
	escrows     map[string]KeyEscrow
	ceremonies  map[string]RecoveryCeremony
	audit       map[string]AuditEvent
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Owners      map[string]OwnerAccount        `json:"owners"`
	Contacts    map[string]Contact             `json:"contacts"`
	Items       map[string]VaultItem           `json:"vault_items"`
	Triggers    map[string]TriggerCondition    `json:"triggers"`
	Activations map[string]ActivationRequest   `json:"activations"`
	Petitions   map[string]BeneficiaryPetition `json:"petitions"`
	Escrows     map[string]KeyEscrow           `json:"escrows"`
	Ceremonies  map[string]RecoveryCeremony    `json:"ceremonies"`
	Audit       map[string]AuditEvent          `json:"audit"`
}

func newMemoryState() memoryState {
	return memoryState{
		owners:      make(map[string]OwnerAccount),
		contacts:    make(map[string]Contact),
		items:       make(map[string]VaultItem),
		triggers:    make(map[string]TriggerCondition),
		activations: make(map[string]ActivationRequest),
		petitions:   make(map[string]BeneficiaryPetition),
		escrows:     make(map[string]KeyEscrow),
		ceremonies:  make(map[string]RecoveryCeremony),
		audit:       make(map[string]AuditEvent),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.owners {
		cloned.owners[k] = cloneOwner(v)
	}
	for k, v := range s.contacts {
		cloned.contacts[k] = cloneContact(v)
	}
	for k, v := range s.items {
		cloned.items[k] = cloneItem(v)
	}
	for k, v := range s.triggers {
		cloned.triggers[k] = cloneTrigger(v)
	}
	for k, v := range s.activations {
		cloned.activations[k] = cloneActivation(v)
	}
	for k, v := range s.petitions {
		cloned.petitions[k] = clonePetition(v)
	}
	for k, v := range s.escrows {
		cloned.escrows[k] = cloneEscrow(v)
	}
	for k, v := range s.ceremonies {
		cloned.ceremonies[k] = cloneCeremony(v)
	}
	for k, v := range s.audit {
		cloned.audit[k] = cloneAudit(v)
	}
	return cloned
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneOwner(o OwnerAccount) OwnerAccount {
	cp := o
	cp.LastCheckInAt = cloneTime(o.LastCheckInAt)
	cp.KeySalt = cloneBytes(o.KeySalt)
	cp.SignalSources = append([]string(nil), o.SignalSources...)
	return cp
}

func cloneContact(c Contact) Contact {
	cp := c
	cp.Roles = append([]domain.ContactRole(nil), c.Roles...)
	return cp
}

func cloneItem(i VaultItem) VaultItem {
	cp := i
	cp.Tags = append([]string(nil), i.Tags...)
	cp.Envelope.Salt = cloneBytes(i.Envelope.Salt)
	cp.Envelope.Nonce = cloneBytes(i.Envelope.Nonce)
	cp.Envelope.Cipher = cloneBytes(i.Envelope.Cipher)
	return cp
}

func cloneTrigger(t TriggerCondition) TriggerCondition {
	cp := t
	cp.Escalation = append([]domain.EscalationStep(nil), t.Escalation...)
	cp.ScheduledAt = cloneTime(t.ScheduledAt)
	cp.Deadline = cloneTime(t.Deadline)
	cp.LastFiredAt = cloneTime(t.LastFiredAt)
	cp.TrippedAt = cloneTime(t.TrippedAt)
	return cp
}

func cloneActivation(a ActivationRequest) ActivationRequest {
	cp := a
	cp.WaitingUntil = cloneTime(a.WaitingUntil)
	cp.VerifiedAt = cloneTime(a.VerifiedAt)
	cp.GrantedAt = cloneTime(a.GrantedAt)
	cp.ExpiresAt = cloneTime(a.ExpiresAt)
	cp.ClosedAt = cloneTime(a.ClosedAt)
	return cp
}

func clonePetition(p BeneficiaryPetition) BeneficiaryPetition {
	cp := p
	cp.Votes = append([]domain.PetitionVote(nil), p.Votes...)
	cp.ExpiresAt = cloneTime(p.ExpiresAt)
	return cp
}

func cloneEscrow(e KeyEscrow) KeyEscrow {
	cp := e
	cp.Shares = append([]domain.EscrowShare(nil), e.Shares...)
	return cp
}

func cloneCeremony(c RecoveryCeremony) RecoveryCeremony {
	cp := c
	cp.Deposited = append([]domain.DepositedShare(nil), c.Deposited...)
	cp.CompletedAt = cloneTime(c.CompletedAt)
	return cp
}

func cloneAudit(a AuditEvent) AuditEvent {
	cp := a
	if a.Detail != nil {
		cp.Detail = make(map[string]any, len(a.Detail))
		for k, v := range a.Detail {
			cp.Detail[k] = v
		}
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the transaction clock; tests use it for determinism.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState returns a deep-cloned snapshot of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the current state with the supplied snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Owners {
		state.owners[k] = cloneOwner(v)
	}
	for k, v := range snapshot.Contacts {
		state.contacts[k] = cloneContact(v)
	}
	for k, v := range snapshot.Items {
		state.items[k] = cloneItem(v)
	}
	for k, v := range snapshot.Triggers {
		state.triggers[k] = cloneTrigger(v)
	}
	for k, v := range snapshot.Activations {
		state.activations[k] = cloneActivation(v)
	}
	for k, v := range snapshot.Petitions {
		state.petitions[k] = clonePetition(v)
	}
	for k, v := range snapshot.Escrows {
		state.escrows[k] = cloneEscrow(v)
	}
	for k, v := range snapshot.Ceremonies {
		state.ceremonies[k] = cloneCeremony(v)
	}
	for k, v := range snapshot.Audit {
		state.audit[k] = cloneAudit(v)
	}
	s.state = state
}

func snapshotFromState(state memoryState) Snapshot {
	snap := Snapshot{
		Owners:      make(map[string]OwnerAccount, len(state.owners)),
		Contacts:    make(map[string]Contact, len(state.contacts)),
		Items:       make(map[string]VaultItem, len(state.items)),
		Triggers:    make(map[string]TriggerCondition, len(state.triggers)),
		Activations: make(map[string]ActivationRequest, len(state.activations)),
		Petitions:   make(map[string]BeneficiaryPetition, len(state.petitions)),
		Escrows:     make(map[string]KeyEscrow, len(state.escrows)),
		Ceremonies:  make(map[string]RecoveryCeremony, len(state.ceremonies)),
		Audit:       make(map[string]AuditEvent, len(state.audit)),
	}
	for k, v := range state.owners {
		snap.Owners[k] = cloneOwner(v)
	}
	for k, v := range state.contacts {
		snap.Contacts[k] = cloneContact(v)
	}
	for k, v := range state.items {
		snap.Items[k] = cloneItem(v)
	}
	for k, v := range state.triggers {
		snap.Triggers[k] = cloneTrigger(v)
	}
	for k, v := range state.activations {
		snap.Activations[k] = cloneActivation(v)
	}
	for k, v := range state.petitions {
		snap.Petitions[k] = clonePetition(v)
	}
	for k, v := range state.escrows {
		snap.Escrows[k] = cloneEscrow(v)
	}
	for k, v := range state.ceremonies {
		snap.Ceremonies[k] = cloneCeremony(v)
	}
	for k, v := range state.audit {
		snap.Audit[k] = cloneAudit(v)
	}
	return snap
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Registered rules evaluate against the mutated snapshot; blocking violations
// abort the commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := stateView{state: &tx.state}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(RuleView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(stateView{state: &snapshot})
}

// GetOwner retrieves an owner account by ID.
func (s *Store) GetOwner(id string) (OwnerAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.owners[id]
	if !ok {
		return OwnerAccount{}, false
	}
	return cloneOwner(o), true
}

// ListOwners returns all owners sorted by creation time.
func (s *Store) ListOwners() []OwnerAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OwnerAccount, 0, len(s.state.owners))
	for _, o := range s.state.owners {
		out = append(out, cloneOwner(o))
	}
	sortByBase(out, func(o OwnerAccount) domain.Base { return o.Base })
	return out
}

// GetContact retrieves a contact by ID.
func (s *Store) GetContact(id string) (Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.contacts[id]
	if !ok {
		return Contact{}, false
	}
	return cloneContact(c), true
}

// ListContacts returns an owner's contacts; an empty ownerID returns all.
func (s *Store) ListContacts(ownerID string) []Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Contact, 0)
	for _, c := range s.state.contacts {
		if ownerID == "" || c.OwnerID == ownerID {
			out = append(out, cloneContact(c))
		}
	}
	sortByBase(out, func(c Contact) domain.Base { return c.Base })
	return out
}

// GetVaultItem retrieves a vault item by ID.
func (s *Store) GetVaultItem(id string) (VaultItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.state.items[id]
	if !ok {
		return VaultItem{}, false
	}
	return cloneItem(i), true
}

// ListVaultItems returns an owner's vault items; an empty ownerID returns all.
func (s *Store) ListVaultItems(ownerID string) []VaultItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VaultItem, 0)
	for _, i := range s.state.items {
		if ownerID == "" || i.OwnerID == ownerID {
			out = append(out, cloneItem(i))
		}
	}
	sortByBase(out, func(i VaultItem) domain.Base { return i.Base })
	return out
}

// GetTrigger retrieves a trigger by ID.
func (s *Store) GetTrigger(id string) (TriggerCondition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.triggers[id]
	if !ok {
		return TriggerCondition{}, false
	}
	return cloneTrigger(t), true
}

// ListTriggers returns an owner's triggers; an empty ownerID returns all.
func (s *Store) ListTriggers(ownerID string) []TriggerCondition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TriggerCondition, 0)
	for _, t := range s.state.triggers {
		if ownerID == "" || t.OwnerID == ownerID {
			out = append(out, cloneTrigger(t))
		}
	}
	sortByBase(out, func(t TriggerCondition) domain.Base { return t.Base })
	return out
}

// GetActivation retrieves an activation request by ID.
func (s *Store) GetActivation(id string) (ActivationRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.activations[id]
	if !ok {
		return ActivationRequest{}, false
	}
	return cloneActivation(a), true
}

// ListActivations returns an owner's activation requests; empty ownerID returns all.
func (s *Store) ListActivations(ownerID string) []ActivationRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ActivationRequest, 0)
	for _, a := range s.state.activations {
		if ownerID == "" || a.OwnerID == ownerID {
			out = append(out, cloneActivation(a))
		}
	}
	sortByBase(out, func(a ActivationRequest) domain.Base { return a.Base })
	return out
}

// GetPetition retrieves a petition by ID.
func (s *Store) GetPetition(id string) (BeneficiaryPetition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.petitions[id]
	if !ok {
		return BeneficiaryPetition{}, false
	}
	return clonePetition(p), true
}

// ListPetitions returns an owner's petitions; an empty ownerID returns all.
func (s *Store) ListPetitions(ownerID string) []BeneficiaryPetition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BeneficiaryPetition, 0)
	for _, p := range s.state.petitions {
		if ownerID == "" || p.OwnerID == ownerID {
			out = append(out, clonePetition(p))
		}
	}
	sortByBase(out, func(p BeneficiaryPetition) domain.Base { return p.Base })
	return out
}

// GetEscrow retrieves an escrow policy by ID.
func (s *Store) GetEscrow(id string) (KeyEscrow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.escrows[id]
	if !ok {
		return KeyEscrow{}, false
	}
	return cloneEscrow(e), true
}

// ListEscrows returns an owner's escrow policies; an empty ownerID returns all.
func (s *Store) ListEscrows(ownerID string) []KeyEscrow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KeyEscrow, 0)
	for _, e := range s.state.escrows {
		if ownerID == "" || e.OwnerID == ownerID {
			out = append(out, cloneEscrow(e))
		}
	}
	sortByBase(out, func(e KeyEscrow) domain.Base { return e.Base })
	return out
}

// GetCeremony retrieves a recovery ceremony by ID.
func (s *Store) GetCeremony(id string) (RecoveryCeremony, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.ceremonies[id]
	if !ok {
		return RecoveryCeremony{}, false
	}
	return cloneCeremony(c), true
}

// ListCeremonies returns an owner's ceremonies; an empty ownerID returns all.
func (s *Store) ListCeremonies(ownerID string) []RecoveryCeremony {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RecoveryCeremony, 0)
	for _, c := range s.state.ceremonies {
		if ownerID == "" || c.OwnerID == ownerID {
			out = append(out, cloneCeremony(c))
		}
	}
	sortByBase(out, func(c RecoveryCeremony) domain.Base { return c.Base })
	return out
}

// ListAudit returns an owner's audit events in chronological order; an empty
// ownerID returns all.
func (s *Store) ListAudit(ownerID string) []AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEvent, 0)
	for _, a := range s.state.audit {
		if ownerID == "" || a.OwnerID == ownerID {
			out = append(out, cloneAudit(a))
		}
	}
	sortByBase(out, func(a AuditEvent) domain.Base { return a.Base })
	return out
}

func sortByBase[T any](items []T, base func(T) domain.Base) {
	sort.Slice(items, func(i, j int) bool {
		a, b := base(items[i]), base(items[j])
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// stateView exposes a read-only snapshot of transactional state to rules.
type stateView struct {
	state *memoryState
}

var _ domain.RuleView = stateView{}

func (v stateView) ListOwners() []OwnerAccount {
	out := make([]OwnerAccount, 0, len(v.state.owners))
	for _, o := range v.state.owners {
		out = append(out, cloneOwner(o))
	}
	sortByBase(out, func(o OwnerAccount) domain.Base { return o.Base })
	return out
}

func (v stateView) ListContacts(ownerID string) []Contact {
	out := make([]Contact, 0)
	for _, c := range v.state.contacts {
		if ownerID == "" || c.OwnerID == ownerID {
			out = append(out, cloneContact(c))
		}
	}
	sortByBase(out, func(c Contact) domain.Base { return c.Base })
	return out
}

func (v stateView) ListVaultItems(ownerID string) []VaultItem {
	out := make([]VaultItem, 0)
	for _, i := range v.state.items {
		if ownerID == "" || i.OwnerID == ownerID {
			out = append(out, cloneItem(i))
		}
	}
	sortByBase(out, func(i VaultItem) domain.Base { return i.Base })
	return out
}

func (v stateView) ListTriggers(ownerID string) []TriggerCondition {
	out := make([]TriggerCondition, 0)
	for _, t := range v.state.triggers {
		if ownerID == "" || t.OwnerID == ownerID {
			out = append(out, cloneTrigger(t))
		}
	}
	sortByBase(out, func(t TriggerCondition) domain.Base { return t.Base })
	return out
}

func (v stateView) ListActivations(ownerID string) []ActivationRequest {
	out := make([]ActivationRequest, 0)
	for _, a := range v.state.activations {
		if ownerID == "" || a.OwnerID == ownerID {
			out = append(out, cloneActivation(a))
		}
	}
	sortByBase(out, func(a ActivationRequest) domain.Base { return a.Base })
	return out
}

func (v stateView) ListPetitions(ownerID string) []BeneficiaryPetition {
	out := make([]BeneficiaryPetition, 0)
	for _, p := range v.state.petitions {
		if ownerID == "" || p.OwnerID == ownerID {
			out = append(out, clonePetition(p))
		}
	}
	sortByBase(out, func(p BeneficiaryPetition) domain.Base { return p.Base })
	return out
}

func (v stateView) ListEscrows(ownerID string) []KeyEscrow {
	out := make([]KeyEscrow, 0)
	for _, e := range v.state.escrows {
		if ownerID == "" || e.OwnerID == ownerID {
			out = append(out, cloneEscrow(e))
		}
	}
	sortByBase(out, func(e KeyEscrow) domain.Base { return e.Base })
	return out
}

func (v stateView) ListCeremonies(ownerID string) []RecoveryCeremony {
	out := make([]RecoveryCeremony, 0)
	for _, c := range v.state.ceremonies {
		if ownerID == "" || c.OwnerID == ownerID {
			out = append(out, cloneCeremony(c))
		}
	}
	sortByBase(out, func(c RecoveryCeremony) domain.Base { return c.Base })
	return out
}

func (v stateView) FindOwner(id string) (OwnerAccount, bool) {
	o, ok := v.state.owners[id]
	if !ok {
		return OwnerAccount{}, false
	}
	return cloneOwner(o), true
}

func (v stateView) FindContact(id string) (Contact, bool) {
	c, ok := v.state.contacts[id]
	if !ok {
		return Contact{}, false
	}
	return cloneContact(c), true
}

func (v stateView) FindVaultItem(id string) (VaultItem, bool) {
	i, ok := v.state.items[id]
	if !ok {
		return VaultItem{}, false
	}
	return cloneItem(i), true
}

func (v stateView) FindTrigger(id string) (TriggerCondition, bool) {
	t, ok := v.state.triggers[id]
	if !ok {
		return TriggerCondition{}, false
	}
	return cloneTrigger(t), true
}

func (v stateView) FindActivation(id string) (ActivationRequest, bool) {
	a, ok := v.state.activations[id]
	if !ok {
		return ActivationRequest{}, false
	}
	return cloneActivation(a), true
}

func (v stateView) FindPetition(id string) (BeneficiaryPetition, bool) {
	p, ok := v.state.petitions[id]
	if !ok {
		return BeneficiaryPetition{}, false
	}
	return clonePetition(p), true
}

func (v stateView) FindEscrow(id string) (KeyEscrow, bool) {
	e, ok := v.state.escrows[id]
	if !ok {
		return KeyEscrow{}, false
	}
	return cloneEscrow(e), true
}

func (v stateView) FindCeremony(id string) (RecoveryCeremony, bool) {
	c, ok := v.state.ceremonies[id]
	if !ok {
		return RecoveryCeremony{}, false
	}
	return cloneCeremony(c), true
}

// memTx represents a mutation set applied to the store state.
type memTx struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*memTx)(nil)

func (tx *memTx) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state as a read-only view.
func (tx *memTx) Snapshot() RuleView {
	return stateView{state: &tx.state}
}

// CreateOwner stores a new owner account within the transaction.
func (tx *memTx) CreateOwner(o OwnerAccount) (OwnerAccount, error) {
	if o.ID == "" {
		o.ID = tx.store.newID()
	}
	if _, exists := tx.state.owners[o.ID]; exists {
		return OwnerAccount{}, fmt.Errorf("owner %q already exists", o.ID)
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	if o.Status == "" {
		o.Status = domain.OwnerActive
	}
	tx.state.owners[o.ID] = cloneOwner(o)
	tx.recordChange(Change{Entity: domain.EntityOwner, Action: domain.ActionCreate, After: cloneOwner(o)})
	return cloneOwner(o), nil
}

// UpdateOwner mutates an owner account using the provided mutator.
func (tx *memTx) UpdateOwner(id string, mutator func(*OwnerAccount) error) (OwnerAccount, error) {
	current, ok := tx.state.owners[id]
	if !ok {
		return OwnerAccount{}, domain.NotFoundError{Entity: domain.EntityOwner, ID: id}
	}
	before := cloneOwner(current)
	if err := mutator(&current); err != nil {
		return OwnerAccount{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.owners[id] = cloneOwner(current)
	tx.recordChange(Change{Entity: domain.EntityOwner, Action: domain.ActionUpdate, Before: before, After: cloneOwner(current)})
	return cloneOwner(current), nil
}

// DeleteOwner removes an owner record.
func (tx *memTx) DeleteOwner(id string) error {
	current, ok := tx.state.owners[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityOwner, ID: id}
	}
	delete(tx.state.owners, id)
	tx.recordChange(Change{Entity: domain.EntityOwner, Action: domain.ActionDelete, Before: cloneOwner(current)})
	return nil
}

// CreateContact stores a new contact.
func (tx *memTx) CreateContact(c Contact) (Contact, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.contacts[c.ID]; exists {
		return Contact{}, fmt.Errorf("contact %q already exists", c.ID)
	}
	if _, ok := tx.state.owners[c.OwnerID]; !ok {
		return Contact{}, domain.NotFoundError{Entity: domain.EntityOwner, ID: c.OwnerID}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.contacts[c.ID] = cloneContact(c)
	tx.recordChange(Change{Entity: domain.EntityContact, Action: domain.ActionCreate, After: cloneContact(c)})
	return cloneContact(c), nil
}

// UpdateContact mutates an existing contact.
func (tx *memTx) UpdateContact(id string, mutator func(*Contact) error) (Contact, error) {
	current, ok := tx.state.contacts[id]
	if !ok {
		return Contact{}, domain.NotFoundError{Entity: domain.EntityContact, ID: id}
	}
	before := cloneContact(current)
	if err := mutator(&current); err != nil {
		return Contact{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.contacts[id] = cloneContact(current)
	tx.recordChange(Change{Entity: domain.EntityContact, Action: domain.ActionUpdate, Before: before, After: cloneContact(current)})
	return cloneContact(current), nil
}

// DeleteContact removes a contact record.
func (tx *memTx) DeleteContact(id string) error {
	current, ok := tx.state.contacts[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityContact, ID: id}
	}
	delete(tx.state.contacts, id)
	tx.recordChange(Change{Entity: domain.EntityContact, Action: domain.ActionDelete, Before: cloneContact(current)})
	return nil
}

// CreateVaultItem stores a new vault item.
func (tx *memTx) CreateVaultItem(i VaultItem) (VaultItem, error) {
	if i.ID == "" {
		i.ID = tx.store.newID()
	}
	if _, exists := tx.state.items[i.ID]; exists {
		return VaultItem{}, fmt.Errorf("vault item %q already exists", i.ID)
	}
	if _, ok := tx.state.owners[i.OwnerID]; !ok {
		return VaultItem{}, domain.NotFoundError{Entity: domain.EntityOwner, ID: i.OwnerID}
	}
	if i.Release == "" {
		i.Release = domain.ReleaseOnActivation
	}
	i.CreatedAt = tx.now
	i.UpdatedAt = tx.now
	tx.state.items[i.ID] = cloneItem(i)
	tx.recordChange(Change{Entity: domain.EntityVaultItem, Action: domain.ActionCreate, After: cloneItem(i)})
	return cloneItem(i), nil
}

// UpdateVaultItem mutates an existing vault item.
func (tx *memTx) UpdateVaultItem(id string, mutator func(*VaultItem) error) (VaultItem, error) {
	current, ok := tx.state.items[id]
	if !ok {
		return VaultItem{}, domain.NotFoundError{Entity: domain.EntityVaultItem, ID: id}
	}
	before := cloneItem(current)
	if err := mutator(&current); err != nil {
		return VaultItem{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.items[id] = cloneItem(current)
	tx.recordChange(Change{Entity: domain.EntityVaultItem, Action: domain.ActionUpdate, Before: before, After: cloneItem(current)})
	return cloneItem(current), nil
}

// DeleteVaultItem removes a vault item record.
func (tx *memTx) DeleteVaultItem(id string) error {
	current, ok := tx.state.items[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityVaultItem, ID: id}
	}
	delete(tx.state.items, id)
	tx.recordChange(Change{Entity: domain.EntityVaultItem, Action: domain.ActionDelete, Before: cloneItem(current)})
	return nil
}

// CreateTrigger stores a new trigger condition.
func (tx *memTx) CreateTrigger(t TriggerCondition) (TriggerCondition, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.triggers[t.ID]; exists {
		return TriggerCondition{}, fmt.Errorf("trigger %q already exists", t.ID)
	}
	if _, ok := tx.state.owners[t.OwnerID]; !ok {
		return TriggerCondition{}, domain.NotFoundError{Entity: domain.EntityOwner, ID: t.OwnerID}
	}
	if t.State == "" {
		t.State = domain.TriggerArmed
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.triggers[t.ID] = cloneTrigger(t)
	tx.recordChange(Change{Entity: domain.EntityTrigger, Action: domain.ActionCreate, After: cloneTrigger(t)})
	return cloneTrigger(t), nil
}

// UpdateTrigger mutates an existing trigger condition.
func (tx *memTx) UpdateTrigger(id string, mutator func(*TriggerCondition) error) (TriggerCondition, error) {
	current, ok := tx.state.triggers[id]
	if !ok {
		return TriggerCondition{}, domain.NotFoundError{Entity: domain.EntityTrigger, ID: id}
	}
	before := cloneTrigger(current)
	if err := mutator(&current); err != nil {
		return TriggerCondition{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.triggers[id] = cloneTrigger(current)
	tx.recordChange(Change{Entity: domain.EntityTrigger, Action: domain.ActionUpdate, Before: before, After: cloneTrigger(current)})
	return cloneTrigger(current), nil
}

// DeleteTrigger removes a trigger record.
func (tx *memTx) DeleteTrigger(id string) error {
	current, ok := tx.state.triggers[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityTrigger, ID: id}
	}
	delete(tx.state.triggers, id)
	tx.recordChange(Change{Entity: domain.EntityTrigger, Action: domain.ActionDelete, Before: cloneTrigger(current)})
	return nil
}

// CreateActivation stores a new activation request. Activation requests are
// never deleted; they carry the access audit trail.
func (tx *memTx) CreateActivation(a ActivationRequest) (ActivationRequest, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.activations[a.ID]; exists {
		return ActivationRequest{}, fmt.Errorf("activation %q already exists", a.ID)
	}
	if _, ok := tx.state.owners[a.OwnerID]; !ok {
		return ActivationRequest{}, domain.NotFoundError{Entity: domain.EntityOwner, ID: a.OwnerID}
	}
	if _, ok := tx.state.contacts[a.ContactID]; !ok {
		return ActivationRequest{}, domain.NotFoundError{Entity: domain.EntityContact, ID: a.ContactID}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.activations[a.ID] = cloneActivation(a)
	tx.recordChange(Change{Entity: domain.EntityActivation, Action: domain.ActionCreate, After: cloneActivation(a)})
	return cloneActivation(a), nil
}

// UpdateActivation mutates an existing activation request.
func (tx *memTx) UpdateActivation(id string, mutator func(*ActivationRequest) error) (ActivationRequest, error) {
	current, ok := tx.state.activations[id]
	if !ok {
		return ActivationRequest{}, domain.NotFoundError{Entity: domain.EntityActivation, ID: id}
	}
	before := cloneActivation(current)
	if err := mutator(&current); err != nil {
		return ActivationRequest{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.activations[id] = cloneActivation(current)
	tx.recordChange(Change{Entity: domain.EntityActivation, Action: domain.ActionUpdate, Before: before, After: cloneActivation(current)})
	return cloneActivation(current), nil
}

// CreatePetition stores a new beneficiary petition.
func (tx *memTx) CreatePetition(p BeneficiaryPetition) (BeneficiaryPetition, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.petitions[p.ID]; exists {
		return BeneficiaryPetition{}, fmt.Errorf("petition %q already exists", p.ID)
	}
	if _, ok := tx.state.owners[p.OwnerID]; !ok {
		return BeneficiaryPetition{}, domain.NotFoundError{Entity: domain.EntityOwner, ID: p.OwnerID}
	}
	if _, ok := tx.state.contacts[p.PetitionerID]; !ok {
		return BeneficiaryPetition{}, domain.NotFoundError{Entity: domain.EntityContact, ID: p.PetitionerID}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.petitions[p.ID] = clonePetition(p)
	tx.recordChange(Change{Entity: domain.EntityPetition, Action: domain.ActionCreate, After: clonePetition(p)})
	return clonePetition(p), nil
}

// UpdatePetition mutates an existing petition.
func (tx *memTx) UpdatePetition(id string, mutator func(*BeneficiaryPetition) error) (BeneficiaryPetition, error) {
	current, ok := tx.state.petitions[id]
	if !ok {
		return BeneficiaryPetition{}, domain.NotFoundError{Entity: domain.EntityPetition, ID: id}
	}
	before := clonePetition(current)
	if err := mutator(&current); err != nil {
		return BeneficiaryPetition{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.petitions[id] = clonePetition(current)
	tx.recordChange(Change{Entity: domain.EntityPetition, Action: domain.ActionUpdate, Before: before, After: clonePetition(current)})
	return clonePetition(current), nil
}

// CreateEscrow stores a new key escrow policy.
func (tx *memTx) CreateEscrow(e KeyEscrow) (KeyEscrow, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.escrows[e.ID]; exists {
		return KeyEscrow{}, fmt.Errorf("escrow %q already exists", e.ID)
	}
	if _, ok := tx.state.owners[e.OwnerID]; !ok {
		return KeyEscrow{}, domain.NotFoundError{Entity: domain.EntityOwner, ID: e.OwnerID}
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.escrows[e.ID] = cloneEscrow(e)
	tx.recordChange(Change{Entity: domain.EntityEscrow, Action: domain.ActionCreate, After: cloneEscrow(e)})
	return cloneEscrow(e), nil
}

// UpdateEscrow mutates an existing escrow policy.
func (tx *memTx) UpdateEscrow(id string, mutator func(*KeyEscrow) error) (KeyEscrow, error) {
	current, ok := tx.state.escrows[id]
	if !ok {
		return KeyEscrow{}, domain.NotFoundError{Entity: domain.EntityEscrow, ID: id}
	}
	before := cloneEscrow(current)
	if err := mutator(&current); err != nil {
		return KeyEscrow{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.escrows[id] = cloneEscrow(current)
	tx.recordChange(Change{Entity: domain.EntityEscrow, Action: domain.ActionUpdate, Before: before, After: cloneEscrow(current)})
	return cloneEscrow(current), nil
}

// DeleteEscrow removes an escrow policy.
func (tx *memTx) DeleteEscrow(id string) error {
	current, ok := tx.state.escrows[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityEscrow, ID: id}
	}
	delete(tx.state.escrows, id)
	tx.recordChange(Change{Entity: domain.EntityEscrow, Action: domain.ActionDelete, Before: cloneEscrow(current)})
	return nil
}

// CreateCeremony stores a new recovery ceremony.
func (tx *memTx) CreateCeremony(c RecoveryCeremony) (RecoveryCeremony, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.ceremonies[c.ID]; exists {
		return RecoveryCeremony{}, fmt.Errorf("ceremony %q already exists", c.ID)
	}
	if _, ok := tx.state.escrows[c.EscrowID]; !ok {
		return RecoveryCeremony{}, domain.NotFoundError{Entity: domain.EntityEscrow, ID: c.EscrowID}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.ceremonies[c.ID] = cloneCeremony(c)
	tx.recordChange(Change{Entity: domain.EntityCeremony, Action: domain.ActionCreate, After: cloneCeremony(c)})
	return cloneCeremony(c), nil
}

// UpdateCeremony mutates an existing ceremony.
func (tx *memTx) UpdateCeremony(id string, mutator func(*RecoveryCeremony) error) (RecoveryCeremony, error) {
	current, ok := tx.state.ceremonies[id]
	if !ok {
		return RecoveryCeremony{}, domain.NotFoundError{Entity: domain.EntityCeremony, ID: id}
	}
	before := cloneCeremony(current)
	if err := mutator(&current); err != nil {
		return RecoveryCeremony{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.ceremonies[id] = cloneCeremony(current)
	tx.recordChange(Change{Entity: domain.EntityCeremony, Action: domain.ActionUpdate, Before: before, After: cloneCeremony(current)})
	return cloneCeremony(current), nil
}

// AppendAudit stores an audit event. Audit events are immutable once written.
func (tx *memTx) AppendAudit(a AuditEvent) (AuditEvent, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.audit[a.ID]; exists {
		return AuditEvent{}, fmt.Errorf("audit event %q already exists", a.ID)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.audit[a.ID] = cloneAudit(a)
	tx.recordChange(Change{Entity: domain.EntityAudit, Action: domain.ActionCreate, After: cloneAudit(a)})
	return cloneAudit(a), nil
}

// FindOwner retrieves an owner from the transaction state.
func (tx *memTx) FindOwner(id string) (OwnerAccount, bool) {
	o, ok := tx.state.owners[id]
	if !ok {
		return OwnerAccount{}, false
	}
	return cloneOwner(o), true
}

// FindContact retrieves a contact from the transaction state.
func (tx *memTx) FindContact(id string) (Contact, bool) {
	c, ok := tx.state.contacts[id]
	if !ok {
		return Contact{}, false
	}
	return cloneContact(c), true
}

// FindActivation retrieves an activation from the transaction state.
func (tx *memTx) FindActivation(id string) (ActivationRequest, bool) {
	a, ok := tx.state.activations[id]
	if !ok {
		return ActivationRequest{}, false
	}
	return cloneActivation(a), true
}

// FindEscrow retrieves an escrow from the transaction state.
func (tx *memTx) FindEscrow(id string) (KeyEscrow, bool) {
	e, ok := tx.state.escrows[id]
	if !ok {
		return KeyEscrow{}, false
	}
	return cloneEscrow(e), true
}
