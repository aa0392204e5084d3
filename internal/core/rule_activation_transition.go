package core

import (
	"context"
	"fmt"

	"legacycore/pkg/domain"
)

// ActivationTransitionRule blocks illegal state transitions on stateful
// entities: activation requests, petitions, recovery ceremonies, and
// triggers. Records must be created in their initial state, may only move
// along legal edges, and terminal records accept no further mutation.
func ActivationTransitionRule() domain.Rule {
	return activationTransitionRule{}
}

type activationTransitionRule struct{}

type stateMachine struct {
	entity    domain.EntityType
	label     string
	initial   string
	edges     map[string]map[string]struct{}
	terminal  map[string]struct{}
	extractor func(payload any) (id string, state string, ok bool)
}

func changeValue[T any](payload any) (T, bool) {
	v, ok := payload.(T)
	return v, ok
}

var transitionMachines = map[domain.EntityType]stateMachine{
	domain.EntityActivation: {
		entity:  domain.EntityActivation,
		label:   "activation request",
		initial: string(domain.ActivationPending),
		edges: map[string]map[string]struct{}{
			string(domain.ActivationPending):   toSet(string(domain.ActivationVerifying), string(domain.ActivationDenied)),
			string(domain.ActivationVerifying): toSet(string(domain.ActivationWaiting), string(domain.ActivationDenied)),
			string(domain.ActivationWaiting):   toSet(string(domain.ActivationActive), string(domain.ActivationDenied), string(domain.ActivationRevoked)),
			string(domain.ActivationActive):    toSet(string(domain.ActivationExpired), string(domain.ActivationRevoked)),
		},
		terminal: toSet(string(domain.ActivationDenied), string(domain.ActivationRevoked), string(domain.ActivationExpired)),
		extractor: func(payload any) (string, string, bool) {
			act, ok := changeValue[domain.ActivationRequest](payload)
			if !ok {
				return "", "", false
			}
			return act.ID, string(act.Status), true
		},
	},
	domain.EntityPetition: {
		entity:  domain.EntityPetition,
		label:   "petition",
		initial: string(domain.PetitionOpen),
		edges: map[string]map[string]struct{}{
			string(domain.PetitionOpen): toSet(string(domain.PetitionApproved), string(domain.PetitionDenied), string(domain.PetitionExpired)),
		},
		terminal: toSet(string(domain.PetitionApproved), string(domain.PetitionDenied), string(domain.PetitionExpired)),
		extractor: func(payload any) (string, string, bool) {
			pet, ok := changeValue[domain.BeneficiaryPetition](payload)
			if !ok {
				return "", "", false
			}
			return pet.ID, string(pet.Status), true
		},
	},
	domain.EntityCeremony: {
		entity:  domain.EntityCeremony,
		label:   "recovery ceremony",
		initial: string(domain.CeremonyOpen),
		edges: map[string]map[string]struct{}{
			string(domain.CeremonyOpen): toSet(string(domain.CeremonyCompleted), string(domain.CeremonyAborted)),
		},
		terminal: toSet(string(domain.CeremonyCompleted), string(domain.CeremonyAborted)),
		extractor: func(payload any) (string, string, bool) {
			cer, ok := changeValue[domain.RecoveryCeremony](payload)
			if !ok {
				return "", "", false
			}
			return cer.ID, string(cer.Status), true
		},
	},
	domain.EntityTrigger: {
		entity:  domain.EntityTrigger,
		label:   "trigger",
		initial: string(domain.TriggerArmed),
		edges: map[string]map[string]struct{}{
			string(domain.TriggerArmed):   toSet(string(domain.TriggerPaused), string(domain.TriggerTripped)),
			string(domain.TriggerPaused):  toSet(string(domain.TriggerArmed)),
			string(domain.TriggerTripped): toSet(string(domain.TriggerArmed)),
		},
		extractor: func(payload any) (string, string, bool) {
			trig, ok := changeValue[domain.TriggerCondition](payload)
			if !ok {
				return "", "", false
			}
			return trig.ID, string(trig.State), true
		},
	},
}

func (activationTransitionRule) Name() string { return "activation_transition" }

func (activationTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := transitionMachines[change.Entity]
		if !ok {
			continue
		}
		switch change.Action {
		case domain.ActionCreate:
			id, state, ok := machine.extractor(change.After)
			if ok && state != machine.initial {
				res.Violations = append(res.Violations, violation(machine, id,
					fmt.Sprintf("%s %s must be created in state %s, got %s", machine.label, id, machine.initial, state)))
			}
		case domain.ActionUpdate:
			_, before, okBefore := machine.extractor(change.Before)
			id, after, okAfter := machine.extractor(change.After)
			if !okBefore || !okAfter {
				continue
			}
			if _, terminal := machine.terminal[before]; terminal {
				res.Violations = append(res.Violations, violation(machine, id,
					fmt.Sprintf("%s %s is %s and cannot be modified", machine.label, id, before)))
				continue
			}
			if before == after {
				continue
			}
			if _, legal := machine.edges[before][after]; !legal {
				res.Violations = append(res.Violations, violation(machine, id,
					fmt.Sprintf("%s %s cannot move from %s to %s", machine.label, id, before, after)))
			}
		}
	}
	return res, nil
}

func violation(machine stateMachine, id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "activation_transition",
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   machine.entity,
		EntityID: id,
	}
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
