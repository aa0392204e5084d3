package core

import "legacycore/pkg/domain"

// DefaultRulesEngine returns an engine carrying the built-in policy set.
func DefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(ActivationTransitionRule())
	engine.Register(EscrowThresholdRule())
	engine.Register(PetitionQuorumRule())
	engine.Register(TriggerScheduleRule())
	engine.Register(GrantExclusivityRule())
	return engine
}
