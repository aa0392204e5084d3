package core

import (
	"time"

	"legacycore/pkg/domain"
)

// Waiting periods applied per risk level before a request may be approved.
const (
	WaitLowRisk    = 24 * time.Hour
	WaitMediumRisk = 72 * time.Hour
	WaitHighRisk   = 168 * time.Hour
)

// Risk score thresholds separating the levels.
const (
	riskMediumAt = 30
	riskHighAt   = 60
)

// Additive score weights. The heuristics are intentionally coarse: the score
// only selects a cooling-off window, it never grants or denies by itself.
const (
	weightSourceManual       = 10
	weightSourcePetition     = 15
	weightSourceProfessional = 5
	weightSourceThirdParty   = 25
	weightSourceInactivity   = 0

	weightUnverifiedContact = 30
	weightRecentCheckIn     = 35
	weightRepeatRequest     = 20
	weightOffHours          = 10
)

// recentCheckInWindow is how fresh an owner check-in must be to contradict an
// emergency claim.
const recentCheckInWindow = 72 * time.Hour

// scoreActivation computes the additive risk score for a request at
// submission time.
func scoreActivation(view RuleView, req ActivationRequest, now time.Time) int {
	score := 0
	switch req.Source {
	case domain.SourceManual:
		score += weightSourceManual
	case domain.SourcePetition:
		score += weightSourcePetition
	case domain.SourceProfessional:
		score += weightSourceProfessional
	case domain.SourceThirdParty:
		score += weightSourceThirdParty
	case domain.SourceInactivity:
		score += weightSourceInactivity
	}

	if contact, ok := view.FindContact(req.ContactID); ok && !contact.Verified {
		score += weightUnverifiedContact
	}

	// An owner alive enough to check in recently undercuts any claim that
	// emergency access is needed right now.
	if owner, ok := view.FindOwner(req.OwnerID); ok {
		if owner.LastCheckInAt != nil && now.Sub(*owner.LastCheckInAt) < recentCheckInWindow && req.Source != domain.SourceInactivity {
			score += weightRecentCheckIn
		}
	}

	for _, prev := range view.ListActivations(req.OwnerID) {
		if prev.ContactID == req.ContactID && prev.Terminal() && prev.Status != domain.ActivationExpired {
			score += weightRepeatRequest
			break
		}
	}

	if h := now.UTC().Hour(); h < 6 || h >= 23 {
		score += weightOffHours
	}
	return score
}

// riskLevel buckets a score.
func riskLevel(score int) domain.RiskLevel {
	switch {
	case score >= riskHighAt:
		return domain.RiskHigh
	case score >= riskMediumAt:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// waitingPeriod returns the cooling-off duration for a level.
func waitingPeriod(level domain.RiskLevel) time.Duration {
	switch level {
	case domain.RiskHigh:
		return WaitHighRisk
	case domain.RiskMedium:
		return WaitMediumRisk
	default:
		return WaitLowRisk
	}
}
