package core

import (
	"context"
	"fmt"

	"legacycore/pkg/domain"
)

// Bounds on inactivity trigger configuration. A threshold under a week turns
// an ordinary vacation into an emergency.
const (
	MinInactivityDays = 7
	MinTriggerGrace   = 1
)

// TriggerScheduleRule validates trigger configuration: inactivity thresholds
// and grace windows above their floors, escalation offsets strictly
// decreasing inside the threshold window, and scheduled triggers carrying an
// instant.
func TriggerScheduleRule() domain.Rule {
	return triggerScheduleRule{}
}

type triggerScheduleRule struct{}

func (triggerScheduleRule) Name() string { return "trigger_schedule" }

func (triggerScheduleRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "trigger_schedule",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityTrigger,
			EntityID: id,
		})
	}

	for _, owner := range view.ListOwners() {
		for _, trig := range view.ListTriggers(owner.ID) {
			switch trig.Kind {
			case domain.TriggerInactivity:
				if trig.InactivityD < MinInactivityDays {
					block(trig.ID, fmt.Sprintf("trigger %s inactivity threshold %d days is under the %d day minimum", trig.ID, trig.InactivityD, MinInactivityDays))
				}
				if trig.GraceDays < MinTriggerGrace {
					block(trig.ID, fmt.Sprintf("trigger %s grace period %d days is under the %d day minimum", trig.ID, trig.GraceDays, MinTriggerGrace))
				}
				prev := trig.InactivityD
				for _, step := range trig.Escalation {
					if step.DaysBefore <= 0 || step.DaysBefore >= trig.InactivityD {
						block(trig.ID, fmt.Sprintf("trigger %s escalation offset %d is outside the threshold window", trig.ID, step.DaysBefore))
						continue
					}
					if step.DaysBefore >= prev {
						block(trig.ID, fmt.Sprintf("trigger %s escalation offsets must strictly decrease toward the deadline", trig.ID))
					}
					prev = step.DaysBefore
				}
			case domain.TriggerScheduled:
				if trig.ScheduledAt == nil {
					block(trig.ID, fmt.Sprintf("scheduled trigger %s has no scheduled instant", trig.ID))
				}
			}
		}
	}
	return res, nil
}
