package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// GateState is the per-rule, per-sweep state the throttle gate resolves to.
type GateState string

const (
	StateEligible   GateState = "eligible"
	StateSuppressed GateState = "suppressed"
	StateDisabled   GateState = "disabled"
)

// SuppressReason explains why the gate suppressed a rule for this sweep.
type SuppressReason string

const (
	SuppressQuietHours  SuppressReason = "quiet_hours"
	SuppressDailyCap    SuppressReason = "daily_cap"
	SuppressOneShotDone SuppressReason = "one_shot_done"
)

// GateDecision is the gate's verdict for one rule in one sweep. When the
// rule is eligible, CooldownExcluded lists the items still inside their
// per-item cooldown window; those are dropped from the candidates while the
// rest of the rule proceeds.
type GateDecision struct {
	State            GateState
	Reason           SuppressReason
	CooldownExcluded map[string]time.Time
}

// ThrottleController is the cheap pre-evaluation gate: quiet hours, one-shot
// deactivation, the daily cap and per-item cooldowns, checked in that order
// before any condition is evaluated.
type ThrottleController struct {
	alerts stores.AlertStore
}

func NewThrottleController(alerts stores.AlertStore) *ThrottleController {
	return &ThrottleController{alerts: alerts}
}

// Gate decides whether the rule runs this sweep.
func (t *ThrottleController) Gate(ctx context.Context, rule *models.AlertRule, now time.Time) (GateDecision, error) {
	if InQuietHours(rule.QuietHours, now) {
		return GateDecision{State: StateSuppressed, Reason: SuppressQuietHours}, nil
	}

	if rule.IsOneTime && rule.TriggerCount > 0 {
		// Should already be inactive; a sweep racing the deactivation can
		// still see it, so the gate holds the line.
		if rule.IsActive {
			logrus.Warnf("One-shot rule %s has triggered but is still active", rule.ID)
		}
		return GateDecision{State: StateDisabled, Reason: SuppressOneShotDone}, nil
	}

	if rule.MaxAlertsPerDay > 0 {
		count, err := t.alerts.CountTriggersSince(ctx, rule.ID, startOfDayUTC(now))
		if err != nil {
			return GateDecision{}, fmt.Errorf("failed to count today's triggers for rule %s: %w", rule.ID, err)
		}
		if count >= rule.MaxAlertsPerDay {
			return GateDecision{State: StateSuppressed, Reason: SuppressDailyCap}, nil
		}
	}

	decision := GateDecision{State: StateEligible}
	if rule.CooldownHours > 0 {
		since := now.Add(-time.Duration(rule.CooldownHours) * time.Hour)
		recent, err := t.alerts.RecentTriggers(ctx, rule.ID, since)
		if err != nil {
			return GateDecision{}, fmt.Errorf("failed to load recent triggers for rule %s: %w", rule.ID, err)
		}
		decision.CooldownExcluded = recent
	}
	return decision, nil
}

// FilterCooldown drops candidates still inside their cooldown window.
func (d GateDecision) FilterCooldown(candidates []string) []string {
	if len(d.CooldownExcluded) == 0 {
		return candidates
	}
	kept := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if _, excluded := d.CooldownExcluded[id]; !excluded {
			kept = append(kept, id)
		}
	}
	return kept
}

// InQuietHours reports whether now falls inside the rule's quiet window.
// The window is wall-clock in the rule's timezone and may cross midnight.
func InQuietHours(window *models.QuietHours, now time.Time) bool {
	if window == nil {
		return false
	}
	loc := time.UTC
	if window.Timezone != "" {
		parsed, err := time.LoadLocation(window.Timezone)
		if err != nil {
			logrus.Warnf("Invalid quiet hours timezone %q, falling back to UTC: %v", window.Timezone, err)
		} else {
			loc = parsed
		}
	}

	start, okStart := parseClock(window.Start)
	end, okEnd := parseClock(window.End)
	if !okStart || !okEnd {
		logrus.Warnf("Invalid quiet hours window %q-%q, ignoring", window.Start, window.End)
		return false
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Window crosses midnight.
	return minute >= start || minute < end
}

func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// startOfDayUTC is the daily-cap boundary: a fixed calendar day in UTC.
func startOfDayUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
