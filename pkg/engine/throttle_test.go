package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dealradar/alert-engine/pkg/models"
)

func TestGateEligibleWithoutThrottles(t *testing.T) {
	alerts := new(MockAlertStore)
	gate := NewThrottleController(alerts)

	decision, err := gate.Gate(context.Background(), &models.AlertRule{ID: "r1", IsActive: true}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StateEligible, decision.State)
	alerts.AssertNotCalled(t, "CountTriggersSince", mock.Anything, mock.Anything, mock.Anything)
}

func TestGateDailyCap(t *testing.T) {
	now := time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC)
	dayStart := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	alerts := new(MockAlertStore)
	alerts.On("CountTriggersSince", mock.Anything, "r1", dayStart).Return(3, nil)

	gate := NewThrottleController(alerts)
	rule := &models.AlertRule{ID: "r1", IsActive: true, MaxAlertsPerDay: 3}

	decision, err := gate.Gate(context.Background(), rule, now)
	require.NoError(t, err)
	assert.Equal(t, StateSuppressed, decision.State)
	assert.Equal(t, SuppressDailyCap, decision.Reason)
}

func TestGateDailyCapUnderLimit(t *testing.T) {
	alerts := new(MockAlertStore)
	alerts.On("CountTriggersSince", mock.Anything, "r1", mock.Anything).Return(2, nil)

	gate := NewThrottleController(alerts)
	rule := &models.AlertRule{ID: "r1", IsActive: true, MaxAlertsPerDay: 3}

	decision, err := gate.Gate(context.Background(), rule, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StateEligible, decision.State)
}

func TestGateOneShotAlreadyTriggered(t *testing.T) {
	gate := NewThrottleController(new(MockAlertStore))
	rule := &models.AlertRule{ID: "r1", IsActive: true, IsOneTime: true, TriggerCount: 1}

	decision, err := gate.Gate(context.Background(), rule, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, decision.State)
	assert.Equal(t, SuppressOneShotDone, decision.Reason)
}

func TestGateCooldownExcludesRecentItems(t *testing.T) {
	now := time.Now()
	alerts := new(MockAlertStore)
	alerts.On("RecentTriggers", mock.Anything, "r1", now.Add(-6*time.Hour)).Return(map[string]time.Time{
		"knife-1": now.Add(-2 * time.Hour),
	}, nil)

	gate := NewThrottleController(alerts)
	rule := &models.AlertRule{ID: "r1", IsActive: true, CooldownHours: 6}

	decision, err := gate.Gate(context.Background(), rule, now)
	require.NoError(t, err)
	assert.Equal(t, StateEligible, decision.State)

	kept := decision.FilterCooldown([]string{"knife-1", "knife-2"})
	assert.Equal(t, []string{"knife-2"}, kept)
}

func TestInQuietHours(t *testing.T) {
	window := &models.QuietHours{Start: "22:00", End: "08:00"}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before window", time.Date(2026, 3, 5, 21, 59, 0, 0, time.UTC), false},
		{"window start", time.Date(2026, 3, 5, 22, 0, 0, 0, time.UTC), true},
		{"past midnight", time.Date(2026, 3, 6, 3, 0, 0, 0, time.UTC), true},
		{"just before end", time.Date(2026, 3, 6, 7, 59, 0, 0, time.UTC), true},
		{"window end", time.Date(2026, 3, 6, 8, 0, 0, 0, time.UTC), false},
		{"midday", time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InQuietHours(window, tc.now))
		})
	}
}

func TestInQuietHoursSameDayWindow(t *testing.T) {
	window := &models.QuietHours{Start: "09:00", End: "17:00"}
	assert.True(t, InQuietHours(window, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))
	assert.False(t, InQuietHours(window, time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC)))
}

func TestInQuietHoursHonorsTimezone(t *testing.T) {
	window := &models.QuietHours{Start: "22:00", End: "08:00", Timezone: "America/New_York"}

	// 03:00 UTC is 22:00 or 23:00 in New York depending on DST; either way
	// it is inside the window.
	assert.True(t, InQuietHours(window, time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC)))
	// 18:00 UTC is early afternoon in New York.
	assert.False(t, InQuietHours(window, time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC)))
}

func TestInQuietHoursInvalidInputs(t *testing.T) {
	assert.False(t, InQuietHours(nil, time.Now()))
	assert.False(t, InQuietHours(&models.QuietHours{Start: "25:00", End: "08:00"}, time.Now()))
	// A bad timezone falls back to UTC rather than disabling the window.
	window := &models.QuietHours{Start: "00:00", End: "23:59", Timezone: "Not/AZone"}
	assert.True(t, InQuietHours(window, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)))
}

func TestGateQuietHoursBeforeAnyStoreCall(t *testing.T) {
	alerts := new(MockAlertStore)
	gate := NewThrottleController(alerts)
	rule := &models.AlertRule{
		ID:              "r1",
		IsActive:        true,
		MaxAlertsPerDay: 3,
		CooldownHours:   6,
		QuietHours:      &models.QuietHours{Start: "00:00", End: "23:59"},
	}

	decision, err := gate.Gate(context.Background(), rule, time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, StateSuppressed, decision.State)
	assert.Equal(t, SuppressQuietHours, decision.Reason)
	alerts.AssertExpectations(t)
}
