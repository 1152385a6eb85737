package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAppliesDefaultFallbacks(t *testing.T) {
	r := &Rule{ID: "r1", Event: EventPriceDeviation}
	err := normalize(r)
	require.NoError(t, err)
	require.Equal(t, "warning", r.Severity)
	require.Equal(t, 15, r.CooldownMinutes)
	require.Equal(t, 4, r.MaxNotificationsPerHour)
	require.Equal(t, 1, r.ConsecutiveOKRequired)
}

func TestNormalizeRejectsMissingID(t *testing.T) {
	r := &Rule{Event: EventPriceDeviation}
	err := normalize(r)
	require.Error(t, err)
}

func TestNormalizeRejectsUnknownEvent(t *testing.T) {
	r := &Rule{ID: "r1", Event: Event("not_a_real_event")}
	err := normalize(r)
	require.Error(t, err)
}

func TestNormalizePreservesKnownSeverity(t *testing.T) {
	r := &Rule{ID: "r1", Event: EventPriceDeviation, Severity: "critical"}
	require.NoError(t, normalize(r))
	require.Equal(t, "critical", r.Severity)
}

func TestCooldownFallsBackToFlatValue(t *testing.T) {
	r := &Rule{CooldownMinutes: 15}
	require.Equal(t, 15*time.Minute, r.Cooldown(0.5))
}

func TestCooldownUsesDynamicSchedule(t *testing.T) {
	r := &Rule{
		CooldownMinutes: 15,
		DynamicCooldowns: []DynamicCooldown{
			{ThresholdPercent: 5, Cooldown: 2 * time.Minute},
			{ThresholdPercent: 1, Cooldown: 10 * time.Minute},
		},
	}
	require.Equal(t, 2*time.Minute, r.Cooldown(6), "large deviations should re-notify sooner")
	require.Equal(t, 10*time.Minute, r.Cooldown(1.5))
	require.Equal(t, 15*time.Minute, r.Cooldown(0.2), "below every step, falls back to the flat cooldown")
}
