package training

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedSession(start time.Time, grades []string, wm *WorkoutMetrics) Session {
	end := start.Add(2 * time.Hour)
	climbs := make([]Climb, 0, len(grades))
	for _, g := range grades {
		climbs = append(climbs, Climb{Grade: g, DurationMinutes: 10})
	}
	return Session{
		StartTime:      start,
		EndTime:        &end,
		Climbs:         climbs,
		WorkoutMetrics: wm,
	}
}

func TestCalculateBaseline(t *testing.T) {
	ref := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)

	history := []Session{
		// within the window
		closedSession(ref.AddDate(0, 0, -5), []string{"5.10a", "5.12a"}, &WorkoutMetrics{MaxHangTime: 10, MaxPullUps: 10, MaxLockoff: 10}),
		closedSession(ref.AddDate(0, 0, -10), []string{"5.9"}, &WorkoutMetrics{MaxHangTime: 20, MaxPullUps: 20, MaxLockoff: 30}),
		// outside the 30-day window
		closedSession(ref.AddDate(0, 0, -40), []string{"5.14a"}, &WorkoutMetrics{MaxHangTime: 100, MaxPullUps: 100, MaxLockoff: 100}),
		// no workout metrics, does not qualify
		closedSession(ref.AddDate(0, 0, -3), []string{"5.13a"}, nil),
		// still open, does not qualify
		{StartTime: ref.AddDate(0, 0, -1), Climbs: []Climb{{Grade: "5.13b"}}, WorkoutMetrics: &WorkoutMetrics{MaxHangTime: 99}},
	}

	b := CalculateBaseline(history, ref, Session{})
	assert.InDelta(t, 15.0, b.AvgMaxHangTime, 0.0001)
	assert.InDelta(t, 15.0, b.AvgMaxPullUps, 0.0001)
	assert.InDelta(t, 20.0, b.AvgMaxLockoff, 0.0001)
	// (mean(10, 12) + mean(9)) / 2
	assert.InDelta(t, 10.0, b.AvgGrade, 0.0001)
}

func TestCalculateBaseline_EmptyHistoryFallsBackToScoredSession(t *testing.T) {
	ref := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	current := closedSession(ref.Add(-2*time.Hour), []string{"5.10a"}, &WorkoutMetrics{MaxHangTime: 10, MaxPullUps: 5, MaxLockoff: 5})

	b := CalculateBaseline(nil, ref, current)
	assert.InDelta(t, 10.0, b.AvgMaxHangTime, 0.0001)
	assert.InDelta(t, 5.0, b.AvgMaxPullUps, 0.0001)
	assert.InDelta(t, 5.0, b.AvgMaxLockoff, 0.0001)
	assert.InDelta(t, 10.0, b.AvgGrade, 0.0001)
}

func TestComputeIntensity_FirstEverSession(t *testing.T) {
	// with an empty history, every ratio is computed against the session
	// itself and the physical load lands exactly at 1.0
	session := Session{
		StartTime: time.Date(2026, 8, 20, 16, 0, 0, 0, time.UTC),
		Climbs: []Climb{
			{Grade: "5.10a", DurationMinutes: 10, NumberOfTakes: 1},
		},
		WorkoutMetrics: &WorkoutMetrics{MaxHangTime: 10, MaxPullUps: 5, MaxLockoff: 5},
	}

	baseline := CalculateBaseline(nil, session.StartTime.Add(2*time.Hour), session)
	intensity := ComputeIntensity(session, baseline)

	assert.InDelta(t, 1.0, intensity.PhysicalLoad, 0.0001)
	// efficiency 1.0 - 1 take * 0.1, grade factor 1.0
	assert.InDelta(t, 0.9, intensity.PerformanceLoad, 0.0001)
	// no end time set, the 2 hour default applies
	assert.InDelta(t, 1.0, intensity.DurationFactor, 0.0001)
	assert.InDelta(t, 0.9, intensity.SII, 0.0001)
}

func TestComputeIntensity_ZeroWithoutClimbsOrMetrics(t *testing.T) {
	baseline := Baseline{AvgMaxHangTime: 10, AvgMaxPullUps: 10, AvgMaxLockoff: 10, AvgGrade: 10}

	noClimbs := Session{
		StartTime:      time.Now(),
		WorkoutMetrics: &WorkoutMetrics{MaxHangTime: 10, MaxPullUps: 10, MaxLockoff: 10},
	}
	assert.Equal(t, Intensity{}, ComputeIntensity(noClimbs, baseline))

	noMetrics := Session{
		StartTime: time.Now(),
		Climbs:    []Climb{{Grade: "5.10a", DurationMinutes: 10}},
	}
	assert.Equal(t, Intensity{}, ComputeIntensity(noMetrics, baseline))
}

func TestComputeIntensity_EfficiencyFactorFloor(t *testing.T) {
	session := Session{
		StartTime: time.Now(),
		Climbs: []Climb{
			// enough takes and time on the wall to push efficiency way below zero
			{Grade: "5.10a", DurationMinutes: 60, NumberOfTakes: 25},
		},
		WorkoutMetrics: &WorkoutMetrics{MaxHangTime: 10, MaxPullUps: 5, MaxLockoff: 5},
	}

	baseline := CalculateBaseline(nil, time.Now(), session)
	intensity := ComputeIntensity(session, baseline)

	// grade factor 1.0 * floored efficiency
	assert.InDelta(t, minEfficiencyFactor, intensity.PerformanceLoad, 0.0001)
	assert.Positive(t, intensity.SII)
}

func TestComputeIntensity_LongClimbsPenalizeEfficiency(t *testing.T) {
	wm := &WorkoutMetrics{MaxHangTime: 10, MaxPullUps: 5, MaxLockoff: 5}
	session := Session{
		StartTime:      time.Now(),
		Climbs:         []Climb{{Grade: "5.10a", DurationMinutes: 20}},
		WorkoutMetrics: wm,
	}

	baseline := CalculateBaseline(nil, time.Now(), session)
	intensity := ComputeIntensity(session, baseline)

	// 1.0 - (20 - 10) * 0.02 = 0.8
	assert.InDelta(t, 0.8, intensity.PerformanceLoad, 0.0001)
}

func TestComputeIntensity_RealDurationUsed(t *testing.T) {
	start := time.Date(2026, 8, 20, 16, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)
	session := Session{
		StartTime:      start,
		EndTime:        &end,
		Climbs:         []Climb{{Grade: "5.10a", DurationMinutes: 10}},
		WorkoutMetrics: &WorkoutMetrics{MaxHangTime: 10, MaxPullUps: 5, MaxLockoff: 5},
	}

	baseline := CalculateBaseline(nil, end, session)
	intensity := ComputeIntensity(session, baseline)

	require.InDelta(t, 0.7+4*0.15, intensity.DurationFactor, 0.0001)
}

func TestIntensityLabel(t *testing.T) {
	assert.Equal(t, "Moderate", IntensityLabel(0))
	assert.Equal(t, "Moderate", IntensityLabel(1.19))
	assert.Equal(t, "High", IntensityLabel(HighIntensityThreshold))
	assert.Equal(t, "High", IntensityLabel(3.5))
}
