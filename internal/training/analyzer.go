package training

import (
	"math"
	"time"
)

const (
	// HighIntensityThreshold is the single classification boundary between
	// moderate and high intensity sessions, used both for labeling and for
	// the recovery recommendation.
	HighIntensityThreshold = 1.2

	// baselineWindow is how far back from the reference moment closed
	// sessions are considered for the rolling baseline.
	baselineWindow = 30 * 24 * time.Hour

	// defaultSessionHours is assumed when a session has no usable
	// start/end timestamps to derive the real duration from.
	defaultSessionHours = 2.0

	// minEfficiencyFactor is the floor for the efficiency factor, so a
	// session is never scored as having literally zero performance load.
	minEfficiencyFactor = 0.1
)

// Baseline holds the 30-day trailing averages of a climber's physical
// metrics and climbing grade. All intensity ratios are computed against it.
type Baseline struct {
	AvgMaxHangTime float64 `json:"avgMaxHangTime"`
	AvgMaxPullUps  float64 `json:"avgMaxPullUps"`
	AvgMaxLockoff  float64 `json:"avgMaxLockoff"`
	AvgGrade       float64 `json:"avgGrade"`
}

// Intensity is the result of scoring one session: the three multiplicative
// sub-scores and their product, the Session Intensity Index.
type Intensity struct {
	PhysicalLoad    float64 `json:"physicalLoad"`
	PerformanceLoad float64 `json:"performanceLoad"`
	DurationFactor  float64 `json:"durationFactor"`
	SII             float64 `json:"sii"`
}

func IntensityLabel(sii float64) string {
	if sii >= HighIntensityThreshold {
		return "High"
	}
	return "Moderate"
}

// CalculateBaseline derives the trailing 30-day averages from the session
// history, relative to the given reference moment. Only closed sessions
// with workout metrics qualify. When no session qualifies, the baseline
// falls back to the metrics of the session currently being scored, so all
// ratios become 1.0 instead of blowing up on a division by zero. That
// deliberately suppresses any "high load" signal for brand new users.
func CalculateBaseline(history []Session, ref time.Time, current Session) Baseline {
	windowStart := ref.Add(-baselineWindow)

	var subset []Session
	for i := range history {
		s := &history[i]
		if s.IsOpen() || s.WorkoutMetrics == nil {
			continue
		}
		if s.StartTime.Before(windowStart) || s.StartTime.After(ref) {
			continue
		}
		subset = append(subset, *s)
	}

	if len(subset) == 0 {
		b := Baseline{AvgGrade: current.AvgGrade()}
		if current.WorkoutMetrics != nil {
			b.AvgMaxHangTime = current.WorkoutMetrics.MaxHangTime
			b.AvgMaxPullUps = float64(current.WorkoutMetrics.MaxPullUps)
			b.AvgMaxLockoff = current.WorkoutMetrics.MaxLockoff
		}
		return b
	}

	var b Baseline
	for i := range subset {
		b.AvgMaxHangTime += subset[i].WorkoutMetrics.MaxHangTime
		b.AvgMaxPullUps += float64(subset[i].WorkoutMetrics.MaxPullUps)
		b.AvgMaxLockoff += subset[i].WorkoutMetrics.MaxLockoff
		b.AvgGrade += subset[i].AvgGrade()
	}
	count := float64(len(subset))
	b.AvgMaxHangTime /= count
	b.AvgMaxPullUps /= count
	b.AvgMaxLockoff /= count
	b.AvgGrade /= count
	return b
}

// ComputeIntensity scores the session against the baseline. A session with
// no climbs or no workout metrics scores zero across the board, no
// computation is attempted for it.
func ComputeIntensity(session Session, baseline Baseline) Intensity {
	if len(session.Climbs) == 0 || session.WorkoutMetrics == nil {
		return Intensity{}
	}

	hangRatio := ratioToBaseline(session.WorkoutMetrics.MaxHangTime, baseline.AvgMaxHangTime)
	pullUpsRatio := ratioToBaseline(float64(session.WorkoutMetrics.MaxPullUps), baseline.AvgMaxPullUps)
	lockoffRatio := ratioToBaseline(session.WorkoutMetrics.MaxLockoff, baseline.AvgMaxLockoff)
	physicalLoad := (hangRatio + pullUpsRatio + lockoffRatio) / 3

	gradeFactor := ratioToBaseline(session.AvgGrade(), baseline.AvgGrade)
	efficiencyFactor := 1.0 - float64(session.TotalTakes())*0.1
	if avgDuration := session.AvgClimbDuration(); avgDuration > 10 {
		efficiencyFactor -= (avgDuration - 10) * 0.02
	}
	if efficiencyFactor < minEfficiencyFactor {
		efficiencyFactor = minEfficiencyFactor
	}
	performanceLoad := gradeFactor * efficiencyFactor

	sessionHours := defaultSessionHours
	if session.EndTime != nil && !session.StartTime.IsZero() {
		sessionHours = session.EndTime.Sub(session.StartTime).Hours()
	}
	durationFactor := 0.7 + sessionHours*0.15

	return Intensity{
		PhysicalLoad:    physicalLoad,
		PerformanceLoad: performanceLoad,
		DurationFactor:  durationFactor,
		SII:             physicalLoad * performanceLoad * durationFactor,
	}
}

func ratioToBaseline(value, baseline float64) float64 {
	return value / math.Max(baseline, 1)
}
