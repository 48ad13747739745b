package training

import (
	"strings"
	"time"
)

// Climb is one logged attempt within a session.
type Climb struct {
	ID              string    `json:"id"`
	Grade           string    `json:"grade"`
	DurationMinutes float64   `json:"durationMinutes"`
	NumberOfTakes   int       `json:"numberOfTakes"`
	CreatedAt       time.Time `json:"createdAt"`
}

// GradeMajor returns the numeric major component of the climb grade,
// e.g. 10 for "5.10a". The letter suffix carries no arithmetic meaning.
func (c Climb) GradeMajor() int {
	return gradeMajor(c.Grade)
}

func gradeMajor(grade string) int {
	rest, found := strings.CutPrefix(grade, "5.")
	if !found {
		return 0
	}
	major := 0
	for _, r := range rest {
		if r < '0' || r > '9' {
			break
		}
		major = major*10 + int(r-'0')
	}
	return major
}

// WorkoutMetrics are the supplementary strength metrics captured once,
// at session close.
type WorkoutMetrics struct {
	MaxHangTime float64 `json:"maxHangTime"` // seconds
	MaxPullUps  int     `json:"maxPullUps"`
	MaxLockoff  float64 `json:"maxLockoff"` // seconds
}

// Session is one training session. It starts open (no end time), accepts
// climb edits while open, and becomes immutable once closed.
type Session struct {
	ID              string          `json:"id"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         *time.Time      `json:"endTime,omitempty"`
	Climbs          []Climb         `json:"climbs"`
	WorkoutMetrics  *WorkoutMetrics `json:"workoutMetrics,omitempty"`
	RecoveryFeeling *int            `json:"recoveryFeeling,omitempty"` // 1-5 self-report
	SII             *float64        `json:"sii,omitempty"`
}

func (s *Session) IsOpen() bool {
	return s.EndTime == nil
}

// AvgGrade is the arithmetic mean of the climbs' numeric major grade
// components. Climbs with an unparsable grade are skipped, they must not
// drag the average down. A session with no parsable grade averages to 0.
func (s *Session) AvgGrade() float64 {
	sum, count := 0, 0
	for _, c := range s.Climbs {
		major := c.GradeMajor()
		if major == 0 {
			continue
		}
		sum += major
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

func (s *Session) TotalTakes() int {
	total := 0
	for _, c := range s.Climbs {
		total += c.NumberOfTakes
	}
	return total
}

func (s *Session) AvgClimbDuration() float64 {
	if len(s.Climbs) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range s.Climbs {
		sum += c.DurationMinutes
	}
	return sum / float64(len(s.Climbs))
}

// clone returns a copy safe to hand out while the original keeps mutating.
func (s *Session) clone() Session {
	c := *s
	c.Climbs = append([]Climb(nil), s.Climbs...)
	return c
}
