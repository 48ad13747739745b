package training

import "math"

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

const (
	// minSessionsForRecommendation is the history size below which baseline
	// ratios are too unstable for a personalized recommendation.
	minSessionsForRecommendation = 5
	// highConfidenceSessionCount is the history size at which the
	// recommendation is reported with high confidence.
	highConfidenceSessionCount = 20

	baseRestDays = 1
)

type RecoveryRecommendation struct {
	RecommendedRestDays int             `json:"recommendedRestDays"`
	Reason              string          `json:"reason"`
	ConfidenceLevel     ConfidenceLevel `json:"confidenceLevel"`
}

// RecommendRecovery maps the most recently computed SII (may be absent) and
// the size of the session history into a rest-day recommendation. The
// high-intensity formula is continuous in SII and deliberately has no upper
// cap, an extreme session can recommend an arbitrarily large rest.
func RecommendRecovery(sii *float64, sessionCount int) RecoveryRecommendation {
	if sii == nil || sessionCount < minSessionsForRecommendation {
		return RecoveryRecommendation{
			RecommendedRestDays: baseRestDays,
			Reason:              "Insufficient data for personalized recommendation",
			ConfidenceLevel:     ConfidenceLow,
		}
	}

	confidence := ConfidenceMedium
	if sessionCount >= highConfidenceSessionCount {
		confidence = ConfidenceHigh
	}

	if *sii < HighIntensityThreshold {
		return RecoveryRecommendation{
			RecommendedRestDays: baseRestDays + 1,
			Reason:              "Moderate intensity session, standard recovery advised",
			ConfidenceLevel:     confidence,
		}
	}

	extraRestDays := int(math.Ceil((*sii - 1.0) * 2))
	return RecoveryRecommendation{
		RecommendedRestDays: baseRestDays + extraRestDays,
		Reason:              "High intensity session, extended recovery advised",
		ConfidenceLevel:     confidence,
	}
}
