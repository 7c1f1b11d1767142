package gate

import "arcpay/internal/domain"

// Policy holds the score-to-level cutoffs. These are business
// configuration, injected from config rather than hardcoded at call sites.
type Policy struct {
	// MediumThreshold is exclusive: score > MediumThreshold is at least MEDIUM.
	MediumThreshold float64
	// HighThreshold is exclusive: score > HighThreshold is HIGH.
	HighThreshold float64
}

// Level buckets a raw score.
func (p Policy) Level(score float64) domain.RiskLevel {
	switch {
	case score > p.HighThreshold:
		return domain.RiskHigh
	case score > p.MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Decide maps a risk level, verification outcome and confirmation flag to
// the gate decision. Verification outcomes dominate: a conclusively failed
// recipient is denied and an ambiguous one flagged regardless of score.
func (p Policy) Decide(level domain.RiskLevel, verification domain.Verification, confirmed bool) domain.Decision {
	switch verification.Status {
	case domain.VerificationFailed:
		return domain.DecisionDeny
	case domain.VerificationAmbiguous:
		return domain.DecisionFlag
	}
	switch level {
	case domain.RiskHigh:
		return domain.DecisionDeny
	case domain.RiskMedium:
		if confirmed {
			return domain.DecisionApprove
		}
		return domain.DecisionNeedsConfirmation
	default:
		return domain.DecisionApprove
	}
}
