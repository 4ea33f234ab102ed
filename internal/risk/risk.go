// Package risk derives the asset risk score from the due-diligence
// checklist. Scoring is a fixed weighting, never inferred: every result
// must be explainable from the stored checklist alone.
package risk

import "arremate/internal/domain"

// Category weights. Three categories at pending or worse must clear the
// HIGH threshold, so pending carries most of a risk weight.
const (
	pointsPending = 25
	pointsRisk    = 35
	maxScore      = 100

	// HighThreshold is the score at and above which bidding is blocked.
	HighThreshold   = 70
	mediumThreshold = 35
)

// Levels.
const (
	LevelLow    = "LOW"
	LevelMedium = "MEDIUM"
	LevelHigh   = "HIGH"
)

// Score computes the 0-100 risk score for a checklist.
func Score(c domain.Checklist) int {
	total := 0
	for _, item := range []domain.ChecklistItem{c.Occupancy, c.Debts, c.LegalRisks, c.Zoning} {
		switch item.Status {
		case domain.ChecklistPending:
			total += pointsPending
		case domain.ChecklistRisk:
			total += pointsRisk
		}
	}
	if total > maxScore {
		total = maxScore
	}
	return total
}

// IsHigh reports whether a score sits at or above the HIGH threshold.
func IsHigh(score int) bool {
	return score >= HighThreshold
}

// Level maps a score to LOW, MEDIUM or HIGH.
func Level(score int) string {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Apply recomputes score, level and the bidding block on the asset from
// its checklist. The three fields only ever change together; there is no
// way to clear bidding_disabled except through the checklist.
func Apply(a *domain.Asset) {
	a.RiskScore = Score(a.Checklist)
	a.RiskLevel = Level(a.RiskScore)
	a.BiddingDisabled = a.RiskLevel == LevelHigh
}
