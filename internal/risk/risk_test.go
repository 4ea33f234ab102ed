package risk

import (
	"testing"

	"arremate/internal/domain"
)

func checklist(occ, debts, legal, zoning domain.ChecklistStatus) domain.Checklist {
	return domain.Checklist{
		Occupancy:  domain.ChecklistItem{Status: occ},
		Debts:      domain.ChecklistItem{Status: debts},
		LegalRisks: domain.ChecklistItem{Status: legal},
		Zoning:     domain.ChecklistItem{Status: zoning},
	}
}

func TestAllOKScoresZero(t *testing.T) {
	c := checklist(domain.ChecklistOK, domain.ChecklistOK, domain.ChecklistOK, domain.ChecklistOK)
	if s := Score(c); s != 0 {
		t.Fatalf("score = %d, want 0", s)
	}
	if IsHigh(0) {
		t.Fatalf("score 0 must not be high")
	}
	if Level(0) != LevelLow {
		t.Fatalf("level = %s, want LOW", Level(0))
	}
}

func TestThreeFlaggedCategoriesAreHigh(t *testing.T) {
	cases := []domain.Checklist{
		checklist(domain.ChecklistRisk, domain.ChecklistRisk, domain.ChecklistRisk, domain.ChecklistOK),
		checklist(domain.ChecklistPending, domain.ChecklistPending, domain.ChecklistPending, domain.ChecklistOK),
		checklist(domain.ChecklistRisk, domain.ChecklistPending, domain.ChecklistPending, domain.ChecklistOK),
	}
	for i, c := range cases {
		s := Score(c)
		if s < HighThreshold {
			t.Fatalf("case %d: score = %d, want >= %d", i, s, HighThreshold)
		}
		if !IsHigh(s) {
			t.Fatalf("case %d: score %d must be high", i, s)
		}
		if Level(s) != LevelHigh {
			t.Fatalf("case %d: level = %s, want HIGH", i, Level(s))
		}
	}
}

func TestScoreCapped(t *testing.T) {
	c := checklist(domain.ChecklistRisk, domain.ChecklistRisk, domain.ChecklistRisk, domain.ChecklistRisk)
	if s := Score(c); s != 100 {
		t.Fatalf("score = %d, want 100", s)
	}
}

func TestSingleCategoryLevels(t *testing.T) {
	onePending := checklist(domain.ChecklistPending, domain.ChecklistOK, domain.ChecklistOK, domain.ChecklistOK)
	if lvl := Level(Score(onePending)); lvl != LevelLow {
		t.Fatalf("one pending: level = %s, want LOW", lvl)
	}
	oneRisk := checklist(domain.ChecklistRisk, domain.ChecklistOK, domain.ChecklistOK, domain.ChecklistOK)
	if lvl := Level(Score(oneRisk)); lvl != LevelMedium {
		t.Fatalf("one risk: level = %s, want MEDIUM", lvl)
	}
}

func TestApplyDerivesTogether(t *testing.T) {
	a := domain.Asset{Checklist: checklist(domain.ChecklistRisk, domain.ChecklistRisk, domain.ChecklistPending, domain.ChecklistOK)}
	Apply(&a)
	if a.RiskScore < HighThreshold || a.RiskLevel != LevelHigh || !a.BiddingDisabled {
		t.Fatalf("apply: score=%d level=%s disabled=%v", a.RiskScore, a.RiskLevel, a.BiddingDisabled)
	}
	// clearing the checklist is the only way back
	a.Checklist = checklist(domain.ChecklistOK, domain.ChecklistOK, domain.ChecklistOK, domain.ChecklistOK)
	Apply(&a)
	if a.BiddingDisabled {
		t.Fatalf("bidding must re-enable once the checklist is clean")
	}
}
