package eligibility_test

import (
	"testing"

	"tideline/internal/domain"
	"tideline/internal/engine/eligibility"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

func windRule(limit float64, severity string) domain.EligibilityRule {
	return domain.EligibilityRule{
		ID:         "r-wind",
		Name:       "wind limit",
		Severity:   severity,
		MaxWindKmh: f(limit),
		Active:     true,
	}
}

func TestThresholdsAreInclusive(t *testing.T) {
	rules := []domain.EligibilityRule{windRule(30, domain.SeverityBlock)}
	// exactly at the limit passes
	res := eligibility.Evaluate(rules, eligibility.Candidate{
		Day:     "2026-06-01",
		Weather: &domain.WeatherSnapshot{WindKmh: f(30)},
	})
	if res.Verdict != eligibility.VerdictEligible {
		t.Fatalf("at-limit wind should be eligible, got %s (%v)", res.Verdict, res.Reasons)
	}
	// just over blocks
	res = eligibility.Evaluate(rules, eligibility.Candidate{
		Day:     "2026-06-01",
		Weather: &domain.WeatherSnapshot{WindKmh: f(30.1)},
	})
	if res.Verdict != eligibility.VerdictBlocked {
		t.Fatalf("over-limit wind should block, got %s", res.Verdict)
	}
	if len(res.Reasons) != 1 || res.Reasons[0].Code != "wind_exceeded" {
		t.Fatalf("unexpected reasons: %v", res.Reasons)
	}
}

func TestMissingWeatherNeverBlocks(t *testing.T) {
	rules := []domain.EligibilityRule{windRule(30, domain.SeverityBlock)}
	res := eligibility.Evaluate(rules, eligibility.Candidate{Day: "2026-06-01"})
	if res.Verdict != eligibility.VerdictWarn {
		t.Fatalf("missing reading should warn, got %s", res.Verdict)
	}
	if res.Reasons[0].Code != "missing_data" {
		t.Fatalf("expected missing_data reason, got %v", res.Reasons)
	}
}

func TestWarningRuleNeverBlocks(t *testing.T) {
	rules := []domain.EligibilityRule{windRule(30, domain.SeverityWarning)}
	res := eligibility.Evaluate(rules, eligibility.Candidate{
		Day:     "2026-06-01",
		Weather: &domain.WeatherSnapshot{WindKmh: f(90)},
	})
	if res.Verdict != eligibility.VerdictWarn {
		t.Fatalf("warning-severity violation should warn, got %s", res.Verdict)
	}
}

func TestBlockedNotLoweredByLaterWarning(t *testing.T) {
	rules := []domain.EligibilityRule{
		windRule(30, domain.SeverityBlock),
		{ID: "r-vis", Name: "visibility", Severity: domain.SeverityWarning, MinVisibilityKm: f(5), Active: true},
	}
	res := eligibility.Evaluate(rules, eligibility.Candidate{
		Day:     "2026-06-01",
		Weather: &domain.WeatherSnapshot{WindKmh: f(40), VisibilityKm: f(2)},
	})
	if res.Verdict != eligibility.VerdictBlocked {
		t.Fatalf("blocked verdict must stick, got %s", res.Verdict)
	}
	if len(res.Reasons) != 2 {
		t.Fatalf("expected both reasons recorded, got %v", res.Reasons)
	}
}

func TestInactiveRulesSkipped(t *testing.T) {
	rule := windRule(30, domain.SeverityBlock)
	rule.Active = false
	res := eligibility.Evaluate([]domain.EligibilityRule{rule}, eligibility.Candidate{
		Day:     "2026-06-01",
		Weather: &domain.WeatherSnapshot{WindKmh: f(90)},
	})
	if res.Verdict != eligibility.VerdictEligible {
		t.Fatalf("inactive rule must not apply, got %s", res.Verdict)
	}
}

func TestSeasonWindowWrapsYearEnd(t *testing.T) {
	rules := []domain.EligibilityRule{{
		ID: "r-season", Name: "winter ops", Severity: domain.SeverityBlock,
		SeasonStart: "11-01", SeasonEnd: "03-31", Active: true,
	}}
	for day, want := range map[string]string{
		"2026-12-15": eligibility.VerdictEligible,
		"2026-02-10": eligibility.VerdictEligible,
		"2026-11-01": eligibility.VerdictEligible,
		"2026-03-31": eligibility.VerdictEligible,
		"2026-07-04": eligibility.VerdictBlocked,
		"2026-04-01": eligibility.VerdictBlocked,
	} {
		res := eligibility.Evaluate(rules, eligibility.Candidate{Day: day})
		if res.Verdict != want {
			t.Errorf("day %s: want %s, got %s", day, want, res.Verdict)
		}
	}
}

func TestAllowedConditions(t *testing.T) {
	rules := []domain.EligibilityRule{{
		ID: "r-cond", Name: "conditions", Severity: domain.SeverityBlock,
		AllowedConditions: []string{"clear", "cloudy"}, Active: true,
	}}
	res := eligibility.Evaluate(rules, eligibility.Candidate{
		Day:     "2026-06-01",
		Weather: &domain.WeatherSnapshot{Condition: "storm"},
	})
	if res.Verdict != eligibility.VerdictBlocked || res.Reasons[0].Code != "condition_not_allowed" {
		t.Fatalf("storm should block, got %s %v", res.Verdict, res.Reasons)
	}
	res = eligibility.Evaluate(rules, eligibility.Candidate{
		Day:     "2026-06-01",
		Weather: &domain.WeatherSnapshot{Condition: "clear"},
	})
	if res.Verdict != eligibility.VerdictEligible {
		t.Fatalf("clear should pass, got %s", res.Verdict)
	}
}

func TestMinAge(t *testing.T) {
	rules := []domain.EligibilityRule{{
		ID: "r-age", Name: "age floor", Severity: domain.SeverityBlock,
		MinAge: i(12), Active: true,
	}}
	res := eligibility.Evaluate(rules, eligibility.Candidate{Day: "2026-06-01", GuestAges: []int{12, 34}})
	if res.Verdict != eligibility.VerdictEligible {
		t.Fatalf("age 12 meets floor 12, got %s", res.Verdict)
	}
	res = eligibility.Evaluate(rules, eligibility.Candidate{Day: "2026-06-01", GuestAges: []int{11, 34}})
	if res.Verdict != eligibility.VerdictBlocked || res.Reasons[0].Code != "under_min_age" {
		t.Fatalf("age 11 should block, got %s %v", res.Verdict, res.Reasons)
	}
	// no ages supplied: warn on missing data
	res = eligibility.Evaluate(rules, eligibility.Candidate{Day: "2026-06-01"})
	if res.Verdict != eligibility.VerdictWarn {
		t.Fatalf("missing ages should warn, got %s", res.Verdict)
	}
}

func TestRequiredCerts(t *testing.T) {
	rules := []domain.EligibilityRule{{
		ID: "r-cert", Name: "pilot cert", Severity: domain.SeverityBlock,
		RequiredCerts: []string{"heli-commercial", "first-aid"}, Active: true,
	}}
	res := eligibility.Evaluate(rules, eligibility.Candidate{
		Day:       "2026-06-01",
		CrewCerts: map[string]bool{"heli-commercial": true, "first-aid": true},
	})
	if res.Verdict != eligibility.VerdictEligible {
		t.Fatalf("all certs held, got %s", res.Verdict)
	}
	res = eligibility.Evaluate(rules, eligibility.Candidate{
		Day:       "2026-06-01",
		CrewCerts: map[string]bool{"heli-commercial": true},
	})
	if res.Verdict != eligibility.VerdictBlocked || res.Reasons[0].Code != "missing_cert" {
		t.Fatalf("missing cert should block, got %s %v", res.Verdict, res.Reasons)
	}
}

func TestNoRulesIsEligible(t *testing.T) {
	res := eligibility.Evaluate(nil, eligibility.Candidate{Day: "2026-06-01"})
	if res.Verdict != eligibility.VerdictEligible || len(res.Reasons) != 0 {
		t.Fatalf("no rules should be eligible, got %s %v", res.Verdict, res.Reasons)
	}
}
