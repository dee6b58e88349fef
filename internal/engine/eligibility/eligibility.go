// Package eligibility evaluates booking candidates against per-resource
// rules. Numeric limits are non-strict: a reading equal to the threshold
// passes. A missing reading referenced by any rule downgrades the verdict to
// warn, never to eligible.
package eligibility

import (
	"fmt"
	"strings"

	"tideline/internal/domain"
)

const (
	VerdictEligible = "eligible"
	VerdictWarn     = "warn"
	VerdictBlocked  = "blocked"
)

// Candidate is the booking material under evaluation.
type Candidate struct {
	Day       string // YYYY-MM-DD
	Weather   *domain.WeatherSnapshot
	GuestAges []int
	CrewCerts map[string]bool
}

// Reason explains one rule outcome that lowered the verdict.
type Reason struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type Result struct {
	Verdict string   `json:"verdict"`
	Reasons []Reason `json:"reasons,omitempty"`
}

func (r Result) Blocked() bool {
	return r.Verdict == VerdictBlocked
}

// Evaluate runs every active rule against the candidate. A violated
// block-severity rule makes the verdict blocked; a violated warning rule or
// an unknown reading makes it warn.
func Evaluate(rules []domain.EligibilityRule, c Candidate) Result {
	res := Result{Verdict: VerdictEligible}
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		for _, reason := range checkRule(rule, c) {
			res.Reasons = append(res.Reasons, reason)
			res.Verdict = lower(res.Verdict, reason)
		}
	}
	return res
}

func lower(current string, reason Reason) string {
	if reason.Severity == domain.SeverityBlock && reason.Code != "missing_data" {
		return VerdictBlocked
	}
	if current == VerdictBlocked {
		return VerdictBlocked
	}
	return VerdictWarn
}

func checkRule(rule domain.EligibilityRule, c Candidate) []Reason {
	var reasons []Reason
	add := func(code, detail string) {
		reasons = append(reasons, Reason{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Severity: rule.Severity,
			Code:     code,
			Detail:   detail,
		})
	}

	if rule.MaxWindKmh != nil {
		if c.Weather == nil || c.Weather.WindKmh == nil {
			add("missing_data", "wind reading unavailable")
		} else if *c.Weather.WindKmh > *rule.MaxWindKmh {
			add("wind_exceeded", fmt.Sprintf("wind %.1f km/h over limit %.1f", *c.Weather.WindKmh, *rule.MaxWindKmh))
		}
	}
	if rule.MaxPrecipitationMm != nil {
		if c.Weather == nil || c.Weather.PrecipitationMm == nil {
			add("missing_data", "precipitation reading unavailable")
		} else if *c.Weather.PrecipitationMm > *rule.MaxPrecipitationMm {
			add("precipitation_exceeded", fmt.Sprintf("precipitation %.1f mm over limit %.1f", *c.Weather.PrecipitationMm, *rule.MaxPrecipitationMm))
		}
	}
	if rule.MinVisibilityKm != nil {
		if c.Weather == nil || c.Weather.VisibilityKm == nil {
			add("missing_data", "visibility reading unavailable")
		} else if *c.Weather.VisibilityKm < *rule.MinVisibilityKm {
			add("visibility_below", fmt.Sprintf("visibility %.1f km under minimum %.1f", *c.Weather.VisibilityKm, *rule.MinVisibilityKm))
		}
	}
	if len(rule.AllowedConditions) > 0 {
		if c.Weather == nil || c.Weather.Condition == "" {
			add("missing_data", "weather condition unavailable")
		} else if !contains(rule.AllowedConditions, c.Weather.Condition) {
			add("condition_not_allowed", fmt.Sprintf("condition %q not in allowed set [%s]", c.Weather.Condition, strings.Join(rule.AllowedConditions, " ")))
		}
	}
	if rule.SeasonStart != "" && rule.SeasonEnd != "" {
		monthDay := dayToMonthDay(c.Day)
		if monthDay == "" {
			add("missing_data", "booking day unparseable")
		} else if !inSeason(monthDay, rule.SeasonStart, rule.SeasonEnd) {
			add("out_of_season", fmt.Sprintf("day %s outside season %s..%s", monthDay, rule.SeasonStart, rule.SeasonEnd))
		}
	}
	if rule.MinAge != nil {
		if len(c.GuestAges) == 0 {
			add("missing_data", "guest ages unavailable")
		} else {
			for _, age := range c.GuestAges {
				if age < *rule.MinAge {
					add("under_min_age", fmt.Sprintf("guest age %d under minimum %d", age, *rule.MinAge))
					break
				}
			}
		}
	}
	if len(rule.RequiredCerts) > 0 {
		var missing []string
		for _, cert := range rule.RequiredCerts {
			if !c.CrewCerts[cert] {
				missing = append(missing, cert)
			}
		}
		if len(missing) > 0 {
			add("missing_cert", "crew lacks certification: "+strings.Join(missing, ", "))
		}
	}
	return reasons
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// dayToMonthDay extracts MM-DD from a YYYY-MM-DD day.
func dayToMonthDay(day string) string {
	if len(day) != 10 || day[4] != '-' || day[7] != '-' {
		return ""
	}
	return day[5:]
}

// inSeason checks an MM-DD against an inclusive window that may wrap the
// year end, e.g. 11-01..03-31 covers November through March.
func inSeason(monthDay, start, end string) bool {
	if start <= end {
		return monthDay >= start && monthDay <= end
	}
	return monthDay >= start || monthDay <= end
}
