// Package analytics turns raw campaign counters into rates, assessments and
// breakdowns, and compares A/B test variants.
package analytics

import "github.com/vietddude/acumba/internal/core/domain"

// Rates are percentages of delivered emails.
type Rates struct {
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	BounceRate      float64 `json:"bounce_rate"`
	UnsubscribeRate float64 `json:"unsubscribe_rate"`
}

// ComputeRates derives rates from stats. All rates are zero when nothing was
// delivered.
func ComputeRates(s domain.CampaignStats) Rates {
	if s.TotalDelivered <= 0 {
		return Rates{}
	}
	total := float64(s.TotalDelivered)
	return Rates{
		OpenRate:        float64(s.Opened) / total * 100,
		ClickRate:       float64(s.UniqueClicks) / total * 100,
		BounceRate:      float64(s.HardBounces) / total * 100,
		UnsubscribeRate: float64(s.Unsubscribes) / total * 100,
	}
}

// Grade is a qualitative assessment of one rate.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeAverage   Grade = "average"
	GradeLow       Grade = "low"
	GradeHigh      Grade = "high"
)

// Assessment grades the three headline rates.
type Assessment struct {
	Open   Grade `json:"open"`
	Click  Grade `json:"click"`
	Bounce Grade `json:"bounce"`
}

// Assess grades r: opens at 25/15/10%, clicks at 3/1%, bounces at 2/5%.
func Assess(r Rates) Assessment {
	var a Assessment

	switch {
	case r.OpenRate >= 25:
		a.Open = GradeExcellent
	case r.OpenRate >= 15:
		a.Open = GradeGood
	case r.OpenRate >= 10:
		a.Open = GradeAverage
	default:
		a.Open = GradeLow
	}

	switch {
	case r.ClickRate >= 3:
		a.Click = GradeExcellent
	case r.ClickRate >= 1:
		a.Click = GradeGood
	default:
		a.Click = GradeLow
	}

	switch {
	case r.BounceRate <= 2:
		a.Bounce = GradeExcellent
	case r.BounceRate <= 5:
		a.Bounce = GradeGood
	default:
		a.Bounce = GradeHigh
	}

	return a
}

// Advice returns one hint per grade that needs work.
func (a Assessment) Advice() []string {
	var out []string
	if a.Open == GradeLow {
		out = append(out, "low open rate: consider improving subject lines")
	}
	if a.Click == GradeLow {
		out = append(out, "low click rate: consider improving content")
	}
	if a.Bounce == GradeHigh {
		out = append(out, "high bounce rate: clean your list")
	}
	return out
}
