// internal/plans/plans.go
package plans

import (
	"gymdesk/internal/calendar"
)

// Code identifies a membership plan.
type Code string

const (
	OneMonth    Code = "1month"
	TwoMonths   Code = "2months"
	ThreeMonths Code = "3months"
	SixMonths   Code = "6months"
	OneYear     Code = "1year"
)

// Plan describes a membership duration.
type Plan struct {
	Code   Code   `json:"code"`
	Label  string `json:"label"`
	Months int    `json:"months"`
}

var catalog = []Plan{
	{Code: OneMonth, Label: "1 Month", Months: 1},
	{Code: TwoMonths, Label: "2 Months", Months: 2},
	{Code: ThreeMonths, Label: "3 Months", Months: 3},
	{Code: SixMonths, Label: "6 Months", Months: 6},
	{Code: OneYear, Label: "1 Year", Months: 12},
}

// All returns the plans in display order.
func All() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

func lookup(code Code) (Plan, bool) {
	for _, p := range catalog {
		if p.Code == code {
			return p, true
		}
	}
	return Plan{}, false
}

// Valid reports whether code is a recognized plan.
func Valid(code Code) bool {
	_, ok := lookup(code)
	return ok
}

// Months returns the number of calendar months a plan covers, or 0 for an
// unrecognized code.
func Months(code Code) int {
	p, _ := lookup(code)
	return p.Months
}

// Label returns the display name of a plan, or the raw code when unknown.
func Label(code Code) string {
	if p, ok := lookup(code); ok {
		return p.Label
	}
	return string(code)
}

// ComputeEndDate returns the day a membership of the given plan starting on
// start runs out. An unrecognized plan leaves the date unchanged.
func ComputeEndDate(start calendar.Date, code Code) calendar.Date {
	p, ok := lookup(code)
	if !ok {
		return start
	}
	return start.AddMonths(p.Months)
}
