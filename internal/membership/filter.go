// internal/membership/filter.go
package membership

import (
	"strings"
	"time"
)

// StatusFilter selects members by membership state.
type StatusFilter string

const (
	FilterAll     StatusFilter = "all"
	FilterActive  StatusFilter = "active"
	FilterExpired StatusFilter = "expired"
)

// FilterOptions narrows a roster. Max <= 0 means no limit.
type FilterOptions struct {
	Status StatusFilter
	Search string
	Max    int
}

// FilterRoster returns the members matching opts, in roster order. The
// status stage runs first against the single reference time now, then a
// case-insensitive substring match on name, place and email, then the
// Max cut. members is never modified; an unknown status keeps everyone.
func FilterRoster(members []Member, opts FilterOptions, now time.Time) []Member {
	search := strings.ToLower(strings.TrimSpace(opts.Search))

	out := make([]Member, 0, len(members))
	for i := range members {
		m := &members[i]
		switch opts.Status {
		case FilterActive:
			if !IsActive(m.EndDate, now) {
				continue
			}
		case FilterExpired:
			if !IsExpired(m.EndDate, now) {
				continue
			}
		}
		if search != "" && !matches(m, search) {
			continue
		}
		out = append(out, *m)
	}

	if opts.Max > 0 && len(out) > opts.Max {
		out = out[:opts.Max]
	}
	return out
}

func matches(m *Member, needle string) bool {
	for _, field := range []string{m.Name, m.Place, m.Email} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// ParseStatusFilter maps a query value to a filter, defaulting to all.
func ParseStatusFilter(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterActive:
		return FilterActive
	case FilterExpired:
		return FilterExpired
	}
	return FilterAll
}
