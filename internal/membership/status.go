// internal/membership/status.go
package membership

import (
	"time"

	"gymdesk/internal/calendar"
)

// Status is the display state of a membership.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// IsActive reports whether a membership ending on end is still running at
// now. The end date counts from its first instant (midnight UTC).
func IsActive(end calendar.Date, now time.Time) bool {
	return end.After(now)
}

// IsExpired reports whether a membership ending on end had run out before
// now. At the exact end instant neither IsActive nor IsExpired holds.
func IsExpired(end calendar.Date, now time.Time) bool {
	return end.Before(now)
}

// StatusOf is the badge shown for a member: anything not active reads as
// expired, including the boundary instant.
func StatusOf(end calendar.Date, now time.Time) Status {
	if IsActive(end, now) {
		return StatusActive
	}
	return StatusExpired
}

// Stats summarizes a roster for the dashboard.
type Stats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Expired      int `json:"expired"`
	NewThisMonth int `json:"new_this_month"`
}

// ComputeStats counts members against a single reference time.
func ComputeStats(members []Member, now time.Time) Stats {
	s := Stats{Total: len(members)}
	for i := range members {
		if IsActive(members[i].EndDate, now) {
			s.Active++
		}
		if members[i].StartDate.SameMonth(now) {
			s.NewThisMonth++
		}
	}
	s.Expired = s.Total - s.Active
	return s
}
