// internal/membership/domain.go
package membership

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"gymdesk/internal/calendar"
	"gymdesk/internal/plans"
)

var (
	ErrNotFound     = errors.New("member not found")
	ErrInvalidPlan  = errors.New("unrecognized membership plan")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUnavailable  = errors.New("member roster unavailable")
)

// Member is a gym member owned by one account.
type Member struct {
	ID         uuid.UUID         `json:"id"`
	UserID     uuid.UUID         `json:"user_id"`
	GymID      *uuid.UUID        `json:"gym_id,omitempty"`
	GymName    string            `json:"gym_name,omitempty"`
	Name       string            `json:"name"`
	Phone      string            `json:"phone"`
	Email      string            `json:"email,omitempty"`
	Place      string            `json:"place"`
	Plan       plans.Code        `json:"plan"`
	StartDate  calendar.Date     `json:"start_date"`
	EndDate    calendar.Date     `json:"end_date"`
	Notes      string            `json:"notes,omitempty"`
	CustomData map[string]string `json:"custom_data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so cached members are never shared mutably.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	c := *m
	if m.GymID != nil {
		id := *m.GymID
		c.GymID = &id
	}
	if m.CustomData != nil {
		c.CustomData = make(map[string]string, len(m.CustomData))
		for k, v := range m.CustomData {
			c.CustomData[k] = v
		}
	}
	return &c
}

// Columns lists the member fields a roster listing may select.
var Columns = []string{
	"id", "user_id", "gym_id", "gym_name", "name", "phone", "email", "place",
	"plan", "start_date", "end_date", "notes", "custom_data", "created_at", "updated_at",
}

// ListColumns is the projection used for roster listings.
var ListColumns = []string{"id", "user_id", "name", "phone", "email", "place", "plan", "start_date", "end_date"}

// ValidateFields checks a listing projection against Columns.
func ValidateFields(fields []string) error {
	for _, f := range fields {
		known := false
		for _, c := range Columns {
			if f == c {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: unknown member field %q", ErrInvalidInput, f)
		}
	}
	return nil
}

// MemberPatch is a partial update. Nil fields are left unchanged;
// UpdatedAt is always written.
type MemberPatch struct {
	Name       *string
	Phone      *string
	Email      *string
	Place      *string
	Plan       *plans.Code
	StartDate  *calendar.Date
	EndDate    *calendar.Date
	Notes      *string
	CustomData map[string]string
	UpdatedAt  time.Time
}

// Apply writes the patch onto m.
func (p MemberPatch) Apply(m *Member) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Phone != nil {
		m.Phone = *p.Phone
	}
	if p.Email != nil {
		m.Email = *p.Email
	}
	if p.Place != nil {
		m.Place = *p.Place
	}
	if p.Plan != nil {
		m.Plan = *p.Plan
	}
	if p.StartDate != nil {
		m.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		m.EndDate = *p.EndDate
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
	if p.CustomData != nil {
		m.CustomData = p.CustomData
	}
	m.UpdatedAt = p.UpdatedAt
}

// Field is one column assignment of a patch.
type Field struct {
	Column string
	Value  interface{}
}

// Fields returns the patch's column assignments sorted by column name.
func (p MemberPatch) Fields() []Field {
	var out []Field
	add := func(col string, v interface{}) { out = append(out, Field{Column: col, Value: v}) }
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.Place != nil {
		add("place", *p.Place)
	}
	if p.Plan != nil {
		add("plan", string(*p.Plan))
	}
	if p.StartDate != nil {
		add("start_date", *p.StartDate)
	}
	if p.EndDate != nil {
		add("end_date", *p.EndDate)
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.CustomData != nil {
		add("custom_data", p.CustomData)
	}
	add("updated_at", p.UpdatedAt)
	sort.Slice(out, func(i, j int) bool { return out[i].Column < out[j].Column })
	return out
}

// MemberInput is what a create or edit form submits.
type MemberInput struct {
	Name       string            `json:"name"`
	Phone      string            `json:"phone"`
	Email      string            `json:"email"`
	Place      string            `json:"place"`
	Plan       plans.Code        `json:"plan"`
	StartDate  calendar.Date     `json:"start_date"`
	Notes      string            `json:"notes"`
	CustomData map[string]string `json:"custom_data"`
}

// FormField is a custom field a gym adds to its member form.
type FormField struct {
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
}

// GymProfile describes the gym an account runs.
type GymProfile struct {
	ID         uuid.UUID   `json:"id"`
	UserID     uuid.UUID   `json:"user_id"`
	GymName    string      `json:"gym_name"`
	FormFields []FormField `json:"form_fields"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ProfileInput is the editable part of a gym profile.
type ProfileInput struct {
	GymName    string      `json:"gym_name"`
	FormFields []FormField `json:"form_fields"`
}

// HistoryType distinguishes the first membership period from renewals.
type HistoryType string

const (
	HistoryStart HistoryType = "start"
	HistoryRenew HistoryType = "renew"
)

// HistoryEntry is one membership period seen during the current session.
type HistoryEntry struct {
	Type      HistoryType   `json:"type"`
	Plan      plans.Code    `json:"plan"`
	StartDate calendar.Date `json:"start_date"`
	EndDate   calendar.Date `json:"end_date"`
}

// Journal event payloads.
const (
	aggregateMember = "member"

	EventMemberAdded       = "MemberAdded"
	EventMemberUpdated     = "MemberUpdated"
	EventMembershipRenewed = "MembershipRenewed"
	EventMemberDeleted     = "MemberDeleted"
)

// MemberAddedEvent is journaled when a member is created.
type MemberAddedEvent struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Plan      plans.Code    `json:"plan"`
	StartDate calendar.Date `json:"start_date"`
	EndDate   calendar.Date `json:"end_date"`
}

// MemberUpdatedEvent is journaled when a member is edited.
type MemberUpdatedEvent struct {
	ID        uuid.UUID     `json:"id"`
	Plan      plans.Code    `json:"plan"`
	StartDate calendar.Date `json:"start_date"`
	EndDate   calendar.Date `json:"end_date"`
}

// MembershipRenewedEvent is journaled when a membership is renewed.
type MembershipRenewedEvent struct {
	ID           uuid.UUID     `json:"id"`
	Plan         plans.Code    `json:"plan"`
	PreviousEnd  calendar.Date `json:"previous_end_date"`
	NewStartDate calendar.Date `json:"start_date"`
	NewEndDate   calendar.Date `json:"end_date"`
}

// MemberDeletedEvent is journaled when a member is removed.
type MemberDeletedEvent struct {
	ID uuid.UUID `json:"id"`
}
