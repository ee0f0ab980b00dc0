// internal/membership/service.go
package membership

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gymdesk/internal/calendar"
	"gymdesk/internal/eventstore"
	"gymdesk/internal/plans"
)

// Store is the member store the service reads and writes. Every call is
// scoped to the owning account.
type Store interface {
	ListMembers(ctx context.Context, owner uuid.UUID, fields []string) ([]Member, error)
	GetMember(ctx context.Context, owner, id uuid.UUID) (*Member, error)
	InsertMember(ctx context.Context, m *Member) error
	UpdateMember(ctx context.Context, owner, id uuid.UUID, patch MemberPatch) (*Member, error)
	DeleteMember(ctx context.Context, owner, id uuid.UUID) error
	GetGymProfile(ctx context.Context, owner uuid.UUID) (*GymProfile, error)
	SaveGymProfile(ctx context.Context, p *GymProfile) error
}

// Journal records member writes for audit.
type Journal interface {
	eventstore.Appender
	LoadEvents(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]eventstore.Event, error)
}

// RosterQuery selects a filtered view of the roster.
type RosterQuery struct {
	FilterOptions
	Refresh bool
}

// RosterView is a filtered roster with cache metadata.
type RosterView struct {
	Members   []Member  `json:"members"`
	Total     int       `json:"total"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}

// Dashboard is the owner's home screen.
type Dashboard struct {
	Stats     Stats     `json:"stats"`
	Recent    []Member  `json:"recent"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}

// MemberDetail is a single member with its session history.
type MemberDetail struct {
	Member    *Member        `json:"member"`
	Status    Status         `json:"status"`
	History   []HistoryEntry `json:"history"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Renewal is the outcome of a successful renewal.
type Renewal struct {
	Member  *Member        `json:"member"`
	History []HistoryEntry `json:"history"`
}

// Reminder is a ready-to-send renewal nudge for a member.
type Reminder struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	SMSLink string `json:"sms_link"`
	TelLink string `json:"tel_link"`
}

// Service defines the interface for the membership service.
type Service interface {
	Roster(ctx context.Context, owner uuid.UUID, q RosterQuery) (*RosterView, error)
	Dashboard(ctx context.Context, owner uuid.UUID, refresh bool) (*Dashboard, error)
	AddMember(ctx context.Context, owner uuid.UUID, in MemberInput) (*Member, error)
	GetMember(ctx context.Context, owner, id uuid.UUID, refresh bool) (*MemberDetail, error)
	UpdateMember(ctx context.Context, owner, id uuid.UUID, in MemberInput) (*Member, error)
	RenewMember(ctx context.Context, owner, id uuid.UUID, plan plans.Code, start calendar.Date) (*Renewal, error)
	DeleteMember(ctx context.Context, owner, id uuid.UUID) error
	MemberJournal(ctx context.Context, owner, id uuid.UUID) ([]eventstore.Event, error)
	Reminder(ctx context.Context, owner, id uuid.UUID) (*Reminder, error)
	GymProfile(ctx context.Context, owner uuid.UUID) (*GymProfile, error)
	SaveGymProfile(ctx context.Context, owner uuid.UUID, in ProfileInput) (*GymProfile, error)
	PreviewEndDate(start calendar.Date, plan plans.Code) (calendar.Date, error)
	ForgetOwner(owner uuid.UUID)
}
