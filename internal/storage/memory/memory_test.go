package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymdesk/internal/accounts"
	"gymdesk/internal/calendar"
	"gymdesk/internal/eventstore"
	"gymdesk/internal/membership"
	"gymdesk/internal/plans"
)

func newMember(owner uuid.UUID, name, end string) *membership.Member {
	return &membership.Member{
		ID:        uuid.New(),
		UserID:    owner,
		Name:      name,
		Phone:     "555-0100",
		Place:     "Downtown",
		Plan:      plans.OneMonth,
		StartDate: calendar.MustParse(end).AddMonths(-1),
		EndDate:   calendar.MustParse(end),
		Notes:     "private",
		CreatedAt: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestListMembersScopesAndOrders(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner, other := uuid.New(), uuid.New()

	require.NoError(t, s.InsertMember(ctx, newMember(owner, "Early", "2025-01-10")))
	require.NoError(t, s.InsertMember(ctx, newMember(owner, "Late", "2025-03-10")))
	require.NoError(t, s.InsertMember(ctx, newMember(other, "Elsewhere", "2025-02-10")))

	got, err := s.ListMembers(ctx, owner, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Late", got[0].Name)
	assert.Equal(t, "Early", got[1].Name)
	assert.Equal(t, "private", got[0].Notes)
}

func TestListMembersProjectsFields(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()
	require.NoError(t, s.InsertMember(ctx, newMember(owner, "Ana", "2025-02-01")))

	got, err := s.ListMembers(ctx, owner, membership.ListColumns)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ana", got[0].Name)
	assert.Empty(t, got[0].Notes)
	assert.True(t, got[0].CreatedAt.IsZero())

	_, err = s.ListMembers(ctx, owner, []string{"name", "password"})
	assert.ErrorIs(t, err, membership.ErrInvalidInput)
}

func TestMemberLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()
	m := newMember(owner, "Ana", "2025-02-01")
	require.NoError(t, s.InsertMember(ctx, m))

	_, err := s.GetMember(ctx, uuid.New(), m.ID)
	assert.ErrorIs(t, err, membership.ErrNotFound, "other owners cannot see the member")

	plan := plans.ThreeMonths
	end := calendar.MustParse("2025-05-01")
	updated, err := s.UpdateMember(ctx, owner, m.ID, membership.MemberPatch{
		Plan:      &plan,
		EndDate:   &end,
		UpdatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, plans.ThreeMonths, updated.Plan)
	assert.Equal(t, "Ana", updated.Name)

	updated.Name = "mutated"
	stored, err := s.GetMember(ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.Name)
	assert.Equal(t, end, stored.EndDate)

	require.NoError(t, s.DeleteMember(ctx, owner, m.ID))
	assert.ErrorIs(t, s.DeleteMember(ctx, owner, m.ID), membership.ErrNotFound)
}

func TestGymProfile(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()

	_, err := s.GetGymProfile(ctx, owner)
	assert.ErrorIs(t, err, membership.ErrNotFound)

	p := &membership.GymProfile{ID: uuid.New(), UserID: owner, GymName: "Iron Temple",
		FormFields: []membership.FormField{{Label: "Blood group", Type: "text"}}}
	require.NoError(t, s.SaveGymProfile(ctx, p))
	p.FormFields[0].Label = "changed"

	got, err := s.GetGymProfile(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Iron Temple", got.GymName)
	assert.Equal(t, "Blood group", got.FormFields[0].Label)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &accounts.User{ID: uuid.New(), Email: "owner@gym.test", Name: "Owner"}
	c := &accounts.Credential{UserID: u.ID, PasswordHash: "h", Salt: "s"}

	require.NoError(t, s.CreateUser(ctx, u, c))
	assert.ErrorIs(t, s.CreateUser(ctx, &accounts.User{ID: uuid.New(), Email: u.Email}, c), accounts.ErrEmailTaken)

	byEmail, err := s.GetUserByEmail(ctx, "owner@gym.test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	cred, err := s.GetCredential(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h", cred.PasswordHash)

	_, err = s.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, accounts.ErrUserNotFound)
}

func TestJournalVersioning(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()

	require.NoError(t, eventstore.Record(ctx, s, id, "member", "MemberAdded", map[string]string{"name": "Ana"}, nil))
	require.NoError(t, eventstore.Record(ctx, s, id, "member", "MembershipRenewed", map[string]string{"plan": "1month"}, nil))

	version, err := s.GetCurrentVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	err = s.AppendEvents(ctx, id, "member", 1, []eventstore.Event{{EventType: "Stale"}})
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)

	events, err := s.LoadEvents(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "MemberAdded", events[0].EventType)
	assert.Equal(t, 2, events[1].Version)

	tail, err := s.LoadEvents(ctx, id, 2, 0)
	require.NoError(t, err)
	assert.Len(t, tail, 1)
}
