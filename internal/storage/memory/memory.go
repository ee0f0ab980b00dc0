// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gymdesk/internal/accounts"
	"gymdesk/internal/eventstore"
	"gymdesk/internal/membership"
)

// Store keeps members, gym profiles, accounts and journal events in process
// memory. It satisfies membership.Store, membership.Journal and
// accounts.Store and is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	members     map[uuid.UUID]*membership.Member
	profiles    map[uuid.UUID]*membership.GymProfile
	users       map[uuid.UUID]*accounts.User
	emails      map[string]uuid.UUID
	credentials map[uuid.UUID]*accounts.Credential
	events      map[uuid.UUID][]eventstore.Event
	nextEventID int64
	now         func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		members:     make(map[uuid.UUID]*membership.Member),
		profiles:    make(map[uuid.UUID]*membership.GymProfile),
		users:       make(map[uuid.UUID]*accounts.User),
		emails:      make(map[string]uuid.UUID),
		credentials: make(map[uuid.UUID]*accounts.Credential),
		events:      make(map[uuid.UUID][]eventstore.Event),
		now:         time.Now,
	}
}

// ListMembers returns the owner's members ordered by end date, latest first.
// Only the requested fields are filled; nil fields selects every column.
func (s *Store) ListMembers(ctx context.Context, owner uuid.UUID, fields []string) ([]membership.Member, error) {
	if err := membership.ValidateFields(fields); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]membership.Member, 0)
	for _, m := range s.members {
		if m.UserID == owner {
			out = append(out, project(m.Clone(), fields))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EndDate.Equal(out[j].EndDate.Time) {
			return out[i].EndDate.After(out[j].EndDate.Time)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// GetMember returns one of the owner's members.
func (s *Store) GetMember(ctx context.Context, owner, id uuid.UUID) (*membership.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok || m.UserID != owner {
		return nil, membership.ErrNotFound
	}
	return m.Clone(), nil
}

// InsertMember stores m.
func (s *Store) InsertMember(ctx context.Context, m *membership.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m.Clone()
	return nil
}

// UpdateMember applies patch to one of the owner's members.
func (s *Store) UpdateMember(ctx context.Context, owner, id uuid.UUID, patch membership.MemberPatch) (*membership.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok || m.UserID != owner {
		return nil, membership.ErrNotFound
	}
	updated := m.Clone()
	patch.Apply(updated)
	s.members[id] = updated.Clone()
	return updated, nil
}

// DeleteMember removes one of the owner's members.
func (s *Store) DeleteMember(ctx context.Context, owner, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok || m.UserID != owner {
		return membership.ErrNotFound
	}
	delete(s.members, id)
	return nil
}

// GetGymProfile returns the owner's gym profile.
func (s *Store) GetGymProfile(ctx context.Context, owner uuid.UUID) (*membership.GymProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[owner]
	if !ok {
		return nil, membership.ErrNotFound
	}
	return cloneProfile(p), nil
}

// SaveGymProfile creates or replaces the profile of p.UserID.
func (s *Store) SaveGymProfile(ctx context.Context, p *membership.GymProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = cloneProfile(p)
	return nil
}

// CreateUser stores an account and its credential.
func (s *Store) CreateUser(ctx context.Context, u *accounts.User, c *accounts.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[u.Email]; taken {
		return accounts.ErrEmailTaken
	}
	user := *u
	cred := *c
	s.users[u.ID] = &user
	s.emails[u.Email] = u.ID
	s.credentials[u.ID] = &cred
	return nil
}

// GetUser returns an account by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*accounts.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, accounts.ErrUserNotFound
	}
	user := *u
	return &user, nil
}

// GetUserByEmail returns an account by its normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*accounts.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, accounts.ErrUserNotFound
	}
	user := *s.users[id]
	return &user, nil
}

// GetCredential returns the password credential of an account.
func (s *Store) GetCredential(ctx context.Context, userID uuid.UUID) (*accounts.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[userID]
	if !ok {
		return nil, accounts.ErrUserNotFound
	}
	cred := *c
	return &cred, nil
}

// AppendEvents appends events to an aggregate stream whose current version
// must equal expectedVersion.
func (s *Store) AppendEvents(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []eventstore.Event) error {
	if expectedVersion < 0 {
		return eventstore.ErrInvalidVersion
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[aggregateID]
	if len(stream) != expectedVersion {
		return eventstore.ErrConcurrencyConflict
	}
	for i, e := range events {
		s.nextEventID++
		e.ID = s.nextEventID
		e.AggregateID = aggregateID
		e.AggregateType = aggregateType
		e.Version = expectedVersion + i + 1
		e.CreatedAt = s.now().UTC()
		stream = append(stream, e)
	}
	s.events[aggregateID] = stream
	return nil
}

// LoadEvents returns an aggregate's events with fromVersion <= version and,
// when toVersion is positive, version <= toVersion.
func (s *Store) LoadEvents(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]eventstore.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []eventstore.Event
	for _, e := range s.events[aggregateID] {
		if e.Version < fromVersion || (toVersion > 0 && e.Version > toVersion) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// GetCurrentVersion returns the latest version of an aggregate, 0 if none.
func (s *Store) GetCurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events[aggregateID]), nil
}

func cloneProfile(p *membership.GymProfile) *membership.GymProfile {
	c := *p
	c.FormFields = append([]membership.FormField(nil), p.FormFields...)
	return &c
}

// project zeroes the fields of m not named in fields.
func project(m *membership.Member, fields []string) membership.Member {
	if fields == nil {
		return *m
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	var out membership.Member
	if keep["id"] {
		out.ID = m.ID
	}
	if keep["user_id"] {
		out.UserID = m.UserID
	}
	if keep["gym_id"] {
		out.GymID = m.GymID
	}
	if keep["gym_name"] {
		out.GymName = m.GymName
	}
	if keep["name"] {
		out.Name = m.Name
	}
	if keep["phone"] {
		out.Phone = m.Phone
	}
	if keep["email"] {
		out.Email = m.Email
	}
	if keep["place"] {
		out.Place = m.Place
	}
	if keep["plan"] {
		out.Plan = m.Plan
	}
	if keep["start_date"] {
		out.StartDate = m.StartDate
	}
	if keep["end_date"] {
		out.EndDate = m.EndDate
	}
	if keep["notes"] {
		out.Notes = m.Notes
	}
	if keep["custom_data"] {
		out.CustomData = m.CustomData
	}
	if keep["created_at"] {
		out.CreatedAt = m.CreatedAt
	}
	if keep["updated_at"] {
		out.UpdatedAt = m.UpdatedAt
	}
	return out
}
