// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gymdesk/internal/cache"
	"gymdesk/internal/calendar"
	"gymdesk/internal/eventstore"
	"gymdesk/internal/plans"
)

// Config tunes the membership service.
type Config struct {
	RosterTTL  time.Duration
	DetailTTL  time.Duration
	WriteLimit rate.Limit
	WriteBurst int
	// RecentCount is how many active members the dashboard lists.
	RecentCount int
	Clock       func() time.Time
}

// service implements the Service interface.
type service struct {
	store       Store
	journal     Journal
	roster      *Roster
	history     *historyBook
	log         *zap.Logger
	rateLimiter *rate.Limiter
	text        *bluemonday.Policy
	recent      int
	now         func() time.Time
}

// NewService creates a new membership service instance. journal may be nil.
func NewService(store Store, journal Journal, logger *zap.Logger, cfg Config) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.WriteLimit == 0 {
		cfg.WriteLimit = rate.Every(100 * time.Millisecond)
	}
	if cfg.WriteBurst <= 0 {
		cfg.WriteBurst = 20
	}
	if cfg.RecentCount <= 0 {
		cfg.RecentCount = 5
	}
	return &service{
		store:   store,
		journal: journal,
		roster: NewRoster(store, logger, RosterConfig{
			ListTTL:   cfg.RosterTTL,
			DetailTTL: cfg.DetailTTL,
			Clock:     cfg.Clock,
		}),
		history:     newHistoryBook(),
		log:         logger,
		rateLimiter: rate.NewLimiter(cfg.WriteLimit, cfg.WriteBurst),
		text:        bluemonday.StrictPolicy(),
		recent:      cfg.RecentCount,
		now:         cfg.Clock,
	}
}

// Roster returns the owner's roster filtered by q.
func (s *service) Roster(ctx context.Context, owner uuid.UUID, q RosterQuery) (*RosterView, error) {
	snap := s.roster.GetRoster(ctx, owner, q.Refresh)
	if !snap.Populated {
		return nil, ErrUnavailable
	}
	now := s.now()
	return &RosterView{
		Members:   FilterRoster(snap.Data, q.FilterOptions, now),
		Total:     len(snap.Data),
		FetchedAt: snap.FetchedAt,
		Stale:     isStale(snap.Outcome),
	}, nil
}

// Dashboard returns roster stats and the most recent active members.
func (s *service) Dashboard(ctx context.Context, owner uuid.UUID, refresh bool) (*Dashboard, error) {
	snap := s.roster.GetRoster(ctx, owner, refresh)
	if !snap.Populated {
		return nil, ErrUnavailable
	}
	now := s.now()
	return &Dashboard{
		Stats:     ComputeStats(snap.Data, now),
		Recent:    FilterRoster(snap.Data, FilterOptions{Status: FilterActive, Max: s.recent}, now),
		FetchedAt: snap.FetchedAt,
		Stale:     isStale(snap.Outcome),
	}, nil
}

// AddMember creates a member whose end date follows from the plan.
func (s *service) AddMember(ctx context.Context, owner uuid.UUID, in MemberInput) (*Member, error) {
	in, err := s.cleanInput(in)
	if err != nil {
		return nil, err
	}
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	profile, err := s.store.GetGymProfile(ctx, owner)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load gym profile: %w", err)
	}

	now := s.now().UTC()
	member := &Member{
		ID:         uuid.New(),
		UserID:     owner,
		Name:       in.Name,
		Phone:      in.Phone,
		Email:      in.Email,
		Place:      in.Place,
		Plan:       in.Plan,
		StartDate:  in.StartDate,
		EndDate:    plans.ComputeEndDate(in.StartDate, in.Plan),
		Notes:      in.Notes,
		CustomData: in.CustomData,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if profile != nil {
		gymID := profile.ID
		member.GymID = &gymID
		member.GymName = profile.GymName
	}

	if err := s.store.InsertMember(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	s.roster.InvalidateRoster(owner)

	s.record(ctx, owner, member.ID, EventMemberAdded, MemberAddedEvent{
		ID:        member.ID,
		Name:      member.Name,
		Plan:      member.Plan,
		StartDate: member.StartDate,
		EndDate:   member.EndDate,
	})
	return member, nil
}

// GetMember returns a member through the detail cache, seeding its
// session history on first view.
func (s *service) GetMember(ctx context.Context, owner, id uuid.UUID, refresh bool) (*MemberDetail, error) {
	snap := s.roster.GetMember(ctx, owner, id, refresh)
	if !snap.Populated {
		if errors.Is(snap.Err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrUnavailable
	}
	member := snap.Data.Clone()
	return &MemberDetail{
		Member:    member,
		Status:    StatusOf(member.EndDate, s.now()),
		History:   s.history.seed(memberKey{Owner: owner, ID: id}, member),
		FetchedAt: snap.FetchedAt,
	}, nil
}

// UpdateMember rewrites a member's details and recomputes the end date.
func (s *service) UpdateMember(ctx context.Context, owner, id uuid.UUID, in MemberInput) (*Member, error) {
	in, err := s.cleanInput(in)
	if err != nil {
		return nil, err
	}
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	end := plans.ComputeEndDate(in.StartDate, in.Plan)
	patch := MemberPatch{
		Name:      &in.Name,
		Phone:     &in.Phone,
		Email:     &in.Email,
		Place:     &in.Place,
		Plan:      &in.Plan,
		StartDate: &in.StartDate,
		EndDate:   &end,
		Notes:     &in.Notes,
		UpdatedAt: s.now().UTC(),
	}
	if in.CustomData != nil {
		patch.CustomData = in.CustomData
	}

	updated, err := s.store.UpdateMember(ctx, owner, id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update member: %w", err)
	}
	s.roster.InvalidateMember(owner, id)
	s.history.forget(memberKey{Owner: owner, ID: id})

	s.record(ctx, owner, id, EventMemberUpdated, MemberUpdatedEvent{
		ID:        id,
		Plan:      updated.Plan,
		StartDate: updated.StartDate,
		EndDate:   updated.EndDate,
	})
	return updated, nil
}

// RenewMember starts a new plan period at start. A zero start continues
// from the current end date while the membership is active, and from today
// once it has lapsed.
func (s *service) RenewMember(ctx context.Context, owner, id uuid.UUID, plan plans.Code, start calendar.Date) (*Renewal, error) {
	if !plans.Valid(plan) {
		return nil, ErrInvalidPlan
	}
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	current, err := s.store.GetMember(ctx, owner, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}

	if start.IsZero() {
		start = renewalStart(current.EndDate, s.now())
	}
	end := plans.ComputeEndDate(start, plan)
	updated, err := s.store.UpdateMember(ctx, owner, id, MemberPatch{
		Plan:      &plan,
		StartDate: &start,
		EndDate:   &end,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to renew member: %w", err)
	}
	s.roster.InvalidateMember(owner, id)

	history := s.history.appendEntry(memberKey{Owner: owner, ID: id}, current, HistoryEntry{
		Type:      HistoryRenew,
		Plan:      plan,
		StartDate: start,
		EndDate:   end,
	})

	s.record(ctx, owner, id, EventMembershipRenewed, MembershipRenewedEvent{
		ID:           id,
		Plan:         plan,
		PreviousEnd:  current.EndDate,
		NewStartDate: start,
		NewEndDate:   end,
	})
	return &Renewal{Member: updated, History: history}, nil
}

func renewalStart(end calendar.Date, now time.Time) calendar.Date {
	if IsActive(end, now) {
		return end
	}
	return calendar.Of(now.UTC())
}

// DeleteMember removes a member.
func (s *service) DeleteMember(ctx context.Context, owner, id uuid.UUID) error {
	if !s.rateLimiter.Allow() {
		return ErrRateLimited
	}
	if err := s.store.DeleteMember(ctx, owner, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete member: %w", err)
	}
	s.roster.InvalidateMember(owner, id)
	s.history.forget(memberKey{Owner: owner, ID: id})

	s.record(ctx, owner, id, EventMemberDeleted, MemberDeletedEvent{ID: id})
	return nil
}

// MemberJournal returns the audit events of one of the owner's members.
func (s *service) MemberJournal(ctx context.Context, owner, id uuid.UUID) ([]eventstore.Event, error) {
	if _, err := s.store.GetMember(ctx, owner, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	if s.journal == nil {
		return []eventstore.Event{}, nil
	}
	events, err := s.journal.LoadEvents(ctx, id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	if events == nil {
		events = []eventstore.Event{}
	}
	return events, nil
}

// Reminder builds the renewal message for a member.
func (s *service) Reminder(ctx context.Context, owner, id uuid.UUID) (*Reminder, error) {
	detail, err := s.GetMember(ctx, owner, id, false)
	if err != nil {
		return nil, err
	}
	m := detail.Member

	var msg string
	if detail.Status == StatusActive {
		msg = fmt.Sprintf("Hi %s, your gym membership (%s) ends on %s. Please renew to keep training.",
			m.Name, plans.Label(m.Plan), m.EndDate.Format("02 Jan 2006"))
	} else {
		msg = fmt.Sprintf("Hi %s, your gym membership (%s) has expired. Please renew.",
			m.Name, plans.Label(m.Plan))
	}
	if m.GymName != "" {
		msg += " - " + m.GymName
	}

	return &Reminder{
		Phone:   m.Phone,
		Message: msg,
		SMSLink: "sms:" + m.Phone + "?body=" + url.QueryEscape(msg),
		TelLink: "tel:" + m.Phone,
	}, nil
}

// GymProfile returns the owner's gym profile.
func (s *service) GymProfile(ctx context.Context, owner uuid.UUID) (*GymProfile, error) {
	p, err := s.store.GetGymProfile(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load gym profile: %w", err)
	}
	return p, nil
}

// SaveGymProfile creates or replaces the owner's gym profile.
func (s *service) SaveGymProfile(ctx context.Context, owner uuid.UUID, in ProfileInput) (*GymProfile, error) {
	name := s.clean(in.GymName)
	if name == "" {
		return nil, fmt.Errorf("%w: gym name is required", ErrInvalidInput)
	}
	fields := make([]FormField, 0, len(in.FormFields))
	seen := make(map[string]bool, len(in.FormFields))
	for _, f := range in.FormFields {
		label := s.clean(f.Label)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		typ := strings.ToLower(strings.TrimSpace(f.Type))
		if typ == "" {
			typ = "text"
		}
		fields = append(fields, FormField{Label: label, Type: typ})
	}
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	now := s.now().UTC()
	profile, err := s.store.GetGymProfile(ctx, owner)
	switch {
	case errors.Is(err, ErrNotFound):
		profile = &GymProfile{ID: uuid.New(), UserID: owner, CreatedAt: now}
	case err != nil:
		return nil, fmt.Errorf("failed to load gym profile: %w", err)
	}
	profile.GymName = name
	profile.FormFields = fields
	profile.UpdatedAt = now

	if err := s.store.SaveGymProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save gym profile: %w", err)
	}
	return profile, nil
}

// PreviewEndDate computes the end date a form would submit.
func (s *service) PreviewEndDate(start calendar.Date, plan plans.Code) (calendar.Date, error) {
	if !plans.Valid(plan) {
		return calendar.Date{}, ErrInvalidPlan
	}
	return plans.ComputeEndDate(start, plan), nil
}

// ForgetOwner drops every cache entry and session history of owner.
func (s *service) ForgetOwner(owner uuid.UUID) {
	s.roster.ForgetOwner(owner)
	s.history.forgetOwner(owner)
}

// isStale reports whether a roster snapshot may lag the store: the fetch
// failed, or another one was already running.
func isStale(o cache.Outcome) bool {
	return o == cache.Failed || o == cache.Busy
}

func (s *service) cleanInput(in MemberInput) (MemberInput, error) {
	in.Name = s.clean(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Place = s.clean(in.Place)
	in.Notes = s.clean(in.Notes)
	in.Plan = plans.Code(strings.TrimSpace(string(in.Plan)))

	if in.Name == "" {
		return in, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Phone == "" {
		return in, fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		return in, fmt.Errorf("%w: email %q is not an address", ErrInvalidInput, in.Email)
	}
	if in.Plan == "" {
		in.Plan = plans.OneMonth
	}
	if !plans.Valid(in.Plan) {
		return in, ErrInvalidPlan
	}
	if in.StartDate.IsZero() {
		in.StartDate = calendar.Of(s.now().UTC())
	}
	if in.CustomData != nil {
		cleaned := make(map[string]string, len(in.CustomData))
		for k, v := range in.CustomData {
			if k = s.clean(k); k != "" {
				cleaned[k] = s.clean(v)
			}
		}
		in.CustomData = cleaned
	}
	return in, nil
}

// clean strips markup from free text and trims it.
func (s *service) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.text.Sanitize(v)))
}

// record journals a write. The write has already landed, so a journal
// failure is logged rather than returned.
func (s *service) record(ctx context.Context, owner, id uuid.UUID, eventType string, data interface{}) {
	if s.journal == nil {
		return
	}
	meta := map[string]interface{}{"user_id": owner.String()}
	if err := eventstore.Record(ctx, s.journal, id, aggregateMember, eventType, data, meta); err != nil {
		s.log.Error("failed to journal member event",
			zap.String("event_type", eventType),
			zap.String("member_id", id.String()),
			zap.Error(err))
	}
}
