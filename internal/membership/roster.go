// internal/membership/roster.go
package membership

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gymdesk/internal/cache"
)

const (
	DefaultRosterTTL = 5 * time.Minute
	DefaultDetailTTL = 3 * time.Minute
)

// RosterConfig sets the freshness windows of the roster caches.
type RosterConfig struct {
	ListTTL   time.Duration
	DetailTTL time.Duration
	Clock     func() time.Time
}

// Roster is the single source of "the roster as last fetched" for every
// view of an owner's members: one list slot per owner and one detail slot
// per member.
type Roster struct {
	store   Store
	lists   *cache.Keyed[uuid.UUID, []Member]
	details *cache.Keyed[memberKey, *Member]
}

// NewRoster creates empty caches over store.
func NewRoster(store Store, logger *zap.Logger, cfg RosterConfig) *Roster {
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = DefaultRosterTTL
	}
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = DefaultDetailTTL
	}
	return &Roster{
		store: store,
		lists: cache.NewKeyed[uuid.UUID, []Member](cache.Options{
			Name:   "roster",
			TTL:    cfg.ListTTL,
			Clock:  cfg.Clock,
			Logger: logger,
		}),
		details: cache.NewKeyed[memberKey, *Member](cache.Options{
			Name:   "member_detail",
			TTL:    cfg.DetailTTL,
			Clock:  cfg.Clock,
			Logger: logger,
		}),
	}
}

// GetRoster returns the owner's roster ordered by end date, newest first.
// A failed or skipped fetch leaves whatever was cached in place; check
// Populated before trusting Data.
func (r *Roster) GetRoster(ctx context.Context, owner uuid.UUID, force bool) cache.Snapshot[[]Member] {
	return r.lists.Get(ctx, owner, force, func(ctx context.Context) ([]Member, error) {
		return r.store.ListMembers(ctx, owner, ListColumns)
	})
}

// GetMember returns one member through the detail cache.
func (r *Roster) GetMember(ctx context.Context, owner, id uuid.UUID, force bool) cache.Snapshot[*Member] {
	return r.details.Get(ctx, memberKey{Owner: owner, ID: id}, force, func(ctx context.Context) (*Member, error) {
		return r.store.GetMember(ctx, owner, id)
	})
}

// InvalidateMember drops the owner's roster and the member's detail entry.
func (r *Roster) InvalidateMember(owner, id uuid.UUID) {
	r.lists.Invalidate(owner)
	r.details.Invalidate(memberKey{Owner: owner, ID: id})
}

// InvalidateRoster drops the owner's roster entry.
func (r *Roster) InvalidateRoster(owner uuid.UUID) {
	r.lists.Invalidate(owner)
}

// ForgetOwner drops every entry belonging to owner.
func (r *Roster) ForgetOwner(owner uuid.UUID) {
	r.lists.Invalidate(owner)
	r.details.InvalidateFunc(func(k memberKey) bool { return k.Owner == owner })
}
