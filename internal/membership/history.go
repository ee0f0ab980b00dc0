// internal/membership/history.go
package membership

import (
	"sync"

	"github.com/google/uuid"
)

// History is the ordered list of membership periods seen for one member
// during an owner's session. It is never persisted.
type History struct {
	entries []HistoryEntry
}

// NewHistory seeds a history with the member's current period.
func NewHistory(m *Member) *History {
	return &History{entries: []HistoryEntry{{
		Type:      HistoryStart,
		Plan:      m.Plan,
		StartDate: m.StartDate,
		EndDate:   m.EndDate,
	}}}
}

// Append adds an entry after the existing ones.
func (h *History) Append(e HistoryEntry) {
	h.entries = append(h.entries, e)
}

// Entries returns a copy of the entries in order.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

type memberKey struct {
	Owner uuid.UUID
	ID    uuid.UUID
}

// historyBook holds the session histories of every member an owner has
// opened, until the owner logs out.
type historyBook struct {
	mu      sync.Mutex
	entries map[memberKey]*History
}

func newHistoryBook() *historyBook {
	return &historyBook{entries: make(map[memberKey]*History)}
}

// seed starts a history from m unless one exists, and returns its entries.
func (b *historyBook) seed(key memberKey, m *Member) []HistoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.entries[key]
	if !ok {
		h = NewHistory(m)
		b.entries[key] = h
	}
	return h.Entries()
}

// appendEntry seeds from before when needed, then appends e.
func (b *historyBook) appendEntry(key memberKey, before *Member, e HistoryEntry) []HistoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.entries[key]
	if !ok {
		h = NewHistory(before)
		b.entries[key] = h
	}
	h.Append(e)
	return h.Entries()
}

func (b *historyBook) forget(key memberKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

func (b *historyBook) forgetOwner(owner uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.entries {
		if key.Owner == owner {
			delete(b.entries, key)
		}
	}
}
