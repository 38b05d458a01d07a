// Package presence keeps the in-process map of identities that currently
// hold a live realtime connection.
package presence

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/core/ports"
)

// Entry is a read-only view of one registered connection.
type Entry struct {
	Identity    domain.Identity
	Conn        ports.Connection
	ConnectedAt time.Time
}

type entry struct {
	Entry
	seq uint64
}

// Registry holds at most one connection per identity id. All operations are
// serialized by a single mutex; callers never see the underlying map.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	now     func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register records conn as the live connection for identity. If another
// connection was registered for the same id it is replaced and returned so
// the caller can evict it. Registering the same handle twice is a no-op.
func (r *Registry) Register(identity domain.Identity, conn ports.Connection) (evicted ports.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[identity.ID]; ok {
		if prev.Conn == conn {
			return nil
		}
		evicted = prev.Conn
	}

	r.seq++
	r.entries[identity.ID] = &entry{
		Entry: Entry{
			Identity:    identity,
			Conn:        conn,
			ConnectedAt: r.now(),
		},
		seq: r.seq,
	}
	return evicted
}

// Deregister removes the entry for id only if conn is still the registered
// handle. It reports whether anything was removed; a stale handle is ignored.
func (r *Registry) Deregister(id string, conn ports.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.entries[id]
	if !ok || cur.Conn != conn {
		return false
	}
	delete(r.entries, id)
	return true
}

// LookupByDisplayName returns the connection registered under name. When more
// than one identity shares the name the earliest registration wins.
func (r *Registry) LookupByDisplayName(name string) (ports.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *entry
	for _, e := range r.entries {
		if e.Identity.DisplayName != name {
			continue
		}
		if found == nil || e.seq < found.seq {
			found = e
		}
	}
	if found == nil {
		return nil, false
	}
	return found.Conn, true
}

// Lookup returns the connection registered for identity id.
func (r *Registry) Lookup(id string) (ports.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// Snapshot returns the display names of every present identity in
// registration order.
func (r *Registry) Snapshot() []string {
	return lo.Map(r.Entries(), func(e Entry, _ int) string {
		return e.Identity.DisplayName
	})
}

// Connections returns every registered connection in registration order.
func (r *Registry) Connections() []ports.Connection {
	return lo.Map(r.Entries(), func(e Entry, _ int) ports.Connection {
		return e.Conn
	})
}

// Entries returns a copy of every entry in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	ordered := lo.Values(r.entries)
	r.mu.Unlock()

	slices.SortFunc(ordered, func(a, b *entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return lo.Map(ordered, func(e *entry, _ int) Entry {
		return e.Entry
	})
}

// Len returns the number of present identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
