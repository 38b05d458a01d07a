package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

type fakeConn struct {
	id       string
	identity domain.Identity
}

func newFakeConn(id, userID, name string) *fakeConn {
	return &fakeConn{id: id, identity: domain.Identity{ID: userID, DisplayName: name}}
}

func (c *fakeConn) ID() string                { return c.id }
func (c *fakeConn) Identity() domain.Identity { return c.identity }
func (c *fakeConn) Send(domain.Event) error   { return nil }
func (c *fakeConn) Evict()                    {}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	alice := newFakeConn("c1", "u1", "alice")

	evicted := r.Register(alice.Identity(), alice)
	req.Nil(evicted)

	got, ok := r.LookupByDisplayName("alice")
	req.True(ok)
	req.Same(alice, got)

	got, ok = r.Lookup("u1")
	req.True(ok)
	req.Same(alice, got)

	_, ok = r.LookupByDisplayName("bob")
	req.False(ok)
	req.Equal(1, r.Len())
}

func TestRegistry_ReconnectEvictsPrevious(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// Given alice connected once
	first := newFakeConn("c1", "u1", "alice")
	r.Register(first.Identity(), first)

	// When she connects again
	second := newFakeConn("c2", "u1", "alice")
	evicted := r.Register(second.Identity(), second)

	// Then the first handle is returned for eviction and only the second is present
	req.Same(first, evicted)
	req.Equal([]string{"alice"}, r.Snapshot())
	got, ok := r.LookupByDisplayName("alice")
	req.True(ok)
	req.Same(second, got)
}

func TestRegistry_RegisterSameHandleTwice(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	alice := newFakeConn("c1", "u1", "alice")

	r.Register(alice.Identity(), alice)
	req.Nil(r.Register(alice.Identity(), alice))
	req.Equal(1, r.Len())
}

func TestRegistry_DeregisterStaleHandleIsNoop(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// Given alice reconnected, replacing her first connection
	first := newFakeConn("c1", "u1", "alice")
	second := newFakeConn("c2", "u1", "alice")
	r.Register(first.Identity(), first)
	r.Register(second.Identity(), second)

	// When the first connection's teardown runs
	removed := r.Deregister("u1", first)

	// Then the newer connection stays registered
	req.False(removed)
	got, ok := r.Lookup("u1")
	req.True(ok)
	req.Same(second, got)
}

func TestRegistry_DeregisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	alice := newFakeConn("c1", "u1", "alice")
	r.Register(alice.Identity(), alice)

	req.True(r.Deregister("u1", alice))
	req.False(r.Deregister("u1", alice))
	req.False(r.Deregister("unknown", alice))
	req.Equal(0, r.Len())
	req.Empty(r.Snapshot())
}

func TestRegistry_SnapshotIsInRegistrationOrder(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	for i, name := range []string{"carol", "alice", "bob"} {
		c := newFakeConn(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i), name)
		r.Register(c.Identity(), c)
	}

	req.Equal([]string{"carol", "alice", "bob"}, r.Snapshot())
	req.Len(r.Connections(), 3)
	req.Equal("carol", r.Entries()[0].Identity.DisplayName)
	req.False(r.Entries()[0].ConnectedAt.IsZero())
}

func TestRegistry_LookupByDisplayNamePrefersEarliest(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// Given two distinct identities that share a display name
	older := newFakeConn("c1", "u1", "sam")
	newer := newFakeConn("c2", "u2", "sam")
	r.Register(older.Identity(), older)
	r.Register(newer.Identity(), newer)

	// Then the earliest registration resolves the name
	for range 20 {
		got, ok := r.LookupByDisplayName("sam")
		req.True(ok)
		req.Same(older, got)
	}
}

func TestRegistry_ConcurrentRegisterDeregister(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	const workers = 32
	const rounds = 200

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range rounds {
				c := newFakeConn(fmt.Sprintf("c-%d-%d", w, i), "u1", "alice")
				r.Register(c.Identity(), c)
				if i%3 == 0 {
					r.Deregister("u1", c)
				}
			}
		}(w)
	}
	wg.Wait()

	// At most one entry per identity id, whatever the interleaving.
	req.LessOrEqual(r.Len(), 1)
	req.LessOrEqual(len(r.Snapshot()), 1)
}
