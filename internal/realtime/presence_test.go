package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresence_RegisterLookupUnregister(t *testing.T) {
	r := NewPresence()
	a := newFakePeer("a")

	require.Nil(t, r.Register(7, a))
	p, ok := r.Lookup(7)
	require.True(t, ok)
	require.Equal(t, "a", p.ID())
	uid, ok := r.UserOf(a)
	require.True(t, ok)
	require.EqualValues(t, 7, uid)

	uid, ok = r.Unregister(a)
	require.True(t, ok)
	require.EqualValues(t, 7, uid)
	_, ok = r.Lookup(7)
	require.False(t, ok)

	_, ok = r.Unregister(a)
	require.False(t, ok, "second unregister is a no-op")
}

func TestPresence_LastRegistrationWins(t *testing.T) {
	r := NewPresence()
	first, second := newFakePeer("first"), newFakePeer("second")

	r.Register(7, first)
	replaced := r.Register(7, second)
	require.NotNil(t, replaced)
	require.Equal(t, "first", replaced.ID())

	p, _ := r.Lookup(7)
	require.Equal(t, "second", p.ID())

	_, ok := r.Unregister(first)
	require.False(t, ok, "displaced peer no longer owns the user")
	_, ok = r.Lookup(7)
	require.True(t, ok)
}

func TestPresence_ReRegisterUnderOtherUser(t *testing.T) {
	r := NewPresence()
	a := newFakePeer("a")
	r.Register(1, a)
	r.Register(2, a)

	_, ok := r.Lookup(1)
	require.False(t, ok)
	require.Equal(t, []int64{2}, r.Online())
	require.Equal(t, 1, r.Len())
}

func TestPresence_Online_Sorted(t *testing.T) {
	r := NewPresence()
	r.Register(9, newFakePeer("x"))
	r.Register(3, newFakePeer("y"))
	r.Register(5, newFakePeer("z"))
	require.Equal(t, []int64{3, 5, 9}, r.Online())
}

func TestPresence_ConcurrentRegisterUnregister(t *testing.T) {
	r := NewPresence()
	const users, peersPerUser = 8, 6

	peers := make([][]*fakePeer, users)
	for u := range peers {
		for i := 0; i < peersPerUser; i++ {
			peers[u] = append(peers[u], newFakePeer(fmt.Sprintf("u%d-p%d", u, i)))
		}
	}

	var wg sync.WaitGroup
	for u := range peers {
		for _, p := range peers[u] {
			wg.Add(1)
			go func(uid int64, p *fakePeer) {
				defer wg.Done()
				r.Register(uid, p)
				_, _ = r.Lookup(uid)
				_ = r.Online()
			}(int64(u+1), p)
		}
	}
	wg.Wait()

	// Exactly one peer per user holds the binding, and it resolves back.
	require.Equal(t, users, r.Len())
	for u := range peers {
		uid := int64(u + 1)
		cur, ok := r.Lookup(uid)
		require.True(t, ok)
		bound := 0
		for _, p := range peers[u] {
			if got, ok := r.UserOf(p); ok {
				require.Equal(t, uid, got)
				require.Equal(t, cur.ID(), p.ID())
				bound++
			}
		}
		require.Equal(t, 1, bound)
	}

	for u := range peers {
		for _, p := range peers[u] {
			wg.Add(1)
			go func(p *fakePeer) {
				defer wg.Done()
				r.Unregister(p)
			}(p)
		}
	}
	wg.Wait()
	require.Zero(t, r.Len())
	require.Empty(t, r.Online())
}
