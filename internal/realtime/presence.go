package realtime

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Presence maps each online user to the one peer that last registered for
// it. A peer is bound to at most one user at a time.
type Presence struct {
	mu     sync.RWMutex
	byUser map[int64]Peer
	byPeer map[string]int64
}

// NewPresence constructs an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byUser: make(map[int64]Peer),
		byPeer: make(map[string]int64),
	}
}

// Register binds userID to p, replacing any previous peer for that user
// (last registration wins). The displaced peer, if any and distinct from p,
// is returned; it no longer resolves to userID, so its later Unregister is a
// no-op. If p was bound to a different user, that binding is dropped.
func (r *Presence) Register(userID int64, p Peer) (replaced Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byPeer[p.ID()]; ok && prev != userID {
		if cur, ok := r.byUser[prev]; ok && cur.ID() == p.ID() {
			delete(r.byUser, prev)
		}
	}
	if old, ok := r.byUser[userID]; ok && old.ID() != p.ID() {
		delete(r.byPeer, old.ID())
		replaced = old
	}
	r.byUser[userID] = p
	r.byPeer[p.ID()] = userID
	return replaced
}

// Unregister removes the binding held by p and reports the user it belonged
// to. A peer that holds no binding is a no-op.
func (r *Presence) Unregister(p Peer) (userID int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.byPeer[p.ID()]
	if !ok {
		return 0, false
	}
	delete(r.byPeer, p.ID())
	if cur, found := r.byUser[userID]; found && cur.ID() == p.ID() {
		delete(r.byUser, userID)
	}
	return userID, true
}

// Lookup returns the peer currently registered for userID.
func (r *Presence) Lookup(userID int64) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byUser[userID]
	return p, ok
}

// UserOf returns the user p is registered as.
func (r *Presence) UserOf(p Peer) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPeer[p.ID()]
	return id, ok
}

// Online returns the ids of all online users in ascending order.
func (r *Presence) Online() []int64 {
	r.mu.RLock()
	ids := lo.Keys(r.byUser)
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of online users.
func (r *Presence) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
