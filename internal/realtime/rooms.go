package realtime

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Rooms maps a room address to the set of peers subscribed to it, and each
// peer to the rooms it joined. Membership is not checked against
// conversation participancy here.
type Rooms struct {
	mu       sync.RWMutex
	members  map[string]map[string]Peer     // room -> peerID -> peer
	memberOf map[string]map[string]struct{} // peerID -> rooms
}

// NewRooms constructs an empty router.
func NewRooms() *Rooms {
	return &Rooms{
		members:  make(map[string]map[string]Peer),
		memberOf: make(map[string]map[string]struct{}),
	}
}

// Join subscribes p to room. Joining twice has no further effect; the
// result reports whether p was newly added.
func (r *Rooms) Join(room string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.members[room]
	if set == nil {
		set = make(map[string]Peer)
		r.members[room] = set
	}
	if _, ok := set[p.ID()]; ok {
		return false
	}
	set[p.ID()] = p

	joined := r.memberOf[p.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		r.memberOf[p.ID()] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave unsubscribes p from room. Empty rooms are dropped.
func (r *Rooms) Leave(room string, p Peer) {
	r.mu.Lock()
	r.leaveLocked(room, p.ID())
	r.mu.Unlock()
}

// LeaveAll unsubscribes p from every room and returns the rooms it left.
func (r *Rooms) LeaveAll(p Peer) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := lo.Keys(r.memberOf[p.ID()])
	for _, room := range left {
		r.leaveLocked(room, p.ID())
	}
	slices.Sort(left)
	return left
}

func (r *Rooms) leaveLocked(room, peerID string) {
	if set := r.members[room]; set != nil {
		delete(set, peerID)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if joined := r.memberOf[peerID]; joined != nil {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.memberOf, peerID)
		}
	}
}

// Members returns a snapshot of the peers in room.
func (r *Rooms) Members(room string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.members[room])
}

// RoomsOf returns the rooms p joined, sorted.
func (r *Rooms) RoomsOf(p Peer) []string {
	r.mu.RLock()
	out := lo.Keys(r.memberOf[p.ID()])
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Count returns the number of non-empty rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast sends payload to every member of room except the peer whose id
// is excludeID (empty excludes nobody). Members are snapshotted under the
// read lock and written to outside it, so a member that fails or leaves
// mid-iteration is skipped without affecting the others. It returns the
// number of peers that accepted the payload.
func (r *Rooms) Broadcast(room string, payload []byte, excludeID string) (delivered int) {
	targets := lo.Filter(r.Members(room), func(p Peer, _ int) bool {
		return excludeID == "" || p.ID() != excludeID
	})
	for _, p := range targets {
		if err := p.Send(payload); err != nil {
			deliveries.WithLabelValues(deliveryDropped).Inc()
			continue
		}
		deliveries.WithLabelValues(deliveryOK).Inc()
		delivered++
	}
	return delivered
}
