package router

import (
	"sort"
	"strings"
	"sync"

	"chatroom/pkg/types"
)

// Router tracks which connections are subscribed to which rooms.
// A connection may belong to several rooms at once; empty rooms are dropped.
type Router struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]struct{} // room -> connection ids
	memberships map[string]map[string]struct{} // connection id -> rooms
}

func NewRouter() *Router {
	return &Router{
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Stats summarizes the router for monitoring.
type Stats struct {
	Rooms         int            `json:"rooms"`
	Subscriptions int            `json:"subscriptions"`
	Members       map[string]int `json:"members"`
}

// PrivateRoomID returns the room shared by two connections. Argument order
// does not matter.
func PrivateRoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return types.PrivateRoomPrefix + a + "_" + b
}

// CanEnter reports whether connID may use room. Private rooms admit only
// the two connections they were built from.
func CanEnter(room, connID string) bool {
	rest, ok := strings.CutPrefix(room, types.PrivateRoomPrefix)
	if !ok {
		return true
	}
	return strings.HasPrefix(rest, connID+"_") || strings.HasSuffix(rest, "_"+connID)
}

// Subscribe adds connID to room. Subscribing twice is a no-op.
func (r *Router) Subscribe(connID, room string) {
	if connID == "" || room == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeLocked(connID, room)
}

// Unsubscribe removes connID from room.
func (r *Router) Unsubscribe(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(connID, room)
}

// Move leaves from and joins to in one step, so no reader observes the
// connection in neither room. An empty from only subscribes.
func (r *Router) Move(connID, from, to string) {
	if connID == "" || to == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if from != "" && from != to {
		r.unsubscribeLocked(connID, from)
	}
	r.subscribeLocked(connID, to)
}

// RemoveAll drops every subscription of connID and returns the rooms it left.
func (r *Router) RemoveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := sortedKeys(r.memberships[connID])
	for _, room := range rooms {
		r.unsubscribeLocked(connID, room)
	}
	return rooms
}

// MembersOf returns the connection ids subscribed to room, sorted.
func (r *Router) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rooms[room])
}

// Others returns the members of room except connID.
func (r *Router) Others(room, connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]string, 0, len(members))
	for id := range members {
		if id != connID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RoomsOf returns the rooms connID is subscribed to, sorted.
func (r *Router) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.memberships[connID])
}

func (r *Router) IsMember(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][connID]
	return ok
}

func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Rooms:   len(r.rooms),
		Members: make(map[string]int, len(r.rooms)),
	}
	for room, members := range r.rooms {
		s.Members[room] = len(members)
		s.Subscriptions += len(members)
	}
	return s
}

func (r *Router) subscribeLocked(connID, room string) {
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][connID] = struct{}{}

	if r.memberships[connID] == nil {
		r.memberships[connID] = make(map[string]struct{})
	}
	r.memberships[connID][room] = struct{}{}
}

func (r *Router) unsubscribeLocked(connID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.memberships[connID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.memberships, connID)
		}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
