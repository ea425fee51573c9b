// Package presence keeps the set of joined users in join order.
package presence

import (
	"sync"

	"chatroom/pkg/types"
)

// Registry maps connection ids to their live User. Snapshots list users in
// the order they joined; a re-join keeps the original position.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*types.User
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*types.User),
	}
}

// Upsert stores a copy of user, replacing any previous record with the same id.
func (r *Registry) Upsert(user *types.User) {
	if user == nil || user.ID == "" {
		return
	}
	cp := *user

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; !exists {
		r.order = append(r.order, user.ID)
	}
	r.users[user.ID] = &cp
}

// Get returns a copy of the user registered under id.
func (r *Registry) Get(id string) (*types.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// Remove deletes the user and returns its last state.
func (r *Registry) Remove(id string) (*types.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, false
	}
	delete(r.users, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return u, true
}

// AllUsers returns copies of every joined user in join order.
func (r *Registry) AllUsers() []*types.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.User, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.users[id]
		out = append(out, &cp)
	}
	return out
}

// Snapshot returns the presence entries of every joined user in join order.
func (r *Registry) Snapshot() []types.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.PresenceEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id].Entry())
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// SetRoom records the user's current room.
func (r *Registry) SetRoom(id, room string) (*types.User, bool) {
	return r.update(id, func(u *types.User) {
		u.CurrentRoom = room
	})
}

// SetStatus overwrites status and status message unconditionally.
func (r *Registry) SetStatus(id string, status types.Status, message string) (*types.User, bool) {
	return r.update(id, func(u *types.User) {
		u.Status = status
		u.StatusMessage = message
	})
}

// SetTyping sets the typing flag. changed is false when the flag already had
// the requested value.
func (r *Registry) SetTyping(id string, typing bool) (user *types.User, changed bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, false, false
	}
	if u.IsTyping != typing {
		u.IsTyping = typing
		changed = true
	}
	cp := *u
	return &cp, changed, true
}

func (r *Registry) update(id string, fn func(u *types.User)) (*types.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, false
	}
	fn(u)
	cp := *u
	return &cp, true
}
