package hub

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"chatroom/pkg/interfaces"
	"chatroom/pkg/types"
)

var errStoreDown = errors.New("store down")

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []*types.OutboundEvent

	// set by stall: WriteJSON blocks until gate is closed
	gate      chan struct{}
	stalled   chan struct{}
	stallOnce sync.Once
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) WriteJSON(v interface{}) error {
	ev, ok := v.(*types.OutboundEvent)
	if !ok {
		return errors.New("unexpected frame")
	}
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		c.stallOnce.Do(func() { close(c.stalled) })
		<-gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error { return nil }

// all returns every event received so far.
func (c *fakeConn) all() []*types.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.OutboundEvent(nil), c.events...)
}

// of returns the received events of one type.
func (c *fakeConn) of(eventType string) []*types.OutboundEvent {
	var out []*types.OutboundEvent
	for _, ev := range c.all() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) eventTypes() []string {
	var out []string
	for _, ev := range c.all() {
		out = append(out, ev.Type)
	}
	return out
}

// stall makes every later WriteJSON block until the returned channel is
// closed.
func (c *fakeConn) stall() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
	c.stalled = make(chan struct{})
	return c.gate
}

// waitStalled waits until a write has blocked on the gate.
func (c *fakeConn) waitStalled(t *testing.T) {
	t.Helper()
	select {
	case <-c.stalled:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s never received a write", c.id)
	}
}

// contents returns the text of every chat-message received.
func (c *fakeConn) contents() []string {
	var out []string
	for _, ev := range c.of(types.EventChatMessage) {
		out = append(out, ev.Data.(*types.Message).Content)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type fakeDirectory struct {
	mu    sync.RWMutex
	conns map[string]*fakeConn
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{conns: make(map[string]*fakeConn)}
}

func (d *fakeDirectory) add(id string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &fakeConn{id: id}
	d.conns[id] = c
	return c
}

func (d *fakeDirectory) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, id)
}

func (d *fakeDirectory) Get(id string) (interfaces.Connection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.conns[id]
	if !ok {
		return nil, false
	}
	return c, true
}

func (d *fakeDirectory) All() []interfaces.Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.conns))
	for id := range d.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]interfaces.Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.conns[id])
	}
	return out
}

func (d *fakeDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}

// memStore is an in-memory interfaces.Store.
type memStore struct {
	mu       sync.Mutex
	messages []*types.Message
	profiles map[string]*types.Profile
	failing  bool
	base     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		profiles: make(map[string]*types.Profile),
		base:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *memStore) count(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.Room == room {
			n++
		}
	}
	return n
}

func (s *memStore) Append(ctx context.Context, room, senderID, senderNickname, content string) (*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	id := int64(len(s.messages) + 1)
	m := &types.Message{
		ID:             id,
		SenderID:       senderID,
		SenderNickname: senderNickname,
		Content:        content,
		Room:           room,
		Timestamp:      s.base.Add(time.Duration(id) * time.Second),
		Kind:           types.MessageKindChat,
	}
	s.messages = append(s.messages, m)
	cp := *m
	return &cp, nil
}

func (s *memStore) RecentByRoom(ctx context.Context, room string, limit int) ([]*types.Message, error) {
	return s.SearchByRoom(ctx, room, "", limit)
}

func (s *memStore) SearchByRoom(ctx context.Context, room, query string, limit int) ([]*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	var out []*types.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if m.Room != room || !strings.Contains(strings.ToLower(m.Content), strings.ToLower(query)) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) UpsertProfile(ctx context.Context, p *types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, status types.Status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	if p, ok := s.profiles[id]; ok {
		p.Status = status
		p.StatusMessage = message
	}
	return nil
}

func (s *memStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	if p, ok := s.profiles[id]; ok {
		t := at
		p.LastSeen = &t
	}
	return nil
}

func (s *memStore) GetProfile(ctx context.Context, id string) (*types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, types.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) HealthCheck(ctx context.Context) error { return nil }
func (s *memStore) Close() error                          { return nil }

type testEnv struct {
	hub   *Hub
	dir   *fakeDirectory
	store *memStore
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	dir := newFakeDirectory()
	store := newMemStore()
	return &testEnv{hub: NewHub(cfg, dir, store, opts...), dir: dir, store: store}
}

// join connects id and joins it under nickname.
func (e *testEnv) join(t *testing.T, id, nickname string) *fakeConn {
	t.Helper()
	c := e.dir.add(id)
	if err := e.hub.Join(context.Background(), id, types.JoinRequest{Nickname: nickname}); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return c
}

func (e *testEnv) resetAll() {
	e.dir.mu.RLock()
	defer e.dir.mu.RUnlock()
	for _, c := range e.dir.conns {
		c.reset()
	}
}
