package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatroom/internal/hub"
	"chatroom/internal/router"
	"chatroom/pkg/types"
)

type fakeChat struct {
	users    []types.PresenceEntry
	profiles map[string]*types.Profile
	stats    hub.Stats
}

func (f *fakeChat) Snapshot() []types.PresenceEntry { return f.users }

func (f *fakeChat) Profile(ctx context.Context, id string) (*types.Profile, error) {
	if id == "broken" {
		return nil, errors.New("db gone")
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, types.ErrProfileNotFound
	}
	return p, nil
}

func (f *fakeChat) Stats() hub.Stats { return f.stats }

type fakeStore struct {
	messages  []*types.Message // newest first
	healthErr error
	lastLimit int
	lastQuery string
}

func (f *fakeStore) Append(ctx context.Context, room, senderID, senderNickname, content string) (*types.Message, error) {
	return nil, errors.New("read only")
}

func (f *fakeStore) RecentByRoom(ctx context.Context, room string, limit int) ([]*types.Message, error) {
	f.lastLimit = limit
	var out []*types.Message
	for _, m := range f.messages {
		if m.Room == room && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) SearchByRoom(ctx context.Context, room, query string, limit int) ([]*types.Message, error) {
	f.lastLimit = limit
	f.lastQuery = query
	var out []*types.Message
	for _, m := range f.messages {
		if m.Room == room && strings.Contains(strings.ToLower(m.Content), strings.ToLower(query)) && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return f.healthErr }

func newTestServer(opts ...Option) (*Server, *fakeChat, *fakeStore) {
	chat := &fakeChat{
		users: []types.PresenceEntry{
			{ID: "a", Nickname: "Ann", Avatar: "👤", Status: types.StatusOnline},
			{ID: "b", Nickname: "Bob", Avatar: "👤", Status: types.StatusBusy},
		},
		profiles: map[string]*types.Profile{
			"a": {ID: "a", Nickname: "Ann", Avatar: "👤", Status: types.StatusOnline},
		},
		stats: hub.Stats{
			Connections: 3,
			UsersOnline: 2,
			Rooms:       router.Stats{Rooms: 1, Subscriptions: 2, Members: map[string]int{"general": 2}},
		},
	}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{messages: []*types.Message{
		{ID: 3, Room: "general", Content: "third HELLO", Timestamp: ts.Add(3 * time.Second)},
		{ID: 2, Room: "general", Content: "second", Timestamp: ts.Add(2 * time.Second)},
		{ID: 1, Room: "general", Content: "first hello", Timestamp: ts.Add(time.Second)},
	}}
	return NewServer(chat, store, opts...), chat, store
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestServer_Health(t *testing.T) {
	s, _, store := newTestServer()

	w := do(t, s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 3, resp.Connections)
	assert.Equal(t, 2, resp.UsersOnline)

	store.healthErr = errors.New("disk on fire")
	w = do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Contains(t, resp.Database, "disk on fire")
}

func TestServer_Users(t *testing.T) {
	s, _, _ := newTestServer()

	w := do(t, s, http.MethodGet, "/api/users")
	require.Equal(t, http.StatusOK, w.Code)

	var users []types.PresenceEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "Ann", users[0].Nickname)
	assert.Equal(t, types.StatusBusy, users[1].Status)
}

func TestServer_RoomMessagesAreChronological(t *testing.T) {
	s, _, store := newTestServer()

	w := do(t, s, http.MethodGet, "/api/rooms/general/messages")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultLimit, store.lastLimit)

	var resp MessagesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, int64(1), resp.Messages[0].ID)
	assert.Equal(t, int64(3), resp.Messages[2].ID)

	w = do(t, s, http.MethodGet, "/api/rooms/general/messages?limit=2")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, int64(2), resp.Messages[0].ID)

	w = do(t, s, http.MethodGet, "/api/rooms/empty/messages")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messages":[]`)
}

func TestServer_RoomMessagesValidation(t *testing.T) {
	s, _, store := newTestServer()

	for _, target := range []string{
		"/api/rooms/general/messages?limit=zero",
		"/api/rooms/general/messages?limit=-1",
		"/api/rooms/bad%20room/messages",
	} {
		w := do(t, s, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}

	do(t, s, http.MethodGet, "/api/rooms/general/messages?limit=100000")
	assert.Equal(t, maxLimit, store.lastLimit)
}

func TestServer_Search(t *testing.T) {
	s, _, store := newTestServer()

	w := do(t, s, http.MethodGet, "/api/rooms/general/search?q=hello&limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", store.lastQuery)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, int64(3), resp.Messages[0].ID)
	assert.Equal(t, int64(1), resp.Messages[1].ID)
}

func TestServer_Profile(t *testing.T) {
	s, _, _ := newTestServer()

	w := do(t, s, http.MethodGet, "/api/profiles/a")
	require.Equal(t, http.StatusOK, w.Code)
	var p types.Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "Ann", p.Nickname)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/profiles/nobody").Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/api/profiles/broken").Code)
}

func TestServer_Stats(t *testing.T) {
	s, _, _ := newTestServer()

	w := do(t, s, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats hub.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Connections)
	assert.Equal(t, 2, stats.Rooms.Members["general"])
}

func TestServer_CORSAndMethods(t *testing.T) {
	s, _, _ := newTestServer()

	w := do(t, s, http.MethodOptions, "/api/users")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodPost, "/api/users").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/nothing").Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _, _ := newTestServer()
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics").Code)

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "chatroom_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s, _, _ = newTestServer(WithMetrics(reg))
	w := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chatroom_test_total 1")
}

func TestServer_Handle(t *testing.T) {
	s, _, _ := newTestServer()
	s.Handle("/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	assert.Equal(t, http.StatusTeapot, do(t, s, http.MethodGet, "/ws").Code)
}
