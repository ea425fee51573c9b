package websocket

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"chatroom/pkg/interfaces"
)

// Registry tracks every live socket by connection id. It is the chat hub's
// connection directory.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	logger      *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		connections: make(map[string]*Connection),
		logger:      logger,
	}
}

// Register adds conn. A connection already registered under the same id is
// replaced and closed.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if conn.ID() == "" {
		return ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[conn.ID()]; ok && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.Debug("replaced_connection_close_failed", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
		}()
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes conn if it is still the registered instance for its id.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.connections[conn.ID()]; ok && registered == conn {
		delete(r.connections, conn.ID())
	}
}

func (r *Registry) Get(id string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	if !ok {
		return nil, false
	}
	return conn, true
}

// All returns every registered connection ordered by id.
func (r *Registry) All() []interfaces.Connection {
	r.mu.RLock()
	ids := make([]string, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]interfaces.Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.connections[id])
	}
	r.mu.RUnlock()
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes every registered connection. Their read loops then
// unregister them.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
