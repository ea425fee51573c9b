// Package hub coordinates the chat: it owns presence, room membership and
// the bot, and turns client events into state changes and deliveries.
package hub

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatroom/internal/bot"
	"chatroom/internal/metrics"
	"chatroom/internal/presence"
	"chatroom/internal/profile"
	"chatroom/internal/router"
	"chatroom/pkg/interfaces"
	"chatroom/pkg/types"
)

// Config tunes the hub.
type Config struct {
	HistoryLimit    int
	SearchLimit     int
	StoreTimeout    time.Duration
	RateLimit       float64 // messages per second per connection; <= 0 disables
	RateBurst       int
	LimiterIdleTTL  time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		HistoryLimit:    50,
		SearchLimit:     50,
		StoreTimeout:    5 * time.Second,
		RateLimit:       5,
		RateBurst:       10,
		LimiterIdleTTL:  5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Option customizes a Hub at construction.
type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

func WithMetrics(c *metrics.Collectors) Option {
	return func(h *Hub) { h.metrics = c }
}

func WithInterpreter(i *bot.Interpreter) Option {
	return func(h *Hub) { h.bot = i }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

const roomLockStripes = 64

// Hub is the connection lifecycle coordinator. Every piece of chat state
// lives on the instance.
type Hub struct {
	config   Config
	conns    interfaces.ConnectionDirectory
	store    interfaces.MessageStore
	profiles *profile.Manager
	presence *presence.Registry
	rooms    *router.Router
	bot      *bot.Interpreter
	limiter  *limiterPool
	metrics  *metrics.Collectors
	logger   *zap.Logger
	now      func() time.Time

	// stateMu makes multi-step presence and room transitions atomic.
	// It is never held across store I/O or delivery.
	stateMu sync.Mutex

	// roomLocks serialize append-then-enqueue per room and outboxes deliver
	// in queue order, so broadcast order matches store order.
	roomLocks [roomLockStripes]sync.Mutex
	outboxes  [roomLockStripes]outbox

	running         bool
	shutdownChannel chan struct{}
	mu              sync.RWMutex
}

// NewHub wires a hub to the connection directory and the store.
func NewHub(cfg Config, conns interfaces.ConnectionDirectory, store interfaces.Store, opts ...Option) *Hub {
	h := &Hub{
		config:   cfg,
		conns:    conns,
		store:    store,
		presence: presence.NewRegistry(),
		rooms:    router.NewRouter(),
		limiter:  newLimiterPool(cfg.RateLimit, cfg.RateBurst),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.bot == nil {
		h.bot = bot.NewInterpreter()
	}
	if h.config.StoreTimeout <= 0 {
		h.config.StoreTimeout = DefaultConfig().StoreTimeout
	}
	h.profiles = profile.NewManager(store, h.logger, h.config.StoreTimeout)
	return h
}

// Start launches the maintenance loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})

	h.logger.Info("hub_started")
	go h.run(ctx, h.shutdownChannel)
	return nil
}

// Stop ends the maintenance loop. Dispatch fails until the next Start.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)

	h.logger.Info("hub_stopped")
	return nil
}

func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}) {
	interval := h.config.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := h.limiter.Cleanup(h.config.LimiterIdleTTL, h.now()); n > 0 {
				h.logger.Debug("rate_limiters_pruned", zap.Int("count", n))
			}
		case <-shutdown:
			return
		case <-ctx.Done():
			h.logger.Info("hub_context_cancelled")
			return
		}
	}
}

// Snapshot returns the presence list in join order.
func (h *Hub) Snapshot() []types.PresenceEntry {
	return h.presence.Snapshot()
}

// Profile returns the live or stored profile of a connection id.
func (h *Hub) Profile(ctx context.Context, id string) (*types.Profile, error) {
	return h.profiles.Get(ctx, id)
}

// User returns the live presence record of a joined connection.
func (h *Hub) User(id string) (*types.User, bool) {
	return h.presence.Get(id)
}

// Stats summarizes hub state for the HTTP API.
type Stats struct {
	Connections    int          `json:"connections"`
	UsersOnline    int          `json:"users_online"`
	ActiveProfiles int          `json:"active_profiles"`
	RateLimiters   int          `json:"rate_limiters"`
	Rooms          router.Stats `json:"rooms"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		Connections:    h.conns.Count(),
		UsersOnline:    h.presence.Count(),
		ActiveProfiles: h.profiles.ActiveCount(),
		RateLimiters:   h.limiter.Len(),
		Rooms:          h.rooms.Stats(),
	}
}

func roomStripe(room string) uint32 {
	f := fnv.New32a()
	_, _ = f.Write([]byte(room))
	return f.Sum32() % roomLockStripes
}

func (h *Hub) roomLock(room string) *sync.Mutex {
	return &h.roomLocks[roomStripe(room)]
}

// history loads the last messages of room in chronological order. Store
// failures yield an empty history.
func (h *Hub) history(ctx context.Context, room string) []*types.Message {
	ctx, cancel := context.WithTimeout(ctx, h.config.StoreTimeout)
	defer cancel()

	msgs, err := h.store.RecentByRoom(ctx, room, h.config.HistoryLimit)
	if err != nil {
		h.logger.Warn("history_load_failed", zap.String("room", room), zap.Error(err))
		return []*types.Message{}
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	return msgs
}

func (h *Hub) send(connID string, ev *types.OutboundEvent) {
	conn, ok := h.conns.Get(connID)
	if !ok {
		return
	}
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("event_delivery_failed",
			zap.String("conn_id", connID),
			zap.String("event", ev.Type),
			zap.Error(err))
	}
}

func (h *Hub) sendTo(ids []string, ev *types.OutboundEvent) {
	for _, id := range ids {
		h.send(id, ev)
	}
}

// broadcast delivers ev to every live connection except the one given.
func (h *Hub) broadcast(ev *types.OutboundEvent, except string) {
	for _, conn := range h.conns.All() {
		if conn.ID() == except {
			continue
		}
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debug("event_delivery_failed",
				zap.String("conn_id", conn.ID()),
				zap.String("event", ev.Type),
				zap.Error(err))
		}
	}
}

func (h *Hub) broadcastPresence() {
	h.broadcast(types.NewEvent(types.EventPresenceUpdate, h.presence.Snapshot()), "")
}

func (h *Hub) sendError(connID string, err error) {
	h.send(connID, types.NewEvent(types.EventError, types.ErrorPayload{
		Code:    errorCode(err),
		Message: err.Error(),
	}))
}
