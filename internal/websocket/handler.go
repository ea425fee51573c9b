package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatroom/internal/metrics"
	"chatroom/pkg/types"
)

// Dispatcher receives the decoded events of every connection. Events of a
// single connection are dispatched one at a time, in arrival order, and
// Disconnect is always the last call for a connection id.
type Dispatcher interface {
	Dispatch(ctx context.Context, connID string, ev *types.InboundEvent) error
	Disconnect(ctx context.Context, connID string) error
}

// Handler upgrades HTTP requests to chat sockets and pumps their frames
// into the dispatcher.
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	config     Config
	logger     *zap.Logger
	metrics    *metrics.Collectors
	upgrader   websocket.Upgrader
}

func NewHandler(registry *Registry, dispatcher Dispatcher, cfg Config, logger *zap.Logger, m *metrics.Collectors) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		config:     cfg.withDefaults(),
		logger:     logger,
		metrics:    m,
		upgrader: websocket.Upgrader{
			// no auth model; any origin may connect
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the request, assigns the connection its id and
// tells the client that id before any other frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket_upgrade_failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	conn := NewConnection(ws, uuid.NewString(), h.config)
	if err := h.registry.Register(conn); err != nil {
		h.logger.Error("connection_register_failed", zap.Error(err))
		_ = conn.Close()
		return
	}
	h.metrics.ConnectionOpened()
	h.logger.Debug("connection_opened", zap.String("conn_id", conn.ID()), zap.String("remote_addr", r.RemoteAddr))

	if err := conn.WriteJSON(types.NewEvent(types.EventConnected, types.ConnectedPayload{ID: conn.ID()})); err != nil {
		h.logger.Debug("connected_event_failed", zap.String("conn_id", conn.ID()), zap.Error(err))
	}

	go h.handleConnection(conn)
}

// handleConnection runs the read pump and the heartbeat until the socket
// fails, then retires the connection.
func (h *Handler) handleConnection(conn *Connection) {
	ctx := context.Background()

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("connection_panic", zap.String("conn_id", conn.ID()), zap.Any("panic", rec))
		}
		h.registry.Unregister(conn)
		_ = conn.Close()
		if err := h.dispatcher.Disconnect(ctx, conn.ID()); err != nil {
			h.logger.Warn("disconnect_failed", zap.String("conn_id", conn.ID()), zap.Error(err))
		}
		h.metrics.ConnectionClosed()
		h.logger.Debug("connection_closed", zap.String("conn_id", conn.ID()))
	}()

	ws := conn.conn
	ws.SetReadLimit(h.config.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Info("websocket_read_error", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleFrame(ctx, conn, data)
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// handleFrame decodes one frame and dispatches it. A panic while handling
// one event is logged and the connection keeps going.
func (h *Handler) handleFrame(ctx context.Context, conn *Connection, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("event_panic", zap.String("conn_id", conn.ID()), zap.Any("panic", rec))
		}
	}()

	var ev types.InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		if err == nil {
			err = errors.New("missing event type")
		}
		_ = conn.WriteJSON(types.NewEvent(types.EventError, types.ErrorPayload{
			Code:    "invalid_payload",
			Message: fmt.Sprintf("%v: %v", types.ErrInvalidPayload, err),
		}))
		return
	}

	if err := h.dispatcher.Dispatch(ctx, conn.ID(), &ev); err != nil {
		h.logger.Debug("event_rejected",
			zap.String("conn_id", conn.ID()),
			zap.String("event", ev.Type),
			zap.Error(err))
	}
}
