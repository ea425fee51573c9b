// Package api serves the read-only HTTP API next to the chat socket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chatroom/internal/hub"
	"chatroom/pkg/interfaces"
	"chatroom/pkg/types"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ChatState is the part of the hub the API reads.
type ChatState interface {
	Snapshot() []types.PresenceEntry
	Profile(ctx context.Context, id string) (*types.Profile, error)
	Stats() hub.Stats
}

// StoreReader is the part of the store the API reads.
type StoreReader interface {
	interfaces.MessageStore
	HealthCheck(ctx context.Context) error
}

type Server struct {
	chat     ChatState
	store    StoreReader
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   *mux.Router
	started  time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics exposes g at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func NewServer(chat ChatState, store StoreReader, opts ...Option) *Server {
	s := &Server{
		chat:    chat,
		store:   store,
		logger:  zap.NewNop(),
		router:  mux.NewRouter(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonMiddleware)
	api.HandleFunc("/users", s.listUsers).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/rooms/{room}/messages", s.roomMessages).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/rooms/{room}/search", s.searchRoom).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/profiles/{id}", s.getProfile).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet, http.MethodOptions)

	s.router.Handle("/health", jsonMiddleware(http.HandlerFunc(s.healthCheck))).Methods(http.MethodGet, http.MethodOptions)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handle mounts an extra handler, such as the chat socket, on the router.
func (s *Server) Handle(path string, h http.Handler) {
	s.router.Handle(path, h)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Database    string    `json:"database"`
	Connections int       `json:"connections"`
	UsersOnline int       `json:"users_online"`
	Uptime      string    `json:"uptime"`
}

type MessagesResponse struct {
	Room     string           `json:"room"`
	Messages []*types.Message `json:"messages"`
}

type SearchResponse struct {
	Room     string           `json:"room"`
	Query    string           `json:"query"`
	Messages []*types.Message `json:"messages"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, dbStatus, code := "healthy", "healthy", http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		status, dbStatus, code = "unhealthy", "error: "+err.Error(), http.StatusServiceUnavailable
	}

	stats := s.chat.Stats()
	s.writeJSON(w, code, HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: stats.Connections,
		UsersOnline: stats.UsersOnline,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chat.Snapshot())
}

// roomMessages returns the newest messages of a room, oldest first.
func (s *Server) roomMessages(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	if !types.IsValidRoom(room) {
		s.sendError(w, types.ErrInvalidRoom.Error(), http.StatusBadRequest)
		return
	}
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	msgs, err := s.store.RecentByRoom(r.Context(), room, limit)
	if err != nil {
		s.logger.Error("api_history_failed", zap.String("room", room), zap.Error(err))
		s.sendError(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	s.writeJSON(w, http.StatusOK, MessagesResponse{Room: room, Messages: msgs})
}

func (s *Server) searchRoom(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	if !types.IsValidRoom(room) {
		s.sendError(w, types.ErrInvalidRoom.Error(), http.StatusBadRequest)
		return
	}
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")

	msgs, err := s.store.SearchByRoom(r.Context(), room, query, limit)
	if err != nil {
		s.logger.Error("api_search_failed", zap.String("room", room), zap.Error(err))
		s.sendError(w, "Failed to search messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	s.writeJSON(w, http.StatusOK, SearchResponse{Room: room, Query: query, Messages: msgs})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.chat.Profile(r.Context(), id)
	switch {
	case errors.Is(err, types.ErrProfileNotFound):
		s.sendError(w, "Profile not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("api_profile_failed", zap.String("id", id), zap.Error(err))
		s.sendError(w, "Failed to load profile", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.chat.Stats())
}

func (s *Server) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("api_encode_failed", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
