// Package profile keeps durable user profiles in step with live presence.
package profile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatroom/pkg/interfaces"
	"chatroom/pkg/types"
)

// Manager writes profile changes through to a ProfileStore and caches the
// profiles of connected users. Entries leave the cache when the user is
// marked seen on disconnect.
type Manager struct {
	store   interfaces.ProfileStore
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	active map[string]*types.Profile
}

func NewManager(store interfaces.ProfileStore, logger *zap.Logger, timeout time.Duration) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		store:   store,
		logger:  logger,
		timeout: timeout,
		active:  make(map[string]*types.Profile),
	}
}

// Register caches the profile of a freshly joined user and upserts it.
// The cache is updated even when the store write fails.
func (m *Manager) Register(ctx context.Context, user *types.User) error {
	p := types.ProfileFromUser(user)

	m.mu.Lock()
	m.active[p.ID] = p
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cp := *p
	if err := m.store.UpsertProfile(ctx, &cp); err != nil {
		m.logger.Warn("profile_upsert_failed", zap.String("conn_id", p.ID), zap.Error(err))
		return fmt.Errorf("failed to register profile: %w", err)
	}
	return nil
}

// UpdateStatus records a status change.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status types.Status, message string) error {
	m.mu.Lock()
	if p, ok := m.active[id]; ok {
		p.Status = status
		p.StatusMessage = message
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.UpdateStatus(ctx, id, status, message); err != nil {
		m.logger.Warn("profile_status_failed", zap.String("conn_id", id), zap.Error(err))
		return fmt.Errorf("failed to update profile status: %w", err)
	}
	return nil
}

// MarkSeen stamps the last-seen time and drops the profile from the cache.
func (m *Manager) MarkSeen(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.TouchLastSeen(ctx, id, at); err != nil {
		m.logger.Warn("profile_last_seen_failed", zap.String("conn_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark profile seen: %w", err)
	}
	return nil
}

// Get returns the cached profile of a connected user, or the stored one.
func (m *Manager) Get(ctx context.Context, id string) (*types.Profile, error) {
	m.mu.RLock()
	if p, ok := m.active[id]; ok {
		cp := *p
		m.mu.RUnlock()
		return &cp, nil
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.store.GetProfile(ctx, id)
}

// ActiveCount returns how many profiles are cached.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
