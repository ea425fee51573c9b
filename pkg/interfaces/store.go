package interfaces

import (
	"context"
	"time"

	"chatroom/pkg/types"
)

// MessageStore is the durable, append-only message log.
type MessageStore interface {
	// Append stores a chat line and returns it with the store-assigned id
	// and timestamp.
	Append(ctx context.Context, room, senderID, senderNickname, content string) (*types.Message, error)

	// RecentByRoom returns up to limit messages of a room, newest first.
	RecentByRoom(ctx context.Context, room string, limit int) ([]*types.Message, error)

	// SearchByRoom returns up to limit messages of a room whose content
	// contains query, case-insensitively, newest first.
	SearchByRoom(ctx context.Context, room, query string, limit int) ([]*types.Message, error)
}

// ProfileStore keeps the durable user profiles.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, profile *types.Profile) error
	UpdateStatus(ctx context.Context, id string, status types.Status, message string) error
	TouchLastSeen(ctx context.Context, id string, at time.Time) error

	// GetProfile returns types.ErrProfileNotFound for unknown ids.
	GetProfile(ctx context.Context, id string) (*types.Profile, error)
}

// Store is a complete persistence backend.
type Store interface {
	MessageStore
	ProfileStore

	HealthCheck(ctx context.Context) error
	Close() error
}
