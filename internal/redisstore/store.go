// Package redisstore keeps messages and profiles in Redis.
//
// Layout, under a configurable prefix:
//
//	<prefix>:msg:seq       INCR counter assigning message ids
//	<prefix>:room:<room>   list of JSON messages, newest at the head
//	<prefix>:user:<id>     hash holding one profile
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatroom/pkg/types"
)

const searchPageSize = 256

// Config selects the Redis server and key namespace.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store implements interfaces.Store on a Redis client.
type Store struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// hsetIfExists updates a hash only if it already exists.
var hsetIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("HSET", KEYS[1], unpack(ARGV))
	return 1
end
return 0
`)

type record struct {
	ID             int64     `json:"id"`
	SenderID       string    `json:"sender_id"`
	SenderNickname string    `json:"sender_nickname"`
	Content        string    `json:"content"`
	Room           string    `json:"room"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"kind"`
}

// Open connects to Redis and checks the connection.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", types.ErrStoreUnavailable, cfg.Addr, err)
	}
	return New(client, cfg.KeyPrefix, logger), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "chatroom"
	}
	return &Store{
		client: client,
		prefix: strings.TrimSuffix(prefix, ":"),
		logger: logger,
		now:    time.Now,
	}
}

func (s *Store) seqKey() string             { return s.prefix + ":msg:seq" }
func (s *Store) roomKey(room string) string { return s.prefix + ":room:" + room }
func (s *Store) userKey(id string) string   { return s.prefix + ":user:" + id }

func (s *Store) Append(ctx context.Context, room, senderID, senderNickname, content string) (*types.Message, error) {
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, storeError("failed to assign message id", err)
	}

	rec := record{
		ID:             id,
		SenderID:       senderID,
		SenderNickname: senderNickname,
		Content:        content,
		Room:           room,
		Timestamp:      s.now().UTC(),
		Kind:           types.MessageKindChat,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	if err := s.client.LPush(ctx, s.roomKey(room), data).Err(); err != nil {
		return nil, storeError("failed to append message", err)
	}
	return rec.message(), nil
}

// RecentByRoom returns up to limit messages of room, newest first.
func (s *Store) RecentByRoom(ctx context.Context, room string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		return []*types.Message{}, nil
	}
	raw, err := s.client.LRange(ctx, s.roomKey(room), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, storeError("failed to read room history", err)
	}
	out := make([]*types.Message, 0, len(raw))
	for _, item := range raw {
		msg, ok := s.decode(item)
		if ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// SearchByRoom walks the room list from the newest message and returns the
// first limit messages containing query, case-insensitively.
func (s *Store) SearchByRoom(ctx context.Context, room, query string, limit int) ([]*types.Message, error) {
	out := make([]*types.Message, 0)
	if limit <= 0 {
		return out, nil
	}
	needle := strings.ToLower(query)

	for start := int64(0); ; start += searchPageSize {
		raw, err := s.client.LRange(ctx, s.roomKey(room), start, start+searchPageSize-1).Result()
		if err != nil {
			return nil, storeError("failed to search messages", err)
		}
		for _, item := range raw {
			msg, ok := s.decode(item)
			if !ok || !strings.Contains(strings.ToLower(msg.Content), needle) {
				continue
			}
			out = append(out, msg)
			if len(out) == limit {
				return out, nil
			}
		}
		if len(raw) < searchPageSize {
			return out, nil
		}
	}
}

func (s *Store) decode(item string) (*types.Message, bool) {
	var rec record
	if err := json.Unmarshal([]byte(item), &rec); err != nil {
		s.logger.Warn("redis_message_corrupt", zap.Error(err))
		return nil, false
	}
	return rec.message(), true
}

func (r record) message() *types.Message {
	return &types.Message{
		ID:             r.ID,
		SenderID:       r.SenderID,
		SenderNickname: r.SenderNickname,
		Content:        r.Content,
		Room:           r.Room,
		Timestamp:      r.Timestamp,
		Kind:           r.Kind,
	}
}

// UpsertProfile replaces the profile and clears its last-seen time.
func (s *Store) UpsertProfile(ctx context.Context, p *types.Profile) error {
	err := s.client.HSet(ctx, s.userKey(p.ID),
		"id", p.ID,
		"nickname", p.Nickname,
		"avatar", p.Avatar,
		"status", string(p.Status),
		"status_message", p.StatusMessage,
		"last_seen", "",
	).Err()
	if err != nil {
		return storeError("failed to upsert profile", err)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status types.Status, message string) error {
	err := hsetIfExists.Run(ctx, s.client, []string{s.userKey(id)},
		"status", string(status), "status_message", message).Err()
	if err != nil {
		return storeError("failed to update status", err)
	}
	return nil
}

func (s *Store) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	err := hsetIfExists.Run(ctx, s.client, []string{s.userKey(id)},
		"last_seen", at.UTC().Format(time.RFC3339Nano)).Err()
	if err != nil {
		return storeError("failed to update last seen", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*types.Profile, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, storeError("failed to read profile", err)
	}
	if len(fields) == 0 {
		return nil, types.ErrProfileNotFound
	}

	p := &types.Profile{
		ID:            id,
		Nickname:      fields["nickname"],
		Avatar:        fields["avatar"],
		Status:        types.Status(fields["status"]),
		StatusMessage: fields["status_message"],
	}
	if raw := fields["last_seen"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last seen %q: %w", raw, err)
		}
		p.LastSeen = &t
	}
	return p, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeError("redis ping failed", err)
	}
	return nil
}

// storeError wraps err, marking it ErrStoreUnavailable once the client has
// been closed.
func storeError(op string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %s: %w", types.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}
