package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	dbconfig "chatroom/pkg/database"
	"chatroom/pkg/types"
)

// driverName is go-sqlite3 with a unicode-aware lower() registered as
// fold(), used by message search.
const driverName = "sqlite3_chatroom"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

// Manager is the SQLite implementation of interfaces.Store.
// All writes go through a single goroutine; reads use the pool directly.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *zap.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the embedded migrations and starts
// the writer goroutine.
func NewManager(config *dbconfig.Config, logger *zap.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(config.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := dbconfig.NewMigrationManager(db, dbconfig.Migrations())
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema check failed: %w", err)
	}

	m := &Manager{
		db:           db,
		config:       config,
		logger:       logger,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	logger.Info("database_opened", zap.String("path", config.DatabasePath))
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn("database_write_failed", zap.Error(err))
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug("database_write_loop_stopped")
			return
		}
	}
}

// executeWrite queues a write operation and waits for its result.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrShuttingDown
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrShuttingDown
	}
}

// Append inserts a chat message and returns it with its id and timestamp.
func (m *Manager) Append(ctx context.Context, room, senderID, senderNickname, content string) (*types.Message, error) {
	msg := &types.Message{
		SenderID:       senderID,
		SenderNickname: senderNickname,
		Content:        content,
		Room:           room,
		Timestamp:      time.Now().UTC(),
		Kind:           types.MessageKindChat,
	}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO messages (sender_id, sender_nickname, content, room, timestamp, message_type)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.SenderID, msg.SenderNickname, msg.Content, msg.Room, msg.Timestamp, msg.Kind)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}
		msg.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// RecentByRoom returns up to limit messages of room, newest first.
func (m *Manager) RecentByRoom(ctx context.Context, room string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		return []*types.Message{}, nil
	}
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, sender_id, sender_nickname, content, room, timestamp, message_type
		FROM messages
		WHERE room = ?
		ORDER BY id DESC
		LIMIT ?
	`, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query room history: %w", err)
	}
	return scanMessages(rows)
}

// SearchByRoom returns up to limit messages of room containing query,
// compared after unicode lower-casing, newest first.
func (m *Manager) SearchByRoom(ctx context.Context, room, query string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		return []*types.Message{}, nil
	}
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, sender_id, sender_nickname, content, room, timestamp, message_type
		FROM messages
		WHERE room = ? AND instr(fold(content), ?) > 0
		ORDER BY id DESC
		LIMIT ?
	`, room, strings.ToLower(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*types.Message, error) {
	defer func() { _ = rows.Close() }()

	messages := make([]*types.Message, 0)
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.SenderNickname,
			&msg.Content,
			&msg.Room,
			&msg.Timestamp,
			&msg.Kind,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// UpsertProfile creates or replaces the profile row for a connection.
func (m *Manager) UpsertProfile(ctx context.Context, profile *types.Profile) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (id, nickname, avatar, status, status_message, last_seen)
			VALUES (?, ?, ?, ?, ?, NULL)
			ON CONFLICT(id) DO UPDATE SET
				nickname = excluded.nickname,
				avatar = excluded.avatar,
				status = excluded.status,
				status_message = excluded.status_message,
				last_seen = NULL
		`, profile.ID, profile.Nickname, profile.Avatar, string(profile.Status), profile.StatusMessage)
		if err != nil {
			return fmt.Errorf("failed to upsert profile: %w", err)
		}
		return nil
	})
}

func (m *Manager) UpdateStatus(ctx context.Context, id string, status types.Status, message string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE users SET status = ?, status_message = ? WHERE id = ?`,
			string(status), message, id)
		if err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		return nil
	})
}

func (m *Manager) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `UPDATE users SET last_seen = ? WHERE id = ?`, at.UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to update last seen: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetProfile(ctx context.Context, id string) (*types.Profile, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var p types.Profile
	var status string
	var lastSeen sql.NullTime

	err := m.db.QueryRowContext(ctx, `
		SELECT id, nickname, avatar, status, status_message, last_seen
		FROM users
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Nickname, &p.Avatar, &status, &p.StatusMessage, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	p.Status = types.Status(status)
	if lastSeen.Valid {
		t := lastSeen.Time
		p.LastSeen = &t
	}
	return &p, nil
}

// HealthCheck pings the database and runs a trivial read.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the writer goroutine and closes the pool. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (m *Manager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}
	return nil
}
