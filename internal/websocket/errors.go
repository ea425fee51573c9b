package websocket

import "errors"

// Connection errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("send queue full, connection dropped")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry errors
var (
	ErrNilConnection = errors.New("connection cannot be nil")
	ErrEmptyID       = errors.New("connection id cannot be empty")
)
