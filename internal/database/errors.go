package database

import (
	"errors"
	"fmt"

	"chatroom/pkg/types"
)

var (
	ErrManagerClosed = fmt.Errorf("database manager is closed: %w", types.ErrStoreUnavailable)
	ErrShuttingDown  = fmt.Errorf("database manager is shutting down: %w", types.ErrStoreUnavailable)
	ErrWriteTimeout  = errors.New("write operation timeout")
)
