package types

import "errors"

var (
	ErrInvalidNickname      = errors.New("nickname must be 1-50 characters")
	ErrInvalidAvatar        = errors.New("avatar must be at most 16 characters")
	ErrStatusMessageTooLong = errors.New("status message must be at most 200 characters")
	ErrInvalidStatus        = errors.New("status must be one of online, away, busy, custom")
	ErrInvalidRoom          = errors.New("room must be 1-100 characters, alphanumeric + underscore/hyphen")
	ErrEmptyMessage         = errors.New("message cannot be empty")
	ErrContentTooLarge      = errors.New("message content exceeds 64KB limit")
	ErrInvalidPayload       = errors.New("invalid event payload")
	ErrNotParticipant       = errors.New("private room belongs to other users")
)

// Store errors shared by every persistence backend.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrProfileNotFound  = errors.New("profile not found")
)
