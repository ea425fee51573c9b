package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var roomRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	MaxNicknameLength      = 50
	MaxAvatarLength        = 16
	MaxStatusMessageLength = 200
	MaxRoomLength          = 100
	MaxContentBytes        = 65536
)

// Normalize trims the request, applies the default avatar and checks the
// field limits. The receiver is modified in place.
func (r *JoinRequest) Normalize() error {
	r.Nickname = strings.TrimSpace(r.Nickname)
	r.Avatar = strings.TrimSpace(r.Avatar)
	r.StatusMessage = strings.TrimSpace(r.StatusMessage)

	n := utf8.RuneCountInString(r.Nickname)
	if n < 1 || n > MaxNicknameLength {
		return ErrInvalidNickname
	}
	if r.Avatar == "" {
		r.Avatar = DefaultAvatar
	}
	if utf8.RuneCountInString(r.Avatar) > MaxAvatarLength {
		return ErrInvalidAvatar
	}
	if utf8.RuneCountInString(r.StatusMessage) > MaxStatusMessageLength {
		return ErrStatusMessageTooLong
	}
	return nil
}

// Validate checks the requested status and trims its message.
func (r *StatusRequest) Validate() error {
	if !IsValidStatus(r.Status) {
		return ErrInvalidStatus
	}
	r.Message = strings.TrimSpace(r.Message)
	if utf8.RuneCountInString(r.Message) > MaxStatusMessageLength {
		return ErrStatusMessageTooLong
	}
	return nil
}

// IsValidStatus reports whether s is one of the published status values.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusCustom:
		return true
	default:
		return false
	}
}

// IsValidRoom checks a room identifier. Private room ids built from two
// uuids fit within the length limit.
func IsValidRoom(room string) bool {
	if len(room) < 1 || len(room) > MaxRoomLength {
		return false
	}
	return roomRegex.MatchString(room)
}

// ValidateContent rejects blank and oversized chat text. The text itself is
// stored as sent.
func ValidateContent(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if len(text) > MaxContentBytes {
		return ErrContentTooLarge
	}
	return nil
}
