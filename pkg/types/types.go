package types

import (
	"time"
)

// Status is the presence state a user publishes to everyone else.
type Status string

const (
	StatusOnline Status = "online"
	StatusAway   Status = "away"
	StatusBusy   Status = "busy"
	StatusCustom Status = "custom"
)

// Room and profile defaults applied when a client omits them.
const (
	DefaultRoom       = "general"
	DefaultAvatar     = "👤"
	PrivateRoomPrefix = "private_"
)

// Message kinds. Bot replies are delivered but never stored.
const (
	MessageKindChat = "message"
	MessageKindBot  = "bot"
)

// User is the live presence record of one joined connection. It exists only
// between a successful join and the connection's disconnect.
type User struct {
	ID            string    `json:"id"`
	Nickname      string    `json:"nickname"`
	Avatar        string    `json:"avatar"`
	Status        Status    `json:"status"`
	StatusMessage string    `json:"statusMessage"`
	CurrentRoom   string    `json:"currentRoom"`
	IsTyping      bool      `json:"isTyping"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// Entry projects the user onto the fields published in presence snapshots.
func (u *User) Entry() PresenceEntry {
	return PresenceEntry{
		ID:            u.ID,
		Nickname:      u.Nickname,
		Avatar:        u.Avatar,
		Status:        u.Status,
		StatusMessage: u.StatusMessage,
	}
}

// PresenceEntry is one row of the online-users list.
type PresenceEntry struct {
	ID            string `json:"id"`
	Nickname      string `json:"nickname"`
	Avatar        string `json:"avatar"`
	Status        Status `json:"status"`
	StatusMessage string `json:"statusMessage"`
}

// Message is a chat line as stored and as delivered to clients.
// ID and Timestamp are assigned by the store; Avatar is not persisted and is
// filled from the live sender when the message is broadcast.
type Message struct {
	ID             int64     `json:"id"`
	SenderID       string    `json:"senderId"`
	SenderNickname string    `json:"nickname"`
	Avatar         string    `json:"avatar,omitempty"`
	Content        string    `json:"message"`
	Room           string    `json:"room"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"type"`
}

// Profile is the durable record of a user, keyed by connection id.
type Profile struct {
	ID            string     `json:"id"`
	Nickname      string     `json:"nickname"`
	Avatar        string     `json:"avatar"`
	Status        Status     `json:"status"`
	StatusMessage string     `json:"statusMessage"`
	LastSeen      *time.Time `json:"lastSeen,omitempty"`
}

// ProfileFromUser builds the durable profile of a live user.
func ProfileFromUser(u *User) *Profile {
	return &Profile{
		ID:            u.ID,
		Nickname:      u.Nickname,
		Avatar:        u.Avatar,
		Status:        u.Status,
		StatusMessage: u.StatusMessage,
	}
}
