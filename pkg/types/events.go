package types

import "encoding/json"

// Inbound event types sent by clients.
const (
	EventJoin             = "join"
	EventSwitchRoom       = "switch-room"
	EventStartPrivateChat = "start-private-chat"
	EventSendMessage      = "send-message"
	EventUpdateStatus     = "update-status"
	EventSearch           = "search"
	EventTypingStart      = "typing-start"
	EventTypingStop       = "typing-stop"
)

// Outbound event types sent by the server.
const (
	EventConnected          = "connected"
	EventMessageHistory     = "message-history"
	EventOnlineUsers        = "online-users"
	EventPresenceUpdate     = "presence-update"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventPrivateChatStarted = "private-chat-started"
	EventRoomChanged        = "room-changed"
	EventUserTyping         = "user-typing"
	EventChatMessage        = "chat-message"
	EventSearchResults      = "search-results"
	EventError              = "error"
)

// InboundEvent is the envelope of every client frame. Data is decoded
// according to Type once the event reaches the hub.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent is the envelope of every server frame.
type OutboundEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewEvent wraps a payload in an outbound envelope.
func NewEvent(eventType string, data interface{}) *OutboundEvent {
	return &OutboundEvent{Type: eventType, Data: data}
}

type JoinRequest struct {
	Nickname      string `json:"nickname"`
	Avatar        string `json:"avatar,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type StatusRequest struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type ConnectedPayload struct {
	ID string `json:"id"`
}

// Announcement is the payload of user-joined and user-left.
type Announcement struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Message  string `json:"message"`
}

// PrivateChatPayload names the private room and both participants, requester
// first.
type PrivateChatPayload struct {
	Room         string          `json:"room"`
	Participants []PresenceEntry `json:"participants"`
}

type RoomChangedPayload struct {
	Room string `json:"room"`
}

type TypingPayload struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	IsTyping bool   `json:"isTyping"`
}

type SearchResultsPayload struct {
	Query    string     `json:"query"`
	Messages []*Message `json:"messages"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
