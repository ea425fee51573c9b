package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatroom/internal/api"
	"chatroom/internal/bot"
	"chatroom/internal/router"
	"chatroom/pkg/types"
)

func TestChat_TwoUsersEndToEnd(t *testing.T) {
	s := startServer(t)
	ann := s.dial(t)
	ann.join("Ann")

	bob := s.dial(t)
	bob.send(types.EventJoin, types.JoinRequest{Nickname: "Bob", Avatar: "🐻"})
	var history []types.Message
	bob.expect(types.EventMessageHistory, &history)
	assert.Empty(t, history)
	var online []types.PresenceEntry
	bob.expect(types.EventOnlineUsers, &online)
	assert.Len(t, online, 2)

	var joined types.Announcement
	ann.expect(types.EventUserJoined, &joined)
	assert.Equal(t, bob.ID, joined.ID)
	assert.Equal(t, "Bob joined the chat", joined.Message)
	assert.Equal(t, "🐻", joined.Avatar)

	// Chat lines reach the other member only; bot replies reach the sender only.
	ann.send(types.EventSendMessage, types.SendMessageRequest{Message: "hello"})
	ann.send(types.EventSendMessage, types.SendMessageRequest{Message: "/help"})
	ann.send(types.EventSendMessage, types.SendMessageRequest{Message: "bye"})

	first := bob.expectMessage()
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, "Ann", first.SenderNickname)
	assert.Equal(t, types.DefaultRoom, first.Room)
	assert.Equal(t, "bye", bob.expectMessage().Content)

	reply := ann.expectMessage()
	assert.Equal(t, bot.Nickname, reply.SenderNickname)
	assert.Contains(t, reply.Content, "Available commands")

	// Typing
	ann.send(types.EventTypingStart, nil)
	var typing types.TypingPayload
	bob.expect(types.EventUserTyping, &typing)
	assert.Equal(t, ann.ID, typing.ID)
	assert.True(t, typing.IsTyping)

	// Private chat
	ann.send(types.EventStartPrivateChat, bob.ID)
	room := router.PrivateRoomID(ann.ID, bob.ID)
	for _, c := range []*testClient{ann, bob} {
		var started types.PrivateChatPayload
		c.expect(types.EventPrivateChatStarted, &started)
		assert.Equal(t, room, started.Room)
		require.Len(t, started.Participants, 2)
		assert.Equal(t, ann.ID, started.Participants[0].ID)
		assert.Equal(t, bob.ID, started.Participants[1].ID)
	}

	ann.send(types.EventSendMessage, types.SendMessageRequest{Message: "secret"})
	private := bob.expectMessage()
	assert.Equal(t, "secret", private.Content)
	assert.Equal(t, room, private.Room)

	// Back to general, then search
	bob.send(types.EventSwitchRoom, types.DefaultRoom)
	var changed types.RoomChangedPayload
	bob.expect(types.EventRoomChanged, &changed)
	assert.Equal(t, types.DefaultRoom, changed.Room)

	bob.send(types.EventSearch, "HEL")
	var results types.SearchResultsPayload
	bob.expect(types.EventSearchResults, &results)
	require.Len(t, results.Messages, 1)
	assert.Equal(t, "hello", results.Messages[0].Content)

	// Disconnect
	require.NoError(t, bob.conn.Close())
	var left types.Announcement
	ann.expect(types.EventUserLeft, &left)
	assert.Equal(t, bob.ID, left.ID)
	assert.Equal(t, "Bob left the chat", left.Message)

	// Read API sees the stored general history, oldest first.
	resp, err := http.Get(s.srv.URL + "/api/rooms/general/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body api.MessagesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "hello", body.Messages[0].Content)
	assert.Equal(t, "bye", body.Messages[1].Content)
}

func TestChat_HistoryReplayedOnJoin(t *testing.T) {
	s := startServer(t)
	ann := s.dial(t)
	ann.join("Ann")
	for _, text := range []string{"one", "two", "three"} {
		ann.send(types.EventSendMessage, types.SendMessageRequest{Message: text})
	}
	// A round trip on the same socket orders it after the three sends.
	ann.send(types.EventSearch, "")
	var all types.SearchResultsPayload
	ann.expect(types.EventSearchResults, &all)
	require.Len(t, all.Messages, 3)

	bob := s.dial(t)
	bob.send(types.EventJoin, types.JoinRequest{Nickname: "Bob"})
	var history []types.Message
	bob.expect(types.EventMessageHistory, &history)
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[0].Content)
	assert.Equal(t, "three", history[2].Content)
}

func TestChat_ProtocolErrors(t *testing.T) {
	s := startServer(t)
	c := s.dial(t)

	c.send("dance", nil)
	var e types.ErrorPayload
	c.expect(types.EventError, &e)
	assert.Equal(t, "unknown_event", e.Code)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	c.expect(types.EventError, &e)
	assert.Equal(t, "invalid_payload", e.Code)

	c.send(types.EventJoin, types.JoinRequest{Nickname: "   "})
	c.expect(types.EventError, &e)
	assert.Equal(t, "invalid_input", e.Code)

	// The socket survives every error above.
	c.join("Carol")
	resp, err := http.Get(s.srv.URL + "/api/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	var users []types.PresenceEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	require.Len(t, users, 1)
	assert.Equal(t, "Carol", users[0].Nickname)
}
