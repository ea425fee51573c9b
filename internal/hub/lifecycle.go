package hub

import (
	"context"

	"go.uber.org/zap"

	"chatroom/internal/router"
	"chatroom/pkg/types"
)

// Join registers the connection as a user in the default room. The joiner
// receives the room history and the presence list before anyone else hears
// about the join. Joining again from the same connection starts over in
// the default room.
func (h *Hub) Join(ctx context.Context, connID string, req types.JoinRequest) error {
	if _, ok := h.conns.Get(connID); !ok {
		return nil
	}
	if err := req.Normalize(); err != nil {
		h.sendError(connID, err)
		return err
	}

	user := &types.User{
		ID:            connID,
		Nickname:      req.Nickname,
		Avatar:        req.Avatar,
		Status:        types.StatusOnline,
		StatusMessage: req.StatusMessage,
		CurrentRoom:   types.DefaultRoom,
		JoinedAt:      h.now(),
	}

	h.stateMu.Lock()
	h.rooms.RemoveAll(connID)
	h.presence.Upsert(user)
	h.rooms.Subscribe(connID, types.DefaultRoom)
	h.stateMu.Unlock()
	h.metrics.SetUsersOnline(h.presence.Count())

	_ = h.profiles.Register(ctx, user)

	h.send(connID, types.NewEvent(types.EventMessageHistory, h.history(ctx, types.DefaultRoom)))
	h.send(connID, types.NewEvent(types.EventOnlineUsers, h.presence.Snapshot()))

	h.sendTo(h.rooms.Others(types.DefaultRoom, connID), types.NewEvent(types.EventUserJoined, types.Announcement{
		ID:       user.ID,
		Nickname: user.Nickname,
		Avatar:   user.Avatar,
		Message:  user.Nickname + " joined the chat",
	}))
	h.broadcastPresence()

	h.logger.Info("user_joined", zap.String("conn_id", connID), zap.String("nickname", user.Nickname))
	return nil
}

// SwitchRoom moves the user out of its current room into room and replays
// the new room's history to it. Nobody else is notified.
func (h *Hub) SwitchRoom(ctx context.Context, connID, room string) error {
	if _, ok := h.presence.Get(connID); !ok {
		return nil
	}
	if !types.IsValidRoom(room) {
		h.sendError(connID, types.ErrInvalidRoom)
		return types.ErrInvalidRoom
	}
	if !router.CanEnter(room, connID) {
		h.sendError(connID, types.ErrNotParticipant)
		return types.ErrNotParticipant
	}

	h.stateMu.Lock()
	user, ok := h.presence.Get(connID)
	if !ok {
		h.stateMu.Unlock()
		return nil
	}
	from := user.CurrentRoom
	h.rooms.Move(connID, from, room)
	h.presence.SetRoom(connID, room)
	typed, stoppedTyping, _ := h.presence.SetTyping(connID, false)
	h.stateMu.Unlock()

	if stoppedTyping && from != room {
		h.typingStopped(from, typed)
	}

	h.send(connID, types.NewEvent(types.EventMessageHistory, h.history(ctx, room)))
	h.send(connID, types.NewEvent(types.EventRoomChanged, types.RoomChangedPayload{Room: room}))

	h.logger.Debug("room_switched", zap.String("conn_id", connID), zap.String("from", from), zap.String("to", room))
	return nil
}

// typingStopped tells the rest of room that user is no longer typing there.
func (h *Hub) typingStopped(room string, user *types.User) {
	h.sendTo(h.rooms.Others(room, user.ID), types.NewEvent(types.EventUserTyping, types.TypingPayload{
		ID: user.ID, Nickname: user.Nickname, IsTyping: false,
	}))
}

// StartPrivateChat subscribes both users to their private room and makes it
// their current room. Earlier subscriptions are kept.
func (h *Hub) StartPrivateChat(ctx context.Context, connID, targetID string) error {
	if connID == targetID {
		return nil
	}

	h.stateMu.Lock()
	requester, okA := h.presence.Get(connID)
	target, okB := h.presence.Get(targetID)
	if !okA || !okB {
		h.stateMu.Unlock()
		return nil
	}
	room := router.PrivateRoomID(connID, targetID)
	var stopped []*types.User
	for _, u := range []*types.User{requester, target} {
		h.rooms.Subscribe(u.ID, room)
		h.presence.SetRoom(u.ID, room)
		if typed, changed, _ := h.presence.SetTyping(u.ID, false); changed {
			typed.CurrentRoom = u.CurrentRoom
			stopped = append(stopped, typed)
		}
	}
	h.stateMu.Unlock()

	for _, u := range stopped {
		h.typingStopped(u.CurrentRoom, u)
	}

	history := h.history(ctx, room)
	started := types.NewEvent(types.EventPrivateChatStarted, types.PrivateChatPayload{
		Room:         room,
		Participants: []types.PresenceEntry{requester.Entry(), target.Entry()},
	})
	for _, id := range []string{connID, targetID} {
		h.send(id, types.NewEvent(types.EventMessageHistory, history))
		h.send(id, started)
	}

	h.logger.Info("private_chat_started", zap.String("room", room))
	return nil
}

// Disconnect forgets everything about the connection. If it had joined,
// every remaining connection is told it left and gets the new presence list.
func (h *Hub) Disconnect(ctx context.Context, connID string) error {
	h.limiter.Forget(connID)

	h.stateMu.Lock()
	user, ok := h.presence.Remove(connID)
	h.rooms.RemoveAll(connID)
	h.stateMu.Unlock()

	if !ok {
		return nil
	}
	h.metrics.SetUsersOnline(h.presence.Count())

	_ = h.profiles.MarkSeen(ctx, connID, h.now())

	h.broadcast(types.NewEvent(types.EventUserLeft, types.Announcement{
		ID:       user.ID,
		Nickname: user.Nickname,
		Avatar:   user.Avatar,
		Message:  user.Nickname + " left the chat",
	}), connID)
	h.broadcastPresence()

	h.logger.Info("user_left", zap.String("conn_id", connID), zap.String("nickname", user.Nickname))
	return nil
}
