package hub

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chatroom/pkg/types"
)

// SendMessage handles one chat line. Bot commands are answered to the
// sender alone. Anything else is stored in the sender's current room and,
// once stored, delivered to the room's other members. A message the store
// rejects is not delivered to anyone.
func (h *Hub) SendMessage(ctx context.Context, connID, text string) error {
	sender, ok := h.presence.Get(connID)
	if !ok {
		return nil
	}
	if err := types.ValidateContent(text); err != nil {
		h.sendError(connID, err)
		return err
	}
	if !h.limiter.Allow(connID, h.now()) {
		h.metrics.Limited()
		h.sendError(connID, ErrRateLimited)
		return ErrRateLimited
	}

	room := sender.CurrentRoom

	if reply, ok := h.bot.Reply(text, room); ok {
		h.metrics.BotReplied()
		h.send(connID, types.NewEvent(types.EventChatMessage, reply))
		return nil
	}

	lock := h.roomLock(room)
	lock.Lock()

	storeCtx, cancel := context.WithTimeout(ctx, h.config.StoreTimeout)
	msg, err := h.store.Append(storeCtx, room, sender.ID, sender.Nickname, text)
	cancel()
	if err != nil {
		lock.Unlock()
		h.metrics.PersistFailed()
		h.logger.Error("message_persist_failed",
			zap.String("conn_id", connID),
			zap.String("room", room),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	h.metrics.Persisted()

	msg.Avatar = sender.Avatar
	out := h.outbox(room)
	mustDrain := out.push(delivery{
		to: h.rooms.Others(room, connID),
		ev: types.NewEvent(types.EventChatMessage, msg),
	})
	lock.Unlock()

	if mustDrain {
		out.drain(func(d delivery) { h.sendTo(d.to, d.ev) })
	}
	return nil
}

func (h *Hub) StartTyping(ctx context.Context, connID string) error {
	return h.setTyping(connID, true)
}

func (h *Hub) StopTyping(ctx context.Context, connID string) error {
	return h.setTyping(connID, false)
}

func (h *Hub) setTyping(connID string, typing bool) error {
	h.stateMu.Lock()
	user, changed, ok := h.presence.SetTyping(connID, typing)
	var targets []string
	if ok && changed {
		targets = h.rooms.Others(user.CurrentRoom, connID)
	}
	h.stateMu.Unlock()

	if !changed {
		return nil
	}
	h.sendTo(targets, types.NewEvent(types.EventUserTyping, types.TypingPayload{
		ID:       connID,
		Nickname: user.Nickname,
		IsTyping: typing,
	}))
	return nil
}

// UpdateStatus always republishes presence, even when nothing changed.
func (h *Hub) UpdateStatus(ctx context.Context, connID string, req types.StatusRequest) error {
	if _, ok := h.presence.Get(connID); !ok {
		return nil
	}
	if err := req.Validate(); err != nil {
		h.sendError(connID, err)
		return err
	}

	if _, ok := h.presence.SetStatus(connID, req.Status, req.Message); !ok {
		return nil
	}
	h.broadcastPresence()

	_ = h.profiles.UpdateStatus(ctx, connID, req.Status, req.Message)
	return nil
}

// Search sends the requester the newest messages of its current room that
// contain query. An empty query matches every message.
func (h *Hub) Search(ctx context.Context, connID, query string) error {
	user, ok := h.presence.Get(connID)
	if !ok {
		return nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.config.StoreTimeout)
	msgs, err := h.store.SearchByRoom(storeCtx, user.CurrentRoom, query, h.config.SearchLimit)
	cancel()
	if err != nil {
		h.logger.Warn("search_failed",
			zap.String("conn_id", connID),
			zap.String("room", user.CurrentRoom),
			zap.Error(err))
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}

	h.send(connID, types.NewEvent(types.EventSearchResults, types.SearchResultsPayload{
		Query:    query,
		Messages: msgs,
	}))
	return nil
}
