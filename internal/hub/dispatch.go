package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatroom/pkg/types"
)

// Dispatch decodes one client event and runs the matching operation.
func (h *Hub) Dispatch(ctx context.Context, connID string, ev *types.InboundEvent) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}

	switch ev.Type {
	case types.EventJoin:
		h.metrics.Event(ev.Type)
		var req types.JoinRequest
		if err := h.decode(connID, ev, &req); err != nil {
			return err
		}
		return h.Join(ctx, connID, req)

	case types.EventSwitchRoom:
		h.metrics.Event(ev.Type)
		var room string
		if err := h.decode(connID, ev, &room); err != nil {
			return err
		}
		return h.SwitchRoom(ctx, connID, room)

	case types.EventStartPrivateChat:
		h.metrics.Event(ev.Type)
		var target string
		if err := h.decode(connID, ev, &target); err != nil {
			return err
		}
		return h.StartPrivateChat(ctx, connID, target)

	case types.EventSendMessage:
		h.metrics.Event(ev.Type)
		var req types.SendMessageRequest
		if err := h.decode(connID, ev, &req); err != nil {
			return err
		}
		return h.SendMessage(ctx, connID, req.Message)

	case types.EventUpdateStatus:
		h.metrics.Event(ev.Type)
		var req types.StatusRequest
		if err := h.decode(connID, ev, &req); err != nil {
			return err
		}
		return h.UpdateStatus(ctx, connID, req)

	case types.EventSearch:
		h.metrics.Event(ev.Type)
		var query string
		if len(ev.Data) > 0 && string(ev.Data) != "null" {
			if err := h.decode(connID, ev, &query); err != nil {
				return err
			}
		}
		return h.Search(ctx, connID, query)

	case types.EventTypingStart:
		h.metrics.Event(ev.Type)
		return h.StartTyping(ctx, connID)

	case types.EventTypingStop:
		h.metrics.Event(ev.Type)
		return h.StopTyping(ctx, connID)

	default:
		h.metrics.Event("unknown")
		err := fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
		h.sendError(connID, err)
		return err
	}
}

func (h *Hub) decode(connID string, ev *types.InboundEvent, v interface{}) error {
	if len(ev.Data) == 0 {
		err := fmt.Errorf("%w: %s requires data", types.ErrInvalidPayload, ev.Type)
		h.sendError(connID, err)
		return err
	}
	if err := json.Unmarshal(ev.Data, v); err != nil {
		err = fmt.Errorf("%w: %s: %v", types.ErrInvalidPayload, ev.Type, err)
		h.sendError(connID, err)
		return err
	}
	return nil
}

// errorCode maps an error to the code clients see in error events.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, types.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	default:
		return "invalid_input"
	}
}
