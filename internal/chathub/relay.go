package chathub

import (
	"fmt"
	"log/slog"

	"modchat/backend/internal/metrics"
	"modchat/backend/internal/models"
)

// Relay forwards chat content and typing signals to the sender's current
// partner. Nothing is persisted and nothing is echoed back.
type Relay struct {
	registry *Registry
	pairs    *PairingTable
	notifier Notifier
}

// Forward delivers sig from sender to its partner. Signals from an
// unidentified sender, for a room the sender left, or sent while unpaired
// are dropped silently; a room tag the sender never belonged to is reported
// as ErrForeignRoom.
func (r *Relay) Forward(sender string, sig models.Signal) error {
	conn, ok := r.registry.Get(sender)
	if !ok {
		slog.Debug("chathub.relay_unidentified", "handle", sender, "event", sig.Event)
		return nil
	}

	switch sig.Event {
	case models.EventSendMessage:
		if !models.IsMessageType(sig.Type) {
			slog.Debug("chathub.relay_unknown_type", "handle", sender, "type", sig.Type)
			return nil
		}
	case models.EventTyping, models.EventStopTyping:
		if sig.RoomID != "" {
			conn.tagsTyping = true
		} else if conn.tagsTyping {
			// Clients that tag typing once must keep doing so; an untagged
			// signal from them may belong to a chat that already ended.
			slog.Debug("chathub.relay_untagged_typing", "handle", sender)
			return nil
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, sig.Event)
	}

	p, paired := r.pairs.Lookup(sender)
	if sig.RoomID != "" && (!paired || sig.RoomID != p.RoomID) {
		if conn.WasInRoom(sig.RoomID) {
			slog.Debug("chathub.relay_stale_room", "handle", sender, "room", sig.RoomID)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrForeignRoom, sig.RoomID)
	}
	if !paired {
		return nil
	}
	if sig.Event == models.EventSendMessage && sig.RoomID == "" {
		slog.Debug("chathub.relay_untagged_message", "handle", sender)
		return nil
	}

	evt := models.ChatEvent{
		Event:      sig.Event,
		RoomID:     p.RoomID,
		SenderRole: conn.Role,
	}
	label := sig.Event
	if sig.Event == models.EventSendMessage {
		evt.Type = sig.Type
		evt.Content = sig.Content
		label = sig.Type
	}
	r.notifier.Notify(p.Other(sender), evt)
	metrics.MessagesRelayed.WithLabelValues(label).Inc()
	return nil
}
