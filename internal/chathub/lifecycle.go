package chathub

import (
	"log/slog"

	"modchat/backend/internal/models"
)

// Lifecycle tears pairings and connections down. Every teardown path goes
// through EndChat, so the moderator side is always returned to the pool.
type Lifecycle struct {
	registry *Registry
	pool     *Pool
	pairs    *PairingTable
	notifier Notifier
	observer PairingObserver

	cancelSearch func(handle string) bool
}

// EndChat dissolves the pairing of handle, if any. The former partner is
// told with chat:ended and, when it is a moderator, put back in the pool.
// The initiator is not notified here.
func (l *Lifecycle) EndChat(handle string) bool {
	p, ok := l.pairs.Remove(handle)
	if !ok {
		return false
	}
	partner := p.Other(handle)

	// A paired handle has no pending search; this only matters if that
	// invariant was ever broken.
	l.cancelSearch(handle)

	for _, h := range [...]string{handle, partner} {
		if c, ok := l.registry.Get(h); ok {
			c.RememberRoom(p.RoomID)
		}
	}

	l.notifier.Notify(partner, models.ChatEvent{
		Event:  models.EventChatEnded,
		RoomID: p.RoomID,
	})
	if l.registry.RoleOf(partner) == models.RoleModerator {
		l.pool.Add(partner, models.RoleModerator)
	}

	l.observer.PairingEnded(*p)
	slog.Info("chathub.chat_ended", "room", p.RoomID, "by", handle, "partner", partner)
	return true
}

// Disconnect removes every trace of handle. Safe to call repeatedly.
func (l *Lifecycle) Disconnect(handle string) {
	l.cancelSearch(handle)
	l.EndChat(handle)
	l.pool.Remove(handle)
	if l.registry.Unregister(handle) {
		slog.Debug("chathub.disconnected", "handle", handle)
	}
}
