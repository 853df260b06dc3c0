package chathub

import (
	"context"

	"modchat/backend/internal/models"
)

// Notifier delivers an outbound event to one connection. Delivery is
// best-effort: events for handles without a live client are dropped.
type Notifier interface {
	Notify(handle string, evt models.ChatEvent)
}

// PairingObserver is told about every committed and every torn-down pairing.
// Implementations must not block; they are called from the hub loop.
type PairingObserver interface {
	PairingStarted(p Pairing, user, moderator models.Identity)
	PairingEnded(p Pairing)
}

// ProfileSource supplies the partner profile the user side sees on match.
// A nil profile with a nil error means "use the moderator's own identity".
type ProfileSource interface {
	RandomProfile(ctx context.Context, gender string) (*models.PartnerProfile, error)
}

type noopObserver struct{}

func (noopObserver) PairingStarted(Pairing, models.Identity, models.Identity) {}
func (noopObserver) PairingEnded(Pairing)                                     {}

// observers fans out to several observers in order.
type observers []PairingObserver

func (o observers) PairingStarted(p Pairing, user, moderator models.Identity) {
	for _, obs := range o {
		obs.PairingStarted(p, user, moderator)
	}
}

func (o observers) PairingEnded(p Pairing) {
	for _, obs := range o {
		obs.PairingEnded(p)
	}
}
