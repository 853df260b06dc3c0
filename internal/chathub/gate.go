package chathub

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"modchat/backend/internal/metrics"
	"modchat/backend/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Gate denial reasons, sent to the client in limit:reached.
const (
	ReasonBanned    = "banned"
	ReasonChatLimit = "chat_limit"
	ReasonNoImages  = "images_not_allowed"
	ReasonNoGifts   = "gifts_not_allowed"
)

var ErrBanned = errors.New("identity is banned")

// EntitlementStore is the plan and moderation backend the gate consults.
type EntitlementStore interface {
	GetEntitlements(ctx context.Context, userID string) (models.Entitlements, error)
	IsUserBanned(ctx context.Context, userID string) (bool, error)
}

// Gate decides, before a signal reaches the hub, whether a user may still
// search or send media. Moderators are never gated. Store failures let the
// signal through.
type Gate struct {
	store   EntitlementStore
	cache   *expirable.LRU[string, models.Entitlements]
	timeout time.Duration
}

func NewGate(store EntitlementStore, size int, ttl, timeout time.Duration) *Gate {
	return &Gate{
		store:   store,
		cache:   expirable.NewLRU[string, models.Entitlements](size, nil, ttl),
		timeout: timeout,
	}
}

// Admit rejects banned identities at handshake.
func (g *Gate) Admit(ctx context.Context, id string) error {
	if g == nil {
		return nil
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	banned, err := g.store.IsUserBanned(ctx, id)
	if err != nil {
		slog.Warn("gate.ban_check_failed", "id", id, "error", err)
		return nil
	}
	if banned {
		metrics.GateDenials.WithLabelValues(ReasonBanned).Inc()
		return ErrBanned
	}
	return nil
}

// Check returns a denial reason for sig, or "" when it may proceed.
func (g *Gate) Check(ctx context.Context, id string, role models.Role, sig models.Signal) string {
	if g == nil || role != models.RoleUser {
		return ""
	}

	var reason string
	switch sig.Event {
	case models.EventFindNext:
		if e, ok := g.entitlements(ctx, id); ok && e.ChatsLeft <= 0 {
			reason = ReasonChatLimit
		}
	case models.EventSendMessage:
		switch sig.Type {
		case models.MessageImage:
			if e, ok := g.entitlements(ctx, id); ok && !e.CanSendImages {
				reason = ReasonNoImages
			}
		case models.MessageGift:
			if e, ok := g.entitlements(ctx, id); ok && !e.CanSendGifts {
				reason = ReasonNoGifts
			}
		}
	}

	if reason != "" {
		metrics.GateDenials.WithLabelValues(reason).Inc()
	}
	return reason
}

// Invalidate drops the cached entitlements of id.
func (g *Gate) Invalidate(id string) {
	if g == nil {
		return
	}
	g.cache.Remove(id)
}

func (g *Gate) entitlements(ctx context.Context, id string) (models.Entitlements, bool) {
	if e, ok := g.cache.Get(id); ok {
		return e, true
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	e, err := g.store.GetEntitlements(ctx, id)
	if err != nil {
		slog.Warn("gate.entitlements_failed", "id", id, "error", err)
		return models.Entitlements{}, false
	}
	g.cache.Add(id, e)
	return e, true
}

func (g *Gate) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
