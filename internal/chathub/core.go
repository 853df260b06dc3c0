package chathub

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"modchat/backend/internal/models"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Search delay window used when CoreOptions leaves MaxSearchDelay unset.
const (
	DefaultMinSearchDelay = 1800 * time.Millisecond
	DefaultMaxSearchDelay = 7200 * time.Millisecond
)

// CoreOptions configures NewCore. Zero values fall back to production
// defaults; a zero MaxSearchDelay selects the default delay window.
type CoreOptions struct {
	MinSearchDelay   time.Duration
	MaxSearchDelay   time.Duration
	StrictInvariants bool

	Clock     clock.Clock
	Rand      *rand.Rand
	Observer  PairingObserver
	NewRoomID func() string

	// OnFire receives every search whose timer elapsed. It runs on the
	// timer's goroutine and must hand the search back to whoever owns the
	// Core before calling Matcher.Fire.
	OnFire func(*PendingSearch)
}

// Core bundles the matchmaking state and the operations over it. None of
// it is safe for concurrent use; ManagerService serializes access.
type Core struct {
	Registry  *Registry
	Pool      *Pool
	Pairs     *PairingTable
	Matcher   *MatcherService
	Relay     *Relay
	Lifecycle *Lifecycle

	notifier Notifier
}

func NewCore(notifier Notifier, opts CoreOptions) *Core {
	if opts.MaxSearchDelay <= 0 {
		opts.MinSearchDelay = DefaultMinSearchDelay
		opts.MaxSearchDelay = DefaultMaxSearchDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.NewRoomID == nil {
		opts.NewRoomID = uuid.NewString
	}
	if opts.OnFire == nil {
		opts.OnFire = func(s *PendingSearch) {
			slog.Warn("chathub.search_fired_without_owner", "handle", s.Handle)
		}
	}

	c := &Core{
		Registry: NewRegistry(),
		Pool:     NewPool(opts.Rand),
		Pairs:    NewPairingTable(),
		notifier: notifier,
	}
	c.Matcher = &MatcherService{
		registry:  c.Registry,
		pool:      c.Pool,
		pairs:     c.Pairs,
		notifier:  notifier,
		observer:  opts.Observer,
		clock:     opts.Clock,
		rnd:       opts.Rand,
		minDelay:  opts.MinSearchDelay,
		maxDelay:  opts.MaxSearchDelay,
		strict:    opts.StrictInvariants,
		newRoomID: opts.NewRoomID,
		searches:  make(map[string]*PendingSearch),
		onFire:    opts.OnFire,
	}
	c.Relay = &Relay{
		registry: c.Registry,
		pairs:    c.Pairs,
		notifier: notifier,
	}
	c.Lifecycle = &Lifecycle{
		registry:     c.Registry,
		pool:         c.Pool,
		pairs:        c.Pairs,
		notifier:     notifier,
		observer:     opts.Observer,
		cancelSearch: c.Matcher.Cancel,
	}
	c.Matcher.endChat = c.Lifecycle.EndChat
	return c
}

// Identify registers handle under role. A new moderator becomes available
// at once. A user that re-identifies while paired has its new identity
// pushed to the partner.
func (c *Core) Identify(handle string, role models.Role, identity models.Identity) error {
	conn, created, err := c.Registry.Register(handle, role, identity)
	if err != nil {
		return err
	}
	if created {
		if role == models.RoleModerator {
			c.Pool.Add(handle, role)
		}
		slog.Info("chathub.identified", "handle", handle, "role", role, "id", identity.ID)
		return nil
	}

	if p, ok := c.Pairs.Lookup(handle); ok && role == models.RoleUser {
		c.notifier.Notify(p.Other(handle), models.ChatEvent{
			Event:   models.EventPartnerProfile,
			RoomID:  p.RoomID,
			Partner: profileOf(conn.Identity),
		})
	}
	return nil
}

// EndChat handles an explicit end-chat signal. It cancels a pending search
// of handle and, unlike Lifecycle.EndChat, also returns a moderator
// initiator to the pool. It reports whether a pairing ended; an
// unidentified handle is a no-op.
func (c *Core) EndChat(handle string) bool {
	role := c.Registry.RoleOf(handle)
	if role == models.RoleUnknown {
		slog.Debug("chathub.end_chat_ignored", "handle", handle)
		return false
	}
	c.Matcher.Cancel(handle)
	ended := c.Lifecycle.EndChat(handle)
	if role == models.RoleModerator {
		c.Pool.Add(handle, role)
	}
	return ended
}

// Snapshot is a point-in-time view of the hub's counters.
type Snapshot struct {
	Connections     int `json:"connections"`
	Users           int `json:"users"`
	Moderators      int `json:"moderators"`
	FreeModerators  int `json:"free_moderators"`
	ActivePairings  int `json:"active_pairings"`
	PendingSearches int `json:"pending_searches"`
}

func (c *Core) Snapshot() Snapshot {
	users, mods := c.Registry.Count()
	return Snapshot{
		Users:           users,
		Moderators:      mods,
		FreeModerators:  c.Pool.Len(),
		ActivePairings:  c.Pairs.Len(),
		PendingSearches: c.Matcher.PendingCount(),
	}
}
