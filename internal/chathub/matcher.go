package chathub

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"modchat/backend/internal/metrics"
	"modchat/backend/internal/models"

	"github.com/benbjohnson/clock"
)

// SearchState is where a user connection is in the matching state machine.
type SearchState int

const (
	StateIdle SearchState = iota
	StateSearching
	StatePaired
)

func (s SearchState) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StatePaired:
		return "paired"
	default:
		return "idle"
	}
}

// PendingSearch is one in-flight search of a user connection. A fired timer
// only takes effect if its PendingSearch is still the current one.
type PendingSearch struct {
	Handle string
	Gender string
	Delay  time.Duration

	timer *clock.Timer
}

// MatcherService drives a user connection from Idle/Paired through Searching
// to Paired (or back to Idle when nobody is free).
type MatcherService struct {
	registry *Registry
	pool     *Pool
	pairs    *PairingTable
	notifier Notifier
	observer PairingObserver

	clock     clock.Clock
	rnd       *rand.Rand
	minDelay  time.Duration
	maxDelay  time.Duration
	strict    bool
	newRoomID func() string

	// searches holds at most one PendingSearch per user handle.
	searches map[string]*PendingSearch

	endChat func(handle string) bool
	onFire  func(*PendingSearch)
}

// Search starts a new search for handle, superseding any previous one and
// ending any current chat first. It returns the drawn delay, or false when
// handle is not an identified user, in which case nothing changes.
func (m *MatcherService) Search(handle, gender string) (time.Duration, bool) {
	if role := m.registry.RoleOf(handle); role != models.RoleUser {
		slog.Debug("chathub.search_ignored", "handle", handle, "role", role)
		return 0, false
	}

	m.Cancel(handle)
	m.endChat(handle)
	m.pool.Remove(handle)

	s := &PendingSearch{
		Handle: handle,
		Gender: gender,
		Delay:  m.drawDelay(),
	}
	m.searches[handle] = s

	m.notifier.Notify(handle, models.ChatEvent{
		Event:   models.EventSearching,
		DelayMS: s.Delay.Milliseconds(),
	})

	s.timer = m.clock.AfterFunc(s.Delay, func() { m.onFire(s) })
	slog.Debug("chathub.searching", "handle", handle, "delay", s.Delay)
	return s.Delay, true
}

// Cancel drops the pending search of handle. Stopping a timer that already
// fired is harmless: Fire ignores searches that are no longer current.
func (m *MatcherService) Cancel(handle string) bool {
	s, ok := m.searches[handle]
	if !ok {
		return false
	}
	delete(m.searches, handle)
	if s.timer != nil {
		s.timer.Stop()
	}
	return true
}

// CancelAll stops every pending search.
func (m *MatcherService) CancelAll() {
	for handle := range m.searches {
		m.Cancel(handle)
	}
}

// Pending returns the current search of handle, if any.
func (m *MatcherService) Pending(handle string) (*PendingSearch, bool) {
	s, ok := m.searches[handle]
	return s, ok
}

func (m *MatcherService) PendingCount() int { return len(m.searches) }

func (m *MatcherService) State(handle string) SearchState {
	if _, ok := m.searches[handle]; ok {
		return StateSearching
	}
	if _, ok := m.pairs.Lookup(handle); ok {
		return StatePaired
	}
	return StateIdle
}

// Fire runs the body of a search timer. profile, when non-nil, is shown to
// the user as its partner.
func (m *MatcherService) Fire(s *PendingSearch, profile *models.PartnerProfile) string {
	if cur, ok := m.searches[s.Handle]; !ok || cur != s {
		metrics.MatchOutcomes.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		slog.Debug("chathub.search_superseded", "handle", s.Handle)
		return metrics.OutcomeSuperseded
	}
	delete(m.searches, s.Handle)

	mod, ok := m.pool.PickRandom(s.Handle)
	if !ok {
		m.notifier.Notify(s.Handle, models.ChatEvent{Event: models.EventNoModerator})
		metrics.MatchOutcomes.WithLabelValues(metrics.OutcomeNoModerator).Inc()
		slog.Info("chathub.no_moderator", "handle", s.Handle)
		return metrics.OutcomeNoModerator
	}
	if mod == s.Handle {
		violate(m.strict, &InvariantError{Op: "match", A: s.Handle, B: mod, Err: ErrSelfMatch})
		metrics.MatchOutcomes.WithLabelValues(metrics.OutcomeRefused).Inc()
		return metrics.OutcomeRefused
	}

	m.pool.Remove(mod)
	p, err := m.pairs.Commit(s.Handle, mod, m.newRoomID(), m.clock.Now())
	if err != nil {
		// The moderator stays out of the pool: it was listed as free while
		// holding a partner, and handing it out again would double-book it.
		violate(m.strict, &InvariantError{Op: "commit", A: s.Handle, B: mod, Err: err})
		metrics.MatchOutcomes.WithLabelValues(metrics.OutcomeRefused).Inc()
		return metrics.OutcomeRefused
	}

	user := m.identityOf(s.Handle)
	moderator := m.identityOf(mod)

	if profile == nil {
		profile = profileOf(moderator)
	}
	m.notifier.Notify(s.Handle, models.ChatEvent{
		Event:   models.EventMatched,
		RoomID:  p.RoomID,
		Partner: profile,
	})
	m.notifier.Notify(mod, models.ChatEvent{
		Event:   models.EventMatched,
		RoomID:  p.RoomID,
		Partner: profileOf(user),
	})

	m.observer.PairingStarted(*p, user, moderator)
	metrics.MatchOutcomes.WithLabelValues(metrics.OutcomeMatched).Inc()
	slog.Info("chathub.matched", "room", p.RoomID, "user", s.Handle, "moderator", mod, "delay", s.Delay)
	return metrics.OutcomeMatched
}

func (m *MatcherService) drawDelay() time.Duration {
	if m.maxDelay <= m.minDelay {
		return m.minDelay
	}
	span := int64((m.maxDelay - m.minDelay) / time.Millisecond)
	return m.minDelay + time.Duration(m.rnd.Int64N(span+1))*time.Millisecond
}

func (m *MatcherService) identityOf(handle string) models.Identity {
	if c, ok := m.registry.Get(handle); ok {
		return c.Identity
	}
	return models.Identity{ID: handle}
}

func profileOf(id models.Identity) *models.PartnerProfile {
	return &models.PartnerProfile{Name: id.DisplayName, Username: id.ID}
}
