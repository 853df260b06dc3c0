package chathub

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"modchat/backend/internal/localization"
	"modchat/backend/internal/metrics"
	"modchat/backend/internal/models"

	"github.com/benbjohnson/clock"
)

// ErrHubStopped is returned by calls made after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

const defaultProfileTimeout = 2 * time.Second

// Options configures NewManagerService.
type Options struct {
	MinSearchDelay   time.Duration
	MaxSearchDelay   time.Duration
	StrictInvariants bool

	Clock     clock.Clock
	Rand      *rand.Rand
	NewRoomID func() string

	// Profiles resolves the partner profile shown to a matched user. Nil
	// means the moderator's own identity is shown.
	Profiles       ProfileSource
	ProfileTimeout time.Duration

	Observers []PairingObserver
	Localizer *localization.Localizer
}

type firedSearch struct {
	search  *PendingSearch
	profile *models.PartnerProfile
}

// ManagerService is the hub: a single goroutine (Run) owns the Core and
// every attached Client. Other goroutines only talk to it over channels.
type ManagerService struct {
	clients map[string]Client
	core    *Core

	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan models.Inbound

	firedCh    chan firedSearch
	snapshotCh chan chan Snapshot
	done       chan struct{}

	profiles       ProfileSource
	profileTimeout time.Duration
	localizer      *localization.Localizer

	// evict collects handles whose send channel was full during the
	// current iteration; they are disconnected before the next one.
	evict []string
}

func NewManagerService(opts Options) *ManagerService {
	m := &ManagerService{
		clients:        make(map[string]Client),
		RegisterCh:     make(chan Client),
		UnregisterCh:   make(chan Client),
		IncomingCh:     make(chan models.Inbound),
		firedCh:        make(chan firedSearch),
		snapshotCh:     make(chan chan Snapshot),
		done:           make(chan struct{}),
		profiles:       opts.Profiles,
		profileTimeout: opts.ProfileTimeout,
		localizer:      opts.Localizer,
	}
	if m.profileTimeout <= 0 {
		m.profileTimeout = defaultProfileTimeout
	}
	if m.localizer == nil {
		m.localizer = localization.Default()
	}

	var observer PairingObserver
	if len(opts.Observers) > 0 {
		observer = observers(opts.Observers)
	}
	m.core = NewCore(m, CoreOptions{
		MinSearchDelay:   opts.MinSearchDelay,
		MaxSearchDelay:   opts.MaxSearchDelay,
		StrictInvariants: opts.StrictInvariants,
		Clock:            opts.Clock,
		Rand:             opts.Rand,
		Observer:         observer,
		NewRoomID:        opts.NewRoomID,
		OnFire:           m.searchFired,
	})
	return m
}

// Done is closed once Run has returned.
func (m *ManagerService) Done() <-chan struct{} { return m.done }

// Run processes registrations, inbound signals and timer firings until ctx
// is cancelled. It must be called exactly once.
func (m *ManagerService) Run(ctx context.Context) error {
	defer m.shutdown()
	slog.Info("chathub.started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case client := <-m.RegisterCh:
			m.attach(client)
		case client := <-m.UnregisterCh:
			m.detach(client)
		case in := <-m.IncomingCh:
			m.dispatch(in)
		case f := <-m.firedCh:
			m.core.Matcher.Fire(f.search, f.profile)
		case reply := <-m.snapshotCh:
			reply <- m.snapshot()
		}
		m.flushEvictions()
		m.refreshGauges()
	}
}

// Attach hands a new client to the hub. It returns false if the hub has
// stopped.
func (m *ManagerService) Attach(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Detach tells the hub a client has gone away.
func (m *ManagerService) Detach(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Submit queues an inbound signal. It returns false if the hub has stopped.
func (m *ManagerService) Submit(in models.Inbound) bool {
	select {
	case m.IncomingCh <- in:
		return true
	case <-m.done:
		return false
	}
}

// Snapshot asks the hub loop for its current counters.
func (m *ManagerService) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case m.snapshotCh <- reply:
	case <-m.done:
		return Snapshot{}, ErrHubStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Notify implements Notifier. It is only called on the hub goroutine.
func (m *ManagerService) Notify(handle string, evt models.ChatEvent) {
	client, ok := m.clients[handle]
	if !ok {
		return
	}
	if isNotice(evt.Event) && evt.Text == "" {
		var lang string
		if conn, ok := m.core.Registry.Get(handle); ok {
			lang = conn.Identity.Lang
		}
		evt.Text = m.localizer.GetString(lang, evt.Event)
	}

	select {
	case client.GetSendChannel() <- evt:
	default:
		slog.Warn("chathub.send_buffer_full", "handle", handle, "event", evt.Event)
		m.evict = append(m.evict, handle)
	}
}

func (m *ManagerService) attach(c Client) {
	h := c.GetHandle()
	if old, ok := m.clients[h]; ok && old != c {
		m.disconnect(h)
	}
	m.clients[h] = c
	slog.Debug("chathub.attached", "handle", h)
}

func (m *ManagerService) detach(c Client) {
	h := c.GetHandle()
	if cur, ok := m.clients[h]; !ok || cur != c {
		return
	}
	m.disconnect(h)
}

// disconnect removes every trace of handle and closes its client.
func (m *ManagerService) disconnect(handle string) {
	m.core.Lifecycle.Disconnect(handle)
	if c, ok := m.clients[handle]; ok {
		delete(m.clients, handle)
		c.Close()
	}
}

func (m *ManagerService) dispatch(in models.Inbound) {
	if _, ok := m.clients[in.Handle]; !ok {
		return
	}

	sig := in.Signal
	var err error
	switch sig.Event {
	case models.EventIdentifyUser:
		err = m.identify(in.Handle, models.RoleUser, sig)
	case models.EventIdentifyModerator:
		err = m.identify(in.Handle, models.RoleModerator, sig)
	case models.EventFindNext:
		m.core.Matcher.Search(in.Handle, sig.Gender)
	case models.EventEndChat:
		if m.core.EndChat(in.Handle) {
			m.Notify(in.Handle, models.ChatEvent{Event: models.EventChatEnded})
		}
	case models.EventSendMessage, models.EventTyping, models.EventStopTyping:
		err = m.core.Relay.Forward(in.Handle, sig)
	default:
		slog.Debug("chathub.unknown_event", "handle", in.Handle, "event", sig.Event)
		return
	}

	if err != nil {
		m.violation(in.Handle, sig.Event, err)
	}
}

func (m *ManagerService) identify(handle string, role models.Role, sig models.Signal) error {
	id := models.Identity{
		ID:          sig.ID,
		DisplayName: sig.Name,
		Lang:        sig.Lang,
	}
	if id.ID == "" {
		id.ID = handle
	}
	return m.core.Identify(handle, role, id)
}

// violation closes a connection that broke the protocol.
func (m *ManagerService) violation(handle, event string, err error) {
	reason := violationReason(err)
	metrics.ProtocolViolations.WithLabelValues(reason).Inc()
	slog.Warn("chathub.protocol_violation", "handle", handle, "event", event, "reason", reason, "error", err)
	m.disconnect(handle)
}

func violationReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownRole):
		return "unknown_role"
	case errors.Is(err, ErrRoleChange):
		return "role_change"
	case errors.Is(err, ErrWrongRole):
		return "wrong_role"
	case errors.Is(err, ErrForeignRoom):
		return "foreign_room"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	default:
		return "other"
	}
}

// searchFired runs on the timer goroutine. The partner profile is resolved
// here so the hub loop never waits on storage.
func (m *ManagerService) searchFired(s *PendingSearch) {
	var profile *models.PartnerProfile
	if m.profiles != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.profileTimeout)
		p, err := m.profiles.RandomProfile(ctx, s.Gender)
		cancel()
		if err != nil {
			slog.Warn("chathub.profile_lookup_failed", "handle", s.Handle, "error", err)
		} else {
			profile = p
		}
	}

	select {
	case m.firedCh <- firedSearch{search: s, profile: profile}:
	case <-m.done:
	}
}

func (m *ManagerService) flushEvictions() {
	for len(m.evict) > 0 {
		h := m.evict[0]
		m.evict = m.evict[1:]
		if _, ok := m.clients[h]; ok {
			slog.Warn("chathub.slow_client_evicted", "handle", h)
			m.disconnect(h)
		}
	}
	m.evict = nil
}

func (m *ManagerService) snapshot() Snapshot {
	s := m.core.Snapshot()
	s.Connections = len(m.clients)
	return s
}

func (m *ManagerService) refreshGauges() {
	metrics.ActiveConnections.Set(float64(len(m.clients)))
	metrics.PoolSize.Set(float64(m.core.Pool.Len()))
	metrics.ActivePairings.Set(float64(m.core.Pairs.Len()))
	metrics.PendingSearches.Set(float64(m.core.Matcher.PendingCount()))
}

// shutdown ends every pairing before closing done, so observers have seen
// each PairingEnded by the time Done fires.
func (m *ManagerService) shutdown() {
	m.core.Matcher.CancelAll()
	for h, c := range m.clients {
		m.core.Lifecycle.Disconnect(h)
		delete(m.clients, h)
		c.Close()
	}
	m.refreshGauges()
	close(m.done)
	slog.Info("chathub.stopped")
}

func isNotice(event string) bool {
	switch event {
	case models.EventSearching, models.EventChatEnded, models.EventNoModerator, models.EventLimitReached:
		return true
	}
	return false
}
