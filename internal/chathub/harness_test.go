package chathub_test

import (
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"modchat/backend/internal/chathub"
	"modchat/backend/internal/models"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDelay = 100 * time.Millisecond

// recordingNotifier collects every event per handle.
type recordingNotifier struct {
	events map[string][]models.ChatEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[string][]models.ChatEvent)}
}

func (n *recordingNotifier) Notify(handle string, evt models.ChatEvent) {
	n.events[handle] = append(n.events[handle], evt)
}

func (n *recordingNotifier) For(handle string) []models.ChatEvent {
	return n.events[handle]
}

func (n *recordingNotifier) Count(handle, event string) int {
	count := 0
	for _, evt := range n.events[handle] {
		if evt.Event == event {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) Last(handle string) models.ChatEvent {
	evts := n.events[handle]
	if len(evts) == 0 {
		return models.ChatEvent{}
	}
	return evts[len(evts)-1]
}

func (n *recordingNotifier) Reset() {
	n.events = make(map[string][]models.ChatEvent)
}

type harness struct {
	core  *chathub.Core
	clock *clock.Mock
	notes *recordingNotifier
	fired chan *chathub.PendingSearch
}

func newHarness(t *testing.T, strict bool) *harness {
	t.Helper()
	h := &harness{
		clock: clock.NewMock(),
		notes: newRecordingNotifier(),
		fired: make(chan *chathub.PendingSearch, 16),
	}
	rooms := 0
	h.core = chathub.NewCore(h.notes, chathub.CoreOptions{
		MinSearchDelay:   testDelay,
		MaxSearchDelay:   testDelay,
		StrictInvariants: strict,
		Clock:            h.clock,
		Rand:             rand.New(rand.NewPCG(1, 2)),
		NewRoomID: func() string {
			rooms++
			return "room-" + strconv.Itoa(rooms)
		},
		OnFire: func(s *chathub.PendingSearch) { h.fired <- s },
	})
	return h
}

func (h *harness) identify(t *testing.T, handle string, role models.Role) {
	t.Helper()
	require.NoError(t, h.core.Identify(handle, role, models.Identity{ID: "id-" + handle, DisplayName: "name-" + handle}))
}

// elapse advances the mock clock past the search delay and returns the
// search whose timer fired.
func (h *harness) elapse(t *testing.T) *chathub.PendingSearch {
	t.Helper()
	h.clock.Add(testDelay)
	select {
	case s := <-h.fired:
		return s
	case <-time.After(time.Second):
		require.FailNow(t, "search timer never fired")
		return nil
	}
}

// pair runs a full search for user and fires it.
func (h *harness) pair(t *testing.T, user string) *chathub.Pairing {
	t.Helper()
	_, ok := h.core.Matcher.Search(user, "")
	require.True(t, ok)
	h.core.Matcher.Fire(h.elapse(t), nil)
	p, ok := h.core.Pairs.Lookup(user)
	require.True(t, ok, "user %s should be paired", user)
	return p
}

// assertInvariants checks symmetry of the pairing table and that no paired
// handle sits in the pool.
func (h *harness) assertInvariants(t *testing.T, handles ...string) {
	t.Helper()
	for _, handle := range handles {
		partner, paired := h.core.Pairs.PartnerOf(handle)
		if !paired {
			continue
		}
		back, ok := h.core.Pairs.PartnerOf(partner)
		assert.True(t, ok, "%s is paired with %s but not the other way round", handle, partner)
		assert.Equal(t, handle, back)
		assert.False(t, h.core.Pool.Contains(handle), "paired %s must not be in the pool", handle)
	}
}
