package chathub_test

import (
	"testing"

	"modchat/backend/internal/chathub"
	"modchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_ForwardsToPartnerOnly(t *testing.T) {
	// Arrange
	h := newHarness(t, true)
	h.identify(t, "m", models.RoleModerator)
	h.identify(t, "m2", models.RoleModerator)
	h.identify(t, "u", models.RoleUser)
	p := h.pair(t, "u")
	h.notes.Reset()

	// Act
	err := h.core.Relay.Forward("u", models.Signal{
		Event:   models.EventSendMessage,
		RoomID:  p.RoomID,
		Type:    models.MessageText,
		Content: "hi",
	})

	// Assert
	require.NoError(t, err)
	partner := p.Other("u")
	require.Len(t, h.notes.For(partner), 1)
	got := h.notes.For(partner)[0]
	assert.Equal(t, models.EventMessage, got.Event)
	assert.Equal(t, "hi", got.Content)
	assert.Equal(t, models.MessageText, got.Type)
	assert.Equal(t, p.RoomID, got.RoomID)
	assert.Equal(t, models.RoleUser, got.SenderRole)

	for handle := range h.notes.events {
		if handle != partner {
			t.Errorf("%s must not receive the message", handle)
		}
	}
}

func TestRelay_TypingSignals(t *testing.T) {
	h := newHarness(t, true)
	h.identify(t, "m", models.RoleModerator)
	h.identify(t, "u", models.RoleUser)
	p := h.pair(t, "u")
	h.notes.Reset()

	require.NoError(t, h.core.Relay.Forward("m", models.Signal{Event: models.EventTyping}))
	require.NoError(t, h.core.Relay.Forward("m", models.Signal{Event: models.EventStopTyping, RoomID: p.RoomID}))

	evts := h.notes.For("u")
	require.Len(t, evts, 2)
	assert.Equal(t, models.EventTyping, evts[0].Event)
	assert.Equal(t, models.EventStopTyping, evts[1].Event)
	assert.Equal(t, models.RoleModerator, evts[0].SenderRole)
	assert.Empty(t, evts[0].Content)
}

func TestRelay_DropsWithoutPartner(t *testing.T) {
	h := newHarness(t, true)
	h.identify(t, "u", models.RoleUser)

	err := h.core.Relay.Forward("u", models.Signal{Event: models.EventTyping})

	assert.NoError(t, err)
	assert.Empty(t, h.notes.events)
}

// A message tagged with the room that just ended must not reach the
// partner of the next room.
func TestRelay_StaleRoomIsDropped(t *testing.T) {
	// Arrange
	h := newHarness(t, true)
	h.identify(t, "m", models.RoleModerator)
	h.identify(t, "u", models.RoleUser)
	old := h.pair(t, "u")
	h.core.Lifecycle.EndChat("u")
	h.pair(t, "u")
	h.notes.Reset()

	// Act
	err := h.core.Relay.Forward("u", models.Signal{
		Event:   models.EventSendMessage,
		RoomID:  old.RoomID,
		Type:    models.MessageText,
		Content: "late",
	})

	// Assert
	assert.NoError(t, err)
	assert.Empty(t, h.notes.For("m"))
}

func TestRelay_ForeignRoomIsViolation(t *testing.T) {
	h := newHarness(t, true)
	h.identify(t, "m", models.RoleModerator)
	h.identify(t, "u", models.RoleUser)
	h.pair(t, "u")
	h.notes.Reset()

	err := h.core.Relay.Forward("u", models.Signal{
		Event:  models.EventSendMessage,
		RoomID: "someone-elses-room",
		Type:   models.MessageText,
	})

	assert.ErrorIs(t, err, chathub.ErrForeignRoom)
	assert.Empty(t, h.notes.For("m"))
}

func TestRelay_DropsMalformedMessages(t *testing.T) {
	h := newHarness(t, true)
	h.identify(t, "m", models.RoleModerator)
	h.identify(t, "u", models.RoleUser)
	p := h.pair(t, "u")
	h.notes.Reset()

	assert.NoError(t, h.core.Relay.Forward("u", models.Signal{Event: models.EventSendMessage, Type: models.MessageText, Content: "untagged"}))
	assert.NoError(t, h.core.Relay.Forward("u", models.Signal{Event: models.EventSendMessage, RoomID: p.RoomID, Type: "video"}))
	assert.Empty(t, h.notes.For("m"))
}

func TestRelay_IgnoresUnidentifiedSender(t *testing.T) {
	h := newHarness(t, true)

	err := h.core.Relay.Forward("ghost", models.Signal{Event: models.EventTyping})

	assert.NoError(t, err)
	assert.Empty(t, h.notes.events)
}

// Once a client tags its typing signals, an untagged one may be a leftover
// from the previous chat and must not reach the next partner.
func TestRelay_UntaggedTypingFromTaggingClientIsDropped(t *testing.T) {
	// Arrange
	h := newHarness(t, true)
	h.identify(t, "m", models.RoleModerator)
	h.identify(t, "u", models.RoleUser)
	first := h.pair(t, "u")
	require.NoError(t, h.core.Relay.Forward("u", models.Signal{Event: models.EventTyping, RoomID: first.RoomID}))
	require.Equal(t, 1, h.notes.Count("m", models.EventTyping))
	h.core.Lifecycle.EndChat("u")
	second := h.pair(t, "u")
	h.notes.Reset()

	// Act
	require.NoError(t, h.core.Relay.Forward("u", models.Signal{Event: models.EventStopTyping}))

	// Assert
	assert.Empty(t, h.notes.For("m"))
	require.NoError(t, h.core.Relay.Forward("u", models.Signal{Event: models.EventTyping, RoomID: second.RoomID}))
	assert.Equal(t, 1, h.notes.Count("m", models.EventTyping))
}

// A tag from a room older than the remembered history cannot be told apart
// from a stale one, so it is dropped rather than treated as foreign.
func TestRelay_StaleTagBeyondHistoryIsDropped(t *testing.T) {
	// Arrange
	h := newHarness(t, true)
	h.identify(t, "m", models.RoleModerator)
	h.identify(t, "u", models.RoleUser)
	oldest := h.pair(t, "u")
	h.core.Lifecycle.EndChat("u")
	for i := 0; i < 20; i++ {
		h.pair(t, "u")
		h.core.Lifecycle.EndChat("u")
	}
	h.pair(t, "u")
	h.notes.Reset()

	// Act
	err := h.core.Relay.Forward("u", models.Signal{
		Event:   models.EventSendMessage,
		RoomID:  oldest.RoomID,
		Type:    models.MessageText,
		Content: "very late",
	})

	// Assert
	assert.NoError(t, err)
	assert.Empty(t, h.notes.For("m"))
}
