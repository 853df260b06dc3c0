package chathub_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"modchat/backend/internal/chathub"
	"modchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockEntitlementStore struct {
	mock.Mock
}

func (m *MockEntitlementStore) GetEntitlements(ctx context.Context, userID string) (models.Entitlements, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.Entitlements), args.Error(1)
}

func (m *MockEntitlementStore) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func newTestGate(store chathub.EntitlementStore) *chathub.Gate {
	return chathub.NewGate(store, 16, time.Minute, time.Second)
}

var (
	findNext  = models.Signal{Event: models.EventFindNext}
	sendImage = models.Signal{Event: models.EventSendMessage, Type: models.MessageImage}
	sendGift  = models.Signal{Event: models.EventSendMessage, Type: models.MessageGift}
	sendText  = models.Signal{Event: models.EventSendMessage, Type: models.MessageText}
)

func TestGate_FreePlan(t *testing.T) {
	// Arrange
	store := new(MockEntitlementStore)
	store.On("GetEntitlements", mock.Anything, "u1").
		Return(models.EntitlementsFor(nil, 3), nil).Once()
	gate := newTestGate(store)
	ctx := context.Background()

	// Act & Assert
	assert.Empty(t, gate.Check(ctx, "u1", models.RoleUser, findNext))
	assert.Equal(t, chathub.ReasonNoImages, gate.Check(ctx, "u1", models.RoleUser, sendImage))
	assert.Equal(t, chathub.ReasonNoGifts, gate.Check(ctx, "u1", models.RoleUser, sendGift))
	assert.Empty(t, gate.Check(ctx, "u1", models.RoleUser, sendText))
	store.AssertExpectations(t)
}

func TestGate_ChatLimitAndInvalidate(t *testing.T) {
	// Arrange
	store := new(MockEntitlementStore)
	store.On("GetEntitlements", mock.Anything, "u1").
		Return(models.Entitlements{ChatsLeft: 1}, nil).Once()
	store.On("GetEntitlements", mock.Anything, "u1").
		Return(models.Entitlements{ChatsLeft: 0}, nil).Once()
	gate := newTestGate(store)
	ctx := context.Background()

	// Act & Assert
	assert.Empty(t, gate.Check(ctx, "u1", models.RoleUser, findNext))
	assert.Empty(t, gate.Check(ctx, "u1", models.RoleUser, findNext), "cached")

	gate.Invalidate("u1")
	assert.Equal(t, chathub.ReasonChatLimit, gate.Check(ctx, "u1", models.RoleUser, findNext))
	store.AssertExpectations(t)
}

func TestGate_ModeratorsAreNeverGated(t *testing.T) {
	store := new(MockEntitlementStore)
	gate := newTestGate(store)

	assert.Empty(t, gate.Check(context.Background(), "m1", models.RoleModerator, sendImage))
	store.AssertNotCalled(t, "GetEntitlements", mock.Anything, mock.Anything)
}

func TestGate_FailsOpen(t *testing.T) {
	// Arrange
	store := new(MockEntitlementStore)
	store.On("GetEntitlements", mock.Anything, "u1").
		Return(models.Entitlements{}, errors.New("db down"))
	store.On("IsUserBanned", mock.Anything, "u1").
		Return(false, errors.New("redis down"))
	gate := newTestGate(store)
	ctx := context.Background()

	// Act & Assert
	assert.Empty(t, gate.Check(ctx, "u1", models.RoleUser, findNext))
	assert.Empty(t, gate.Check(ctx, "u1", models.RoleUser, sendGift))
	assert.NoError(t, gate.Admit(ctx, "u1"))
}

func TestGate_Admit(t *testing.T) {
	store := new(MockEntitlementStore)
	store.On("IsUserBanned", mock.Anything, "bad").Return(true, nil)
	store.On("IsUserBanned", mock.Anything, "good").Return(false, nil)
	gate := newTestGate(store)

	assert.ErrorIs(t, gate.Admit(context.Background(), "bad"), chathub.ErrBanned)
	assert.NoError(t, gate.Admit(context.Background(), "good"))
}

func TestGate_NilAllowsEverything(t *testing.T) {
	var gate *chathub.Gate

	assert.NoError(t, gate.Admit(context.Background(), "u1"))
	assert.Empty(t, gate.Check(context.Background(), "u1", models.RoleUser, sendImage))
	gate.Invalidate("u1")
}
