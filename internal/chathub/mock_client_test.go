package chathub_test

import (
	"sync/atomic"
	"testing"
	"time"

	"modchat/backend/internal/models"

	"github.com/stretchr/testify/require"
)

type MockClient struct {
	handle      string
	RecvChannel chan models.ChatEvent
	closed      atomic.Bool
}

func newMockClient(handle string) *MockClient {
	return newMockClientBuffered(handle, 64)
}

func newMockClientBuffered(handle string, size int) *MockClient {
	return &MockClient{
		handle:      handle,
		RecvChannel: make(chan models.ChatEvent, size),
	}
}

func (c *MockClient) GetHandle() string {
	return c.handle
}

func (c *MockClient) GetSendChannel() chan<- models.ChatEvent {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.closed.Store(true)
}

func (c *MockClient) IsClosed() bool {
	return c.closed.Load()
}

// expectEvent waits for the next event on c and checks its name.
func expectEvent(t *testing.T, c *MockClient, event string) models.ChatEvent {
	t.Helper()
	select {
	case evt := <-c.RecvChannel:
		require.Equal(t, event, evt.Event, "unexpected event for %s", c.handle)
		return evt
	case <-time.After(2 * time.Second):
		require.FailNowf(t, "timeout", "%s never received %s", c.handle, event)
		return models.ChatEvent{}
	}
}

// expectSilence checks that nothing arrives on c for a short while.
func expectSilence(t *testing.T, c *MockClient) {
	t.Helper()
	select {
	case evt := <-c.RecvChannel:
		require.FailNowf(t, "unexpected event", "%s received %+v", c.handle, evt)
	case <-time.After(50 * time.Millisecond):
	}
}
