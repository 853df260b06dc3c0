package chathub

import "modchat/backend/internal/models"

// Client is one attached connection as the hub sees it.
type Client interface {
	// GetHandle returns the opaque handle the hub knows this connection by.
	GetHandle() string

	// GetSendChannel returns the channel the hub writes outbound events to.
	// The hub never blocks on it; a full channel gets the client evicted.
	GetSendChannel() chan<- models.ChatEvent

	// Run starts the client's read and write pumps.
	Run()
	// Close stops the client. It must be safe to call more than once.
	Close()
}
