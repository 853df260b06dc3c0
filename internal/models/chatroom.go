package models

import "time"

// ChatRoom is the audit record of one pairing between a user and a moderator.
// Chat content is never stored; only who was paired and when.
type ChatRoom struct {
	// RoomID is the pairing tag (UUID) carried on every relayed event.
	RoomID string `gorm:"primaryKey"`
	// UserID is the identity of the user side.
	UserID string `gorm:"index"`
	// ModeratorID is the identity of the moderator side.
	ModeratorID string `gorm:"index"`
	// IsActive is true until the pairing is torn down.
	IsActive bool `gorm:"index"`
	// StartedAt is when the matcher committed the pairing.
	StartedAt time.Time
	// EndedAt is set on skip/disconnect of either side.
	EndedAt *time.Time
}
