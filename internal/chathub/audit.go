package chathub

import (
	"context"
	"log/slog"
	"time"

	"modchat/backend/internal/models"

	"github.com/benbjohnson/clock"
)

const (
	auditQueueSize = 1024
	auditTimeout   = 5 * time.Second
)

// RoomStore is the persistence the auditor writes pairing records to.
type RoomStore interface {
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CloseRoom(ctx context.Context, roomID string, endedAt time.Time) error
	GetActiveRoomIDs(ctx context.Context) ([]string, error)
	IncrementChatCount(ctx context.Context, userID string) (int64, error)
}

type auditJob struct {
	room  models.ChatRoom
	ended bool
}

// RoomAuditor records pairings as ChatRoom rows. It is a PairingObserver:
// the hub enqueues jobs without blocking and a single worker goroutine (Run)
// writes them in order, so a room's close never overtakes its insert.
type RoomAuditor struct {
	store RoomStore
	gate  *Gate
	clock clock.Clock
	jobs  chan auditJob
}

// NewRoomAuditor returns an auditor. gate may be nil; when set, a user's
// cached entitlements are dropped once its chat counter moved.
func NewRoomAuditor(store RoomStore, gate *Gate, clk clock.Clock) *RoomAuditor {
	if clk == nil {
		clk = clock.New()
	}
	return &RoomAuditor{
		store: store,
		gate:  gate,
		clock: clk,
		jobs:  make(chan auditJob, auditQueueSize),
	}
}

func (a *RoomAuditor) PairingStarted(p Pairing, user, moderator models.Identity) {
	a.enqueue(auditJob{room: models.ChatRoom{
		RoomID:      p.RoomID,
		UserID:      user.ID,
		ModeratorID: moderator.ID,
		IsActive:    true,
		StartedAt:   p.StartedAt,
	}})
}

func (a *RoomAuditor) PairingEnded(p Pairing) {
	now := a.clock.Now()
	a.enqueue(auditJob{
		room:  models.ChatRoom{RoomID: p.RoomID, EndedAt: &now},
		ended: true,
	})
}

func (a *RoomAuditor) enqueue(j auditJob) {
	select {
	case a.jobs <- j:
	default:
		slog.Warn("audit.queue_full", "room", j.room.RoomID, "ended", j.ended)
	}
}

// Run writes queued jobs until ctx is cancelled, then flushes what is left.
func (a *RoomAuditor) Run(ctx context.Context) error {
	for {
		select {
		case j := <-a.jobs:
			a.process(ctx, j)
		case <-ctx.Done():
			a.flush()
			return nil
		}
	}
}

func (a *RoomAuditor) flush() {
	for {
		select {
		case j := <-a.jobs:
			a.process(context.Background(), j)
		default:
			return
		}
	}
}

func (a *RoomAuditor) process(parent context.Context, j auditJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), auditTimeout)
	defer cancel()

	if j.ended {
		if err := a.store.CloseRoom(ctx, j.room.RoomID, *j.room.EndedAt); err != nil {
			slog.Error("audit.close_room_failed", "room", j.room.RoomID, "error", err)
		}
		return
	}

	room := j.room
	if err := a.store.SaveRoom(ctx, &room); err != nil {
		slog.Error("audit.save_room_failed", "room", room.RoomID, "error", err)
	}
	if _, err := a.store.IncrementChatCount(ctx, room.UserID); err != nil {
		slog.Error("audit.chat_count_failed", "user", room.UserID, "error", err)
	}
	a.gate.Invalidate(room.UserID)
}

// RecoverActiveRooms closes rooms a previous process left active. Pairings
// live in memory only, so none of them can still be running.
func (a *RoomAuditor) RecoverActiveRooms(ctx context.Context) (int, error) {
	ids, err := a.store.GetActiveRoomIDs(ctx)
	if err != nil {
		return 0, err
	}

	now := a.clock.Now()
	closed := 0
	for _, id := range ids {
		if err := a.store.CloseRoom(ctx, id, now); err != nil {
			slog.Warn("audit.recover_close_failed", "room", id, "error", err)
			continue
		}
		closed++
	}
	slog.Info("audit.recovered", "stale_rooms", len(ids), "closed", closed)
	return closed, nil
}
