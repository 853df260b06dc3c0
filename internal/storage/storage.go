package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"modchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var ErrRoomNotFound = errors.New("chat room not found")

// chatCounterTTL keeps a day's counter around a little past midnight so a
// late read never sees a missing key as "zero chats".
const chatCounterTTL = 48 * time.Hour

// Storage is what the matchmaking server persists or looks up outside of
// its in-memory state. Chat content is never stored.
type Storage interface {
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CloseRoom(ctx context.Context, roomID string, endedAt time.Time) error
	GetActiveRoomIDs(ctx context.Context) ([]string, error)
	GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error)

	IsUserBanned(ctx context.Context, userID string) (bool, error)
	BanUser(ctx context.Context, userID string, d time.Duration) error
	UnbanUser(ctx context.Context, userID string) error

	IncrementChatCount(ctx context.Context, userID string) (int64, error)
	ChatsUsedToday(ctx context.Context, userID string) (int64, error)
	GetEntitlements(ctx context.Context, userID string) (models.Entitlements, error)

	RandomProfile(ctx context.Context, gender string) (*models.PartnerProfile, error)
}

// Service implements Storage over PostgreSQL (gorm) and Redis. Either may be
// nil, in which case the methods depending on it degrade to no-ops or
// defaults.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client

	now func() time.Time
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		now:   time.Now,
	}
}

// SaveRoom upserts the audit row of a pairing.
func (s *Service) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.WithContext(ctx).Save(room).Error
}

// CloseRoom marks a room inactive. Closing an unknown room is not an error.
func (s *Service) CloseRoom(ctx context.Context, roomID string, endedAt time.Time) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ?", roomID).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  endedAt,
		}).Error
}

// GetActiveRoomIDs returns every room still marked active.
func (s *Service) GetActiveRoomIDs(ctx context.Context) ([]string, error) {
	if s.DB == nil {
		return nil, nil
	}
	var roomIDs []string
	if err := s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("is_active = ?", true).
		Pluck("room_id", &roomIDs).Error; err != nil {
		return nil, fmt.Errorf("active rooms: %w", err)
	}
	return roomIDs, nil
}

func (s *Service) GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	if s.DB == nil {
		return nil, ErrRoomNotFound
	}
	var room models.ChatRoom
	err := s.DB.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// IsUserBanned checks the ban key in Redis.
func (s *Service) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	if s.Redis == nil {
		return false, nil
	}
	status, err := s.Redis.Get(ctx, BanKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// BanUser bans userID for d; d <= 0 bans until UnbanUser.
func (s *Service) BanUser(ctx context.Context, userID string, d time.Duration) error {
	if s.Redis == nil {
		return errors.New("redis is not configured")
	}
	if d < 0 {
		d = 0
	}
	return s.Redis.Set(ctx, BanKey(userID), "active", d).Err()
}

func (s *Service) UnbanUser(ctx context.Context, userID string) error {
	if s.Redis == nil {
		return errors.New("redis is not configured")
	}
	return s.Redis.Del(ctx, BanKey(userID)).Err()
}

// IncrementChatCount records one started chat for userID today and returns
// the new count.
func (s *Service) IncrementChatCount(ctx context.Context, userID string) (int64, error) {
	if s.Redis == nil {
		return 0, nil
	}
	key := ChatCounterKey(userID, s.now())
	pipe := s.Redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, chatCounterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment chat count: %w", err)
	}
	return incr.Val(), nil
}

func (s *Service) ChatsUsedToday(ctx context.Context, userID string) (int64, error) {
	if s.Redis == nil {
		return 0, nil
	}
	n, err := s.Redis.Get(ctx, ChatCounterKey(userID, s.now())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// GetEntitlements resolves the plan of userID and today's usage. Users
// without a row or without a plan get the Free plan.
func (s *Service) GetEntitlements(ctx context.Context, userID string) (models.Entitlements, error) {
	used, err := s.ChatsUsedToday(ctx, userID)
	if err != nil {
		return models.Entitlements{}, err
	}
	if s.DB == nil {
		return models.EntitlementsFor(nil, used), nil
	}

	var user models.User
	err = s.DB.WithContext(ctx).Preload("Plan").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.EntitlementsFor(nil, used), nil
	}
	if err != nil {
		return models.Entitlements{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return models.EntitlementsFor(user.Plan, used), nil
}

// RandomProfile draws a profile seed uniformly, filtered by gender unless it
// is empty or "random". A "male" filter with at most one match falls back to
// "female". It returns nil when no seed matches.
func (s *Service) RandomProfile(ctx context.Context, gender string) (*models.PartnerProfile, error) {
	if s.DB == nil {
		return nil, nil
	}
	db := s.DB.WithContext(ctx)

	gender = profileGender(gender)
	count, err := countSeeds(db, gender)
	if err != nil {
		return nil, err
	}
	if gender == "male" && count <= 1 {
		gender = "female"
		if count, err = countSeeds(db, gender); err != nil {
			return nil, err
		}
	}
	if count == 0 {
		slog.Debug("storage.no_profile_seed", "gender", gender)
		return nil, nil
	}

	var seed models.ProfileSeed
	err = seedScope(db, gender).
		Order("id").
		Offset(rand.IntN(int(count))).
		Limit(1).
		Take(&seed).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pick profile seed: %w", err)
	}
	return seed.Profile(), nil
}

func countSeeds(db *gorm.DB, gender string) (int64, error) {
	var n int64
	if err := seedScope(db, gender).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count profile seeds: %w", err)
	}
	return n, nil
}

func seedScope(db *gorm.DB, gender string) *gorm.DB {
	q := db.Model(&models.ProfileSeed{})
	if gender != "" {
		q = q.Where("gender = ?", gender)
	}
	return q
}
