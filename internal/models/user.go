package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Free plan limits, applied to users without a plan.
const (
	FreePlanName       = "Free"
	FreePlanDailyChats = 20
)

// User is an account known to the entitlement service.
type User struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	DisplayName string         `json:"name"`
	Gender      string         `json:"gender"`
	Interests   pq.StringArray `gorm:"type:text[]" json:"interests"`
	PlanID      *uint          `json:"plan_id"`
	Plan        *Plan          `json:"plan,omitempty"`
}

// BeforeCreate generates a UUID for the user if the ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Plan holds the limits a paying user is entitled to.
type Plan struct {
	gorm.Model
	Name          string `gorm:"uniqueIndex"`
	MaxDailyChats int
	SendImages    bool
	SendGifts     bool
}

// Entitlements is the resolved answer to "may this actor do X right now".
type Entitlements struct {
	PlanName      string `json:"plan"`
	ChatsLeft     int    `json:"chats_left"`
	CanSendImages bool   `json:"can_send_images"`
	CanSendGifts  bool   `json:"can_send_gifts"`
}

// EntitlementsFor computes the limits of u given how many chats it has
// started today. A nil plan means the Free plan.
func EntitlementsFor(plan *Plan, chatsUsed int64) Entitlements {
	if plan == nil {
		return Entitlements{
			PlanName:  FreePlanName,
			ChatsLeft: clampLeft(FreePlanDailyChats, chatsUsed),
		}
	}
	return Entitlements{
		PlanName:      plan.Name,
		ChatsLeft:     clampLeft(plan.MaxDailyChats, chatsUsed),
		CanSendImages: plan.SendImages,
		CanSendGifts:  plan.SendGifts,
	}
}

func clampLeft(max int, used int64) int {
	left := int64(max) - used
	if left < 0 {
		return 0
	}
	return int(left)
}
