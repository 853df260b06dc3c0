package models

import "github.com/lib/pq"

// ProfileSeed is a display profile the user side sees for its partner.
type ProfileSeed struct {
	ID        uint `gorm:"primaryKey"`
	FullName  string
	UserName  string
	PfpURL    string
	Age       int
	City      string
	Gender    string         `gorm:"index"`
	Interests pq.StringArray `gorm:"type:text[]"`
}

// TableName keeps the table name used by the profile import scripts.
func (ProfileSeed) TableName() string { return "random_users" }

// PartnerProfile is what a client renders for the other side of a room.
type PartnerProfile struct {
	Name      string   `json:"name"`
	Username  string   `json:"username,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Age       int      `json:"age,omitempty"`
	City      string   `json:"city,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// Profile converts the seed into its wire form.
func (p ProfileSeed) Profile() *PartnerProfile {
	return &PartnerProfile{
		Name:      p.FullName,
		Username:  p.UserName,
		AvatarURL: p.PfpURL,
		Age:       p.Age,
		City:      p.City,
		Interests: []string(p.Interests),
	}
}
