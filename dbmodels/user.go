package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TierFree    = "FREE"
	TierPremium = "PREMIUM"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`

	// Free-text self description used for prompt personalization
	// (name/about/values/goals/challenges).
	Context string `gorm:"type:text" json:"context"`

	Onboarded bool `gorm:"default:false;not null" json:"onboarded"`

	SubscriptionTier      string     `gorm:"type:varchar(16);default:'FREE';not null" json:"subscriptionTier"`
	SubscriptionExpiresAt *time.Time `json:"subscriptionExpiresAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}
