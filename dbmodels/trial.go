package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FreeTrialUsage counts trial messages per user per agent. The pool is
// per-agent: trying a second premium coach starts a fresh allowance.
type FreeTrialUsage struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_trial_user_agent;not null" json:"userId"`
	AgentID      uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_trial_user_agent;not null" json:"agentId"`
	MessagesUsed int       `gorm:"default:0;not null" json:"messagesUsed"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (f *FreeTrialUsage) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return
}
