package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InsightCategories are the only values accepted for UserInsight.Category.
var InsightCategories = []string{
	"GOAL",
	"CHALLENGE",
	"PREFERENCE",
	"VALUE",
	"HABIT",
	"SKILL",
	"MOTIVATION",
	"OBSTACLE",
	"PROGRESS",
	"CONTEXT",
}

func ValidInsightCategory(category string) bool {
	for _, c := range InsightCategories {
		if c == category {
			return true
		}
	}
	return false
}

// UserInsight is a short extracted fact about a user, used to personalize
// future prompts. AgentID null means the insight is global across agents.
// Insights are archived (soft-deleted), never hard-deleted.
type UserInsight struct {
	ID      uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"userId"`
	AgentID *uuid.UUID `gorm:"type:uuid;index" json:"agentId"`

	Category   string  `gorm:"type:varchar(32);not null" json:"category"`
	Content    string  `gorm:"type:text;not null" json:"content"`
	Confidence float64 `gorm:"not null" json:"confidence"`

	IsArchived bool       `gorm:"default:false;not null" json:"isArchived"`
	IsActive   bool       `gorm:"default:true;not null" json:"isActive"`
	UserEdited bool       `gorm:"default:false;not null" json:"userEdited"`
	LastUsedAt *time.Time `json:"lastUsedAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	User User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (i *UserInsight) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return
}
