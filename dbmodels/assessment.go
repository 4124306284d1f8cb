package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssessmentResponse records a completed question set. Append-only.
type AssessmentResponse struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;index;not null" json:"userId"`
	AgentID        uuid.UUID  `gorm:"type:uuid;index;not null" json:"agentId"`
	ConversationID *uuid.UUID `gorm:"type:uuid" json:"conversationId"`

	AssessmentID string         `gorm:"type:varchar(128);not null" json:"assessmentId"`
	Answers      datatypes.JSON `gorm:"type:jsonb;not null" json:"answers"`
	CompletedAt  time.Time      `json:"completedAt"`

	User  User  `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Agent Agent `gorm:"foreignKey:AgentID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (a *AssessmentResponse) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CompletedAt.IsZero() {
		a.CompletedAt = time.Now()
	}
	return
}
