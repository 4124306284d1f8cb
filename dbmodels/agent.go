package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Agent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatorID uuid.UUID `gorm:"type:uuid;index;not null" json:"creatorId"`

	Name     string         `gorm:"type:varchar(255);not null" json:"name"`
	Tagline  string         `gorm:"type:varchar(255)" json:"tagline"`
	Category string         `gorm:"type:varchar(64);index" json:"category"`
	Tags     datatypes.JSON `gorm:"type:jsonb" json:"tags"`

	// FREE agents are open to everyone, PREMIUM agents are gated by
	// subscription or the per-user free trial.
	Tier string `gorm:"type:varchar(16);default:'FREE';not null" json:"tier"`

	SystemPrompt      string         `gorm:"type:text;not null" json:"systemPrompt"`
	Greeting          string         `gorm:"type:text" json:"greeting"`
	PersonalityConfig datatypes.JSON `gorm:"type:jsonb" json:"personalityConfig"`
	ModelConfig       datatypes.JSON `gorm:"type:jsonb;not null" json:"modelConfig"`

	// Inline knowledge documents injected verbatim into the system prompt,
	// as opposed to indexed knowledge served by retrieval.
	KnowledgeContext  datatypes.JSON `gorm:"type:jsonb" json:"knowledgeContext"`
	AssessmentConfigs datatypes.JSON `gorm:"type:jsonb" json:"assessmentConfigs"`

	Published   bool  `gorm:"default:false;not null" json:"published"`
	UsageCount  int64 `gorm:"default:0;not null" json:"usageCount"`
	RatingSum   int64 `gorm:"default:0;not null" json:"-"`
	RatingCount int64 `gorm:"default:0;not null" json:"ratingCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Creator User `gorm:"foreignKey:CreatorID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (a *Agent) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return
}

// ModelSettings is the decoded shape of Agent.ModelConfig.
type ModelSettings struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
}

// InlineDocument is one entry of Agent.KnowledgeContext.
type InlineDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// AssessmentConfig is one entry of Agent.AssessmentConfigs. A config with
// Trigger "first_message" gates the first user message of a new conversation.
type AssessmentConfig struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Trigger   string              `json:"trigger"`
	Questions []map[string]string `json:"questions"`
}
