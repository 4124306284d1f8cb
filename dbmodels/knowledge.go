package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// KnowledgeDocument is an ingested reference text attached to an agent.
type KnowledgeDocument struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AgentID uuid.UUID `gorm:"type:uuid;index;not null" json:"agentId"`
	Title   string    `gorm:"type:varchar(255);not null" json:"title"`

	CreatedAt time.Time `json:"createdAt"`

	Agent Agent `gorm:"foreignKey:AgentID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (d *KnowledgeDocument) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return
}

// KnowledgeChunk is a retrievable segment of a document. The embedding is
// stored so the in-memory vector collections can be rebuilt at startup
// without re-calling the embeddings API.
type KnowledgeChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;index;not null" json:"documentId"`
	AgentID    uuid.UUID `gorm:"type:uuid;index;not null" json:"agentId"`

	Heading   string         `gorm:"type:varchar(255)" json:"heading"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Embedding datatypes.JSON `gorm:"type:jsonb;not null" json:"-"`

	CreatedAt time.Time `json:"createdAt"`

	Document KnowledgeDocument `gorm:"foreignKey:DocumentID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (c *KnowledgeChunk) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
