package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai/jsonschema"
	"gorm.io/gorm"

	"github.com/coachly/coachd/pkg/llm"

	models "github.com/coachly/coachd/dbmodels"
)

const (
	// TriggerInterval: extraction runs when a conversation's message count
	// is an exact multiple of this.
	TriggerInterval = 5
	// minMessages below which a conversation is too thin to extract from.
	minMessages = 2
	// dedupPrefixLen characters of a candidate are matched (case
	// insensitively) against existing insight contents.
	dedupPrefixLen = 30
)

// Candidate is one extracted fact as returned by the model.
type Candidate struct {
	Category      string  `json:"category"`
	Content       string  `json:"content"`
	Confidence    float64 `json:"confidence"`
	ExtractedFrom string  `json:"extractedFrom"`
}

type extraction struct {
	Insights []Candidate `json:"insights"`
}

// Extractor mines conversations for durable facts about the user. It runs
// in the background; every failure is logged and swallowed, yielding zero
// insights for that run.
type Extractor struct {
	db     *gorm.DB
	client llm.LLMClient
	model  string
}

func NewExtractor(db *gorm.DB, client llm.LLMClient, model string) *Extractor {
	return &Extractor{db: db, client: client, model: model}
}

// ShouldTrigger reports whether a conversation with the given message count
// is due for an extraction pass.
func ShouldTrigger(messageCount int64) bool {
	return messageCount > 0 && messageCount%TriggerInterval == 0
}

// Extract reads the conversation's full history, asks the model for
// categorized facts and persists the ones that survive validation and
// dedup. Returns the number of insights saved.
func (e *Extractor) Extract(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var conv models.Conversation
	if err := e.db.First(&conv, "id = ?", conversationID).Error; err != nil {
		return 0, err
	}

	var messages []models.Message
	if err := e.db.
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return 0, err
	}
	if len(messages) < minMessages {
		xlog.Debug("Conversation too short for insight extraction", "conversation", conversationID, "messages", len(messages))
		return 0, nil
	}

	var existing []models.UserInsight
	if err := e.db.
		Where("user_id = ? AND is_archived = false", conv.UserID).
		Find(&existing).Error; err != nil {
		return 0, err
	}

	var result extraction
	guidance := buildGuidance(messages, existing)
	if err := llm.GenerateTypedJSONWithGuidance(ctx, e.client, guidance, e.model, extractionSchema(), &result); err != nil {
		return 0, err
	}

	saved := 0
	for _, candidate := range result.Insights {
		candidate.Category = strings.ToUpper(strings.TrimSpace(candidate.Category))
		candidate.Content = strings.TrimSpace(candidate.Content)

		if candidate.Content == "" || !models.ValidInsightCategory(candidate.Category) {
			xlog.Debug("Dropping invalid insight candidate", "category", candidate.Category)
			continue
		}
		if IsDuplicate(candidate.Content, existing) {
			xlog.Debug("Dropping duplicate insight", "content", candidate.Content)
			continue
		}

		agentID := conv.AgentID
		row := models.UserInsight{
			UserID:     conv.UserID,
			AgentID:    &agentID,
			Category:   candidate.Category,
			Content:    candidate.Content,
			Confidence: candidate.Confidence,
			IsActive:   true,
		}
		if err := e.db.Create(&row).Error; err != nil {
			xlog.Error("Failed to save insight", "error", err)
			continue
		}
		existing = append(existing, row)
		saved++
	}

	xlog.Info("Insight extraction finished", "conversation", conversationID, "saved", saved)
	return saved, nil
}

// IsDuplicate reports whether any existing non-archived insight's content
// case-insensitively contains the candidate's first 30 characters. Crude
// prefix containment, not semantic dedup.
func IsDuplicate(content string, existing []models.UserInsight) bool {
	prefix := strings.ToLower(content)
	if len(prefix) > dedupPrefixLen {
		prefix = prefix[:dedupPrefixLen]
	}
	for _, ins := range existing {
		if ins.IsArchived {
			continue
		}
		if strings.Contains(strings.ToLower(ins.Content), prefix) {
			return true
		}
	}
	return false
}

func buildGuidance(messages []models.Message, existing []models.UserInsight) string {
	sb := strings.Builder{}
	sb.WriteString("Extract durable facts about the user from the coaching conversation below.\n")
	sb.WriteString("Each fact has a category (one of ")
	sb.WriteString(strings.Join(models.InsightCategories, ", "))
	sb.WriteString("), a short content sentence, a confidence between 0 and 1, and the message text it was extracted from.\n")
	sb.WriteString("Only include facts worth remembering across sessions. Do not restate facts already known.\n")

	if len(existing) > 0 {
		sb.WriteString("\nAlready known about the user:\n")
		for _, ins := range existing {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", ins.Category, ins.Content))
		}
	}

	sb.WriteString("\nConversation:\n")
	for _, m := range messages {
		sb.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
	}
	return sb.String()
}

func extractionSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"insights": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"category": {
							Type: jsonschema.String,
							Enum: models.InsightCategories,
						},
						"content":       {Type: jsonschema.String},
						"confidence":    {Type: jsonschema.Number},
						"extractedFrom": {Type: jsonschema.String},
					},
					Required: []string{"category", "content", "confidence"},
				},
			},
		},
		Required: []string{"insights"},
	}
}

// InsightsSummary renders the user's active insights as prompt text for
// the assembler. Empty when the user has none.
func InsightsSummary(db *gorm.DB, userID uuid.UUID) string {
	var insights []models.UserInsight
	if err := db.
		Where("user_id = ? AND is_archived = false AND is_active = true", userID).
		Order("created_at ASC").
		Find(&insights).Error; err != nil {
		xlog.Warn("Failed to load insights for prompt", "user", userID, "error", err)
		return ""
	}
	if len(insights) == 0 {
		return ""
	}
	sb := strings.Builder{}
	for _, ins := range insights {
		sb.WriteString(fmt.Sprintf("- [%s] %s\n", ins.Category, ins.Content))
	}
	return strings.TrimRight(sb.String(), "\n")
}
