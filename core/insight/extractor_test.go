package insight

import (
	"context"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sashabaranov/go-openai"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coachly/coachd/pkg/llm"

	models "github.com/coachly/coachd/dbmodels"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Agent{},
		&models.Conversation{},
		&models.Message{},
		&models.UserInsight{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedConversation(t *testing.T, db *gorm.DB, messages int) models.Conversation {
	t.Helper()
	user := models.User{Email: "runner@example.com", PasswordHash: "x", SubscriptionTier: models.TierFree}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	agent := models.Agent{
		CreatorID:    user.ID,
		Name:         "Coach",
		SystemPrompt: "x",
		ModelConfig:  []byte(`{"provider":"openai","model":"gpt-test"}`),
	}
	if err := db.Create(&agent).Error; err != nil {
		t.Fatalf("create agent: %v", err)
	}
	conv := models.Conversation{UserID: user.ID, AgentID: agent.ID}
	if err := db.Create(&conv).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for i := 0; i < messages; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msg := models.Message{ConversationID: conv.ID, Role: role, Content: "message"}
		if err := db.Create(&msg).Error; err != nil {
			t.Fatalf("create message: %v", err)
		}
	}
	return conv
}

func toolCallResponse(arguments string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{
					Function: openai.FunctionCall{Name: "json", Arguments: arguments},
				}},
			},
		}},
	}
}

func TestShouldTriggerOnMultiplesOfFive(t *testing.T) {
	cases := map[int64]bool{0: false, 1: false, 4: false, 5: true, 7: false, 10: true, 15: true}
	for count, want := range cases {
		if got := ShouldTrigger(count); got != want {
			t.Errorf("ShouldTrigger(%d) = %v, want %v", count, got, want)
		}
	}
}

func TestExtractSavesValidInsights(t *testing.T) {
	db := openTestDB(t)
	conv := seedConversation(t, db, 5)

	mock := &llm.MockClient{
		CreateChatCompletionFunc: func(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return toolCallResponse(`{"insights":[
				{"category":"GOAL","content":"Wants to run a marathon by end of year","confidence":0.9,"extractedFrom":"msg"},
				{"category":"HABIT","content":"Runs every Saturday morning","confidence":0.8,"extractedFrom":"msg"}
			]}`), nil
		},
	}

	saved, err := NewExtractor(db, mock, "gpt-test").Extract(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if saved != 2 {
		t.Fatalf("expected 2 saved, got %d", saved)
	}

	var insights []models.UserInsight
	if err := db.Order("category ASC").Find(&insights).Error; err != nil {
		t.Fatalf("load insights: %v", err)
	}
	if insights[0].Category != "GOAL" || insights[1].Category != "HABIT" {
		t.Fatalf("unexpected categories %s/%s", insights[0].Category, insights[1].Category)
	}
	if insights[0].AgentID == nil || *insights[0].AgentID != conv.AgentID {
		t.Fatal("insight must carry the conversation's agent")
	}
	if !insights[0].IsActive {
		t.Fatal("extracted insights start active")
	}
}

func TestExtractSkipsShortConversations(t *testing.T) {
	db := openTestDB(t)
	conv := seedConversation(t, db, 1)

	called := false
	mock := &llm.MockClient{
		CreateChatCompletionFunc: func(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			called = true
			return toolCallResponse(`{"insights":[]}`), nil
		},
	}

	saved, err := NewExtractor(db, mock, "gpt-test").Extract(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if saved != 0 || called {
		t.Fatal("a one-message conversation must not reach the model")
	}
}

func TestExtractDropsInvalidCategories(t *testing.T) {
	db := openTestDB(t)
	conv := seedConversation(t, db, 5)

	mock := &llm.MockClient{
		CreateChatCompletionFunc: func(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return toolCallResponse(`{"insights":[
				{"category":"HOROSCOPE","content":"Is a Sagittarius","confidence":0.9,"extractedFrom":"msg"},
				{"category":"goal","content":"Wants to run a marathon","confidence":0.9,"extractedFrom":"msg"}
			]}`), nil
		},
	}

	saved, err := NewExtractor(db, mock, "gpt-test").Extract(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	// Unknown category dropped, lowercase known category normalized.
	if saved != 1 {
		t.Fatalf("expected 1 saved, got %d", saved)
	}
	var ins models.UserInsight
	if err := db.First(&ins).Error; err != nil {
		t.Fatalf("load insight: %v", err)
	}
	if ins.Category != "GOAL" {
		t.Fatalf("category not normalized: %s", ins.Category)
	}
}

func TestExtractDeduplicatesAgainstExisting(t *testing.T) {
	db := openTestDB(t)
	conv := seedConversation(t, db, 5)

	existing := models.UserInsight{
		UserID:   conv.UserID,
		Category: "GOAL",
		Content:  "Wants to run a marathon by end of year",
		IsActive: true,
	}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("create existing: %v", err)
	}

	mock := &llm.MockClient{
		CreateChatCompletionFunc: func(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return toolCallResponse(`{"insights":[
				{"category":"GOAL","content":"wants to run a marathon by end of year this fall","confidence":0.9,"extractedFrom":"msg"}
			]}`), nil
		},
	}

	saved, err := NewExtractor(db, mock, "gpt-test").Extract(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if saved != 0 {
		t.Fatalf("near-duplicate must be dropped, saved %d", saved)
	}
}

func TestIsDuplicate(t *testing.T) {
	existing := []models.UserInsight{
		{Content: "Wants to run a marathon by end of year", IsArchived: false},
		{Content: "Struggles with early mornings", IsArchived: true},
	}

	if !IsDuplicate("wants to run a marathon by end of year this fall", existing) {
		t.Fatal("case-insensitive prefix containment must match")
	}
	if IsDuplicate("Struggles with early mornings", existing) {
		t.Fatal("archived insights must not participate in dedup")
	}
	if IsDuplicate("Prefers evening workouts", existing) {
		t.Fatal("unrelated content must not match")
	}
}

func TestInsightsSummary(t *testing.T) {
	db := openTestDB(t)
	conv := seedConversation(t, db, 2)

	rows := []models.UserInsight{
		{UserID: conv.UserID, Category: "GOAL", Content: "Wants to run a marathon", IsActive: true},
		{UserID: conv.UserID, Category: "HABIT", Content: "Runs on Saturdays", IsActive: true},
		{UserID: conv.UserID, Category: "GOAL", Content: "Archived goal", IsActive: true, IsArchived: true},
		{UserID: conv.UserID, Category: "GOAL", Content: "Inactive goal", IsActive: false},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("create insight: %v", err)
		}
	}

	summary := InsightsSummary(db, conv.UserID)
	if !strings.Contains(summary, "- [GOAL] Wants to run a marathon") {
		t.Fatalf("missing goal line:\n%s", summary)
	}
	if !strings.Contains(summary, "- [HABIT] Runs on Saturdays") {
		t.Fatalf("missing habit line:\n%s", summary)
	}
	if strings.Contains(summary, "Archived goal") || strings.Contains(summary, "Inactive goal") {
		t.Fatalf("archived/inactive insights must not appear:\n%s", summary)
	}
}
