package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/sashabaranov/go-openai"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coachly/coachd/core/insight"
	"github.com/coachly/coachd/core/knowledge"
	"github.com/coachly/coachd/core/tasks"
	"github.com/coachly/coachd/pkg/llm"
	"github.com/coachly/coachd/services/subscription"

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
		&models.AssessmentResponse{},
		&models.FreeTrialUsage{},
		&models.KnowledgeDocument{},
		&models.KnowledgeChunk{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeProvider replays canned chunks and records the request it saw.
type fakeProvider struct {
	chunks []string
	err    error

	lastRequest llm.StreamRequest
}

func (p *fakeProvider) Stream(_ context.Context, req llm.StreamRequest, onDelta func(string) error) error {
	p.lastRequest = req
	if p.err != nil {
		return p.err
	}
	for _, c := range p.chunks {
		if err := onDelta(c); err != nil {
			return err
		}
	}
	return nil
}

func noEmbeddings(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embeddings not available in tests")
}

type fixture struct {
	db       *gorm.DB
	streamer *Streamer
	provider *fakeProvider
	runner   *tasks.Runner
	mock     *llm.MockClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)

	provider := &fakeProvider{chunks: []string{"Keep ", "going!"}}
	registry := llm.NewRegistry(nil)
	registry.Register(llm.ProviderOpenAI, provider)

	mock := &llm.MockClient{}
	runner := tasks.NewRunner(2)
	streamer := NewStreamer(
		db,
		registry,
		knowledge.NewStore(db, chromem.EmbeddingFunc(noEmbeddings)),
		subscription.NewService(db),
		insight.NewExtractor(db, mock, "gpt-test"),
		runner,
	)
	return &fixture{db: db, streamer: streamer, provider: provider, runner: runner, mock: mock}
}

func (f *fixture) createUser(t *testing.T, tier string) models.User {
	t.Helper()
	user := models.User{
		Email:            uuid.NewString() + "@example.com",
		PasswordHash:     "x",
		SubscriptionTier: tier,
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (f *fixture) createAgent(t *testing.T, tier string) models.Agent {
	t.Helper()
	creator := f.createUser(t, models.TierPremium)
	agent := models.Agent{
		CreatorID:    creator.ID,
		Name:         "Marathon Coach",
		Tier:         tier,
		SystemPrompt: "You are a running coach.",
		ModelConfig:  datatypes.JSON(`{"provider":"openai","model":"gpt-test","temperature":0.7}`),
		Published:    true,
	}
	if err := f.db.Create(&agent).Error; err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return agent
}

func TestBeginRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierFree)
	agent := f.createAgent(t, models.TierFree)

	_, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, nil, "   ")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestBeginRejectsUnknownAgent(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierFree)

	_, err := f.streamer.Begin(context.Background(), user.ID, uuid.New(), nil, "hello")
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestBeginGatesExhaustedTrial(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierFree)
	agent := f.createAgent(t, models.TierPremium)
	usage := models.FreeTrialUsage{UserID: user.ID, AgentID: agent.ID, MessagesUsed: subscription.FreeTrialLimit}
	if err := f.db.Create(&usage).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	_, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, nil, "hello")
	var gate *GateError
	if !errors.As(err, &gate) {
		t.Fatalf("expected GateError, got %v", err)
	}
	if gate.Denial.Code != subscription.CodeFreeTrialExhausted {
		t.Fatalf("expected %s, got %s", subscription.CodeFreeTrialExhausted, gate.Denial.Code)
	}

	var count int64
	f.db.Model(&models.Conversation{}).Count(&count)
	if count != 0 {
		t.Fatalf("gated message must not create a conversation, found %d", count)
	}
}

func TestBeginRejectsForeignConversation(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t, models.TierFree)
	intruder := f.createUser(t, models.TierFree)
	agent := f.createAgent(t, models.TierFree)

	conv := models.Conversation{UserID: owner.ID, AgentID: agent.ID}
	if err := f.db.Create(&conv).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	_, err := f.streamer.Begin(context.Background(), intruder.ID, agent.ID, &conv.ID, "hello")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestBeginGatesFirstMessageAssessment(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierFree)
	agent := f.createAgent(t, models.TierFree)
	agent.AssessmentConfigs = datatypes.JSON(`[{"id":"intake","title":"Intake","trigger":"first_message","questions":[]}]`)
	if err := f.db.Save(&agent).Error; err != nil {
		t.Fatalf("save agent: %v", err)
	}

	_, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, nil, "hello")
	var required *AssessmentRequiredError
	if !errors.As(err, &required) {
		t.Fatalf("expected AssessmentRequiredError, got %v", err)
	}
	if required.AssessmentID != "intake" {
		t.Fatalf("expected assessment intake, got %q", required.AssessmentID)
	}

	response := models.AssessmentResponse{
		UserID:       user.ID,
		AgentID:      agent.ID,
		AssessmentID: "intake",
		Answers:      datatypes.JSON(`{"goal":"finish a marathon"}`),
	}
	if err := f.db.Create(&response).Error; err != nil {
		t.Fatalf("create response: %v", err)
	}

	if _, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, nil, "hello"); err != nil {
		t.Fatalf("completed assessment must unblock the conversation: %v", err)
	}
}

func TestRunStreamsAndPersistsReply(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierFree)
	agent := f.createAgent(t, models.TierFree)

	sess, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, nil, "How do I pace a long run?")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	var streamed strings.Builder
	outcome, err := sess.Run(context.Background(), func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sess.State() != StateCompleted {
		t.Fatalf("expected StateCompleted, got %v", sess.State())
	}
	if streamed.String() != "Keep going!" {
		t.Fatalf("unexpected streamed text %q", streamed.String())
	}
	if outcome.ConversationID != sess.ConversationID() {
		t.Fatalf("outcome conversation mismatch")
	}
	if outcome.FreeTrialRemaining != nil {
		t.Fatalf("free agent chat must not touch the trial")
	}

	if f.provider.lastRequest.Model != "gpt-test" {
		t.Fatalf("model config not applied, got %q", f.provider.lastRequest.Model)
	}
	if !strings.Contains(f.provider.lastRequest.SystemPrompt, "You are a running coach.") {
		t.Fatalf("system prompt missing base prompt: %q", f.provider.lastRequest.SystemPrompt)
	}

	var messages []models.Message
	if err := f.db.Where("conversation_id = ?", sess.ConversationID()).Order("created_at ASC").Find(&messages).Error; err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(messages))
	}
	if messages[1].Role != models.RoleAssistant || messages[1].Content != "Keep going!" {
		t.Fatalf("assistant reply not persisted: %+v", messages[1])
	}

	var reloaded models.Agent
	if err := f.db.First(&reloaded, "id = ?", agent.ID).Error; err != nil {
		t.Fatalf("reload agent: %v", err)
	}
	if reloaded.UsageCount != 1 {
		t.Fatalf("usage count not bumped, got %d", reloaded.UsageCount)
	}
}

func TestRunConsumesTrialOnPremiumAgent(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierFree)
	agent := f.createAgent(t, models.TierPremium)

	sess, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, nil, "hello")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	outcome, err := sess.Run(context.Background(), func(string) error { return nil })
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if outcome.FreeTrialRemaining == nil {
		t.Fatal("expected a trial allowance in the outcome")
	}
	if *outcome.FreeTrialRemaining != subscription.FreeTrialLimit-1 {
		t.Fatalf("expected %d remaining, got %d", subscription.FreeTrialLimit-1, *outcome.FreeTrialRemaining)
	}

	var usage models.FreeTrialUsage
	if err := f.db.Where("user_id = ? AND agent_id = ?", user.ID, agent.ID).First(&usage).Error; err != nil {
		t.Fatalf("load usage: %v", err)
	}
	if usage.MessagesUsed != 1 {
		t.Fatalf("expected 1 message used, got %d", usage.MessagesUsed)
	}
}

func TestRunSkipsTrialForPremiumUser(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierPremium)
	agent := f.createAgent(t, models.TierPremium)

	sess, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, nil, "hello")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	outcome, err := sess.Run(context.Background(), func(string) error { return nil })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.FreeTrialRemaining != nil {
		t.Fatal("premium user chat must not touch the trial")
	}
}

func TestRunFailsOnProviderError(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierFree)
	agent := f.createAgent(t, models.TierFree)
	f.provider.err = errors.New("upstream unavailable")

	sess, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, nil, "hello")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := sess.Run(context.Background(), func(string) error { return nil }); err == nil {
		t.Fatal("expected provider error")
	}
	if sess.State() != StateFailed {
		t.Fatalf("expected StateFailed, got %v", sess.State())
	}

	var count int64
	f.db.Model(&models.Message{}).
		Where("conversation_id = ? AND role = ?", sess.ConversationID(), models.RoleAssistant).
		Count(&count)
	if count != 0 {
		t.Fatal("failed stream must not persist an assistant message")
	}
}

func TestRunTriggersInsightExtraction(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierFree)
	agent := f.createAgent(t, models.TierFree)

	conv := models.Conversation{UserID: user.ID, AgentID: agent.ID}
	if err := f.db.Create(&conv).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for i, content := range []string{"hi", "hello there", "I run on weekends"} {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msg := models.Message{ConversationID: conv.ID, Role: role, Content: content}
		if err := f.db.Create(&msg).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	extracted := `{"insights":[{"category":"GOAL","content":"Wants to run a marathon by end of year","confidence":0.9,"extractedFrom":"I want to run a marathon"}]}`
	f.mock.CreateChatCompletionFunc = func(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					ToolCalls: []openai.ToolCall{{
						Function: openai.FunctionCall{Name: "json", Arguments: extracted},
					}},
				},
			}},
		}, nil
	}

	// Seeded 3 messages plus this exchange's two lands on 5.
	sess, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, &conv.ID, "I want to run a marathon")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := sess.Run(context.Background(), func(string) error { return nil }); err != nil {
		t.Fatalf("run: %v", err)
	}
	f.runner.Wait()

	var insights []models.UserInsight
	if err := f.db.Where("user_id = ?", user.ID).Find(&insights).Error; err != nil {
		t.Fatalf("load insights: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(insights))
	}
	if insights[0].Category != "GOAL" {
		t.Fatalf("unexpected category %s", insights[0].Category)
	}
	if insights[0].AgentID == nil || *insights[0].AgentID != agent.ID {
		t.Fatal("insight must be scoped to the agent it came from")
	}
}

func TestInsightsAppearInSystemPrompt(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, models.TierFree)
	agent := f.createAgent(t, models.TierFree)

	ins := models.UserInsight{
		UserID:   user.ID,
		Category: "GOAL",
		Content:  "Wants to run a marathon by end of year",
		IsActive: true,
	}
	if err := f.db.Create(&ins).Error; err != nil {
		t.Fatalf("create insight: %v", err)
	}

	sess, err := f.streamer.Begin(context.Background(), user.ID, agent.ID, nil, "hello")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := sess.Run(context.Background(), func(string) error { return nil }); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !strings.Contains(f.provider.lastRequest.SystemPrompt, "Wants to run a marathon by end of year") {
		t.Fatalf("insight missing from system prompt:\n%s", f.provider.lastRequest.SystemPrompt)
	}

	var reloaded models.UserInsight
	if err := f.db.First(&reloaded, "id = ?", ins.ID).Error; err != nil {
		t.Fatalf("reload insight: %v", err)
	}
	if reloaded.LastUsedAt == nil {
		t.Fatal("expected last_used_at to be set after prompt use")
	}
}
