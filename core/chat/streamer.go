package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
	"gorm.io/gorm"

	"github.com/coachly/coachd/core/insight"
	"github.com/coachly/coachd/core/knowledge"
	"github.com/coachly/coachd/core/prompt"
	"github.com/coachly/coachd/core/tasks"
	"github.com/coachly/coachd/pkg/llm"
	"github.com/coachly/coachd/services/subscription"

	models "github.com/coachly/coachd/dbmodels"
)

// State tracks a session through its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

// Streamer orchestrates a coaching reply: gating, conversation bookkeeping,
// prompt assembly, provider streaming and post-completion side effects.
type Streamer struct {
	db        *gorm.DB
	providers *llm.Registry
	knowledge *knowledge.Store
	subs      *subscription.Service
	extractor *insight.Extractor
	runner    *tasks.Runner
}

func NewStreamer(
	db *gorm.DB,
	providers *llm.Registry,
	know *knowledge.Store,
	subs *subscription.Service,
	extractor *insight.Extractor,
	runner *tasks.Runner,
) *Streamer {
	return &Streamer{
		db:        db,
		providers: providers,
		knowledge: know,
		subs:      subs,
		extractor: extractor,
		runner:    runner,
	}
}

// Session is one in-flight chat message. Begin validates and persists the
// user's message; Run streams the reply.
type Session struct {
	streamer *Streamer
	state    State

	user         models.User
	agent        models.Agent
	conversation models.Conversation
	message      string

	// non-nil when a free trial (not a subscription) grants access
	trialRemaining *int
}

// Outcome summarizes a completed stream for the terminal SSE frame.
type Outcome struct {
	ConversationID     uuid.UUID
	FreeTrialRemaining *int
}

func (s *Session) State() State              { return s.state }
func (s *Session) ConversationID() uuid.UUID { return s.conversation.ID }

// Begin loads and gates everything the stream needs and persists the user
// message. It does all work that must happen before response headers are
// sent: after Begin succeeds the conversation id is final.
func (s *Streamer) Begin(ctx context.Context, userID, agentID uuid.UUID, conversationID *uuid.UUID, message string) (*Session, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}

	var agent models.Agent
	if err := s.db.First(&agent, "id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}

	denial, trialRemaining, err := s.subs.CanSendMessage(&user, &agent)
	if err != nil {
		return nil, err
	}
	if denial != nil {
		return nil, &GateError{Denial: *denial}
	}

	sess := &Session{
		streamer:       s,
		state:          StateNotStarted,
		user:           user,
		agent:          agent,
		message:        message,
		trialRemaining: trialRemaining,
	}

	if conversationID != nil {
		if err := s.db.
			Where("id = ? AND user_id = ? AND agent_id = ?", *conversationID, userID, agentID).
			First(&sess.conversation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrConversationNotFound
			}
			return nil, err
		}
	} else {
		// Lazily created on first message. A first_message assessment, when
		// configured, gates this point.
		if gatingID := s.pendingFirstMessageAssessment(&user, &agent); gatingID != "" {
			return nil, &AssessmentRequiredError{AssessmentID: gatingID}
		}
		sess.conversation = models.Conversation{UserID: userID, AgentID: agentID}
		if err := s.db.Create(&sess.conversation).Error; err != nil {
			return nil, err
		}
	}

	userMsg := models.Message{
		ConversationID: sess.conversation.ID,
		Role:           models.RoleUser,
		Content:        message,
	}
	if err := s.db.Create(&userMsg).Error; err != nil {
		return nil, err
	}

	return sess, nil
}

// Run streams the assistant reply, invoking emit for every text delta. On
// success it persists the reply and runs the post-completion side effects.
func (sess *Session) Run(ctx context.Context, emit func(chunk string) error) (*Outcome, error) {
	s := sess.streamer

	var settings models.ModelSettings
	if err := json.Unmarshal(sess.agent.ModelConfig, &settings); err != nil {
		sess.state = StateFailed
		return nil, err
	}

	provider, err := s.providers.Get(settings.Provider)
	if err != nil {
		sess.state = StateFailed
		return nil, err
	}

	systemPrompt, err := s.assemblePrompt(ctx, sess)
	if err != nil {
		sess.state = StateFailed
		return nil, err
	}

	history, err := s.loadHistory(sess.conversation.ID)
	if err != nil {
		sess.state = StateFailed
		return nil, err
	}

	sess.state = StateStreaming
	reply := strings.Builder{}
	err = provider.Stream(ctx, llm.StreamRequest{
		SystemPrompt: systemPrompt,
		History:      history,
		Model:        settings.Model,
		Temperature:  settings.Temperature,
	}, func(chunk string) error {
		reply.WriteString(chunk)
		return emit(chunk)
	})
	if err != nil {
		sess.state = StateFailed
		return nil, err
	}

	outcome, err := s.complete(ctx, sess, reply.String())
	if err != nil {
		// The reply already reached the client; bookkeeping failures are
		// logged, not surfaced.
		xlog.Error("Post-stream bookkeeping failed", "conversation", sess.conversation.ID, "error", err)
	}
	sess.state = StateCompleted
	return outcome, nil
}

// assemblePrompt builds the system prompt. Knowledge retrieval failures
// degrade to an un-augmented prompt, never fail the chat.
func (s *Streamer) assemblePrompt(ctx context.Context, sess *Session) (string, error) {
	in := prompt.Input{
		BasePrompt:  sess.agent.SystemPrompt,
		UserContext: sess.user.Context,
		Insights:    insight.InsightsSummary(s.db, sess.user.ID),
	}

	if len(sess.agent.KnowledgeContext) > 0 {
		var docs []models.InlineDocument
		if err := json.Unmarshal(sess.agent.KnowledgeContext, &docs); err == nil {
			for _, d := range docs {
				in.InlineDocs = append(in.InlineDocs, prompt.Document{Title: d.Title, Content: d.Content})
			}
		}
	}

	if s.knowledge.HasSources(sess.agent.ID) {
		chunks, err := s.knowledge.Retrieve(ctx, sess.agent.ID, sess.message, knowledge.RetrieveOptions{})
		if err != nil {
			xlog.Warn("Knowledge retrieval failed, continuing without it", "agent", sess.agent.ID, "error", err)
		}
		for _, c := range chunks {
			in.Chunks = append(in.Chunks, prompt.Chunk{
				DocumentTitle: c.DocumentTitle,
				Heading:       c.Heading,
				Content:       c.Content,
				Similarity:    c.Similarity,
			})
		}
	}

	var responses []models.AssessmentResponse
	if err := s.db.
		Where("user_id = ? AND agent_id = ?", sess.user.ID, sess.agent.ID).
		Order("completed_at ASC").
		Find(&responses).Error; err == nil {
		for _, r := range responses {
			answers := map[string]string{}
			_ = json.Unmarshal(r.Answers, &answers)
			in.Assessments = append(in.Assessments, prompt.AssessmentSummary{
				Title:   r.AssessmentID,
				Answers: answers,
			})
		}
	}

	if len(sess.agent.PersonalityConfig) > 0 {
		var personality struct {
			Examples []prompt.ExampleConversation `json:"examples"`
		}
		if err := json.Unmarshal(sess.agent.PersonalityConfig, &personality); err == nil {
			in.Examples = personality.Examples
		}
	}

	out, err := prompt.Assemble(in)
	if err != nil {
		return "", err
	}

	if in.Insights != "" {
		s.touchInsights(sess.user.ID)
	}
	return out, nil
}

func (s *Streamer) loadHistory(conversationID uuid.UUID) ([]openai.ChatCompletionMessage, error) {
	var messages []models.Message
	if err := s.db.
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}

	history := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		history = append(history, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return history, nil
}

// complete persists the assistant reply and runs the side effects: usage
// counters, trial consumption and the background insight trigger.
func (s *Streamer) complete(ctx context.Context, sess *Session, reply string) (*Outcome, error) {
	assistantMsg := models.Message{
		ConversationID: sess.conversation.ID,
		Role:           models.RoleAssistant,
		Content:        reply,
	}
	if err := s.db.Create(&assistantMsg).Error; err != nil {
		return &Outcome{ConversationID: sess.conversation.ID}, err
	}

	if err := s.db.Model(&models.Conversation{}).
		Where("id = ?", sess.conversation.ID).
		Update("updated_at", time.Now()).Error; err != nil {
		xlog.Warn("Failed to bump conversation", "conversation", sess.conversation.ID, "error", err)
	}
	if err := s.db.Model(&models.Agent{}).
		Where("id = ?", sess.agent.ID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error; err != nil {
		xlog.Warn("Failed to bump agent usage", "agent", sess.agent.ID, "error", err)
	}

	outcome := &Outcome{ConversationID: sess.conversation.ID}
	if sess.trialRemaining != nil {
		remaining, err := s.subs.ConsumeTrialMessage(sess.user.ID, sess.agent.ID)
		if err != nil {
			xlog.Error("Failed to consume trial message", "user", sess.user.ID, "error", err)
		} else {
			outcome.FreeTrialRemaining = &remaining
		}
	}

	var count int64
	if err := s.db.Model(&models.Message{}).
		Where("conversation_id = ?", sess.conversation.ID).
		Count(&count).Error; err == nil && insight.ShouldTrigger(count) {
		conversationID := sess.conversation.ID
		s.runner.Go(context.WithoutCancel(ctx), "insight-extraction", func(ctx context.Context) error {
			_, err := s.extractor.Extract(ctx, conversationID)
			return err
		})
	}

	return outcome, nil
}

func (s *Streamer) touchInsights(userID uuid.UUID) {
	now := time.Now()
	if err := s.db.Model(&models.UserInsight{}).
		Where("user_id = ? AND is_archived = false AND is_active = true", userID).
		Update("last_used_at", now).Error; err != nil {
		xlog.Warn("Failed to touch insights", "user", userID, "error", err)
	}
}

// pendingFirstMessageAssessment returns the id of an uncompleted
// first_message assessment, or "" when nothing gates the conversation.
func (s *Streamer) pendingFirstMessageAssessment(user *models.User, agent *models.Agent) string {
	if len(agent.AssessmentConfigs) == 0 {
		return ""
	}
	var configs []models.AssessmentConfig
	if err := json.Unmarshal(agent.AssessmentConfigs, &configs); err != nil {
		xlog.Warn("Unreadable assessment configs", "agent", agent.ID, "error", err)
		return ""
	}
	for _, cfg := range configs {
		if cfg.Trigger != "first_message" {
			continue
		}
		var count int64
		if err := s.db.Model(&models.AssessmentResponse{}).
			Where("user_id = ? AND agent_id = ? AND assessment_id = ?", user.ID, agent.ID, cfg.ID).
			Count(&count).Error; err != nil || count > 0 {
			return ""
		}
		// At most one first_message assessment is honored.
		return cfg.ID
	}
	return ""
}
