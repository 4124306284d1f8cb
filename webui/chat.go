package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"gorm.io/gorm"

	"github.com/coachly/coachd/core/chat"
	"github.com/coachly/coachd/core/sse"
	"github.com/coachly/coachd/pkg/llm"

	models "github.com/coachly/coachd/dbmodels"
)

type chatRequest struct {
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type chunkFrame struct {
	Chunk string `json:"chunk"`
}

type doneFrame struct {
	Done               bool   `json:"done"`
	ConversationID     string `json:"conversation_id"`
	FreeTrialRemaining *int   `json:"freeTrialRemaining,omitempty"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// Chat handles one user message and streams the coach reply over SSE.
func (a *App) Chat() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}

		var req chatRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}
		if req.AgentID == "" {
			return errorJSONMessage(c, http.StatusBadRequest, "agent_id is required")
		}
		agentID, err := uuid.Parse(req.AgentID)
		if err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "agent_id must be a valid uuid")
		}

		var conversationID *uuid.UUID
		if req.ConversationID != "" {
			id, err := uuid.Parse(req.ConversationID)
			if err != nil {
				return errorJSONMessage(c, http.StatusBadRequest, "conversation_id must be a valid uuid")
			}
			conversationID = &id
		}

		sess, err := a.config.Streamer.Begin(c.Context(), userID, agentID, conversationID, req.Message)
		if err != nil {
			return chatBeginError(c, err)
		}

		c.Set("X-Conversation-Id", sess.ConversationID().String())

		stream := sse.NewStream(64)

		// The request context dies with the handler; the stream outlives it.
		runCtx := context.WithoutCancel(c.Context())
		go func() {
			defer stream.Close()

			outcome, err := sess.Run(runCtx, func(chunk string) error {
				data, err := json.Marshal(chunkFrame{Chunk: chunk})
				if err != nil {
					return err
				}
				stream.Send(sse.NewMessage(string(data)))
				return nil
			})
			if err != nil {
				kind := llm.ClassifyError(err)
				xlog.Error("Chat stream failed", "conversation", sess.ConversationID(), "kind", kind, "error", err)
				data, _ := json.Marshal(errorFrame{Error: kind.UserMessage()})
				stream.Send(sse.NewMessage(string(data)))
				return
			}

			frame := doneFrame{
				Done:           true,
				ConversationID: outcome.ConversationID.String(),
			}
			frame.FreeTrialRemaining = outcome.FreeTrialRemaining
			data, _ := json.Marshal(frame)
			stream.Send(sse.NewMessage(string(data)))
		}()

		stream.Serve(c)
		return nil
	}
}

func chatBeginError(c *fiber.Ctx, err error) error {
	var gate *chat.GateError
	if errors.As(err, &gate) {
		return c.Status(http.StatusForbidden).JSON(gate.Denial)
	}
	var assessment *chat.AssessmentRequiredError
	if errors.As(err, &assessment) {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{
			"code":          "ASSESSMENT_REQUIRED",
			"assessment_id": assessment.AssessmentID,
		})
	}
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return errorJSONMessage(c, http.StatusBadRequest, "Message cannot be empty")
	case errors.Is(err, chat.ErrAgentNotFound):
		return errorJSONMessage(c, http.StatusNotFound, "Agent not found")
	case errors.Is(err, chat.ErrConversationNotFound):
		return errorJSONMessage(c, http.StatusNotFound, "Conversation not found")
	}
	return err
}

func (a *App) ListConversations() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}

		var conversations []models.Conversation
		if err := a.config.DB.
			Where("user_id = ?", userID).
			Order("updated_at DESC").
			Find(&conversations).Error; err != nil {
			return err
		}
		return c.JSON(conversations)
	}
}

// loadOwnConversation fetches the conversation and enforces ownership.
func (a *App) loadOwnConversation(c *fiber.Ctx) (*models.Conversation, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
	}
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, errorJSONMessage(c, http.StatusBadRequest, "Invalid conversation id")
	}

	var conversation models.Conversation
	if err := a.config.DB.
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorJSONMessage(c, http.StatusNotFound, "Conversation not found")
		}
		return nil, err
	}
	return &conversation, nil
}

func (a *App) GetChatHistory() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		conversation, err := a.loadOwnConversation(c)
		if conversation == nil {
			return err
		}

		var messages []models.Message
		if err := a.config.DB.
			Where("conversation_id = ?", conversation.ID).
			Order("created_at ASC").
			Find(&messages).Error; err != nil {
			return err
		}
		return c.JSON(messages)
	}
}

func (a *App) DeleteConversation() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		conversation, err := a.loadOwnConversation(c)
		if conversation == nil {
			return err
		}

		if err := a.config.DB.
			Where("conversation_id = ?", conversation.ID).
			Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := a.config.DB.Delete(conversation).Error; err != nil {
			return err
		}
		return statusJSONMessage(c, "ok")
	}
}
