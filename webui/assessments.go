package webui

import (
	"encoding/json"
	"errors"
	"net/http"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	models "github.com/coachly/coachd/dbmodels"
)

// GetAgentAssessments lists an agent's assessment configs along with which
// ones the caller already completed, so clients know whether a
// first_message gate is pending.
func (a *App) GetAgentAssessments() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}
		agentID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid agent id")
		}

		var agent models.Agent
		if err := a.config.DB.First(&agent, "id = ?", agentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorJSONMessage(c, http.StatusNotFound, "Agent not found")
			}
			return err
		}

		var configs []models.AssessmentConfig
		if len(agent.AssessmentConfigs) > 0 {
			if err := json.Unmarshal(agent.AssessmentConfigs, &configs); err != nil {
				return err
			}
		}

		var responses []models.AssessmentResponse
		if err := a.config.DB.
			Where("user_id = ? AND agent_id = ?", userID, agentID).
			Find(&responses).Error; err != nil {
			return err
		}
		completed := map[string]bool{}
		for _, r := range responses {
			completed[r.AssessmentID] = true
		}

		type assessmentStatus struct {
			models.AssessmentConfig
			Completed bool `json:"completed"`
		}
		out := make([]assessmentStatus, 0, len(configs))
		for _, cfg := range configs {
			out = append(out, assessmentStatus{AssessmentConfig: cfg, Completed: completed[cfg.ID]})
		}
		return c.JSON(out)
	}
}

func (a *App) SubmitAssessment() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}
		agentID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid agent id")
		}

		var req struct {
			AssessmentID   string            `json:"assessment_id"`
			ConversationID string            `json:"conversation_id"`
			Answers        map[string]string `json:"answers"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}
		if req.AssessmentID == "" {
			return errorJSONMessage(c, http.StatusBadRequest, "assessment_id is required")
		}
		if len(req.Answers) == 0 {
			return errorJSONMessage(c, http.StatusBadRequest, "Answers are required")
		}

		var agent models.Agent
		if err := a.config.DB.First(&agent, "id = ?", agentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorJSONMessage(c, http.StatusNotFound, "Agent not found")
			}
			return err
		}

		var configs []models.AssessmentConfig
		if len(agent.AssessmentConfigs) > 0 {
			_ = json.Unmarshal(agent.AssessmentConfigs, &configs)
		}
		known := false
		for _, cfg := range configs {
			if cfg.ID == req.AssessmentID {
				known = true
				break
			}
		}
		if !known {
			return errorJSONMessage(c, http.StatusNotFound, "Assessment not found")
		}

		answers, err := json.Marshal(req.Answers)
		if err != nil {
			return err
		}

		response := models.AssessmentResponse{
			UserID:       userID,
			AgentID:      agentID,
			AssessmentID: req.AssessmentID,
			Answers:      datatypes.JSON(answers),
		}
		if req.ConversationID != "" {
			id, err := uuid.Parse(req.ConversationID)
			if err != nil {
				return errorJSONMessage(c, http.StatusBadRequest, "conversation_id must be a valid uuid")
			}
			response.ConversationID = &id
		}

		if err := a.config.DB.Create(&response).Error; err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(response)
	}
}

func (a *App) ListAssessmentResponses() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}

		q := a.config.DB.Where("user_id = ?", userID)
		if agentID := c.Query("agent_id"); agentID != "" {
			id, err := uuid.Parse(agentID)
			if err != nil {
				return errorJSONMessage(c, http.StatusBadRequest, "agent_id must be a valid uuid")
			}
			q = q.Where("agent_id = ?", id)
		}

		var responses []models.AssessmentResponse
		if err := q.Order("completed_at DESC").Find(&responses).Error; err != nil {
			return err
		}
		return c.JSON(responses)
	}
}
