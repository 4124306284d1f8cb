package webui

import (
	"encoding/json"
	"errors"
	"net/http"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	models "github.com/coachly/coachd/dbmodels"
)

type agentRequest struct {
	Name              string          `json:"name"`
	Tagline           string          `json:"tagline"`
	Category          string          `json:"category"`
	Tags              json.RawMessage `json:"tags"`
	Tier              string          `json:"tier"`
	SystemPrompt      string          `json:"system_prompt"`
	Greeting          string          `json:"greeting"`
	PersonalityConfig json.RawMessage `json:"personality_config"`
	ModelConfig       json.RawMessage `json:"model_config"`
	KnowledgeContext  json.RawMessage `json:"knowledge_context"`
	AssessmentConfigs json.RawMessage `json:"assessment_configs"`
}

func (a *App) CreateAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}

		var user models.User
		if err := a.config.DB.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}

		var req agentRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}
		if req.Name == "" {
			return errorJSONMessage(c, http.StatusBadRequest, "Name is required")
		}
		if req.SystemPrompt == "" {
			return errorJSONMessage(c, http.StatusBadRequest, "System prompt is required")
		}

		if denial, err := a.config.Subscriptions.CanCreateAgent(&user); err != nil {
			return err
		} else if denial != nil {
			return c.Status(http.StatusForbidden).JSON(denial)
		}

		if req.Tier == "" {
			req.Tier = models.TierFree
		}
		if denial := a.config.Subscriptions.CanUseAgentTier(&user, req.Tier); denial != nil {
			return c.Status(http.StatusForbidden).JSON(denial)
		}

		if len(req.ModelConfig) > 0 {
			var settings models.ModelSettings
			if err := json.Unmarshal(req.ModelConfig, &settings); err != nil || settings.Provider == "" || settings.Model == "" {
				return errorJSONMessage(c, http.StatusBadRequest, "Model config needs a provider and a model")
			}
		} else {
			req.ModelConfig = json.RawMessage(`{"provider":"openai","model":"gpt-4o-mini","temperature":0.7}`)
		}

		agent := models.Agent{
			CreatorID:         userID,
			Name:              req.Name,
			Tagline:           req.Tagline,
			Category:          req.Category,
			Tags:              datatypes.JSON(req.Tags),
			Tier:              req.Tier,
			SystemPrompt:      req.SystemPrompt,
			Greeting:          req.Greeting,
			PersonalityConfig: datatypes.JSON(req.PersonalityConfig),
			ModelConfig:       datatypes.JSON(req.ModelConfig),
			KnowledgeContext:  datatypes.JSON(req.KnowledgeContext),
			AssessmentConfigs: datatypes.JSON(req.AssessmentConfigs),
		}
		if err := a.config.DB.Create(&agent).Error; err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(agent)
	}
}

func (a *App) ListMyAgents() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}

		var agents []models.Agent
		if err := a.config.DB.
			Where("creator_id = ?", userID).
			Order("created_at DESC").
			Find(&agents).Error; err != nil {
			return err
		}
		return c.JSON(agents)
	}
}

func (a *App) ListPublishedAgents() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		q := a.config.DB.Where("published = ?", true)
		if category := c.Query("category"); category != "" {
			q = q.Where("category = ?", category)
		}

		var agents []models.Agent
		if err := q.Order("usage_count DESC").Find(&agents).Error; err != nil {
			return err
		}
		return c.JSON(agents)
	}
}

func (a *App) SearchAgents() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		query := c.Query("q")
		if query == "" {
			return errorJSONMessage(c, http.StatusBadRequest, "Query parameter q is required")
		}

		hits, err := a.config.Search.Search(query, c.QueryInt("limit"))
		if err != nil {
			return err
		}

		// Preserve relevance order from the index.
		agents := make([]models.Agent, 0, len(hits))
		for _, hit := range hits {
			var agent models.Agent
			if err := a.config.DB.First(&agent, "id = ? AND published = ?", hit.AgentID, true).Error; err != nil {
				continue
			}
			agents = append(agents, agent)
		}
		return c.JSON(agents)
	}
}

// loadOwnAgent fetches the agent and enforces creator ownership.
func (a *App) loadOwnAgent(c *fiber.Ctx) (*models.Agent, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
	}
	agentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, errorJSONMessage(c, http.StatusBadRequest, "Invalid agent id")
	}

	var agent models.Agent
	if err := a.config.DB.First(&agent, "id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorJSONMessage(c, http.StatusNotFound, "Agent not found")
		}
		return nil, err
	}
	if agent.CreatorID != userID {
		return nil, errorJSONMessage(c, http.StatusForbidden, "Only the creator may modify this agent")
	}
	return &agent, nil
}

func (a *App) GetAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
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

		if !agent.Published {
			userID, err := currentUserID(c)
			if err != nil || agent.CreatorID != userID {
				return errorJSONMessage(c, http.StatusNotFound, "Agent not found")
			}
		}
		return c.JSON(agent)
	}
}

func (a *App) UpdateAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agent, err := a.loadOwnAgent(c)
		if agent == nil {
			return err
		}

		var req agentRequest
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}

		updates := map[string]any{}
		if req.Name != "" {
			updates["name"] = req.Name
		}
		if req.Tagline != "" {
			updates["tagline"] = req.Tagline
		}
		if req.Category != "" {
			updates["category"] = req.Category
		}
		if len(req.Tags) > 0 {
			updates["tags"] = datatypes.JSON(req.Tags)
		}
		if req.SystemPrompt != "" {
			updates["system_prompt"] = req.SystemPrompt
		}
		if req.Greeting != "" {
			updates["greeting"] = req.Greeting
		}
		if len(req.PersonalityConfig) > 0 {
			updates["personality_config"] = datatypes.JSON(req.PersonalityConfig)
		}
		if len(req.KnowledgeContext) > 0 {
			updates["knowledge_context"] = datatypes.JSON(req.KnowledgeContext)
		}
		if len(req.AssessmentConfigs) > 0 {
			updates["assessment_configs"] = datatypes.JSON(req.AssessmentConfigs)
		}
		if len(req.ModelConfig) > 0 {
			var settings models.ModelSettings
			if err := json.Unmarshal(req.ModelConfig, &settings); err != nil || settings.Provider == "" || settings.Model == "" {
				return errorJSONMessage(c, http.StatusBadRequest, "Model config needs a provider and a model")
			}
			updates["model_config"] = datatypes.JSON(req.ModelConfig)
		}
		if req.Tier != "" && req.Tier != agent.Tier {
			var user models.User
			if err := a.config.DB.First(&user, "id = ?", agent.CreatorID).Error; err != nil {
				return err
			}
			if denial := a.config.Subscriptions.CanUseAgentTier(&user, req.Tier); denial != nil {
				return c.Status(http.StatusForbidden).JSON(denial)
			}
			updates["tier"] = req.Tier
		}
		if len(updates) == 0 {
			return errorJSONMessage(c, http.StatusBadRequest, "Nothing to update")
		}

		if err := a.config.DB.Model(agent).Updates(updates).Error; err != nil {
			return err
		}
		if err := a.config.DB.First(agent, "id = ?", agent.ID).Error; err != nil {
			return err
		}
		if err := a.config.Search.Upsert(agent); err != nil {
			xlog.Warn("Failed to reindex agent", "agent", agent.ID, "error", err)
		}
		return c.JSON(agent)
	}
}

func (a *App) PublishAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agent, err := a.loadOwnAgent(c)
		if agent == nil {
			return err
		}

		var req struct {
			Published bool `json:"published"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}

		if err := a.config.DB.Model(agent).Update("published", req.Published).Error; err != nil {
			return err
		}
		agent.Published = req.Published
		if err := a.config.Search.Upsert(agent); err != nil {
			xlog.Warn("Failed to reindex agent", "agent", agent.ID, "error", err)
		}
		return statusJSONMessage(c, "ok")
	}
}

func (a *App) DeleteAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agent, err := a.loadOwnAgent(c)
		if agent == nil {
			return err
		}

		if err := a.config.Knowledge.DeleteAgent(agent.ID); err != nil {
			xlog.Warn("Failed to drop agent knowledge", "agent", agent.ID, "error", err)
		}
		if err := a.config.Search.Remove(agent.ID); err != nil {
			xlog.Warn("Failed to deindex agent", "agent", agent.ID, "error", err)
		}
		if err := a.config.DB.Delete(agent).Error; err != nil {
			return err
		}
		return statusJSONMessage(c, "ok")
	}
}

func (a *App) RateAgent() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agentID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid agent id")
		}

		var req struct {
			Rating int `json:"rating"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}
		if req.Rating < 1 || req.Rating > 5 {
			return errorJSONMessage(c, http.StatusBadRequest, "Rating must be between 1 and 5")
		}

		res := a.config.DB.Model(&models.Agent{}).
			Where("id = ? AND published = ?", agentID, true).
			Updates(map[string]any{
				"rating_sum":   gorm.Expr("rating_sum + ?", req.Rating),
				"rating_count": gorm.Expr("rating_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errorJSONMessage(c, http.StatusNotFound, "Agent not found")
		}
		return statusJSONMessage(c, "ok")
	}
}

func (a *App) UploadKnowledge() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		agent, err := a.loadOwnAgent(c)
		if agent == nil {
			return err
		}

		var req struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}
		if req.Title == "" || req.Content == "" {
			return errorJSONMessage(c, http.StatusBadRequest, "Title and content are required")
		}

		chunks, err := a.config.Knowledge.Ingest(c.Context(), agent.ID, req.Title, req.Content)
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{"chunks": chunks})
	}
}
