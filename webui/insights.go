package webui

import (
	"errors"
	"net/http"
	"strings"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	models "github.com/coachly/coachd/dbmodels"
)

func (a *App) ListInsights() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}

		var insights []models.UserInsight
		if err := a.config.DB.
			Where("user_id = ? AND is_archived = false", userID).
			Order("created_at DESC").
			Find(&insights).Error; err != nil {
			return err
		}
		return c.JSON(insights)
	}
}

// loadOwnInsight fetches the insight and enforces ownership.
func (a *App) loadOwnInsight(c *fiber.Ctx) (*models.UserInsight, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
	}
	insightID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, errorJSONMessage(c, http.StatusBadRequest, "Invalid insight id")
	}

	var insight models.UserInsight
	if err := a.config.DB.
		Where("id = ? AND user_id = ?", insightID, userID).
		First(&insight).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorJSONMessage(c, http.StatusNotFound, "Insight not found")
		}
		return nil, err
	}
	return &insight, nil
}

// UpdateInsight lets the user correct what the coach remembered. Edits are
// flagged so extraction never silently overwrites them.
func (a *App) UpdateInsight() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		insight, err := a.loadOwnInsight(c)
		if insight == nil {
			return err
		}

		var req struct {
			Content string `json:"content"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}
		req.Content = strings.TrimSpace(req.Content)
		if req.Content == "" {
			return errorJSONMessage(c, http.StatusBadRequest, "Content is required")
		}

		if err := a.config.DB.Model(insight).Updates(map[string]any{
			"content":     req.Content,
			"user_edited": true,
		}).Error; err != nil {
			return err
		}

		insight.Content = req.Content
		insight.UserEdited = true
		return c.JSON(insight)
	}
}

// ArchiveInsight soft-deletes: archived insights leave the prompt and the
// dedup set but stay in the table.
func (a *App) ArchiveInsight() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		insight, err := a.loadOwnInsight(c)
		if insight == nil {
			return err
		}

		if err := a.config.DB.Model(insight).Update("is_archived", true).Error; err != nil {
			return err
		}
		return statusJSONMessage(c, "ok")
	}
}
