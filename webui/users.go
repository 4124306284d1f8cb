package webui

import (
	"net/http"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	models "github.com/coachly/coachd/dbmodels"
	"github.com/coachly/coachd/services/subscription"
)

type userPayload struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	Context               string     `json:"context"`
	Onboarded             bool       `json:"onboarded"`
	SubscriptionTier      string     `json:"subscription_tier"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	Premium               bool       `json:"premium"`
}

func toUserPayload(user *models.User) userPayload {
	return userPayload{
		ID:                    user.ID.String(),
		Email:                 user.Email,
		Context:               user.Context,
		Onboarded:             user.Onboarded,
		SubscriptionTier:      user.SubscriptionTier,
		SubscriptionExpiresAt: user.SubscriptionExpiresAt,
		Premium:               subscription.IsPremium(user),
	}
}

func (a *App) GetMe() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}

		var user models.User
		if err := a.config.DB.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		return c.JSON(toUserPayload(&user))
	}
}

func (a *App) UpdateMe() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		userID, err := currentUserID(c)
		if err != nil {
			return errorJSONMessage(c, http.StatusUnauthorized, "User ID missing")
		}

		var req struct {
			Context   *string `json:"context"`
			Onboarded *bool   `json:"onboarded"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}

		updates := map[string]any{}
		if req.Context != nil {
			updates["context"] = *req.Context
		}
		if req.Onboarded != nil {
			updates["onboarded"] = *req.Onboarded
		}
		if len(updates) == 0 {
			return errorJSONMessage(c, http.StatusBadRequest, "Nothing to update")
		}

		if err := a.config.DB.Model(&models.User{}).
			Where("id = ?", userID).
			Updates(updates).Error; err != nil {
			return err
		}

		var user models.User
		if err := a.config.DB.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		return c.JSON(toUserPayload(&user))
	}
}
