package webui

import (
	"net/http"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/mudler/xlog"
)

type App struct {
	*fiber.App

	config *Config
}

func NewApp(opts ...Option) *App {
	config := NewConfig(opts...)

	webapp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fiberErr *fiber.Error
			if e, ok := err.(*fiber.Error); ok {
				fiberErr = e
			}
			if fiberErr != nil {
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			xlog.Error("Unhandled request error", "path", c.Path(), "error", err)
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		},
	})

	a := &App{
		App:    webapp,
		config: config,
	}

	a.registerRoutes(webapp)

	return a
}

func (a *App) rateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        a.config.RateLimitMax,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("userID").(string); ok && userID != "" {
				return userID
			}
			return c.IP()
		},
	})
}

func errorJSONMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(struct {
		Error string `json:"error"`
	}{Error: message})
}

func statusJSONMessage(c *fiber.Ctx, message string) error {
	return c.JSON(struct {
		Status string `json:"status"`
	}{Status: message})
}
