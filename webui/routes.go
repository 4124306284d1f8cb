package webui

import (
	fiber "github.com/gofiber/fiber/v2"
)

func (a *App) registerRoutes(webapp *fiber.App) {
	api := webapp.Group("/api", a.rateLimiter())

	api.Post("/auth/signup", a.Signup())
	api.Post("/auth/login", a.Login())

	api.Get("/agents", a.OptionalUser(), a.ListPublishedAgents())
	api.Get("/agents/search", a.SearchAgents())
	api.Get("/agents/mine", a.RequireUser(), a.ListMyAgents())
	api.Post("/agents", a.RequireUser(), a.CreateAgent())
	api.Get("/agents/:id", a.OptionalUser(), a.GetAgent())
	api.Patch("/agents/:id", a.RequireUser(), a.UpdateAgent())
	api.Put("/agents/:id/publish", a.RequireUser(), a.PublishAgent())
	api.Delete("/agents/:id", a.RequireUser(), a.DeleteAgent())
	api.Post("/agents/:id/rate", a.RequireUser(), a.RateAgent())
	api.Post("/agents/:id/knowledge", a.RequireUser(), a.UploadKnowledge())
	api.Get("/agents/:id/assessments", a.RequireUser(), a.GetAgentAssessments())
	api.Post("/agents/:id/assessments", a.RequireUser(), a.SubmitAssessment())

	api.Post("/chat/message", a.RequireUser(), a.Chat())
	api.Get("/conversations", a.RequireUser(), a.ListConversations())
	api.Get("/conversations/:id/messages", a.RequireUser(), a.GetChatHistory())
	api.Delete("/conversations/:id", a.RequireUser(), a.DeleteConversation())

	api.Get("/insights", a.RequireUser(), a.ListInsights())
	api.Patch("/insights/:id", a.RequireUser(), a.UpdateInsight())
	api.Put("/insights/:id/archive", a.RequireUser(), a.ArchiveInsight())

	api.Get("/users/me", a.RequireUser(), a.GetMe())
	api.Patch("/users/me", a.RequireUser(), a.UpdateMe())

	api.Get("/assessments", a.RequireUser(), a.ListAssessmentResponses())

	api.Post("/speech/transcribe", a.RequireUser(), a.Transcribe())
	api.Post("/speech/tts", a.RequireUser(), a.Synthesize())
}
