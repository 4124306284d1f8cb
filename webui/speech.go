package webui

import (
	"errors"
	"net/http"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/coachly/coachd/core/speech"
)

func (a *App) Transcribe() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		file, err := c.FormFile("audio")
		if err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Multipart field 'audio' is required")
		}
		if file.Size > speech.MaxAudioBytes {
			return errorJSONMessage(c, http.StatusRequestEntityTooLarge, "Audio exceeds the 25 MB limit")
		}

		f, err := file.Open()
		if err != nil {
			return err
		}
		defer f.Close()

		text, err := a.config.Transcriber.Transcribe(c.Context(), f, file.Filename)
		if err != nil {
			if errors.Is(err, speech.ErrAudioTooLarge) {
				return errorJSONMessage(c, http.StatusRequestEntityTooLarge, "Audio exceeds the 25 MB limit")
			}
			return err
		}
		return c.JSON(fiber.Map{"text": text})
	}
}

func (a *App) Synthesize() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var req struct {
			Text    string `json:"text"`
			VoiceID string `json:"voice_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errorJSONMessage(c, http.StatusBadRequest, "Invalid request body")
		}
		if req.VoiceID == "" {
			return errorJSONMessage(c, http.StatusBadRequest, "voice_id is required")
		}

		voice, err := a.config.Synthesizer.Synthesize(c.Context(), req.Text, req.VoiceID)
		if err != nil {
			if errors.Is(err, speech.ErrEmptyText) {
				return errorJSONMessage(c, http.StatusBadRequest, "Text is required")
			}
			return err
		}

		if voice.Cached {
			c.Set("X-Cache", "HIT")
		} else {
			c.Set("X-Cache", "MISS")
		}
		c.Set("Content-Type", "audio/mpeg")
		return c.Send(voice.Audio)
	}
}
