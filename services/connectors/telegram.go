package connectors

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/coachly/coachd/core/chat"
)

// Telegram relays a bot chat into the coaching pipeline. Each Telegram chat
// is bound to one service user and one coach; replies stream from the same
// pipeline the HTTP API uses, delivered as whole messages.
type Telegram struct {
	token    string
	userID   uuid.UUID
	agentID  uuid.UUID
	admins   []string
	streamer *chat.Streamer
	sessions *SessionTracker[int64]

	bot *bot.Bot
}

func NewTelegramConnector(config map[string]string, streamer *chat.Streamer) (*Telegram, error) {
	token, ok := config["token"]
	if !ok {
		return nil, errors.New("token is required")
	}

	userID, err := uuid.Parse(config["user_id"])
	if err != nil {
		return nil, errors.New("user_id must be a valid uuid")
	}
	agentID, err := uuid.Parse(config["agent_id"])
	if err != nil {
		return nil, errors.New("agent_id must be a valid uuid")
	}

	duration, err := time.ParseDuration(config["lastMessageDuration"])
	if err != nil {
		duration = 30 * time.Minute
	}

	admins := []string{}
	if _, ok := config["admins"]; ok {
		admins = append(admins, strings.Split(config["admins"], ",")...)
	}

	return &Telegram{
		token:    token,
		userID:   userID,
		agentID:  agentID,
		admins:   admins,
		streamer: streamer,
		sessions: NewSessionTracker[int64](duration),
	}, nil
}

func (t *Telegram) handleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	username := update.Message.From.Username
	if len(t.admins) > 0 && !slices.Contains(t.admins, username) {
		xlog.Info("Unauthorized user", "username", username)
		return
	}

	chatID := update.Message.Chat.ID
	conversationID := t.sessions.Get(chatID)

	sess, err := t.streamer.Begin(ctx, t.userID, t.agentID, conversationID, update.Message.Text)
	if err != nil {
		var gate *chat.GateError
		if errors.As(err, &gate) {
			t.reply(ctx, b, chatID, gate.Denial.Message)
			return
		}
		xlog.Error("Telegram message rejected", "chat", chatID, "error", err)
		return
	}

	reply := strings.Builder{}
	outcome, err := sess.Run(ctx, func(chunk string) error {
		reply.WriteString(chunk)
		return nil
	})
	if err != nil {
		xlog.Error("Telegram reply failed", "chat", chatID, "error", err)
		t.reply(ctx, b, chatID, "Something went wrong, try again in a moment.")
		return
	}

	t.sessions.Set(chatID, outcome.ConversationID)

	if reply.Len() == 0 {
		xlog.Error("Empty response from coach", "chat", chatID)
		return
	}
	t.reply(ctx, b, chatID, reply.String())
}

func (t *Telegram) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		xlog.Error("Error sending message", "error", err)
	}
}

// Start runs the bot until the context is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	opts := []bot.Option{
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
			go t.handleUpdate(ctx, b, update)
		}),
	}

	b, err := bot.New(t.token, opts...)
	if err != nil {
		return err
	}
	t.bot = b

	xlog.Info("Telegram connector started", "agent", t.agentID)
	b.Start(ctx)
	return nil
}
