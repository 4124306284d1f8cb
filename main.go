package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
	"github.com/robfig/cron/v3"

	"github.com/coachly/coachd/core/chat"
	"github.com/coachly/coachd/core/insight"
	"github.com/coachly/coachd/core/knowledge"
	"github.com/coachly/coachd/core/speech"
	"github.com/coachly/coachd/core/tasks"
	"github.com/coachly/coachd/db"
	"github.com/coachly/coachd/pkg/llm"
	"github.com/coachly/coachd/pkg/ttscache"
	"github.com/coachly/coachd/services/connectors"
	"github.com/coachly/coachd/services/search"
	"github.com/coachly/coachd/services/subscription"
	"github.com/coachly/coachd/webui"
)

var (
	jwtSecret string
	port      string

	openaiKey    string
	openaiURL    string
	anthropicKey string
	anthropicURL string
	googleKey    string
	googleURL    string
	llmTimeout   string

	embeddingsModel string
	insightModel    string
	whisperModel    string

	elevenLabsKey string
	elevenLabsURL string

	telegramToken  string
	telegramUser   string
	telegramAgent  string
	telegramAdmins string

	maxBackgroundTasks string
)

func init() {
	godotenv.Load()

	jwtSecret = os.Getenv("JWT_SECRET")
	port = os.Getenv("PORT")
	openaiKey = os.Getenv("OPENAI_API_KEY")
	openaiURL = os.Getenv("OPENAI_API_URL")
	anthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	anthropicURL = os.Getenv("ANTHROPIC_API_URL")
	googleKey = os.Getenv("GOOGLE_API_KEY")
	googleURL = os.Getenv("GOOGLE_API_URL")
	llmTimeout = os.Getenv("LLM_TIMEOUT")
	embeddingsModel = os.Getenv("EMBEDDINGS_MODEL")
	insightModel = os.Getenv("INSIGHT_MODEL")
	whisperModel = os.Getenv("WHISPER_MODEL")
	elevenLabsKey = os.Getenv("ELEVENLABS_API_KEY")
	elevenLabsURL = os.Getenv("ELEVENLABS_API_URL")
	telegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	telegramUser = os.Getenv("TELEGRAM_USER_ID")
	telegramAgent = os.Getenv("TELEGRAM_AGENT_ID")
	telegramAdmins = os.Getenv("TELEGRAM_ADMINS")
	maxBackgroundTasks = os.Getenv("MAX_BACKGROUND_TASKS")

	if jwtSecret == "" {
		panic("JWT_SECRET not set")
	}
	if port == "" {
		port = "3000"
	}
	if embeddingsModel == "" {
		embeddingsModel = "text-embedding-3-small"
	}
	if insightModel == "" {
		insightModel = "gpt-4o-mini"
	}
	if anthropicURL == "" {
		anthropicURL = "https://api.anthropic.com/v1"
	}
	if googleURL == "" {
		googleURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
}

func main() {
	database := db.ConnectDB()

	providers := llm.NewRegistry(map[string]llm.ProviderSettings{
		llm.ProviderOpenAI:    {APIKey: openaiKey, BaseURL: openaiURL, Timeout: llmTimeout},
		llm.ProviderAnthropic: {APIKey: anthropicKey, BaseURL: anthropicURL, Timeout: llmTimeout},
		llm.ProviderGoogle:    {APIKey: googleKey, BaseURL: googleURL, Timeout: llmTimeout},
	})

	embeddingsClient := llm.NewClient(openaiKey, openaiURL, llmTimeout)
	knowledgeStore := knowledge.NewStore(database, knowledge.OpenAIEmbedder(embeddingsClient, embeddingsModel))
	if err := knowledgeStore.Rebuild(context.Background()); err != nil {
		xlog.Error("Failed to rebuild knowledge collections", "error", err)
	}

	maxTasks := 0
	if maxBackgroundTasks != "" {
		maxTasks, _ = strconv.Atoi(maxBackgroundTasks)
	}
	runner := tasks.NewRunner(int64(maxTasks))

	subs := subscription.NewService(database)
	extractor := insight.NewExtractor(database, llm.NewClient(openaiKey, openaiURL, llmTimeout), insightModel)
	streamer := chat.NewStreamer(database, providers, knowledgeStore, subs, extractor, runner)

	searchIndex, err := search.NewIndex()
	if err != nil {
		panic(err)
	}
	if err := searchIndex.Rebuild(database); err != nil {
		xlog.Error("Failed to rebuild agent search index", "error", err)
	}

	voiceCache := ttscache.New()
	transcriber := speech.NewTranscriber(embeddingsClient, whisperModel)
	synthesizer := speech.NewSynthesizer(speech.NewElevenLabsClient(elevenLabsKey, elevenLabsURL), voiceCache)

	scheduler := cron.New()
	scheduler.AddFunc("@every 5m", func() { voiceCache.Purge() })
	scheduler.AddFunc("@hourly", subs.DowngradeExpired)
	scheduler.Start()

	if telegramToken != "" {
		telegram, err := connectors.NewTelegramConnector(map[string]string{
			"token":    telegramToken,
			"user_id":  telegramUser,
			"agent_id": telegramAgent,
			"admins":   telegramAdmins,
		}, streamer)
		if err != nil {
			xlog.Error("Telegram connector disabled", "error", err)
		} else {
			go func() {
				if err := telegram.Start(context.Background()); err != nil {
					xlog.Error("Telegram connector stopped", "error", err)
				}
			}()
		}
	}

	app := webui.NewApp(
		webui.WithJWTSecret([]byte(jwtSecret)),
		webui.WithDB(database),
		webui.WithStreamer(streamer),
		webui.WithKnowledge(knowledgeStore),
		webui.WithSubscriptions(subs),
		webui.WithSearch(searchIndex),
		webui.WithTranscriber(transcriber),
		webui.WithSynthesizer(synthesizer),
	)

	log.Fatal(app.Listen(":" + port))
}
