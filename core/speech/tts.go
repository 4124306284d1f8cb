package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mudler/xlog"

	"github.com/coachly/coachd/pkg/ttscache"
)

const defaultElevenLabsURL = "https://api.elevenlabs.io"

var ErrEmptyText = errors.New("text cannot be empty")

// ElevenLabsClient calls the ElevenLabs text-to-speech endpoint and returns
// MP3 bytes.
type ElevenLabsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewElevenLabsClient(apiKey, baseURL string) *ElevenLabsClient {
	if baseURL == "" {
		baseURL = defaultElevenLabsURL
	}
	return &ElevenLabsClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	body, err := json.Marshal(ttsRequest{Text: text, ModelID: "eleven_multilingual_v2"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// Voice is the result of a synthesis call, noting whether the cache served
// it.
type Voice struct {
	Audio  []byte
	Cached bool
}

// TTSBackend turns text into audio bytes for one voice.
type TTSBackend interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Synthesizer fronts a TTS backend with the bounded cache.
type Synthesizer struct {
	backend TTSBackend
	cache   *ttscache.Cache
}

func NewSynthesizer(backend TTSBackend, cache *ttscache.Cache) *Synthesizer {
	return &Synthesizer{backend: backend, cache: cache}
}

func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string) (*Voice, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	key := ttscache.Key(text, voiceID)
	if audio, ok := s.cache.Get(key); ok {
		xlog.Debug("TTS cache hit", "voice", voiceID)
		return &Voice{Audio: audio, Cached: true}, nil
	}

	audio, err := s.backend.Synthesize(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, audio)
	return &Voice{Audio: audio}, nil
}
