package speech

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
)

// MaxAudioBytes is the largest upload Whisper accepts.
const MaxAudioBytes = 25 << 20

var ErrAudioTooLarge = errors.New("audio exceeds 25 MB limit")

// TranscriptionClient is the slice of the OpenAI client STT needs.
type TranscriptionClient interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Transcriber turns uploaded audio into text via Whisper.
type Transcriber struct {
	client TranscriptionClient
	model  string
}

func NewTranscriber(client TranscriptionClient, model string) *Transcriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &Transcriber{client: client, model: model}
}

// Transcribe reads at most MaxAudioBytes from audio and returns the
// transcript. filename carries the extension Whisper uses to sniff the
// container format.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	limited := io.LimitReader(audio, MaxAudioBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return "", err
	}
	if len(data) > MaxAudioBytes {
		return "", ErrAudioTooLarge
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   bytes.NewReader(data),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
