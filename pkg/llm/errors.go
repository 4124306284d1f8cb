package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ErrKind classifies upstream provider failures so callers can emit a
// stable user-facing message instead of matching on error strings.
type ErrKind int

const (
	ErrKindUpstream ErrKind = iota
	ErrKindAuth
	ErrKindRateLimit
	ErrKindTimeout
)

// ClassifyError maps a provider error to an ErrKind.
func ClassifyError(err error) ErrKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrKindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrKindAuth
		case http.StatusTooManyRequests:
			return ErrKindRateLimit
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return ErrKindTimeout
		}
	}
	return ErrKindUpstream
}

// UserMessage is the single best-effort error string relayed to the client
// over the SSE channel. Internal detail stays in the logs.
func (k ErrKind) UserMessage() string {
	switch k {
	case ErrKindAuth:
		return "AI service configuration error"
	case ErrKindRateLimit:
		return "AI service is busy, please try again shortly"
	case ErrKindTimeout:
		return "AI service took too long to respond"
	default:
		return "AI service is temporarily unavailable"
	}
}
