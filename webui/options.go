package webui

import (
	"gorm.io/gorm"

	"github.com/coachly/coachd/core/chat"
	"github.com/coachly/coachd/core/knowledge"
	"github.com/coachly/coachd/core/speech"
	"github.com/coachly/coachd/services/search"
	"github.com/coachly/coachd/services/subscription"
)

type Config struct {
	JWTSecret []byte

	DB            *gorm.DB
	Streamer      *chat.Streamer
	Knowledge     *knowledge.Store
	Subscriptions *subscription.Service
	Search        *search.Index
	Transcriber   *speech.Transcriber
	Synthesizer   *speech.Synthesizer

	RateLimitMax int
}

type Option func(*Config)

func WithJWTSecret(secret []byte) Option {
	return func(c *Config) {
		c.JWTSecret = secret
	}
}

func WithDB(db *gorm.DB) Option {
	return func(c *Config) {
		c.DB = db
	}
}

func WithStreamer(s *chat.Streamer) Option {
	return func(c *Config) {
		c.Streamer = s
	}
}

func WithKnowledge(k *knowledge.Store) Option {
	return func(c *Config) {
		c.Knowledge = k
	}
}

func WithSubscriptions(s *subscription.Service) Option {
	return func(c *Config) {
		c.Subscriptions = s
	}
}

func WithSearch(idx *search.Index) Option {
	return func(c *Config) {
		c.Search = idx
	}
}

func WithTranscriber(t *speech.Transcriber) Option {
	return func(c *Config) {
		c.Transcriber = t
	}
}

func WithSynthesizer(s *speech.Synthesizer) Option {
	return func(c *Config) {
		c.Synthesizer = s
	}
}

func WithRateLimitMax(max int) Option {
	return func(c *Config) {
		c.RateLimitMax = max
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func NewConfig(opts ...Option) *Config {
	c := &Config{
		RateLimitMax: 120,
	}
	c.Apply(opts...)
	return c
}
