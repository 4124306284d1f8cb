package sse

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Envelope defines the interface for content that can be written to a client.
type Envelope interface {
	String() string // Represent the envelope contents as a string for transmission.
}

// Message represents a simple message implementation.
type Message struct {
	Event string
	Time  time.Time
	Data  string
}

// NewMessage returns a new message instance.
func NewMessage(data string) *Message {
	return &Message{
		Data: data,
		Time: time.Now(),
	}
}

// String returns the message as a string.
func (m *Message) String() string {
	sb := strings.Builder{}

	if m.Event != "" {
		sb.WriteString(fmt.Sprintf("event: %s\n", m.Event))
	}
	sb.WriteString(fmt.Sprintf("data: %v\n\n", m.Data))

	return sb.String()
}

// WithEvent sets the event name for the message.
func (m *Message) WithEvent(event string) Envelope {
	m.Event = event
	return m
}

// Stream is a single-client event stream: the producer Sends envelopes and
// Closes; Serve drains them into the response until the producer is done or
// the client goes away.
type Stream struct {
	frames chan Envelope
	gone   chan struct{}
}

func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 50
	}
	return &Stream{
		frames: make(chan Envelope, buffer),
		gone:   make(chan struct{}),
	}
}

// Send queues an envelope for the client. Blocks when the client reads
// slower than the producer fills the buffer; drops the envelope once the
// client is gone.
func (s *Stream) Send(message Envelope) {
	select {
	case s.frames <- message:
	case <-s.gone:
	}
}

// Close signals end of stream. Send must not be called afterwards.
func (s *Stream) Close() {
	close(s.frames)
}

// Serve writes the stream to the fiber response. It returns once the
// producer closes the stream or the connection drops.
func (s *Stream) Serve(c *fiber.Ctx) {
	ctx := c.Context()

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("X-Accel-Buffering", "no") // Disable proxy buffering

	ctx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer close(s.gone)
		for {
			select {
			case msg, ok := <-s.frames:
				if !ok {
					return
				}
				if _, err := fmt.Fprint(w, msg.String()); err != nil {
					return
				}
				w.Flush()

			case <-ctx.Done():
				return
			}
		}
	}))
}
