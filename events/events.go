// Package events defines the publisher contract the pipeline calls after a
// successful response, plus the declarative mappings endpoints use to
// derive messages from handler output. Publication only happens when the
// final status is in the 2xx range.
package events

import (
	"context"

	"github.com/rs/zerolog"
)

// Message is one event derived from a successful handler run.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Publisher delivers messages to whatever broker backs the deployment.
type Publisher interface {
	Publish(ctx context.Context, messages []Message) error
	Close(ctx context.Context) error
}

// Mapping is a declarative event rule evaluated against the handler's
// validated output.
type Mapping struct {
	Type    string
	Payload func(output any) any
}

// Evaluate applies mappings to output.
func Evaluate(mappings []Mapping, output any) []Message {
	messages := make([]Message, 0, len(mappings))
	for _, m := range mappings {
		msg := Message{Type: m.Type}
		if m.Payload != nil {
			msg.Payload = m.Payload(output)
		}
		messages = append(messages, msg)
	}
	return messages
}

// LogPublisher writes messages to a logger. Useful in development and as
// the demo default; it never fails.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher returns a publisher logging at info level.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, messages []Message) error {
	for _, msg := range messages {
		p.logger.Info().
			Str("type", msg.Type).
			Interface("payload", msg.Payload).
			Msg("event published")
	}
	return nil
}

func (p *LogPublisher) Close(ctx context.Context) error { return nil }
