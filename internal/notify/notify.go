// Package notify turns committed-transition events into outbound email
// requests. Delivery is an external collaborator's concern: a failed handoff
// is logged and dropped, never bounced back into the lifecycle.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Message is the outbound notification request shape.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer hands a message to the delivery collaborator.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer records the handoff without delivering anything. Stands in for
// the real email service in development.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.Logger.InfoContext(ctx, "notification dispatched",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// MemoryMailer captures sends for tests, with optional failure injection.
type MemoryMailer struct {
	mu       sync.Mutex
	messages []Message

	// FailWith, when set, is returned by every Send.
	FailWith error
}

func (m *MemoryMailer) Send(_ context.Context, msg Message) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MemoryMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
