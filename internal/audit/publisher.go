package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher appends audit events to a store, synchronously by default or
// through a buffered background writer with WithAsyncBuffer. Close drains the
// buffer before returning.
type Publisher struct {
	store  Store
	logger *slog.Logger

	inbox chan Event
	wg    sync.WaitGroup
	once  sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer moves persistence off the caller's path. Events are dropped
// with a logged error if the store rejects them; the audit trail is
// best-effort in async mode.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan Event, size)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event, stamping the time if unset.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Error("audit buffer full, event dropped",
			"action", event.Action,
			"registration_id", event.RegistrationID,
		)
	}
	return nil
}

// List returns the trail for one registration, oldest first.
func (p *Publisher) List(ctx context.Context, registrationID uuid.UUID) ([]Event, error) {
	return p.store.ListByRegistration(ctx, registrationID)
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("audit append failed",
				"action", event.Action,
				"registration_id", event.RegistrationID,
				"error", err,
			)
		}
	}
}

// Close drains pending events. Safe to call more than once.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.once.Do(func() {
		close(p.inbox)
	})
	p.wg.Wait()
}
