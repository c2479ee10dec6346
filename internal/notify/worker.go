package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bjaus/dispatch"
	"github.com/tidwall/gjson"

	"racereg/internal/events"
)

// Worker routes event envelopes to per-transition mail builders. One router,
// one handler per event type; new transition kinds get a new registration
// here and nothing in the lifecycle changes.
type Worker struct {
	router *dispatch.Router
	mailer Mailer
	logger *slog.Logger
}

func NewWorker(mailer Mailer, logger *slog.Logger) *Worker {
	w := &Worker{mailer: mailer, logger: logger}

	r := dispatch.New()
	r.AddSource(dispatch.SourceFunc(
		"registration-events",
		dispatch.HasFields("type", "registration_id"),
		func(raw []byte) (dispatch.Message, error) {
			key := gjson.GetBytes(raw, "type").String()
			if key == "" {
				return dispatch.Message{}, fmt.Errorf("event envelope missing type")
			}
			return dispatch.Message{Key: key, Payload: raw}, nil
		},
	))

	dispatch.RegisterProcFunc(r, string(events.TypeSubmitted), w.handleSubmitted)
	dispatch.RegisterProcFunc(r, string(events.TypeApproved), w.handleApproved)
	dispatch.RegisterProcFunc(r, string(events.TypeRejected), w.handleRejected)
	dispatch.RegisterProcFunc(r, string(events.TypeReverted), w.handleReverted)
	// Check-in is an on-site interaction; no email goes out for it.
	dispatch.RegisterProcFunc(r, string(events.TypeCheckedIn), func(context.Context, events.Event) error {
		return nil
	})

	w.router = r
	return w
}

// Handle processes one raw envelope. Errors are logged, never propagated:
// delivery is best-effort and the transition already committed.
func (w *Worker) Handle(ctx context.Context, raw []byte) {
	if err := w.router.Process(ctx, raw); err != nil {
		w.logger.ErrorContext(ctx, "notification dispatch failed",
			"error", err,
			"event_type", gjson.GetBytes(raw, "type").String(),
		)
	}
}

// RunFeed drains an in-process event feed until the context is cancelled.
// Used when no broker is configured.
func (w *Worker) RunFeed(ctx context.Context, feed <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-feed:
			raw, err := json.Marshal(event)
			if err != nil {
				w.logger.ErrorContext(ctx, "event marshal failed", "error", err)
				continue
			}
			w.Handle(ctx, raw)
		}
	}
}

func (w *Worker) handleSubmitted(ctx context.Context, event events.Event) error {
	return w.mailer.Send(ctx, Message{
		To:      event.Email,
		Subject: "Registration received",
		Body: "We received your registration and payment proof. " +
			"You will get another email once staff verify the payment.",
	})
}

func (w *Worker) handleApproved(ctx context.Context, event events.Event) error {
	return w.mailer.Send(ctx, Message{
		To:      event.Email,
		Subject: "Registration approved",
		Body: fmt.Sprintf(
			"Your payment is verified. Your bib number is %s (%s). See you on race day!",
			event.Data["bib_number"], event.Data["race_category"],
		),
	})
}

func (w *Worker) handleRejected(ctx context.Context, event events.Event) error {
	body := fmt.Sprintf("Your registration could not be approved: %s.", event.Data["reason"])
	if note := event.Data["note"]; note != "" {
		body += " " + note
	}
	body += " Please upload a new payment slip to try again."
	return w.mailer.Send(ctx, Message{
		To:      event.Email,
		Subject: "Registration needs attention",
		Body:    body,
	})
}

func (w *Worker) handleReverted(ctx context.Context, event events.Event) error {
	return w.mailer.Send(ctx, Message{
		To:      event.Email,
		Subject: "Registration under review",
		Body: "Your registration was returned to the review queue by event staff. " +
			"No action is needed; you will hear from us again shortly.",
	})
}
