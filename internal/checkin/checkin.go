// Package checkin runs the race-day kit pickup desk. The desk staff type
// whatever the runner hands them, a bib, a phone number, an id card, and the
// desk either hands out exactly one kit or explains why not.
package checkin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"racereg/internal/audit"
	"racereg/internal/events"
	"racereg/internal/registration/models"
	"racereg/internal/registration/store"
	"racereg/pkg/domerr"
	"racereg/pkg/platform/sentinel"
	"racereg/pkg/requestcontext"
)

// Result reports a pickup attempt. AlreadyPickedUp distinguishes the
// idempotent repeat from the first, real hand-out; CheckedInAt is the
// original pickup time in both cases.
type Result struct {
	Registration    *models.Registration `json:"registration"`
	AlreadyPickedUp bool                 `json:"already_picked_up"`
	CheckedInAt     time.Time            `json:"checked_in_at"`
}

// Service resolves a search key to one registration and marks the kit
// handed out at most once.
type Service struct {
	store     store.Store
	tally     *Tally
	logger    *slog.Logger
	publisher events.Publisher
	auditor   *audit.Publisher
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithTally(tally *Tally) Option {
	return func(s *Service) { s.tally = tally }
}

func WithPublisher(publisher events.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithAuditor(auditor *audit.Publisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.Default(),
		tracer: otel.Tracer("racereg/checkin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckIn resolves the key and records the pickup. Repeating the call for a
// runner who already collected their kit is not an error; the result carries
// the original timestamp so the desk can see when it happened.
func (s *Service) CheckIn(ctx context.Context, key string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "checkin.checkin")
	defer span.End()

	reg, err := store.Resolve(ctx, s.store, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerr.Newf(domerr.CodeNotFound, "no registration matches %q", key)
		}
		return nil, domerr.Wrap(err, domerr.CodeStorage, "check-in lookup failed")
	}

	now := requestcontext.Now(ctx)
	checkedInAt, already, err := s.store.CheckIn(ctx, reg.ID, now)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, domerr.Newf(domerr.CodeNotEligible, "registration is %s; kit pickup requires approval", reg.Status)
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, domerr.New(domerr.CodeNotFound, "registration not found")
		default:
			return nil, domerr.Wrap(err, domerr.CodeStorage, "check-in failed")
		}
	}

	// Re-read so the result reflects the committed record.
	current, err := s.store.FindByID(ctx, reg.ID)
	if err != nil {
		return nil, domerr.Wrap(err, domerr.CodeStorage, "check-in readback failed")
	}

	result := &Result{
		Registration:    current,
		AlreadyPickedUp: already,
		CheckedInAt:     checkedInAt,
	}
	if already {
		s.logger.InfoContext(ctx, "kit already picked up",
			"registration_id", reg.ID,
			"checked_in_at", checkedInAt,
			"staff_id", requestcontext.StaffID(ctx),
		)
		return result, nil
	}

	s.afterPickup(ctx, current, checkedInAt)
	return result, nil
}

// afterPickup runs the first-pickup side effects: day tally, audit entry,
// checked_in event. None of them can undo the pickup.
func (s *Service) afterPickup(ctx context.Context, reg *models.Registration, at time.Time) {
	s.logger.InfoContext(ctx, "kit picked up",
		"registration_id", reg.ID,
		"bib_number", reg.BibNumber,
		"staff_id", requestcontext.StaffID(ctx),
	)
	s.tally.Record(ctx, at)

	if s.auditor != nil {
		if err := s.auditor.Emit(ctx, audit.Event{
			OccurredAt:     at,
			StaffID:        requestcontext.StaffID(ctx),
			RegistrationID: reg.ID,
			Action:         audit.ActionCheckedIn,
			Detail:         "bib " + reg.BibNumber,
		}); err != nil {
			s.logger.ErrorContext(ctx, "audit emit failed", "error", err, "registration_id", reg.ID)
		}
	}

	if s.publisher != nil {
		event := events.New(events.TypeCheckedIn, reg.ID, reg.Email, map[string]string{
			"bib_number": reg.BibNumber,
		}, at)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "event publish failed", "error", err, "registration_id", reg.ID)
		}
	}
}

// TodayCount reports how many kits went out on the given day.
func (s *Service) TodayCount(ctx context.Context, day time.Time) (int64, error) {
	return s.tally.Count(ctx, day)
}
