// Package service orchestrates the registration lifecycle. Every mutation
// goes through the store's guarded commit path; the admin screens' cached
// lists are advisory and never consulted here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"racereg/internal/audit"
	"racereg/internal/events"
	"racereg/internal/objectstore"
	"racereg/internal/registration/metrics"
	"racereg/internal/registration/models"
	"racereg/internal/registration/store"
	"racereg/pkg/domerr"
	"racereg/pkg/platform/sentinel"
	"racereg/pkg/requestcontext"
)

// Service coordinates registrations, slip storage, and post-commit
// side effects.
type Service struct {
	store     store.Store
	slips     objectstore.Store
	logger    *slog.Logger
	publisher events.Publisher
	auditor   *audit.Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	maxSlipBytes int64
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithPublisher(publisher events.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithAuditor(auditor *audit.Publisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithMaxSlipBytes(n int64) Option {
	return func(s *Service) { s.maxSlipBytes = n }
}

// New constructs a Service.
func New(st store.Store, slips objectstore.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		slips:  slips,
		logger: slog.Default(),
		tracer: otel.Tracer("racereg/registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create accepts a runner submission with its payment slip and enqueues it
// for staff review.
func (s *Service) Create(ctx context.Context, req *models.CreateRequest, slip []byte) (*models.Registration, error) {
	now := requestcontext.Now(ctx)

	reg, err := models.NewRegistration(req, now)
	if err != nil {
		return nil, err
	}

	if err := objectstore.ValidateSlip(slip, s.maxSlipBytes); err != nil {
		return nil, domerr.Wrap(err, domerr.CodeValidation, err.Error())
	}
	path := fmt.Sprintf("slips/%s%s", reg.ID, objectstore.SlipExtension(slip))
	url, err := s.slips.Upload(ctx, slip, path)
	if err != nil {
		return nil, domerr.Wrap(err, domerr.CodeStorage, "failed to store payment slip")
	}
	reg.PaymentSlipURL = url

	if err := s.store.Create(ctx, reg); err != nil {
		return nil, domerr.Wrap(err, domerr.CodeInternal, "failed to create registration")
	}

	s.afterCommit(ctx, reg, events.TypeSubmitted, audit.ActionSubmitted, "", nil)
	s.count(func(m *metrics.Metrics) { m.Submitted.Inc() })
	return reg, nil
}

// Get fetches one registration by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerr.New(domerr.CodeNotFound, "registration not found")
		}
		return nil, domerr.Wrap(err, domerr.CodeStorage, "failed to load registration")
	}
	return reg, nil
}

// Approve verifies the transition preconditions against the record's current
// state and commits pending -> approved with the bib, all inside the store's
// compare-and-swap. A losing race surfaces as stale_state or bib_conflict;
// the operator must re-fetch and re-decide, never blind-retry.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, bib string, amountVerified bool) (*models.Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.approve")
	defer span.End()
	defer s.observe("approve", time.Now())

	now := requestcontext.Now(ctx)
	reg, err := s.store.UpdateIfStatus(ctx, id, models.StatusPending, func(r *models.Registration) error {
		if err := r.CanApprove(bib, amountVerified); err != nil {
			return err
		}
		r.ApplyApproval(bib, now)
		return nil
	})
	if err != nil {
		return nil, s.translateApprove(ctx, id, bib, err)
	}

	s.afterCommit(ctx, reg, events.TypeApproved, audit.ActionApproved,
		fmt.Sprintf("bib %s", reg.BibNumber),
		map[string]string{
			"bib_number":    reg.BibNumber,
			"race_category": string(reg.Category),
		})
	s.count(func(m *metrics.Metrics) { m.Approved.Inc() })
	return reg, nil
}

// translateApprove distinguishes the approve failure modes. An "approve on a
// decided record" arrives as ErrStale from the store because the expected
// status no longer matches; the operator-facing answer in that case is an
// invalid transition, so re-read once to report the true current state.
func (s *Service) translateApprove(ctx context.Context, id uuid.UUID, bib string, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return domerr.New(domerr.CodeNotFound, "registration not found")
	case errors.Is(err, sentinel.ErrConflict):
		s.count(func(m *metrics.Metrics) { m.BibConflicts.Inc() })
		return domerr.Newf(domerr.CodeBibConflict, "bib %s is already assigned to another approved runner", bib)
	case errors.Is(err, sentinel.ErrStale):
		if current, ferr := s.store.FindByID(ctx, id); ferr == nil && current.Status != models.StatusPending {
			return domerr.Newf(domerr.CodeInvalidTransition, "cannot approve a %s registration", current.Status)
		}
		s.count(func(m *metrics.Metrics) { m.StaleWrites.Inc() })
		return domerr.New(domerr.CodeStaleState, "registration changed while you were reviewing it; reload and decide again")
	default:
		return s.translateCommon(err)
	}
}

// Reject commits pending -> rejected with a reason from the fixed list.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason models.RejectReason, note string) (*models.Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.reject")
	defer span.End()
	defer s.observe("reject", time.Now())

	now := requestcontext.Now(ctx)
	reg, err := s.store.UpdateIfStatus(ctx, id, models.StatusPending, func(r *models.Registration) error {
		if err := r.CanReject(reason, note); err != nil {
			return err
		}
		r.ApplyRejection(reason, note, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			if current, ferr := s.store.FindByID(ctx, id); ferr == nil && current.Status != models.StatusPending {
				return nil, domerr.Newf(domerr.CodeInvalidTransition, "cannot reject a %s registration", current.Status)
			}
			s.count(func(m *metrics.Metrics) { m.StaleWrites.Inc() })
			return nil, domerr.New(domerr.CodeStaleState, "registration changed while you were reviewing it; reload and decide again")
		}
		return nil, s.translateCommon(err)
	}

	s.afterCommit(ctx, reg, events.TypeRejected, audit.ActionRejected,
		string(reg.RejectReason),
		map[string]string{
			"reason": string(reg.RejectReason),
			"note":   reg.RejectNote,
		})
	s.count(func(m *metrics.Metrics) { m.Rejected.Inc() })
	return reg, nil
}

// Revert returns a decided registration to the pending queue. Reverting an
// approval clears and releases its bib.
func (s *Service) Revert(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.revert")
	defer span.End()
	defer s.observe("revert", time.Now())

	// Revert is legal from either decided state, so the expectation is
	// whatever status the operator observed. Re-read and CAS on it.
	observed, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	reg, err := s.store.UpdateIfStatus(ctx, id, observed.Status, func(r *models.Registration) error {
		if err := r.CanRevert(); err != nil {
			return err
		}
		r.ApplyRevert(now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			s.count(func(m *metrics.Metrics) { m.StaleWrites.Inc() })
			return nil, domerr.New(domerr.CodeStaleState, "registration changed while you were reviewing it; reload and decide again")
		}
		return nil, s.translateCommon(err)
	}

	s.afterCommit(ctx, reg, events.TypeReverted, audit.ActionReverted,
		fmt.Sprintf("reverted from %s", observed.Status), nil)
	s.count(func(m *metrics.Metrics) { m.Reverted.Inc() })
	return reg, nil
}

// Resubmit replaces the payment slip on a rejected registration and returns
// it to pending. Runner-initiated; no staff identity involved.
func (s *Service) Resubmit(ctx context.Context, id uuid.UUID, slip []byte) (*models.Registration, error) {
	if err := objectstore.ValidateSlip(slip, s.maxSlipBytes); err != nil {
		return nil, domerr.Wrap(err, domerr.CodeValidation, err.Error())
	}

	// Upload before the transition so a storage failure leaves the record
	// untouched. The previous slip reference stays valid either way.
	now := requestcontext.Now(ctx)
	path := fmt.Sprintf("slips/%s-%d%s", id, now.UnixNano(), objectstore.SlipExtension(slip))
	url, err := s.slips.Upload(ctx, slip, path)
	if err != nil {
		return nil, domerr.Wrap(err, domerr.CodeStorage, "failed to store payment slip")
	}

	reg, err := s.store.UpdateIfStatus(ctx, id, models.StatusRejected, func(r *models.Registration) error {
		if err := r.CanResubmit(); err != nil {
			return err
		}
		r.ApplyResubmission(url, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			if current, ferr := s.store.FindByID(ctx, id); ferr == nil {
				return nil, domerr.Newf(domerr.CodeInvalidTransition, "cannot re-submit payment for a %s registration", current.Status)
			}
		}
		return nil, s.translateCommon(err)
	}

	s.afterCommit(ctx, reg, events.TypeSubmitted, audit.ActionResubmitted, "new payment slip", nil)
	s.count(func(m *metrics.Metrics) { m.Resubmitted.Inc() })
	return reg, nil
}

// Search serves the admin payment-audit list: exact match against bib,
// phone, and national id first, then name substring.
func (s *Service) Search(ctx context.Context, term string) ([]*models.Registration, error) {
	var (
		out  []*models.Registration
		seen = make(map[uuid.UUID]bool)
	)
	for _, field := range []store.Field{store.FieldBib, store.FieldPhone, store.FieldNationalID} {
		matches, err := s.store.FindByField(ctx, field, term)
		if err != nil {
			return nil, domerr.Wrap(err, domerr.CodeStorage, "search failed")
		}
		for _, reg := range matches {
			if !seen[reg.ID] {
				seen[reg.ID] = true
				out = append(out, reg)
			}
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	matches, err := s.store.SearchByName(ctx, term)
	if err != nil {
		return nil, domerr.Wrap(err, domerr.CodeStorage, "search failed")
	}
	return matches, nil
}

// Lookup resolves a runner-facing status check to a single registration.
func (s *Service) Lookup(ctx context.Context, key string) (*models.Registration, error) {
	reg, err := store.Resolve(ctx, s.store, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domerr.New(domerr.CodeNotFound, "no registration matches that key")
		}
		return nil, domerr.Wrap(err, domerr.CodeStorage, "lookup failed")
	}
	return reg, nil
}

// ListByStatus returns the staff work queues (pending review, rejected
// awaiting re-submission, approved).
func (s *Service) ListByStatus(ctx context.Context, status models.Status) ([]*models.Registration, error) {
	if !status.Valid() {
		return nil, domerr.Newf(domerr.CodeValidation, "unknown status %q", status)
	}
	regs, err := s.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, domerr.Wrap(err, domerr.CodeStorage, "failed to list registrations")
	}
	return regs, nil
}

// Stats returns per-status registration counts for the dashboard.
func (s *Service) Stats(ctx context.Context) (map[models.Status]int, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, domerr.Wrap(err, domerr.CodeStorage, "failed to count registrations")
	}
	return counts, nil
}

// AuditTrail lists the recorded actions for one registration.
func (s *Service) AuditTrail(ctx context.Context, id uuid.UUID) ([]audit.Event, error) {
	if s.auditor == nil {
		return nil, nil
	}
	return s.auditor.List(ctx, id)
}

func (s *Service) translateCommon(err error) error {
	var de *domerr.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return domerr.New(domerr.CodeNotFound, "registration not found")
	}
	return domerr.Wrap(err, domerr.CodeInternal, "registration update failed")
}

// afterCommit runs the post-commit side effects: audit trail, event stream,
// structured log. Failures here are logged and never unwind the transition.
func (s *Service) afterCommit(ctx context.Context, reg *models.Registration, eventType events.Type, action audit.Action, detail string, data map[string]string) {
	staffID := requestcontext.StaffID(ctx)

	s.logger.InfoContext(ctx, string(action),
		"registration_id", reg.ID,
		"status", reg.Status,
		"staff_id", staffID,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)

	if s.auditor != nil {
		if err := s.auditor.Emit(ctx, audit.Event{
			OccurredAt:     requestcontext.Now(ctx),
			StaffID:        staffID,
			RegistrationID: reg.ID,
			Action:         action,
			Detail:         detail,
		}); err != nil {
			s.logger.ErrorContext(ctx, "audit emit failed", "error", err, "registration_id", reg.ID)
		}
	}

	if s.publisher != nil {
		event := events.New(eventType, reg.ID, reg.Email, data, requestcontext.Now(ctx))
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "event publish failed", "error", err, "registration_id", reg.ID)
		}
	}
}

func (s *Service) count(fn func(*metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

func (s *Service) observe(transition string, start time.Time) {
	if s.metrics != nil {
		s.metrics.TransitionDuration.WithLabelValues(transition).Observe(time.Since(start).Seconds())
	}
}
