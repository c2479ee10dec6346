// Package handler exposes the registration lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"racereg/internal/audit"
	"racereg/internal/platform/middleware"
	"racereg/internal/registration/models"
	"racereg/internal/transport/http/shared"
	"racereg/pkg/domerr"
	"racereg/pkg/requestcontext"
)

// maxUploadBytes bounds the multipart form, not the slip itself; the service
// enforces the slip size limit.
const maxUploadBytes = 10 << 20

// Service defines the registration operations the handler needs.
type Service interface {
	Create(ctx context.Context, req *models.CreateRequest, slip []byte) (*models.Registration, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	Approve(ctx context.Context, id uuid.UUID, bib string, amountVerified bool) (*models.Registration, error)
	Reject(ctx context.Context, id uuid.UUID, reason models.RejectReason, note string) (*models.Registration, error)
	Revert(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	Resubmit(ctx context.Context, id uuid.UUID, slip []byte) (*models.Registration, error)
	Search(ctx context.Context, term string) ([]*models.Registration, error)
	Lookup(ctx context.Context, key string) (*models.Registration, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Registration, error)
	Stats(ctx context.Context) (map[models.Status]int, error)
	AuditTrail(ctx context.Context, id uuid.UUID) ([]audit.Event, error)
}

// Handler handles registration endpoints.
type Handler struct {
	service   Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(service Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{service: service, logger: logger, validator: validator}
}

// Register mounts the public runner routes and the token-guarded staff
// routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/registrations", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/lookup", h.handleLookup)
		r.Post("/{id}/slip", h.handleResubmit)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStaff(h.validator, h.logger))
			r.Get("/", h.handleList)
			r.Get("/search", h.handleSearch)
			r.Get("/{id}", h.handleGet)
			r.Get("/{id}/audit", h.handleAuditTrail)
			r.Post("/{id}/approve", h.handleApprove)
			r.Post("/{id}/reject", h.handleReject)
			r.Post("/{id}/revert", h.handleRevert)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireStaff(h.validator, h.logger))
		r.Get("/stats", h.handleStats)
	})
}

// handleCreate accepts a multipart submission: a "registration" JSON part
// and a "slip" image part.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		shared.WriteError(w, domerr.New(domerr.CodeValidation, "expected a multipart form with registration and slip parts"))
		return
	}

	var req models.CreateRequest
	if err := json.Unmarshal([]byte(r.FormValue("registration")), &req); err != nil {
		shared.WriteError(w, domerr.New(domerr.CodeValidation, "invalid registration payload"))
		return
	}

	slip, err := readFilePart(r, "slip")
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	reg, err := h.service.Create(ctx, &req, slip)
	if err != nil {
		h.logFailure(ctx, "create registration", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, reg)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		shared.WriteError(w, domerr.New(domerr.CodeValidation, "query parameter \"key\" is required"))
		return
	}
	reg, err := h.service.Lookup(r.Context(), key)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, statusView(reg))
}

// handleResubmit replaces the payment slip on a rejected registration.
func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		shared.WriteError(w, domerr.New(domerr.CodeValidation, "expected a multipart form with a slip part"))
		return
	}
	slip, err := readFilePart(r, "slip")
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	reg, err := h.service.Resubmit(ctx, id, slip)
	if err != nil {
		h.logFailure(ctx, "resubmit slip", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = models.StatusPending
	}
	regs, err := h.service.ListByStatus(r.Context(), status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, listResponse{Registrations: regs, Count: len(regs)})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		shared.WriteError(w, domerr.New(domerr.CodeValidation, "query parameter \"q\" is required"))
		return
	}
	regs, err := h.service.Search(r.Context(), term)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, listResponse{Registrations: regs, Count: len(regs)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	reg, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	trail, err := h.service.AuditTrail(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": trail})
}

type approveRequest struct {
	BibNumber      string `json:"bib_number"`
	AmountVerified bool   `json:"amount_verified"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, domerr.New(domerr.CodeValidation, "invalid request body"))
		return
	}

	reg, err := h.service.Approve(ctx, id, req.BibNumber, req.AmountVerified)
	if err != nil {
		h.logFailure(ctx, "approve registration", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reg)
}

type rejectRequest struct {
	Reason models.RejectReason `json:"reason"`
	Note   string              `json:"note"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, domerr.New(domerr.CodeValidation, "invalid request body"))
		return
	}

	reg, err := h.service.Reject(ctx, id, req.Reason, req.Note)
	if err != nil {
		h.logFailure(ctx, "reject registration", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) handleRevert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	reg, err := h.service.Revert(ctx, id)
	if err != nil {
		h.logFailure(ctx, "revert registration", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

type listResponse struct {
	Registrations []*models.Registration `json:"registrations"`
	Count         int                    `json:"count"`
}

// statusResponse is the runner-facing projection of a registration. The
// public lookup endpoint never exposes staff notes or contact details.
type statusResponse struct {
	ID           uuid.UUID           `json:"id"`
	FullName     string              `json:"full_name"`
	Status       models.Status       `json:"status"`
	BibNumber    string              `json:"bib_number,omitempty"`
	RejectReason models.RejectReason `json:"reject_reason,omitempty"`
	KitPickedUp  bool                `json:"kit_picked_up"`
}

func statusView(reg *models.Registration) statusResponse {
	return statusResponse{
		ID:           reg.ID,
		FullName:     reg.FullName,
		Status:       reg.Status,
		BibNumber:    reg.BibNumber,
		RejectReason: reg.RejectReason,
		KitPickedUp:  reg.KitPickedUp,
	}
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domerr.New(domerr.CodeValidation, "invalid registration id")
	}
	return id, nil
}

func readFilePart(r *http.Request, name string) ([]byte, error) {
	file, _, err := r.FormFile(name)
	if err != nil {
		return nil, domerr.Newf(domerr.CodeValidation, "file part %q is required", name)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, domerr.Wrap(err, domerr.CodeValidation, "failed to read uploaded file")
	}
	return data, nil
}

func (h *Handler) logFailure(ctx context.Context, op string, err error) {
	h.logger.WarnContext(ctx, op+" failed",
		"error", err,
		"code", domerr.CodeOf(err),
		"request_id", requestcontext.RequestID(ctx),
	)
}
