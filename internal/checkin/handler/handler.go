// Package handler exposes the kit pickup desk over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"racereg/internal/checkin"
	"racereg/internal/platform/middleware"
	"racereg/internal/transport/http/shared"
	"racereg/pkg/domerr"
	"racereg/pkg/requestcontext"
)

// Service defines the check-in operations the handler needs.
type Service interface {
	CheckIn(ctx context.Context, key string) (*checkin.Result, error)
	TodayCount(ctx context.Context, day time.Time) (int64, error)
}

// Handler handles kit pickup endpoints. All routes require a staff token;
// runners never call these.
type Handler struct {
	service   Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(service Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{service: service, logger: logger, validator: validator}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireStaff(h.validator, h.logger))
		r.Post("/checkin", h.handleCheckIn)
		r.Get("/checkin/tally", h.handleTally)
	})
}

type checkInRequest struct {
	Key string `json:"key"`
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, domerr.New(domerr.CodeValidation, "invalid request body"))
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		shared.WriteError(w, domerr.New(domerr.CodeValidation, "a search key is required"))
		return
	}

	result, err := h.service.CheckIn(ctx, req.Key)
	if err != nil {
		h.logger.WarnContext(ctx, "check-in failed",
			"error", err,
			"code", domerr.CodeOf(err),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTally(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	day := requestcontext.Now(ctx)
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			shared.WriteError(w, domerr.New(domerr.CodeValidation, "day must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	count, err := h.service.TodayCount(ctx, day)
	if err != nil {
		shared.WriteError(w, domerr.Wrap(err, domerr.CodeStorage, "tally unavailable"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"day":   day.Format("2006-01-02"),
		"count": count,
	})
}
