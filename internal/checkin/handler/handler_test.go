package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"racereg/internal/checkin"
	"racereg/internal/jwtauth"
	"racereg/internal/registration/models"
	"racereg/internal/registration/store"
)

const signingKey = "test-signing-key"

func newRouter(t *testing.T) (chi.Router, *store.InMemory) {
	t.Helper()
	st := store.NewInMemory()
	svc := checkin.New(st, checkin.WithLogger(slog.New(slog.DiscardHandler)))
	h := New(svc, slog.New(slog.DiscardHandler), jwtauth.NewValidator(signingKey))
	r := chi.NewRouter()
	h.Register(r)
	return r, st
}

func seedApproved(t *testing.T, st *store.InMemory, bib string) *models.Registration {
	t.Helper()
	reg := &models.Registration{
		ID:         uuid.New(),
		FullName:   "Desk Test",
		NationalID: "nid-" + bib,
		Phone:      "phone-" + bib,
		Email:      bib + "@example.com",
		Category:   models.CategoryFunRun,
		Status:     models.StatusApproved,
		BibNumber:  bib,
		CreatedAt:  time.Now().Add(-time.Hour),
		UpdatedAt:  time.Now().Add(-time.Hour),
	}
	if err := st.Create(t.Context(), reg); err != nil {
		t.Fatalf("failed to seed registration: %v", err)
	}
	return reg
}

func newCheckInRequest(t *testing.T, key string) *http.Request {
	t.Helper()
	token, err := jwtauth.IssueToken(signingKey, "desk-1", "desk", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	payload, _ := json.Marshal(map[string]string{"key": key})
	req := httptest.NewRequest(http.MethodPost, "/checkin", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestCheckInRequiresStaffToken(t *testing.T) {
	router, _ := newRouter(t)
	payload, _ := json.Marshal(map[string]string{"key": "B-1"})
	req := httptest.NewRequest(http.MethodPost, "/checkin", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestCheckInIsIdempotentOverHTTP(t *testing.T) {
	router, st := newRouter(t)
	seedApproved(t, st, "B-55")

	decode := func(rec *httptest.ResponseRecorder) checkin.Result {
		var res checkin.Result
		if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
		return res
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newCheckInRequest(t, "B-55"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on first pickup, got %d: %s", rec.Code, rec.Body)
	}
	first := decode(rec)
	if first.AlreadyPickedUp {
		t.Fatal("first pickup must not report already_picked_up")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, newCheckInRequest(t, "B-55"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat pickup, got %d", rec.Code)
	}
	second := decode(rec)
	if !second.AlreadyPickedUp {
		t.Fatal("repeat pickup must report already_picked_up")
	}
	if !second.CheckedInAt.Equal(first.CheckedInAt) {
		t.Fatalf("repeat pickup must keep the original timestamp: %v vs %v",
			first.CheckedInAt, second.CheckedInAt)
	}
}

func TestCheckInPendingRunnerIs422(t *testing.T) {
	router, st := newRouter(t)
	reg := seedApproved(t, st, "B-77")
	reg.Status = models.StatusPending
	reg.BibNumber = ""
	reg.ID = uuid.New()
	reg.Phone = "phone-pending"
	reg.NationalID = "nid-pending"
	if err := st.Create(t.Context(), reg); err != nil {
		t.Fatalf("failed to seed pending registration: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newCheckInRequest(t, "phone-pending"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a pending runner, got %d: %s", rec.Code, rec.Body)
	}
}

func TestCheckInUnknownKeyIs404(t *testing.T) {
	router, _ := newRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newCheckInRequest(t, "nobody"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCheckInBlankKeyIs400(t *testing.T) {
	router, _ := newRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newCheckInRequest(t, "   "))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
