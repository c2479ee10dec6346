package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"racereg/internal/registration/models"
	"racereg/pkg/platform/sentinel"
)

// InMemory keeps registrations in maps under a single mutex. The mutex makes
// every mutating method one serializable operation, which is exactly the
// atomicity the postgres implementation gets from row locks and the partial
// unique index on approved bibs.
type InMemory struct {
	mu   sync.RWMutex
	regs map[uuid.UUID]*models.Registration
	// bib -> holder, approved records only
	bibs map[string]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		regs: make(map[uuid.UUID]*models.Registration),
		bibs: make(map[string]uuid.UUID),
	}
}

func (s *InMemory) Create(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regs[reg.ID]; ok {
		return fmt.Errorf("registration %s: %w", reg.ID, sentinel.ErrConflict)
	}
	s.regs[reg.ID] = clone(reg)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.regs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(reg), nil
}

func (s *InMemory) FindByField(_ context.Context, field Field, value string) ([]*models.Registration, error) {
	if value == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Registration
	for _, reg := range s.regs {
		if fieldValue(reg, field) == value {
			out = append(out, clone(reg))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) SearchByName(_ context.Context, substr string) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(substr))
	var out []*models.Registration
	for _, reg := range s.regs {
		if strings.Contains(strings.ToLower(reg.FullName), needle) ||
			strings.Contains(strings.ToLower(reg.FullNameLatin), needle) {
			out = append(out, clone(reg))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Registration
	for _, reg := range s.regs {
		if reg.Status == status {
			out = append(out, clone(reg))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int)
	for _, reg := range s.regs {
		counts[reg.Status]++
	}
	return counts, nil
}

func (s *InMemory) UpdateIfStatus(_ context.Context, id uuid.UUID, expected models.Status, apply func(*models.Registration) error) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.regs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if current.Status != expected {
		return nil, fmt.Errorf("status is %s, expected %s: %w", current.Status, expected, sentinel.ErrStale)
	}

	next := clone(current)
	if err := apply(next); err != nil {
		return nil, err
	}

	if next.Status == models.StatusApproved && next.BibNumber != "" {
		if holder, taken := s.bibs[next.BibNumber]; taken && holder != id {
			return nil, fmt.Errorf("bib %s already assigned: %w", next.BibNumber, sentinel.ErrConflict)
		}
	}

	// Commit: swap the record and keep the bib index in step.
	if current.Status == models.StatusApproved && current.BibNumber != "" &&
		(next.Status != models.StatusApproved || next.BibNumber != current.BibNumber) {
		delete(s.bibs, current.BibNumber)
	}
	if next.Status == models.StatusApproved && next.BibNumber != "" {
		s.bibs[next.BibNumber] = id
	}
	s.regs[id] = next
	return clone(next), nil
}

func (s *InMemory) CheckIn(_ context.Context, id uuid.UUID, now time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.regs[id]
	if !ok {
		return time.Time{}, false, sentinel.ErrNotFound
	}
	if reg.Status != models.StatusApproved {
		return time.Time{}, false, fmt.Errorf("registration is %s: %w", reg.Status, sentinel.ErrInvalidState)
	}
	if reg.KitPickedUp {
		return *reg.CheckedInAt, true, nil
	}
	reg.ApplyCheckIn(now)
	return now, false, nil
}

func fieldValue(reg *models.Registration, field Field) string {
	switch field {
	case FieldPhone:
		return reg.Phone
	case FieldNationalID:
		return reg.NationalID
	case FieldBib:
		return reg.BibNumber
	default:
		return ""
	}
}

func sortNewestFirst(regs []*models.Registration) {
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].CreatedAt.After(regs[j].CreatedAt)
	})
}

func clone(reg *models.Registration) *models.Registration {
	out := *reg
	if reg.CheckedInAt != nil {
		at := *reg.CheckedInAt
		out.CheckedInAt = &at
	}
	return &out
}
