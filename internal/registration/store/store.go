// Package store persists registrations. Both implementations give the same
// guarantees: UpdateIfStatus is a compare-and-swap keyed on status, and bib
// uniqueness among approved records is checked inside that same commit, never
// as a separate read-then-write.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"racereg/internal/registration/models"
)

// Field names an exact-match lookup column. Phone and national id are not
// guaranteed unique across registrations; only the bib of an approved record
// is. Multi-match lookups return most recently created first.
type Field string

const (
	FieldPhone      Field = "phone"
	FieldNationalID Field = "national_id"
	FieldBib        Field = "bib_number"
)

// Store is the registration store contract. Mutating methods return sentinel
// errors (pkg/platform/sentinel): ErrNotFound, ErrStale on a lost
// compare-and-swap, ErrConflict on a bib collision, ErrInvalidState on an
// ineligible check-in.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	FindByField(ctx context.Context, field Field, value string) ([]*models.Registration, error)
	SearchByName(ctx context.Context, substr string) ([]*models.Registration, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Registration, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)

	// UpdateIfStatus re-reads the record inside the critical section,
	// fails with ErrStale unless its status still equals expected, applies
	// the mutation, and commits. If the mutation leaves the record approved
	// with a bib another approved record holds, the commit fails with
	// ErrConflict and nothing is written. Errors returned by apply abort
	// the update untouched and propagate as-is.
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected models.Status, apply func(*models.Registration) error) (*models.Registration, error)

	// CheckIn flips kit_picked_up exactly once. A second call is a no-op
	// reporting already=true with the original pickup time. Non-approved
	// records fail with ErrInvalidState.
	CheckIn(ctx context.Context, id uuid.UUID, now time.Time) (checkedInAt time.Time, already bool, err error)
}
