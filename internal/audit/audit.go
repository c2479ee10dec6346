// Package audit records who did what to which registration. The trail is
// append-only; payment disputes get resolved from here.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an audited staff or runner action.
type Action string

const (
	ActionSubmitted   Action = "registration.submitted"
	ActionApproved    Action = "registration.approved"
	ActionRejected    Action = "registration.rejected"
	ActionReverted    Action = "registration.reverted"
	ActionResubmitted Action = "registration.resubmitted"
	ActionCheckedIn   Action = "registration.checked_in"
)

// Event is one audit trail entry. StaffID is empty for runner-initiated
// actions (submission, re-submission).
type Event struct {
	OccurredAt     time.Time
	StaffID        string
	RegistrationID uuid.UUID
	Action         Action
	Detail         string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]Event, error)
}
