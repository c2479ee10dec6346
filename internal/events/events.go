// Package events carries committed lifecycle transitions out of the service.
// Publishing is fire-and-forget with a logged outcome: a delivery failure
// never rolls back the transition that produced it.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type names a committed transition.
type Type string

const (
	TypeSubmitted Type = "submitted"
	TypeApproved  Type = "approved"
	TypeRejected  Type = "rejected"
	TypeReverted  Type = "reverted"
	TypeCheckedIn Type = "checked_in"
)

// Event is the envelope published after a transition commits. Data holds the
// transition-specific payload: bib and category for approvals, the reason for
// rejections.
type Event struct {
	ID             uuid.UUID         `json:"id"`
	Type           Type              `json:"type"`
	RegistrationID uuid.UUID         `json:"registration_id"`
	Email          string            `json:"email"`
	Data           map[string]string `json:"data,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// New builds an event with a fresh id.
func New(t Type, registrationID uuid.UUID, email string, data map[string]string, at time.Time) Event {
	return Event{
		ID:             uuid.New(),
		Type:           t,
		RegistrationID: registrationID,
		Email:          email,
		Data:           data,
		OccurredAt:     at,
	}
}
