package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore persists the audit trail in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (occurred_at, staff_id, registration_id, action, detail)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.OccurredAt, event.StaffID, event.RegistrationID, string(event.Action), event.Detail,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]Event, error) {
	query := `
		SELECT occurred_at, staff_id, registration_id, action, detail
		FROM audit_events
		WHERE registration_id = $1
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, registrationID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var event Event
		var action string
		if err := rows.Scan(&event.OccurredAt, &event.StaffID, &event.RegistrationID, &action, &event.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = Action(action)
		out = append(out, event)
	}
	return out, rows.Err()
}
