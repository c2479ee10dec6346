package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"racereg/internal/registration/models"
	"racereg/pkg/platform/sentinel"
)

// Postgres persists registrations in PostgreSQL. Bib uniqueness among
// approved records is a partial unique index (see migrations), so the
// check-and-reserve happens inside the same commit as the status flip; two
// admins approving different pending records with the same typed bib cannot
// both win.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const registrationColumns = `
	id, full_name, full_name_latin, national_id, birth_date, gender,
	blood_type, medical_notes, phone, email, address, race_category,
	shirt_size, shipping_method, payment_slip_url, status, reject_reason,
	reject_note, bib_number, kit_picked_up, checked_in_at, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (` + registrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err := s.db.ExecContext(ctx, query, scanArgs(reg)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create registration: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	reg, err := scanRegistration(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

func (s *Postgres) FindByField(ctx context.Context, field Field, value string) ([]*models.Registration, error) {
	if value == "" {
		return nil, nil
	}
	var query string
	switch field {
	case FieldPhone:
		query = `SELECT ` + registrationColumns + ` FROM registrations WHERE phone = $1 ORDER BY created_at DESC`
	case FieldNationalID:
		query = `SELECT ` + registrationColumns + ` FROM registrations WHERE national_id = $1 ORDER BY created_at DESC`
	case FieldBib:
		query = `SELECT ` + registrationColumns + ` FROM registrations WHERE bib_number = $1 ORDER BY created_at DESC`
	default:
		return nil, fmt.Errorf("unknown lookup field %q", field)
	}
	return s.queryMany(ctx, query, value)
}

func (s *Postgres) SearchByName(ctx context.Context, substr string) ([]*models.Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM registrations
		WHERE full_name ILIKE '%' || $1 || '%' OR full_name_latin ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
	`
	return s.queryMany(ctx, query, substr)
}

func (s *Postgres) ListByStatus(ctx context.Context, status models.Status) ([]*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE status = $1 ORDER BY created_at DESC`
	return s.queryMany(ctx, query, string(status))
}

func (s *Postgres) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM registrations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *Postgres) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected models.Status, apply func(*models.Registration) error) (*models.Registration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	// Row lock so the re-read, the apply, and the write are one serializable
	// unit against concurrent admins.
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1 FOR UPDATE`
	reg, err := scanRegistration(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load registration for update: %w", err)
	}
	if reg.Status != expected {
		return nil, fmt.Errorf("status is %s, expected %s: %w", reg.Status, expected, sentinel.ErrStale)
	}

	if err := apply(reg); err != nil {
		return nil, err
	}

	update := `
		UPDATE registrations SET
			payment_slip_url = $2, status = $3, reject_reason = $4,
			reject_note = $5, bib_number = $6, kit_picked_up = $7,
			checked_in_at = $8, updated_at = $9
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, update,
		reg.ID,
		nullIfEmpty(reg.PaymentSlipURL),
		string(reg.Status),
		nullIfEmpty(string(reg.RejectReason)),
		nullIfEmpty(reg.RejectNote),
		nullIfEmpty(reg.BibNumber),
		reg.KitPickedUp,
		reg.CheckedInAt,
		reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("bib %s already assigned: %w", reg.BibNumber, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("update registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("bib %s already assigned: %w", reg.BibNumber, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return reg, nil
}

func (s *Postgres) CheckIn(ctx context.Context, id uuid.UUID, now time.Time) (time.Time, bool, error) {
	// Single conditional UPDATE: only the first scan flips the flag.
	query := `
		UPDATE registrations
		SET kit_picked_up = TRUE, checked_in_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'approved' AND kit_picked_up = FALSE
		RETURNING checked_in_at
	`
	var checkedInAt time.Time
	err := s.db.QueryRowContext(ctx, query, id, now).Scan(&checkedInAt)
	if err == nil {
		return checkedInAt, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, fmt.Errorf("check in: %w", err)
	}

	// The guard did not match: distinguish missing, ineligible, and the
	// idempotent already-picked-up case.
	var status string
	var pickedUp bool
	var at sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT status, kit_picked_up, checked_in_at FROM registrations WHERE id = $1`, id,
	).Scan(&status, &pickedUp, &at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, sentinel.ErrNotFound
		}
		return time.Time{}, false, fmt.Errorf("check in status read: %w", err)
	}
	if pickedUp && at.Valid {
		return at.Time, true, nil
	}
	return time.Time{}, false, fmt.Errorf("registration is %s: %w", status, sentinel.ErrInvalidState)
}

func (s *Postgres) queryMany(ctx context.Context, query string, args ...any) ([]*models.Registration, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		reg, err := scanRegistrationRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.Registration, error) {
	return scanRegistrationRows(row)
}

func scanRegistrationRows(row rowScanner) (*models.Registration, error) {
	var reg models.Registration
	var medicalNotes, address, slipURL, rejectReason, rejectNote, bib sql.NullString
	var checkedInAt sql.NullTime
	var status string
	err := row.Scan(
		&reg.ID, &reg.FullName, &reg.FullNameLatin, &reg.NationalID,
		&reg.BirthDate, &reg.Gender, &reg.BloodType, &medicalNotes,
		&reg.Phone, &reg.Email, &address,
		(*string)(&reg.Category), (*string)(&reg.ShirtSize), (*string)(&reg.ShippingMethod),
		&slipURL, &status, &rejectReason, &rejectNote, &bib,
		&reg.KitPickedUp, &checkedInAt, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.Status = models.Status(status)
	reg.MedicalNotes = medicalNotes.String
	reg.Address = address.String
	reg.PaymentSlipURL = slipURL.String
	reg.RejectReason = models.RejectReason(rejectReason.String)
	reg.RejectNote = rejectNote.String
	reg.BibNumber = bib.String
	if checkedInAt.Valid {
		at := checkedInAt.Time
		reg.CheckedInAt = &at
	}
	return &reg, nil
}

func scanArgs(reg *models.Registration) []any {
	return []any{
		reg.ID, reg.FullName, reg.FullNameLatin, reg.NationalID,
		reg.BirthDate, reg.Gender, reg.BloodType, nullIfEmpty(reg.MedicalNotes),
		reg.Phone, reg.Email, nullIfEmpty(reg.Address),
		string(reg.Category), string(reg.ShirtSize), string(reg.ShippingMethod),
		nullIfEmpty(reg.PaymentSlipURL), string(reg.Status),
		nullIfEmpty(string(reg.RejectReason)), nullIfEmpty(reg.RejectNote),
		nullIfEmpty(reg.BibNumber), reg.KitPickedUp, reg.CheckedInAt,
		reg.CreatedAt, reg.UpdatedAt,
	}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
