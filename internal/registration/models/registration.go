package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"racereg/pkg/domerr"
)

// Status is the payment-verification lifecycle state of a registration.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// CanTransitionTo encodes the legal lifecycle edges. Check-in is a separate
// gate on approved records, not a status.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusApproved || target == StatusRejected
	case StatusApproved, StatusRejected:
		// Reverting to pending is the only way out of a decided state:
		// staff revert, or (rejected only) the runner re-submitting proof.
		return target == StatusPending
	default:
		return false
	}
}

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// RaceCategory is the fixed set of race distance tiers.
type RaceCategory string

const (
	CategoryFunRun   RaceCategory = "fun_run"
	CategoryMini     RaceCategory = "mini"
	CategoryHalf     RaceCategory = "half"
	CategoryMarathon RaceCategory = "marathon"
	CategoryVIP      RaceCategory = "vip"
)

func (c RaceCategory) Valid() bool {
	switch c {
	case CategoryFunRun, CategoryMini, CategoryHalf, CategoryMarathon, CategoryVIP:
		return true
	}
	return false
}

// ShirtSize is the fixed kit shirt size set.
type ShirtSize string

const (
	SizeXS  ShirtSize = "XS"
	SizeS   ShirtSize = "S"
	SizeM   ShirtSize = "M"
	SizeL   ShirtSize = "L"
	SizeXL  ShirtSize = "XL"
	SizeXXL ShirtSize = "2XL"
)

func (s ShirtSize) Valid() bool {
	switch s {
	case SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL:
		return true
	}
	return false
}

// ShippingMethod selects how the runner receives their kit.
type ShippingMethod string

const (
	ShippingPickup ShippingMethod = "pickup"
	ShippingPostal ShippingMethod = "postal"
)

func (m ShippingMethod) Valid() bool {
	return m == ShippingPickup || m == ShippingPostal
}

// RejectReason is the fixed staff-facing rejection reason list. ReasonOther
// requires accompanying free text.
type RejectReason string

const (
	ReasonUnreadableSlip  RejectReason = "unreadable_slip"
	ReasonWrongAmount     RejectReason = "wrong_amount"
	ReasonDuplicatePaid   RejectReason = "duplicate_payment"
	ReasonNoPaymentRecord RejectReason = "no_payment_record"
	ReasonOther           RejectReason = "other"
)

func (r RejectReason) Valid() bool {
	switch r {
	case ReasonUnreadableSlip, ReasonWrongAmount, ReasonDuplicatePaid, ReasonNoPaymentRecord, ReasonOther:
		return true
	}
	return false
}

// Registration is the aggregate root for one runner application.
//
// Invariants:
//   - Status is pending, approved, or rejected; created as pending.
//   - Among approved registrations, BibNumber is non-empty and globally
//     unique. Any transition away from approved clears BibNumber, releasing
//     the bib for reuse.
//   - KitPickedUp is monotonic: once true it is never reset, and CheckedInAt
//     is set exactly once, at that moment. Only approved records check in.
//   - PaymentSlipURL is never cleared once set; re-submission replaces it.
//   - CreatedAt is immutable after construction.
//
// The store's conditional-update path is the only writer; these Can/Apply
// pairs run inside that critical section so validation sees the committed
// state, not a stale admin-screen copy.
type Registration struct {
	ID uuid.UUID `json:"id"`

	FullName      string `json:"full_name"`
	FullNameLatin string `json:"full_name_latin"`
	NationalID    string `json:"national_id"`
	BirthDate     time.Time `json:"birth_date"`
	Gender        string `json:"gender"`
	BloodType     string `json:"blood_type"`
	MedicalNotes  string `json:"medical_notes,omitempty"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address,omitempty"`

	Category       RaceCategory   `json:"race_category"`
	ShirtSize      ShirtSize      `json:"shirt_size"`
	ShippingMethod ShippingMethod `json:"shipping_method"`

	PaymentSlipURL string       `json:"payment_slip_url,omitempty"`
	Status         Status       `json:"status"`
	RejectReason   RejectReason `json:"reject_reason,omitempty"`
	RejectNote     string       `json:"reject_note,omitempty"`

	BibNumber string `json:"bib_number,omitempty"`

	KitPickedUp bool       `json:"kit_picked_up"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Age derives the runner's age at the given date.
func (r *Registration) Age(at time.Time) int {
	years := at.Year() - r.BirthDate.Year()
	if at.YearDay() < r.BirthDate.YearDay() {
		years--
	}
	return years
}

// CanApprove checks the approval preconditions: the operator verified the
// paid amount and supplied a bib candidate. Bib uniqueness is the store's
// commit-time concern, not checked here.
func (r *Registration) CanApprove(bib string, amountVerified bool) error {
	if !r.Status.CanTransitionTo(StatusApproved) {
		return domerr.Newf(domerr.CodeInvalidTransition, "cannot approve a %s registration", r.Status)
	}
	if !amountVerified {
		return domerr.New(domerr.CodeMissingPrecondition, "payment amount must be verified before approval")
	}
	if strings.TrimSpace(bib) == "" {
		return domerr.New(domerr.CodeMissingPrecondition, "a bib number is required for approval")
	}
	return nil
}

// ApplyApproval transitions the registration to approved and assigns the bib.
// Call CanApprove first, inside the store's conditional update.
func (r *Registration) ApplyApproval(bib string, now time.Time) {
	r.Status = StatusApproved
	r.BibNumber = strings.TrimSpace(bib)
	r.RejectReason = ""
	r.RejectNote = ""
	r.UpdatedAt = now
}

// CanReject checks the rejection preconditions: a reason from the fixed list,
// with free text required when the reason is "other".
func (r *Registration) CanReject(reason RejectReason, note string) error {
	if !r.Status.CanTransitionTo(StatusRejected) {
		return domerr.Newf(domerr.CodeInvalidTransition, "cannot reject a %s registration", r.Status)
	}
	if reason == "" {
		return domerr.New(domerr.CodeMissingPrecondition, "a rejection reason is required")
	}
	if !reason.Valid() {
		return domerr.Newf(domerr.CodeValidation, "unknown rejection reason %q", reason)
	}
	if reason == ReasonOther && strings.TrimSpace(note) == "" {
		return domerr.New(domerr.CodeMissingPrecondition, "a note is required when the reason is \"other\"")
	}
	return nil
}

// ApplyRejection transitions the registration to rejected. The bib stays
// untouched because a pending record never holds one.
func (r *Registration) ApplyRejection(reason RejectReason, note string, now time.Time) {
	r.Status = StatusRejected
	r.RejectReason = reason
	r.RejectNote = strings.TrimSpace(note)
	r.UpdatedAt = now
}

// CanResubmit checks that the runner may replace their payment proof: only a
// rejected registration goes back to pending this way.
func (r *Registration) CanResubmit() error {
	if r.Status != StatusRejected {
		return domerr.Newf(domerr.CodeInvalidTransition, "cannot re-submit payment for a %s registration", r.Status)
	}
	return nil
}

// ApplyResubmission replaces the payment slip and returns the registration to
// the pending queue. No staff action involved.
func (r *Registration) ApplyResubmission(slipURL string, now time.Time) {
	r.Status = StatusPending
	r.PaymentSlipURL = slipURL
	r.RejectReason = ""
	r.RejectNote = ""
	r.UpdatedAt = now
}

// CanRevert checks the staff revert affordance: a decided registration may be
// returned to pending for re-review, as long as the kit was not yet handed
// out. Reverting an approval releases its bib.
func (r *Registration) CanRevert() error {
	if r.Status != StatusApproved && r.Status != StatusRejected {
		return domerr.Newf(domerr.CodeInvalidTransition, "cannot revert a %s registration", r.Status)
	}
	if r.KitPickedUp {
		return domerr.New(domerr.CodeInvalidTransition, "cannot revert a registration whose kit was already picked up")
	}
	return nil
}

// ApplyRevert returns the registration to pending. The bib is cleared so the
// approved-bib uniqueness invariant stays trivially true.
func (r *Registration) ApplyRevert(now time.Time) {
	r.Status = StatusPending
	r.BibNumber = ""
	r.RejectReason = ""
	r.RejectNote = ""
	r.UpdatedAt = now
}

// CanCheckIn checks kit pickup eligibility. An already-picked-up record is
// reported separately by the store so the caller can treat it as an
// idempotent success, not an error.
func (r *Registration) CanCheckIn() error {
	if r.Status != StatusApproved {
		return domerr.Newf(domerr.CodeNotEligible, "registration is %s; kit pickup requires approval", r.Status)
	}
	return nil
}

// ApplyCheckIn marks the one-time kit pickup.
func (r *Registration) ApplyCheckIn(now time.Time) {
	r.KitPickedUp = true
	r.CheckedInAt = &now
	r.UpdatedAt = now
}
