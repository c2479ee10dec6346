package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"racereg/pkg/domerr"
)

// CreateRequest carries a runner's submission. The payment slip arrives as a
// separate upload; SlipURL is set by the service after storage accepts it.
type CreateRequest struct {
	FullName       string         `json:"full_name"`
	FullNameLatin  string         `json:"full_name_latin"`
	NationalID     string         `json:"national_id"`
	BirthDate      time.Time      `json:"birth_date"`
	Gender         string         `json:"gender"`
	BloodType      string         `json:"blood_type"`
	MedicalNotes   string         `json:"medical_notes"`
	Phone          string         `json:"phone"`
	Email          string         `json:"email"`
	Address        string         `json:"address"`
	Category       RaceCategory   `json:"race_category"`
	ShirtSize      ShirtSize      `json:"shirt_size"`
	ShippingMethod ShippingMethod `json:"shipping_method"`
}

// Normalize trims whitespace so validation and lookups see canonical values.
func (r *CreateRequest) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.FullNameLatin = strings.TrimSpace(r.FullNameLatin)
	r.NationalID = strings.TrimSpace(r.NationalID)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = strings.TrimSpace(strings.ToLower(r.Email))
	r.Address = strings.TrimSpace(r.Address)
	r.BloodType = strings.TrimSpace(strings.ToUpper(r.BloodType))
}

// Validate enforces profile invariants before a record is created.
func (r *CreateRequest) Validate(now time.Time) error {
	switch {
	case r.FullName == "":
		return domerr.New(domerr.CodeValidation, "full name is required")
	case r.NationalID == "":
		return domerr.New(domerr.CodeValidation, "national id or passport number is required")
	case r.Phone == "":
		return domerr.New(domerr.CodeValidation, "phone number is required")
	case r.Email == "" || !strings.Contains(r.Email, "@"):
		return domerr.New(domerr.CodeValidation, "a valid email is required")
	case r.BirthDate.IsZero() || !r.BirthDate.Before(now):
		return domerr.New(domerr.CodeValidation, "birth date must be in the past")
	}
	if !r.Category.Valid() {
		return domerr.Newf(domerr.CodeValidation, "unknown race category %q", r.Category)
	}
	if !r.ShirtSize.Valid() {
		return domerr.Newf(domerr.CodeValidation, "unknown shirt size %q", r.ShirtSize)
	}
	if !r.ShippingMethod.Valid() {
		return domerr.Newf(domerr.CodeValidation, "unknown shipping method %q", r.ShippingMethod)
	}
	if r.ShippingMethod == ShippingPostal && r.Address == "" {
		return domerr.New(domerr.CodeValidation, "a shipping address is required for postal delivery")
	}
	return nil
}

// NewRegistration constructs a pending registration from a validated request.
func NewRegistration(req *CreateRequest, now time.Time) (*Registration, error) {
	req.Normalize()
	if err := req.Validate(now); err != nil {
		return nil, err
	}
	return &Registration{
		ID:             uuid.New(),
		FullName:       req.FullName,
		FullNameLatin:  req.FullNameLatin,
		NationalID:     req.NationalID,
		BirthDate:      req.BirthDate,
		Gender:         req.Gender,
		BloodType:      req.BloodType,
		MedicalNotes:   req.MedicalNotes,
		Phone:          req.Phone,
		Email:          req.Email,
		Address:        req.Address,
		Category:       req.Category,
		ShirtSize:      req.ShirtSize,
		ShippingMethod: req.ShippingMethod,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
