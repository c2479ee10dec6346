package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"racereg/pkg/domerr"
)

type LifecycleSuite struct {
	suite.Suite
	now time.Time
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func (s *LifecycleSuite) newPending() *Registration {
	reg, err := NewRegistration(&CreateRequest{
		FullName:       "สมชาย ใจดี",
		FullNameLatin:  "Somchai Jaidee",
		NationalID:     "1103700012345",
		BirthDate:      time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC),
		Gender:         "male",
		BloodType:      "o+",
		Phone:          "0812345678",
		Email:          "somchai@example.com",
		Category:       CategoryHalf,
		ShirtSize:      SizeM,
		ShippingMethod: ShippingPickup,
	}, s.now)
	s.Require().NoError(err)
	return reg
}

func (s *LifecycleSuite) TestNewRegistration() {
	s.Run("starts pending with no bib", func() {
		reg := s.newPending()
		s.Equal(StatusPending, reg.Status)
		s.Empty(reg.BibNumber)
		s.False(reg.KitPickedUp)
		s.Nil(reg.CheckedInAt)
		s.Equal("O+", reg.BloodType, "blood type is upper-cased")
	})

	s.Run("postal shipping requires an address", func() {
		_, err := NewRegistration(&CreateRequest{
			FullName:       "Runner",
			NationalID:     "123",
			BirthDate:      time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			Phone:          "0800000000",
			Email:          "runner@example.com",
			Category:       CategoryMini,
			ShirtSize:      SizeL,
			ShippingMethod: ShippingPostal,
		}, s.now)
		s.Require().Error(err)
		s.True(domerr.HasCode(err, domerr.CodeValidation))
	})

	s.Run("rejects unknown category", func() {
		_, err := NewRegistration(&CreateRequest{
			FullName:       "Runner",
			NationalID:     "123",
			BirthDate:      time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			Phone:          "0800000000",
			Email:          "runner@example.com",
			Category:       RaceCategory("ultra"),
			ShirtSize:      SizeL,
			ShippingMethod: ShippingPickup,
		}, s.now)
		s.Require().Error(err)
		s.True(domerr.HasCode(err, domerr.CodeValidation))
	})
}

func (s *LifecycleSuite) TestApprove() {
	s.Run("pending to approved assigns the bib", func() {
		reg := s.newPending()
		s.Require().NoError(reg.CanApprove("A1001", true))
		reg.ApplyApproval("A1001", s.now)
		s.Equal(StatusApproved, reg.Status)
		s.Equal("A1001", reg.BibNumber)
	})

	s.Run("requires amount verification", func() {
		reg := s.newPending()
		err := reg.CanApprove("A1001", false)
		s.True(domerr.HasCode(err, domerr.CodeMissingPrecondition))
	})

	s.Run("requires a bib candidate", func() {
		reg := s.newPending()
		err := reg.CanApprove("   ", true)
		s.True(domerr.HasCode(err, domerr.CodeMissingPrecondition))
	})

	s.Run("approving an approved registration is an invalid transition", func() {
		reg := s.newPending()
		reg.ApplyApproval("A1001", s.now)
		err := reg.CanApprove("A1002", true)
		s.True(domerr.HasCode(err, domerr.CodeInvalidTransition))
	})

	s.Run("rejected cannot jump straight to approved", func() {
		reg := s.newPending()
		reg.ApplyRejection(ReasonWrongAmount, "", s.now)
		err := reg.CanApprove("A1001", true)
		s.True(domerr.HasCode(err, domerr.CodeInvalidTransition))
	})
}

func (s *LifecycleSuite) TestReject() {
	s.Run("requires a reason", func() {
		reg := s.newPending()
		err := reg.CanReject("", "")
		s.True(domerr.HasCode(err, domerr.CodeMissingPrecondition))
	})

	s.Run("other requires a note", func() {
		reg := s.newPending()
		err := reg.CanReject(ReasonOther, "  ")
		s.True(domerr.HasCode(err, domerr.CodeMissingPrecondition))
	})

	s.Run("pending to rejected keeps the bib empty", func() {
		reg := s.newPending()
		s.Require().NoError(reg.CanReject(ReasonUnreadableSlip, ""))
		reg.ApplyRejection(ReasonUnreadableSlip, "", s.now)
		s.Equal(StatusRejected, reg.Status)
		s.Empty(reg.BibNumber)
	})
}

func (s *LifecycleSuite) TestResubmit() {
	s.Run("rejected returns to pending with a new slip", func() {
		reg := s.newPending()
		reg.ApplyRejection(ReasonWrongAmount, "", s.now)
		s.Require().NoError(reg.CanResubmit())
		reg.ApplyResubmission("slips/new.jpg", s.now.Add(time.Hour))
		s.Equal(StatusPending, reg.Status)
		s.Equal("slips/new.jpg", reg.PaymentSlipURL)
		s.Empty(reg.RejectReason)
	})

	s.Run("pending and approved cannot re-submit", func() {
		reg := s.newPending()
		s.True(domerr.HasCode(reg.CanResubmit(), domerr.CodeInvalidTransition))
		reg.ApplyApproval("A1001", s.now)
		s.True(domerr.HasCode(reg.CanResubmit(), domerr.CodeInvalidTransition))
	})
}

func (s *LifecycleSuite) TestRevert() {
	s.Run("reverting an approval releases the bib", func() {
		reg := s.newPending()
		reg.ApplyApproval("A1001", s.now)
		s.Require().NoError(reg.CanRevert())
		reg.ApplyRevert(s.now.Add(time.Minute))
		s.Equal(StatusPending, reg.Status)
		s.Empty(reg.BibNumber)
	})

	s.Run("cannot revert after kit pickup", func() {
		reg := s.newPending()
		reg.ApplyApproval("A1001", s.now)
		reg.ApplyCheckIn(s.now.Add(time.Minute))
		s.True(domerr.HasCode(reg.CanRevert(), domerr.CodeInvalidTransition))
	})

	s.Run("cannot revert a pending registration", func() {
		reg := s.newPending()
		s.True(domerr.HasCode(reg.CanRevert(), domerr.CodeInvalidTransition))
	})
}

func (s *LifecycleSuite) TestCheckIn() {
	s.Run("only approved registrations are eligible", func() {
		reg := s.newPending()
		s.True(domerr.HasCode(reg.CanCheckIn(), domerr.CodeNotEligible))
		reg.ApplyRejection(ReasonWrongAmount, "", s.now)
		s.True(domerr.HasCode(reg.CanCheckIn(), domerr.CodeNotEligible))
	})

	s.Run("check-in stamps the pickup time once", func() {
		reg := s.newPending()
		reg.ApplyApproval("A1001", s.now)
		s.Require().NoError(reg.CanCheckIn())
		at := s.now.Add(2 * time.Hour)
		reg.ApplyCheckIn(at)
		s.True(reg.KitPickedUp)
		s.Require().NotNil(reg.CheckedInAt)
		s.Equal(at, *reg.CheckedInAt)
	})
}

func (s *LifecycleSuite) TestAge() {
	reg := s.newPending()
	s.Equal(35, reg.Age(s.now), "birthday not yet reached in the event year")
	s.Equal(36, reg.Age(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)))
}
