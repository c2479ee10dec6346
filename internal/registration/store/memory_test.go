package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"racereg/internal/registration/models"
	"racereg/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func (s *MemoryStoreSuite) newPending(phone string) *models.Registration {
	reg := &models.Registration{
		ID:             uuid.New(),
		FullName:       "Runner " + phone,
		NationalID:     "nid-" + phone,
		BirthDate:      time.Date(1992, 1, 1, 0, 0, 0, 0, time.UTC),
		Phone:          phone,
		Email:          phone + "@example.com",
		Category:       models.CategoryMini,
		ShirtSize:      models.SizeM,
		ShippingMethod: models.ShippingPickup,
		Status:         models.StatusPending,
		CreatedAt:      s.now,
		UpdatedAt:      s.now,
	}
	s.Require().NoError(s.store.Create(s.ctx, reg))
	return reg
}

func (s *MemoryStoreSuite) approve(id uuid.UUID, bib string) error {
	_, err := s.store.UpdateIfStatus(s.ctx, id, models.StatusPending, func(reg *models.Registration) error {
		if err := reg.CanApprove(bib, true); err != nil {
			return err
		}
		reg.ApplyApproval(bib, s.now)
		return nil
	})
	return err
}

func (s *MemoryStoreSuite) TestCreateAndLookups() {
	s.Run("finds by id and returns a copy", func() {
		reg := s.newPending("0810000001")
		found, err := s.store.FindByID(s.ctx, reg.ID)
		s.Require().NoError(err)
		s.Equal(reg.Phone, found.Phone)

		found.FullName = "mutated"
		again, err := s.store.FindByID(s.ctx, reg.ID)
		s.Require().NoError(err)
		s.NotEqual("mutated", again.FullName, "store must not share memory with callers")
	})

	s.Run("unknown id returns ErrNotFound", func() {
		_, err := s.store.FindByID(s.ctx, uuid.New())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("field lookup prefers most recent on duplicates", func() {
		older := s.newPending("0810000002")
		newer := &models.Registration{
			ID:        uuid.New(),
			FullName:  "Second submission",
			Phone:     older.Phone,
			Status:    models.StatusPending,
			CreatedAt: s.now.Add(time.Hour),
			UpdatedAt: s.now.Add(time.Hour),
		}
		s.Require().NoError(s.store.Create(s.ctx, newer))

		matches, err := s.store.FindByField(s.ctx, FieldPhone, older.Phone)
		s.Require().NoError(err)
		s.Require().Len(matches, 2)
		s.Equal(newer.ID, matches[0].ID)
	})

	s.Run("empty bib never matches pending records", func() {
		s.newPending("0810000004")
		matches, err := s.store.FindByField(s.ctx, FieldBib, "")
		s.Require().NoError(err)
		s.Empty(matches)
	})
}

func (s *MemoryStoreSuite) TestUpdateIfStatus() {
	s.Run("stale expectation is rejected", func() {
		reg := s.newPending("0810000010")
		s.Require().NoError(s.approve(reg.ID, "A1001"))

		_, err := s.store.UpdateIfStatus(s.ctx, reg.ID, models.StatusPending, func(r *models.Registration) error {
			s.Fail("apply must not run on a stale expectation")
			return nil
		})
		s.Require().ErrorIs(err, sentinel.ErrStale)
	})

	s.Run("apply errors leave the record untouched", func() {
		reg := s.newPending("0810000011")
		boom := errors.New("boom")
		_, err := s.store.UpdateIfStatus(s.ctx, reg.ID, models.StatusPending, func(r *models.Registration) error {
			r.Status = models.StatusApproved
			return boom
		})
		s.Require().ErrorIs(err, boom)

		found, err := s.store.FindByID(s.ctx, reg.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)
	})

	s.Run("bib conflict aborts the commit", func() {
		first := s.newPending("0810000012")
		second := s.newPending("0810000013")
		s.Require().NoError(s.approve(first.ID, "A2001"))

		err := s.approve(second.ID, "A2001")
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		found, err := s.store.FindByID(s.ctx, second.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)
		s.Empty(found.BibNumber)
	})

	s.Run("revert releases the bib for reuse", func() {
		first := s.newPending("0810000014")
		second := s.newPending("0810000015")
		s.Require().NoError(s.approve(first.ID, "A3001"))

		_, err := s.store.UpdateIfStatus(s.ctx, first.ID, models.StatusApproved, func(r *models.Registration) error {
			if err := r.CanRevert(); err != nil {
				return err
			}
			r.ApplyRevert(s.now)
			return nil
		})
		s.Require().NoError(err)

		s.Require().NoError(s.approve(second.ID, "A3001"))
	})
}

// TestConcurrentBibCollision drives N concurrent approvals at M colliding bib
// candidates; exactly one approval per bib must win.
func (s *MemoryStoreSuite) TestConcurrentBibCollision() {
	const runners = 40
	const bibs = 8

	ids := make([]uuid.UUID, runners)
	for i := range ids {
		ids[i] = s.newPending(fmt.Sprintf("085%07d", i)).ID
	}

	var wg sync.WaitGroup
	var success, conflict, unexpected atomic.Int32
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			bib := fmt.Sprintf("B%d", i%bibs)
			err := s.approve(id, bib)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflict.Add(1)
			default:
				unexpected.Add(1)
			}
		}(i, id)
	}
	wg.Wait()

	s.Zero(unexpected.Load())

	s.Equal(int32(bibs), success.Load(), "exactly one approval per bib succeeds")
	s.Equal(int32(runners-bibs), conflict.Load())

	// No two approved registrations share a bib.
	approved, err := s.store.ListByStatus(s.ctx, models.StatusApproved)
	s.Require().NoError(err)
	seen := make(map[string]bool)
	for _, reg := range approved {
		s.Require().NotEmpty(reg.BibNumber)
		s.False(seen[reg.BibNumber], "bib %s assigned twice", reg.BibNumber)
		seen[reg.BibNumber] = true
	}
}

// TestConcurrentApproveReject races an approval against a rejection on the
// same pending record; exactly one wins and the loser observes staleness.
func (s *MemoryStoreSuite) TestConcurrentApproveReject() {
	for range 25 {
		reg := s.newPending(uuid.NewString()[:10])

		var wg sync.WaitGroup
		results := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0] = s.approve(reg.ID, "C"+reg.ID.String()[:8])
		}()
		go func() {
			defer wg.Done()
			_, results[1] = s.store.UpdateIfStatus(s.ctx, reg.ID, models.StatusPending, func(r *models.Registration) error {
				if err := r.CanReject(models.ReasonUnreadableSlip, ""); err != nil {
					return err
				}
				r.ApplyRejection(models.ReasonUnreadableSlip, "", s.now)
				return nil
			})
		}()
		wg.Wait()

		winners := 0
		for _, err := range results {
			if err == nil {
				winners++
			} else {
				s.Require().ErrorIs(err, sentinel.ErrStale)
			}
		}
		s.Equal(1, winners, "exactly one concurrent decision commits")

		final, err := s.store.FindByID(s.ctx, reg.ID)
		s.Require().NoError(err)
		if results[0] == nil {
			s.Equal(models.StatusApproved, final.Status)
		} else {
			s.Equal(models.StatusRejected, final.Status)
		}
	}
}

func (s *MemoryStoreSuite) TestCheckIn() {
	s.Run("requires approval", func() {
		reg := s.newPending("0810000020")
		_, _, err := s.store.CheckIn(s.ctx, reg.ID, s.now)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("second check-in is a no-op with the original timestamp", func() {
		reg := s.newPending("0810000021")
		s.Require().NoError(s.approve(reg.ID, "D1001"))

		first, already, err := s.store.CheckIn(s.ctx, reg.ID, s.now)
		s.Require().NoError(err)
		s.False(already)
		s.Equal(s.now, first)

		second, already, err := s.store.CheckIn(s.ctx, reg.ID, s.now.Add(time.Hour))
		s.Require().NoError(err)
		s.True(already)
		s.Equal(first, second, "timestamp unchanged on repeat scans")
	})

	s.Run("concurrent scans produce exactly one fresh check-in", func() {
		reg := s.newPending("0810000022")
		s.Require().NoError(s.approve(reg.ID, "D1002"))

		const scans = 20
		var wg sync.WaitGroup
		var fresh, failed atomic.Int32
		for i := range scans {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, already, err := s.store.CheckIn(s.ctx, reg.ID, s.now.Add(time.Duration(i)*time.Millisecond))
				if err != nil {
					failed.Add(1)
					return
				}
				if !already {
					fresh.Add(1)
				}
			}(i)
		}
		wg.Wait()
		s.Zero(failed.Load())
		s.Equal(int32(1), fresh.Load(), "only one scan wins the pickup")
	})

	s.Run("unknown id returns ErrNotFound", func() {
		_, _, err := s.store.CheckIn(s.ctx, uuid.New(), s.now)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestCountByStatus() {
	a := s.newPending("0810000030")
	s.newPending("0810000031")
	s.Require().NoError(s.approve(a.ID, "E1001"))

	counts, err := s.store.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[models.StatusApproved])
	s.Equal(1, counts[models.StatusPending])
}
