//go:build integration

package store_test

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
	"racereg/internal/registration/store"
	"racereg/pkg/platform/sentinel"
	"racereg/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "registrations"))
}

func (s *PostgresStoreSuite) newPending(phone string) *models.Registration {
	reg := &models.Registration{
		ID:             uuid.New(),
		FullName:       "Runner " + phone,
		FullNameLatin:  "Runner " + phone,
		NationalID:     "nid-" + phone,
		BirthDate:      time.Date(1992, 1, 1, 0, 0, 0, 0, time.UTC),
		Gender:         "female",
		BloodType:      "A+",
		Phone:          phone,
		Email:          phone + "@example.com",
		Category:       models.CategoryHalf,
		ShirtSize:      models.SizeS,
		ShippingMethod: models.ShippingPickup,
		Status:         models.StatusPending,
		CreatedAt:      s.now,
		UpdatedAt:      s.now,
	}
	s.Require().NoError(s.store.Create(context.Background(), reg))
	return reg
}

func (s *PostgresStoreSuite) approve(id uuid.UUID, bib string) error {
	_, err := s.store.UpdateIfStatus(context.Background(), id, models.StatusPending, func(reg *models.Registration) error {
		if err := reg.CanApprove(bib, true); err != nil {
			return err
		}
		reg.ApplyApproval(bib, s.now)
		return nil
	})
	return err
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	reg := s.newPending("0811111111")
	found, err := s.store.FindByID(context.Background(), reg.ID)
	s.Require().NoError(err)
	s.Equal(reg.Phone, found.Phone)
	s.Equal(models.StatusPending, found.Status)
	s.Empty(found.BibNumber)
	s.Nil(found.CheckedInAt)
}

// TestConcurrentBibCollision verifies the partial unique index makes approval
// a single check-and-reserve commit: one winner per colliding bib.
func (s *PostgresStoreSuite) TestConcurrentBibCollision() {
	ctx := context.Background()
	const runners = 20

	ids := make([]uuid.UUID, runners)
	for i := range ids {
		ids[i] = s.newPending(fmt.Sprintf("089%07d", i)).ID
	}

	var wg sync.WaitGroup
	var success, conflict atomic.Int32
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			err := s.approve(id, "A1001")
			if err == nil {
				success.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflict.Add(1)
			}
		}(id)
	}
	wg.Wait()

	s.Equal(int32(1), success.Load(), "exactly one approval should win the bib")
	s.Equal(int32(runners-1), conflict.Load())

	approved, err := s.store.ListByStatus(ctx, models.StatusApproved)
	s.Require().NoError(err)
	s.Len(approved, 1)
	s.Equal("A1001", approved[0].BibNumber)
}

func (s *PostgresStoreSuite) TestStaleExpectation() {
	reg := s.newPending("0822222222")
	s.Require().NoError(s.approve(reg.ID, "B2001"))

	_, err := s.store.UpdateIfStatus(context.Background(), reg.ID, models.StatusPending, func(r *models.Registration) error {
		s.Fail("apply must not run when the expectation is stale")
		return nil
	})
	s.Require().ErrorIs(err, sentinel.ErrStale)
}

func (s *PostgresStoreSuite) TestRevertReleasesBib() {
	ctx := context.Background()
	first := s.newPending("0833333333")
	second := s.newPending("0844444444")
	s.Require().NoError(s.approve(first.ID, "C3001"))

	_, err := s.store.UpdateIfStatus(ctx, first.ID, models.StatusApproved, func(r *models.Registration) error {
		if err := r.CanRevert(); err != nil {
			return err
		}
		r.ApplyRevert(s.now)
		return nil
	})
	s.Require().NoError(err)

	s.Require().NoError(s.approve(second.ID, "C3001"), "released bib must be reusable")

	reverted, err := s.store.FindByID(ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, reverted.Status)
	s.Empty(reverted.BibNumber)
}

func (s *PostgresStoreSuite) TestCheckInIdempotent() {
	ctx := context.Background()
	reg := s.newPending("0855555555")
	s.Require().NoError(s.approve(reg.ID, "D4001"))

	first, already, err := s.store.CheckIn(ctx, reg.ID, s.now)
	s.Require().NoError(err)
	s.False(already)

	second, already, err := s.store.CheckIn(ctx, reg.ID, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.True(already)
	s.True(first.Equal(second), "timestamp unchanged on repeat scans")
}

func (s *PostgresStoreSuite) TestConcurrentCheckIn() {
	ctx := context.Background()
	reg := s.newPending("0866666666")
	s.Require().NoError(s.approve(reg.ID, "D4002"))

	const scans = 10
	var wg sync.WaitGroup
	var fresh atomic.Int32
	for i := range scans {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, already, err := s.store.CheckIn(ctx, reg.ID, s.now.Add(time.Duration(i)*time.Second))
			if err == nil && !already {
				fresh.Add(1)
			}
		}(i)
	}
	wg.Wait()
	s.Equal(int32(1), fresh.Load(), "exactly one scan may win the pickup")
}

func (s *PostgresStoreSuite) TestCheckInNotEligible() {
	reg := s.newPending("0877777777")
	_, _, err := s.store.CheckIn(context.Background(), reg.ID, s.now)
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *PostgresStoreSuite) TestLookups() {
	ctx := context.Background()
	reg := s.newPending("0888888888")
	s.Require().NoError(s.approve(reg.ID, "E5001"))

	byBib, err := s.store.FindByField(ctx, store.FieldBib, "E5001")
	s.Require().NoError(err)
	s.Require().Len(byBib, 1)
	s.Equal(reg.ID, byBib[0].ID)

	byName, err := s.store.SearchByName(ctx, "runner 08888")
	s.Require().NoError(err)
	s.Require().Len(byName, 1)

	counts, err := s.store.CountByStatus(ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[models.StatusApproved])
}
