package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherSyncMode(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	regID := uuid.New()
	require.NoError(t, pub.Emit(context.Background(), Event{
		RegistrationID: regID,
		StaffID:        "staff-1",
		Action:         ActionApproved,
		Detail:         "bib A1001",
	}))

	events, err := store.ListByRegistration(context.Background(), regID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionApproved, events[0].Action)
	assert.False(t, events[0].OccurredAt.IsZero(), "timestamp is stamped when unset")
}

func TestPublisherAsyncDrainsOnClose(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(64))

	regID := uuid.New()
	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), Event{
			RegistrationID: regID,
			Action:         ActionCheckedIn,
		}))
	}

	pub.Close()

	events, err := store.ListByRegistration(context.Background(), regID)
	require.NoError(t, err)
	assert.Len(t, events, 10)
}
