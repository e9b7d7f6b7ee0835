//go:build unit

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reelpostly/repostly/internal/service"
)

func testEvent(eventID string, processedAt time.Time) *service.WebhookEvent {
	return &service.WebhookEvent{
		EventID:     eventID,
		Provider:    "stripe",
		EventType:   "checkout.session.completed",
		OwnerKey:    "owner-1",
		Credits:     100,
		AmountGross: 2000,
		AmountNet:   1800,
		ProcessedAt: processedAt,
	}
}

func TestCreateIfAbsent_SecondInsertIsNoop(t *testing.T) {
	repo := NewWebhookEventRepository(newTestDB(t))
	ctx := context.Background()

	created, err := repo.CreateIfAbsent(ctx, testEvent("evt_1", time.Now()))
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, testEvent("evt_1", time.Now()))
	require.NoError(t, err)
	require.False(t, created)
}

func TestMarkCreditedAndListUncredited(t *testing.T) {
	repo := NewWebhookEventRepository(newTestDB(t))
	ctx := context.Background()
	old := time.Now().Add(-10 * time.Minute)

	_, err := repo.CreateIfAbsent(ctx, testEvent("evt_done", old))
	require.NoError(t, err)
	_, err = repo.CreateIfAbsent(ctx, testEvent("evt_pending", old))
	require.NoError(t, err)
	// Too recent: still inside the sweep grace window.
	_, err = repo.CreateIfAbsent(ctx, testEvent("evt_fresh", time.Now()))
	require.NoError(t, err)

	require.NoError(t, repo.MarkCredited(ctx, "evt_done", "rk_a"))

	pending, err := repo.ListUncredited(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "evt_pending", pending[0].EventID)
}

func TestMarkFailed_RecordsErrorWithoutCrediting(t *testing.T) {
	repo := NewWebhookEventRepository(newTestDB(t))
	ctx := context.Background()
	old := time.Now().Add(-10 * time.Minute)

	_, err := repo.CreateIfAbsent(ctx, testEvent("evt_1", old))
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, "evt_1", "wallet store unavailable"))

	pending, err := repo.ListUncredited(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "wallet store unavailable", pending[0].ProcessingError)
	require.Nil(t, pending[0].CreditedAt)
}
