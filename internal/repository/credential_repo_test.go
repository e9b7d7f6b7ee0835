//go:build unit

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reelpostly/repostly/internal/service"
)

func TestCredentialUpsert_ReplacesExistingPair(t *testing.T) {
	repo := NewCredentialRepository(newTestDB(t))
	ctx := context.Background()

	first := &service.CredentialRecord{
		OwnerKey: "owner-1", Provider: service.PlatformTikTok,
		AccessToken: "access-1", RefreshToken: "refresh-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &service.CredentialRecord{
		OwnerKey: "owner-1", Provider: service.PlatformTikTok,
		AccessToken: "access-2", RefreshToken: "refresh-2",
		ProviderUserID: "tt-user-9",
		ExpiresAt:      time.Now().Add(2 * time.Hour),
	}
	require.NoError(t, repo.Upsert(ctx, second))

	stored, err := repo.GetByOwnerAndProvider(ctx, "owner-1", service.PlatformTikTok)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "access-2", stored.AccessToken)
	require.Equal(t, "tt-user-9", stored.ProviderUserID)

	var count int64
	require.NoError(t, repo.(*credentialRepo).db.Model(&service.CredentialRecord{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestGetByOwnerAndProvider_MissingReturnsNil(t *testing.T) {
	repo := NewCredentialRepository(newTestDB(t))

	record, err := repo.GetByOwnerAndProvider(context.Background(), "owner-x", service.PlatformTikTok)
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestFindByIdentity_Precedence(t *testing.T) {
	repo := NewCredentialRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &service.CredentialRecord{
		OwnerKey: "owner-a", Provider: service.PlatformTikTok,
		ProviderUserID: "tt-1", Email: "a@example.com",
		AccessToken: "access-a", ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, repo.Upsert(ctx, &service.CredentialRecord{
		OwnerKey: "owner-b", Provider: service.PlatformTikTok,
		ProviderUserID: "tt-2", Email: "b@example.com",
		AccessToken: "access-b", ExpiresAt: time.Now().Add(time.Hour),
	}))

	// Provider user id beats owner key when both are present.
	record, err := repo.FindByIdentity(ctx, service.PlatformTikTok, service.CredentialIdentity{
		ProviderUserID: "tt-2", OwnerKey: "owner-a",
	})
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "owner-b", record.OwnerKey)

	// Email is the last resort.
	record, err = repo.FindByIdentity(ctx, service.PlatformTikTok, service.CredentialIdentity{Email: "a@example.com"})
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "owner-a", record.OwnerKey)

	record, err = repo.FindByIdentity(ctx, service.PlatformTikTok, service.CredentialIdentity{})
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestUpdateTokens_NilRefreshKeepsStored(t *testing.T) {
	repo := NewCredentialRepository(newTestDB(t))
	ctx := context.Background()

	record := &service.CredentialRecord{
		OwnerKey: "owner-1", Provider: service.PlatformYouTube,
		AccessToken: "access-old", RefreshToken: "refresh-old",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, repo.Upsert(ctx, record))

	expiresAt := time.Now().Add(time.Hour)
	require.NoError(t, repo.UpdateTokens(ctx, record.ID, "access-new", nil, expiresAt, "scope"))

	stored, err := repo.GetByOwnerAndProvider(ctx, "owner-1", service.PlatformYouTube)
	require.NoError(t, err)
	require.Equal(t, "access-new", stored.AccessToken)
	require.Equal(t, "refresh-old", stored.RefreshToken)

	rotated := "refresh-new"
	require.NoError(t, repo.UpdateTokens(ctx, record.ID, "access-newer", &rotated, expiresAt, "scope"))
	stored, err = repo.GetByOwnerAndProvider(ctx, "owner-1", service.PlatformYouTube)
	require.NoError(t, err)
	require.Equal(t, "refresh-new", stored.RefreshToken)
}

func TestDeleteByOwnerAndProvider(t *testing.T) {
	repo := NewCredentialRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &service.CredentialRecord{
		OwnerKey: "owner-1", Provider: service.PlatformTikTok,
		AccessToken: "access", ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, repo.DeleteByOwnerAndProvider(ctx, "owner-1", service.PlatformTikTok))

	record, err := repo.GetByOwnerAndProvider(ctx, "owner-1", service.PlatformTikTok)
	require.NoError(t, err)
	require.Nil(t, record)
}
