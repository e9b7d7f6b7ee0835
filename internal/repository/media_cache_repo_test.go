//go:build unit

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelpostly/repostly/internal/service"
)

func TestMediaCreateIfAbsent_FirstWriterWins(t *testing.T) {
	repo := NewMediaCacheRepository(newTestDB(t))
	ctx := context.Background()

	first, err := repo.CreateIfAbsent(ctx, &service.MediaCacheEntry{
		ContentHash:  "aaaa",
		CanonicalURL: "https://cdn.test/media/by-hash/aaaa.mp4",
		MediaType:    "video",
		SizeBytes:    1024,
		SourceURL:    "https://origin.example/a.mp4",
	})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/media/by-hash/aaaa.mp4", first.CanonicalURL)

	// A second writer with the same hash gets the stored row back, not its
	// own.
	second, err := repo.CreateIfAbsent(ctx, &service.MediaCacheEntry{
		ContentHash:  "aaaa",
		CanonicalURL: "https://cdn.test/media/by-hash/other.mp4",
		MediaType:    "video",
		SourceURL:    "https://origin.example/b.mp4",
	})
	require.NoError(t, err)
	require.Equal(t, first.CanonicalURL, second.CanonicalURL)
	require.Equal(t, first.ID, second.ID)
}

func TestMediaGetByHash(t *testing.T) {
	repo := NewMediaCacheRepository(newTestDB(t))
	ctx := context.Background()

	entry, err := repo.GetByHash(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, entry)

	_, err = repo.CreateIfAbsent(ctx, &service.MediaCacheEntry{
		ContentHash:  "bbbb",
		CanonicalURL: "https://cdn.test/media/by-hash/bbbb.jpg",
		MediaType:    "image",
	})
	require.NoError(t, err)

	entry, err = repo.GetByHash(ctx, "bbbb")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, "image", entry.MediaType)
}
