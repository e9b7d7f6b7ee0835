//go:build unit

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reelpostly/repostly/internal/config"
	infraerrors "github.com/reelpostly/repostly/internal/pkg/errors"
)

type memMediaRepo struct {
	entries map[string]*MediaCacheEntry
	creates atomic.Int64
}

func newMemMediaRepo() *memMediaRepo {
	return &memMediaRepo{entries: make(map[string]*MediaCacheEntry)}
}

func (r *memMediaRepo) GetByHash(_ context.Context, contentHash string) (*MediaCacheEntry, error) {
	entry, ok := r.entries[contentHash]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (r *memMediaRepo) CreateIfAbsent(_ context.Context, entry *MediaCacheEntry) (*MediaCacheEntry, error) {
	r.creates.Add(1)
	if existing, ok := r.entries[entry.ContentHash]; ok {
		copied := *existing
		return &copied, nil
	}
	stored := *entry
	r.entries[entry.ContentHash] = &stored
	copied := stored
	return &copied, nil
}

type memObjectStore struct {
	uploads atomic.Int64
}

func (s *memObjectStore) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	s.uploads.Add(1)
	return "https://cdn.test/" + key, nil
}

func (s *memObjectStore) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://s3.test/presigned/" + key, nil
}

func newMediaTestService(t *testing.T, repo MediaCacheRepository, store ObjectStore, mutate ...func(*config.Config)) *MediaCacheService {
	t.Helper()
	cfg := &config.Config{}
	cfg.Media.MaxDownloadBytes = 1 << 20
	cfg.Media.DownloadTimeoutSeconds = 5
	cfg.Media.CacheMaxEntries = 100
	cfg.Media.CanonicalHosts = []string{"cdn.test"}
	cfg.S3.Bucket = "test-bucket"
	for _, m := range mutate {
		m(cfg)
	}
	svc, err := NewMediaCacheService(repo, store, cfg)
	require.NoError(t, err)
	return svc
}

func TestResolve_SameContentDifferentURLsUploadsOnce(t *testing.T) {
	content := []byte("the exact same video bytes")
	var downloads atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		downloads.Add(1)
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(content)
	}))
	defer upstream.Close()

	repo := newMemMediaRepo()
	store := &memObjectStore{}
	svc := newMediaTestService(t, repo, store)

	first, err := svc.Resolve(context.Background(), upstream.URL+"/a.mp4")
	require.NoError(t, err)
	require.False(t, first.Deduplicated)
	require.Equal(t, MediaTypeVideo, first.MediaType)

	sum := sha256.Sum256(content)
	require.Equal(t, hex.EncodeToString(sum[:]), first.ContentHash)
	require.Contains(t, first.CanonicalURL, first.ContentHash)

	second, err := svc.Resolve(context.Background(), upstream.URL+"/b.mp4")
	require.NoError(t, err)
	require.True(t, second.Deduplicated)
	require.Equal(t, first.CanonicalURL, second.CanonicalURL)

	// Both URLs were fetched, but the bytes were uploaded exactly once.
	require.EqualValues(t, 2, downloads.Load())
	require.EqualValues(t, 1, store.uploads.Load())
}

func TestResolve_RepeatURLServedFromCacheWithoutRefetch(t *testing.T) {
	var downloads atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		downloads.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png bytes"))
	}))
	defer upstream.Close()

	svc := newMediaTestService(t, newMemMediaRepo(), &memObjectStore{})

	first, err := svc.Resolve(context.Background(), upstream.URL+"/pic.png")
	require.NoError(t, err)

	// Ristretto applies writes asynchronously.
	svc.cache.Wait()

	second, err := svc.Resolve(context.Background(), upstream.URL+"/pic.png")
	require.NoError(t, err)
	require.Equal(t, first.CanonicalURL, second.CanonicalURL)
	require.True(t, second.Deduplicated)
	require.EqualValues(t, 1, downloads.Load())
}

func TestResolve_CanonicalHostShortCircuits(t *testing.T) {
	store := &memObjectStore{}
	svc := newMediaTestService(t, newMemMediaRepo(), store)

	res, err := svc.Resolve(context.Background(), "https://cdn.test/media/by-hash/abc.mp4")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/media/by-hash/abc.mp4", res.CanonicalURL)
	require.True(t, res.Deduplicated)
	require.Zero(t, store.uploads.Load())
}

func TestResolve_RejectsInvalidURL(t *testing.T) {
	svc := newMediaTestService(t, newMemMediaRepo(), &memObjectStore{})

	for _, bad := range []string{"", "ftp://host/file", "not a url", "file:///etc/passwd"} {
		_, err := svc.Resolve(context.Background(), bad)
		require.Error(t, err, bad)
		require.True(t, infraerrors.IsReason(err, ReasonDownloadFailed), bad)
	}
}

func TestResolve_OversizeBodyRejected(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer upstream.Close()

	svc := newMediaTestService(t, newMemMediaRepo(), &memObjectStore{}, func(cfg *config.Config) {
		cfg.Media.MaxDownloadBytes = 1024
	})

	_, err := svc.Resolve(context.Background(), upstream.URL+"/big.mp4")
	require.Error(t, err)
	require.True(t, infraerrors.IsReason(err, ReasonDownloadFailed))
}

func TestResolve_UpstreamErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	svc := newMediaTestService(t, newMemMediaRepo(), &memObjectStore{})

	_, err := svc.Resolve(context.Background(), upstream.URL+"/gone.jpg")
	require.Error(t, err)
	require.True(t, infraerrors.IsReason(err, ReasonDownloadFailed))
}

func TestPresignUpload_ValidatesHash(t *testing.T) {
	svc := newMediaTestService(t, newMemMediaRepo(), &memObjectStore{})

	_, _, err := svc.PresignUpload(context.Background(), "nothex", "video/mp4")
	require.Error(t, err)

	sum := sha256.Sum256([]byte("x"))
	hash := hex.EncodeToString(sum[:])
	uploadURL, key, err := svc.PresignUpload(context.Background(), hash, "video/mp4")
	require.NoError(t, err)
	require.Contains(t, key, hash)
	require.Contains(t, uploadURL, key)
}
