package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/reelpostly/repostly/internal/config"
	infraerrors "github.com/reelpostly/repostly/internal/pkg/errors"
	"github.com/reelpostly/repostly/internal/pkg/logger"
)

// ObjectStore is the blob storage surface the media cache uploads through.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

// MediaResolution is the outcome of resolving one source URL.
type MediaResolution struct {
	CanonicalURL string `json:"canonical_url"`
	ContentHash  string `json:"content_hash,omitempty"`
	MediaType    string `json:"media_type,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	// Deduplicated is true when the bytes were already rehosted and no
	// upload happened.
	Deduplicated bool `json:"deduplicated"`
}

// MediaCacheService resolves arbitrary media URLs to canonical rehosted
// URLs, content addressed so identical bytes are stored and uploaded exactly
// once. Layers, cheapest first: canonical-host short circuit, in-process URL
// cache, in-process hash cache, durable index, upload.
type MediaCacheService struct {
	repo  MediaCacheRepository
	store ObjectStore
	cfg   *config.Config

	// cache holds both url→canonical and hash→entry mappings under
	// prefixed keys.
	cache      *ristretto.Cache
	downloader *http.Client

	// urlFlight collapses concurrent resolutions of the same source URL;
	// hashFlight collapses concurrent uploads of the same content.
	urlFlight  singleflight.Group
	hashFlight singleflight.Group
}

// NewMediaCacheService creates a MediaCacheService.
func NewMediaCacheService(repo MediaCacheRepository, store ObjectStore, cfg *config.Config) (*MediaCacheService, error) {
	maxEntries := cfg.Media.CacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create media cache: %w", err)
	}

	timeout := time.Duration(cfg.Media.DownloadTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MediaCacheService{
		repo:       repo,
		store:      store,
		cfg:        cfg,
		cache:      cache,
		downloader: &http.Client{Timeout: timeout},
	}, nil
}

// Resolve returns the canonical URL for the media behind sourceURL,
// downloading and rehosting it when its content has not been seen before.
func (s *MediaCacheService) Resolve(ctx context.Context, sourceURL string) (*MediaResolution, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	parsed, err := url.Parse(sourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, infraerrors.BadRequest(ReasonDownloadFailed, "source url is not a valid http(s) url")
	}

	if s.isCanonicalHost(parsed.Host) {
		return &MediaResolution{CanonicalURL: sourceURL, Deduplicated: true}, nil
	}

	if cached, ok := s.cache.Get(urlKey(sourceURL)); ok {
		if res, ok := cached.(*MediaResolution); ok {
			out := *res
			out.Deduplicated = true
			return &out, nil
		}
	}

	result, err, _ := s.urlFlight.Do(sourceURL, func() (any, error) {
		return s.resolveSlow(ctx, sourceURL)
	})
	if err != nil {
		return nil, err
	}
	res := result.(*MediaResolution)
	out := *res
	return &out, nil
}

// PresignUpload returns a presigned PUT URL for direct client uploads into
// the content-addressed layout.
func (s *MediaCacheService) PresignUpload(ctx context.Context, contentHash, contentType string) (string, string, error) {
	if len(contentHash) != sha256.Size*2 {
		return "", "", infraerrors.BadRequest(ReasonRehostFailed, "content hash must be 64 hex characters")
	}
	if _, err := hex.DecodeString(contentHash); err != nil {
		return "", "", infraerrors.BadRequest(ReasonRehostFailed, "content hash must be hex")
	}
	key := s.objectKey(contentHash, extensionFor(contentType))
	ttl := time.Duration(s.cfg.S3.PresignTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	uploadURL, err := s.store.PresignPut(ctx, key, contentType, ttl)
	if err != nil {
		return "", "", infraerrors.Internal(ReasonRehostFailed, "presign upload").WithCause(err)
	}
	return uploadURL, key, nil
}

func (s *MediaCacheService) resolveSlow(ctx context.Context, sourceURL string) (*MediaResolution, error) {
	body, contentType, err := s.download(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(body)
	contentHash := hex.EncodeToString(sum[:])
	mediaType := mediaTypeFor(contentType)

	if res := s.lookupHash(ctx, contentHash); res != nil {
		s.remember(sourceURL, res)
		out := *res
		out.Deduplicated = true
		return &out, nil
	}

	result, err, _ := s.hashFlight.Do(contentHash, func() (any, error) {
		// Another flight may have finished between the lookup above and
		// acquiring this flight.
		if res := s.lookupHash(ctx, contentHash); res != nil {
			return res, nil
		}
		return s.rehost(ctx, sourceURL, contentHash, contentType, mediaType, body)
	})
	if err != nil {
		return nil, err
	}
	res := result.(*MediaResolution)
	s.remember(sourceURL, res)
	return res, nil
}

func (s *MediaCacheService) rehost(ctx context.Context, sourceURL, contentHash, contentType, mediaType string, body []byte) (*MediaResolution, error) {
	key := s.objectKey(contentHash, extensionFor(contentType))
	canonicalURL, err := s.store.Upload(ctx, key, contentType, body)
	if err != nil {
		return nil, infraerrors.ServiceUnavailable(ReasonRehostFailed, "rehost media").WithCause(err)
	}

	entry, err := s.repo.CreateIfAbsent(ctx, &MediaCacheEntry{
		ContentHash:  contentHash,
		CanonicalURL: canonicalURL,
		MediaType:    mediaType,
		SizeBytes:    int64(len(body)),
		SourceURL:    sourceURL,
	})
	if err != nil {
		return nil, infraerrors.Internal(ReasonRehostFailed, "index media").WithCause(err)
	}

	res := resolutionFrom(entry)
	s.rememberHash(res)
	logger.Info("media rehosted",
		zap.String("content_hash", contentHash),
		zap.String("media_type", mediaType),
		zap.Int("size_bytes", len(body)))
	return res, nil
}

func (s *MediaCacheService) lookupHash(ctx context.Context, contentHash string) *MediaResolution {
	if cached, ok := s.cache.Get(hashKey(contentHash)); ok {
		if res, ok := cached.(*MediaResolution); ok {
			return res
		}
	}
	entry, err := s.repo.GetByHash(ctx, contentHash)
	if err != nil {
		logger.Warn("media index lookup failed", zap.String("content_hash", contentHash), zap.Error(err))
		return nil
	}
	if entry == nil {
		return nil
	}
	res := resolutionFrom(entry)
	s.rememberHash(res)
	return res
}

func (s *MediaCacheService) download(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", infraerrors.BadRequest(ReasonDownloadFailed, "build download request").WithCause(err)
	}
	resp, err := s.downloader.Do(req)
	if err != nil {
		return nil, "", infraerrors.ServiceUnavailable(ReasonDownloadFailed, "download media").WithCause(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", infraerrors.BadRequest(ReasonDownloadFailed, fmt.Sprintf("download media: status %d", resp.StatusCode))
	}

	maxBytes := s.cfg.Media.MaxDownloadBytes
	if maxBytes <= 0 {
		maxBytes = 512 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", infraerrors.ServiceUnavailable(ReasonDownloadFailed, "read media body").WithCause(err)
	}
	if int64(len(body)) > maxBytes {
		return nil, "", infraerrors.BadRequest(ReasonDownloadFailed, fmt.Sprintf("media exceeds %d bytes", maxBytes))
	}
	if len(body) == 0 {
		return nil, "", infraerrors.BadRequest(ReasonDownloadFailed, "media body is empty")
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (s *MediaCacheService) remember(sourceURL string, res *MediaResolution) {
	ttl := time.Duration(s.cfg.Media.URLCacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	s.cache.SetWithTTL(urlKey(sourceURL), res, 1, ttl)
}

func (s *MediaCacheService) rememberHash(res *MediaResolution) {
	ttl := time.Duration(s.cfg.Media.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s.cache.SetWithTTL(hashKey(res.ContentHash), res, 1, ttl)
}

func (s *MediaCacheService) isCanonicalHost(host string) bool {
	host = strings.ToLower(host)
	for _, canonical := range s.cfg.Media.CanonicalHosts {
		if host == strings.ToLower(canonical) {
			return true
		}
	}
	return false
}

func (s *MediaCacheService) objectKey(contentHash, ext string) string {
	prefix := strings.Trim(s.cfg.S3.Prefix, "/")
	if prefix == "" {
		prefix = "media"
	}
	return path.Join(prefix, "by-hash", contentHash+ext)
}

func resolutionFrom(entry *MediaCacheEntry) *MediaResolution {
	return &MediaResolution{
		CanonicalURL: entry.CanonicalURL,
		ContentHash:  entry.ContentHash,
		MediaType:    entry.MediaType,
		SizeBytes:    entry.SizeBytes,
	}
}

func mediaTypeFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return MediaTypeImage
	}
	if strings.HasPrefix(mt, "video/") {
		return MediaTypeVideo
	}
	return MediaTypeImage
}

func extensionFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mt {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	default:
		return ""
	}
}

func urlKey(sourceURL string) string {
	return "url:" + strconv.FormatUint(xxhash.Sum64String(sourceURL), 16)
}

func hashKey(contentHash string) string {
	return "hash:" + contentHash
}
