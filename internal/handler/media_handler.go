package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/reelpostly/repostly/internal/pkg/response"
	"github.com/reelpostly/repostly/internal/service"
)

// MediaHandler exposes the media dedup cache.
type MediaHandler struct {
	media *service.MediaCacheService
}

// NewMediaHandler creates a MediaHandler.
func NewMediaHandler(media *service.MediaCacheService) *MediaHandler {
	return &MediaHandler{media: media}
}

type resolveRequest struct {
	URL string `json:"url" binding:"required"`
}

// Resolve rehosts the media behind a URL and returns its canonical URL,
// deduplicated by content hash.
// POST /api/v1/media/resolve
func (h *MediaHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "url is required")
		return
	}
	result, err := h.media.Resolve(c.Request.Context(), req.URL)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, result)
}

type presignRequest struct {
	ContentHash string `json:"content_hash" binding:"required"`
	ContentType string `json:"content_type"`
}

// Presign hands out a presigned PUT URL for a direct client upload into the
// content-addressed layout.
// POST /api/v1/media/presign
func (h *MediaHandler) Presign(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "content_hash is required")
		return
	}
	uploadURL, key, err := h.media.PresignUpload(c.Request.Context(), req.ContentHash, req.ContentType)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, gin.H{
		"upload_url": uploadURL,
		"object_key": key,
	})
}
