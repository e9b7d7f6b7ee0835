package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reelpostly/repostly/internal/service"
)

type mediaCacheRepo struct {
	db *gorm.DB
}

// NewMediaCacheRepository creates the gorm-backed MediaCacheRepository.
func NewMediaCacheRepository(db *gorm.DB) service.MediaCacheRepository {
	return &mediaCacheRepo{db: db}
}

func (r *mediaCacheRepo) GetByHash(ctx context.Context, contentHash string) (*service.MediaCacheEntry, error) {
	var entry service.MediaCacheEntry
	err := r.db.WithContext(ctx).Where("content_hash = ?", contentHash).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateIfAbsent inserts the entry; when a concurrent writer won the race
// the stored row wins and is returned, so every caller converges on one
// canonical URL per hash.
func (r *mediaCacheRepo) CreateIfAbsent(ctx context.Context, entry *service.MediaCacheEntry) (*service.MediaCacheEntry, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_hash"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return entry, nil
	}
	stored, err := r.GetByHash(ctx, entry.ContentHash)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("media entry for %s vanished after conflict", entry.ContentHash)
	}
	return stored, nil
}
