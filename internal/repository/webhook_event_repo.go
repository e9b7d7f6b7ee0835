package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reelpostly/repostly/internal/service"
)

type webhookEventRepo struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates the gorm-backed WebhookEventRepository.
func NewWebhookEventRepository(db *gorm.DB) service.WebhookEventRepository {
	return &webhookEventRepo{db: db}
}

// CreateIfAbsent relies on the unique event_id index: the insert is a no-op
// when a marker for the same event already exists, which is the replay
// signal.
func (r *webhookEventRepo) CreateIfAbsent(ctx context.Context, event *service.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *webhookEventRepo) MarkCredited(ctx context.Context, eventID, accountID string) error {
	return r.db.WithContext(ctx).
		Model(&service.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"credited_at":      time.Now(),
			"credited_account": accountID,
			"processing_error": "",
		}).Error
}

func (r *webhookEventRepo) MarkFailed(ctx context.Context, eventID, message string) error {
	return r.db.WithContext(ctx).
		Model(&service.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("processing_error", message).Error
}

func (r *webhookEventRepo) ListUncredited(ctx context.Context, olderThan time.Time, limit int) ([]service.WebhookEvent, error) {
	var events []service.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("credited_at IS NULL AND credits > 0 AND processed_at < ?", olderThan).
		Order("processed_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
