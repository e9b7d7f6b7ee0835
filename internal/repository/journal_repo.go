package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/reelpostly/repostly/internal/service"
)

type journalRepo struct {
	db *gorm.DB
}

// NewJournalRepository creates the gorm-backed JournalRepository.
func NewJournalRepository(db *gorm.DB) service.JournalRepository {
	return &journalRepo{db: db}
}

func (r *journalRepo) Create(ctx context.Context, tx *service.CreditTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}
