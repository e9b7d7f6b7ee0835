package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reelpostly/repostly/internal/service"
)

type credentialRepo struct {
	db *gorm.DB
}

// NewCredentialRepository creates the gorm-backed CredentialRepository.
func NewCredentialRepository(db *gorm.DB) service.CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) GetByOwnerAndProvider(ctx context.Context, ownerKey, provider string) (*service.CredentialRecord, error) {
	var record service.CredentialRecord
	err := r.db.WithContext(ctx).
		Where("owner_key = ? AND provider = ?", ownerKey, provider).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByIdentity resolves a credential by the strongest identifier present:
// provider-native user id, then owner key, then email.
func (r *credentialRepo) FindByIdentity(ctx context.Context, provider string, identity service.CredentialIdentity) (*service.CredentialRecord, error) {
	lookups := []struct {
		column string
		value  string
	}{
		{"provider_user_id", identity.ProviderUserID},
		{"owner_key", identity.OwnerKey},
		{"email", identity.Email},
	}
	for _, lookup := range lookups {
		if lookup.value == "" {
			continue
		}
		var record service.CredentialRecord
		err := r.db.WithContext(ctx).
			Where("provider = ? AND "+lookup.column+" = ?", provider, lookup.value).
			Order("updated_at DESC").
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &record, nil
	}
	return nil, nil
}

// Upsert inserts the record or replaces the existing one for the same
// (owner, provider) pair.
func (r *credentialRepo) Upsert(ctx context.Context, record *service.CredentialRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_key"}, {Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"provider_user_id", "email",
				"access_token", "refresh_token", "token_type", "scope",
				"expires_at", "rotates_refresh_token", "last_refreshed_at", "updated_at",
			}),
		}).
		Create(record).Error
}

func (r *credentialRepo) UpdateTokens(ctx context.Context, id int64, accessToken string, refreshToken *string, expiresAt time.Time, scope string) error {
	updates := map[string]any{
		"access_token":      accessToken,
		"expires_at":        expiresAt,
		"scope":             scope,
		"last_refreshed_at": time.Now(),
	}
	if refreshToken != nil {
		updates["refresh_token"] = *refreshToken
	}
	return r.db.WithContext(ctx).
		Model(&service.CredentialRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *credentialRepo) DeleteByOwnerAndProvider(ctx context.Context, ownerKey, provider string) error {
	return r.db.WithContext(ctx).
		Where("owner_key = ? AND provider = ?", ownerKey, provider).
		Delete(&service.CredentialRecord{}).Error
}
