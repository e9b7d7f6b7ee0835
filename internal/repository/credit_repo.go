package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/reelpostly/repostly/internal/service"
)

type creditRepo struct {
	db *gorm.DB
}

// NewCreditRepository creates the gorm-backed CreditRepository.
func NewCreditRepository(db *gorm.DB) service.CreditRepository {
	return &creditRepo{db: db}
}

func (r *creditRepo) GetAccountByID(ctx context.Context, id string) (*service.APIKeyAccount, error) {
	var account service.APIKeyAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *creditRepo) CreateAccount(ctx context.Context, account *service.APIKeyAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *creditRepo) ListActiveAccounts(ctx context.Context, ownerKey string) ([]service.APIKeyAccount, error) {
	var accounts []service.APIKeyAccount
	err := r.db.WithContext(ctx).
		Where("owner_key = ? AND status = ?", ownerKey, service.AccountStatusActive).
		Order("created_at DESC, id DESC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// DecrementAccountBalance deducts in one guarded statement; the WHERE clause
// is the overdraft check, so two racing spends of the last credits cannot
// both pass.
func (r *creditRepo) DecrementAccountBalance(ctx context.Context, accountID string, amount int64) (int64, bool, error) {
	var remaining int64
	res := r.db.WithContext(ctx).Raw(`
		UPDATE api_key_accounts
		SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND balance >= ?
		RETURNING balance`,
		amount, accountID, service.AccountStatusActive, amount,
	).Scan(&remaining)
	if res.Error != nil {
		return 0, false, res.Error
	}
	// Zero rows means the guard failed: unknown account, revoked, or
	// insufficient balance.
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

func (r *creditRepo) DecrementWalletBalance(ctx context.Context, ownerKey string, amount int64) (int64, bool, error) {
	var remaining int64
	res := r.db.WithContext(ctx).Raw(`
		UPDATE user_wallets
		SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
		WHERE owner_key = ? AND balance >= ?
		RETURNING balance`,
		amount, ownerKey, amount,
	).Scan(&remaining)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

func (r *creditRepo) IncrementAccountBalance(ctx context.Context, accountID string, amount int64) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE api_key_accounts
		SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		amount, accountID,
	).Error
}

func (r *creditRepo) IncrementWalletBalance(ctx context.Context, ownerKey string, amount int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO user_wallets (owner_key, balance, total_paid_net, total_paid_gross, total_purchases, total_credits_purchased, created_at, updated_at)
		VALUES (?, ?, 0, 0, 0, 0, ?, ?)
		ON CONFLICT (owner_key)
		DO UPDATE SET balance = user_wallets.balance + ?, updated_at = ?`,
		ownerKey, amount, now, now, amount, now,
	).Error
}

func (r *creditRepo) GetWallet(ctx context.Context, ownerKey string) (*service.UserWallet, error) {
	var wallet service.UserWallet
	err := r.db.WithContext(ctx).Where("owner_key = ?", ownerKey).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *creditRepo) RecordPurchaseStats(ctx context.Context, ownerKey string, grossMinor, netMinor, credits int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO user_wallets (owner_key, balance, total_paid_net, total_paid_gross, total_purchases, total_credits_purchased, created_at, updated_at)
		VALUES (?, 0, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (owner_key)
		DO UPDATE SET
			total_paid_net = user_wallets.total_paid_net + ?,
			total_paid_gross = user_wallets.total_paid_gross + ?,
			total_purchases = user_wallets.total_purchases + 1,
			total_credits_purchased = user_wallets.total_credits_purchased + ?,
			updated_at = ?`,
		ownerKey, netMinor, grossMinor, credits, now, now,
		netMinor, grossMinor, credits, now,
	).Error
}

func (r *creditRepo) OwnerBalance(ctx context.Context, ownerKey string) (int64, error) {
	var accountTotal int64
	err := r.db.WithContext(ctx).
		Model(&service.APIKeyAccount{}).
		Where("owner_key = ? AND status = ?", ownerKey, service.AccountStatusActive).
		Select("COALESCE(SUM(balance), 0)").
		Scan(&accountTotal).Error
	if err != nil {
		return 0, err
	}
	wallet, err := r.GetWallet(ctx, ownerKey)
	if err != nil {
		return 0, err
	}
	if wallet == nil {
		return accountTotal, nil
	}
	return accountTotal + wallet.Balance, nil
}
