//go:build unit

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelpostly/repostly/internal/config"
	infraerrors "github.com/reelpostly/repostly/internal/pkg/errors"
)

type stubCreditRepo struct {
	accounts map[string]*APIKeyAccount
	wallets  map[string]*UserWallet
	active   []APIKeyAccount

	accountIncrements map[string]int64
	walletIncrements  map[string]int64
}

func newStubCreditRepo() *stubCreditRepo {
	return &stubCreditRepo{
		accounts:          make(map[string]*APIKeyAccount),
		wallets:           make(map[string]*UserWallet),
		accountIncrements: make(map[string]int64),
		walletIncrements:  make(map[string]int64),
	}
}

func (r *stubCreditRepo) addAccount(account *APIKeyAccount) {
	r.accounts[account.ID] = account
	if account.Status == AccountStatusActive {
		r.active = append(r.active, *account)
	}
}

func (r *stubCreditRepo) GetAccountByID(_ context.Context, id string) (*APIKeyAccount, error) {
	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return account, nil
}

func (r *stubCreditRepo) CreateAccount(_ context.Context, account *APIKeyAccount) error {
	r.addAccount(account)
	return nil
}

func (r *stubCreditRepo) ListActiveAccounts(_ context.Context, ownerKey string) ([]APIKeyAccount, error) {
	var out []APIKeyAccount
	for _, account := range r.active {
		if account.OwnerKey == ownerKey {
			out = append(out, account)
		}
	}
	return out, nil
}

func (r *stubCreditRepo) DecrementAccountBalance(_ context.Context, accountID string, amount int64) (int64, bool, error) {
	account, ok := r.accounts[accountID]
	if !ok || account.Status != AccountStatusActive || account.Balance < amount {
		return 0, false, nil
	}
	account.Balance -= amount
	return account.Balance, true, nil
}

func (r *stubCreditRepo) DecrementWalletBalance(_ context.Context, ownerKey string, amount int64) (int64, bool, error) {
	wallet, ok := r.wallets[ownerKey]
	if !ok || wallet.Balance < amount {
		return 0, false, nil
	}
	wallet.Balance -= amount
	return wallet.Balance, true, nil
}

func (r *stubCreditRepo) IncrementAccountBalance(_ context.Context, accountID string, amount int64) error {
	r.accountIncrements[accountID] += amount
	if account, ok := r.accounts[accountID]; ok {
		account.Balance += amount
	}
	return nil
}

func (r *stubCreditRepo) IncrementWalletBalance(_ context.Context, ownerKey string, amount int64) error {
	r.walletIncrements[ownerKey] += amount
	wallet, ok := r.wallets[ownerKey]
	if !ok {
		wallet = &UserWallet{OwnerKey: ownerKey}
		r.wallets[ownerKey] = wallet
	}
	wallet.Balance += amount
	return nil
}

func (r *stubCreditRepo) GetWallet(_ context.Context, ownerKey string) (*UserWallet, error) {
	wallet, ok := r.wallets[ownerKey]
	if !ok {
		return nil, nil
	}
	return wallet, nil
}

func (r *stubCreditRepo) RecordPurchaseStats(_ context.Context, ownerKey string, grossMinor, netMinor, credits int64) error {
	wallet, ok := r.wallets[ownerKey]
	if !ok {
		wallet = &UserWallet{OwnerKey: ownerKey}
		r.wallets[ownerKey] = wallet
	}
	wallet.TotalPaidGross += grossMinor
	wallet.TotalPaidNet += netMinor
	wallet.TotalPurchases++
	wallet.TotalCreditsPurchased += credits
	return nil
}

func (r *stubCreditRepo) OwnerBalance(_ context.Context, ownerKey string) (int64, error) {
	var total int64
	for _, account := range r.accounts {
		if account.OwnerKey == ownerKey && account.Status == AccountStatusActive {
			total += account.Balance
		}
	}
	if wallet, ok := r.wallets[ownerKey]; ok {
		total += wallet.Balance
	}
	return total, nil
}

func newCreditTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Credits.RatePerUSD = 5
	cfg.Credits.InitialGrant = 10
	cfg.Credits.DefaultCost = 10
	cfg.Credits.Pricing = map[string]int64{"video.generate": 25}
	return cfg
}

func TestConsume_PreferredAccount(t *testing.T) {
	repo := newStubCreditRepo()
	repo.addAccount(&APIKeyAccount{ID: "rk_a", OwnerKey: "owner-1", Balance: 10, Status: AccountStatusActive})
	svc := NewCreditService(repo, nil, newCreditTestConfig())

	result, err := svc.Consume(context.Background(), "owner-1", "rk_a", 6, "")
	require.NoError(t, err)
	require.Equal(t, SourceAccount, result.Source)
	require.EqualValues(t, 4, result.Remaining)
}

func TestConsume_AccountShortFallsBackToWallet(t *testing.T) {
	repo := newStubCreditRepo()
	repo.addAccount(&APIKeyAccount{ID: "rk_a", OwnerKey: "owner-1", Balance: 3, Status: AccountStatusActive})
	repo.wallets["owner-1"] = &UserWallet{OwnerKey: "owner-1", Balance: 20}
	svc := NewCreditService(repo, nil, newCreditTestConfig())

	result, err := svc.Consume(context.Background(), "owner-1", "rk_a", 6, "")
	require.NoError(t, err)
	require.Equal(t, SourceWallet, result.Source)
	require.EqualValues(t, 14, result.Remaining)
	// The account keeps its partial balance; a deduction never splits.
	require.EqualValues(t, 3, repo.accounts["rk_a"].Balance)
}

func TestConsume_ForeignAccountIsRejected(t *testing.T) {
	repo := newStubCreditRepo()
	repo.addAccount(&APIKeyAccount{ID: "rk_b", OwnerKey: "owner-2", Balance: 100, Status: AccountStatusActive})
	svc := NewCreditService(repo, nil, newCreditTestConfig())

	_, err := svc.Consume(context.Background(), "owner-1", "rk_b", 6, "")
	require.Error(t, err)
	require.True(t, infraerrors.IsReason(err, ReasonUnauthorized))
	require.EqualValues(t, 100, repo.accounts["rk_b"].Balance)
}

func TestConsume_InsufficientEverywhere(t *testing.T) {
	repo := newStubCreditRepo()
	repo.addAccount(&APIKeyAccount{ID: "rk_a", OwnerKey: "owner-1", Balance: 2, Status: AccountStatusActive})
	repo.wallets["owner-1"] = &UserWallet{OwnerKey: "owner-1", Balance: 1}
	svc := NewCreditService(repo, nil, newCreditTestConfig())

	_, err := svc.Consume(context.Background(), "owner-1", "rk_a", 6, "")
	require.Error(t, err)
	require.True(t, infraerrors.IsReason(err, ReasonInsufficientCredits))
	require.Equal(t, 402, infraerrors.StatusOf(err))
	require.EqualValues(t, 2, repo.accounts["rk_a"].Balance)
	require.EqualValues(t, 1, repo.wallets["owner-1"].Balance)
}

func TestConsume_ZeroAmountUsesDefaultCost(t *testing.T) {
	repo := newStubCreditRepo()
	repo.wallets["owner-1"] = &UserWallet{OwnerKey: "owner-1", Balance: 50}
	svc := NewCreditService(repo, nil, newCreditTestConfig())

	result, err := svc.Consume(context.Background(), "owner-1", "", 0, "")
	require.NoError(t, err)
	require.EqualValues(t, 10, result.Amount)
	require.EqualValues(t, 40, result.Remaining)
}

func TestGrant_PrefersNewestActiveAccount(t *testing.T) {
	repo := newStubCreditRepo()
	repo.addAccount(&APIKeyAccount{ID: "rk_new", OwnerKey: "owner-1", Balance: 0, Status: AccountStatusActive})
	svc := NewCreditService(repo, nil, newCreditTestConfig())

	result, err := svc.Grant(context.Background(), "owner-1", 100, "evt_1")
	require.NoError(t, err)
	require.Equal(t, SourceAccount, result.Destination)
	require.Equal(t, "rk_new", result.AccountID)
	require.EqualValues(t, 100, repo.accountIncrements["rk_new"])
}

func TestGrant_FallsBackToWallet(t *testing.T) {
	repo := newStubCreditRepo()
	svc := NewCreditService(repo, nil, newCreditTestConfig())

	result, err := svc.Grant(context.Background(), "owner-1", 100, "evt_1")
	require.NoError(t, err)
	require.Equal(t, SourceWallet, result.Destination)
	require.EqualValues(t, 100, repo.walletIncrements["owner-1"])
}

func TestCreditsForAmount(t *testing.T) {
	svc := NewCreditService(newStubCreditRepo(), nil, newCreditTestConfig())

	// $20.00 at 5 credits per dollar.
	require.EqualValues(t, 100, svc.CreditsForAmount(2000))
	require.EqualValues(t, 0, svc.CreditsForAmount(0))
	require.EqualValues(t, 0, svc.CreditsForAmount(-500))
	// Fractional conversions round to the nearest credit.
	require.EqualValues(t, 3, svc.CreditsForAmount(50))
	require.EqualValues(t, 100, svc.CreditsForAmount(1990))
	require.EqualValues(t, 99, svc.CreditsForAmount(1980))
}

func TestCostFor(t *testing.T) {
	svc := NewCreditService(newStubCreditRepo(), nil, newCreditTestConfig())

	require.EqualValues(t, 25, svc.CostFor("video.generate"))
	require.EqualValues(t, 10, svc.CostFor("unknown.op"))
}

func TestCreateAccount_AppliesInitialGrant(t *testing.T) {
	repo := newStubCreditRepo()
	svc := NewCreditService(repo, nil, newCreditTestConfig())

	account, err := svc.CreateAccount(context.Background(), "owner-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, account.ID)
	require.EqualValues(t, 10, account.Balance)
	require.Equal(t, AccountStatusActive, account.Status)
	require.Equal(t, "starter", account.PlanID)
}
