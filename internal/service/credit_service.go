package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/reelpostly/repostly/internal/config"
	infraerrors "github.com/reelpostly/repostly/internal/pkg/errors"
	"github.com/reelpostly/repostly/internal/pkg/logger"
)

// Journal reasons.
const (
	JournalReasonConsume = "consume"
	JournalReasonRefund  = "refund"
	JournalReasonGrant   = "grant"
	JournalReasonBonus   = "bonus"
)

// Consume sources.
const (
	SourceAccount = "account"
	SourceWallet  = "wallet"
)

// BalanceSummary is the owner-facing view of available credits.
type BalanceSummary struct {
	Credits int64  `json:"credits"`
	Status  string `json:"status"`
	Plan    string `json:"plan"`
}

// ConsumeResult reports where a deduction landed.
type ConsumeResult struct {
	Source    string `json:"source"`
	AccountID string `json:"account_id,omitempty"`
	Remaining int64  `json:"remaining"`
	Amount    int64  `json:"amount"`
}

// GrantResult reports where purchased credits landed.
type GrantResult struct {
	Destination string
	AccountID   string
}

// CreditService owns the dual-scoped credit ledger: per-API-key accounts and
// the owner wallet. Every balance change goes through a conditional
// single-statement update so concurrent spends can never overdraw.
type CreditService struct {
	repo    CreditRepository
	journal *JournalWriter
	cfg     *config.Config
}

// NewCreditService creates a CreditService. journal may be nil in tests that
// do not assert on journal rows.
func NewCreditService(repo CreditRepository, journal *JournalWriter, cfg *config.Config) *CreditService {
	return &CreditService{repo: repo, journal: journal, cfg: cfg}
}

// CreateAccount provisions a new API-key account for ownerKey with the
// configured initial grant.
func (s *CreditService) CreateAccount(ctx context.Context, ownerKey, planID string) (*APIKeyAccount, error) {
	key, err := newAPIKey()
	if err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "generate api key").WithCause(err)
	}
	if planID == "" {
		planID = "starter"
	}
	account := &APIKeyAccount{
		ID:           key,
		OwnerKey:     ownerKey,
		Balance:      s.cfg.Credits.InitialGrant,
		InitialGrant: s.cfg.Credits.InitialGrant,
		Status:       AccountStatusActive,
		PlanID:       planID,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "create account").WithCause(err)
	}
	if s.journal != nil && account.Balance > 0 {
		s.journal.Record(&CreditTransaction{
			OwnerKey:  ownerKey,
			AccountID: account.ID,
			Delta:     account.Balance,
			Reason:    JournalReasonBonus,
			Remaining: account.Balance,
		})
	}
	return account, nil
}

// Account returns the account behind an API key, or nil when unknown.
func (s *CreditService) Account(ctx context.Context, accountID string) (*APIKeyAccount, error) {
	account, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "load account").WithCause(err)
	}
	return account, nil
}

// Balance returns the owner's combined available credits across active
// accounts and the wallet.
func (s *CreditService) Balance(ctx context.Context, ownerKey string) (*BalanceSummary, error) {
	total, err := s.repo.OwnerBalance(ctx, ownerKey)
	if err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "load balance").WithCause(err)
	}
	summary := &BalanceSummary{Credits: total, Status: AccountStatusActive, Plan: "starter"}
	accounts, err := s.repo.ListActiveAccounts(ctx, ownerKey)
	if err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "load accounts").WithCause(err)
	}
	if len(accounts) > 0 {
		summary.Plan = accounts[0].PlanID
	}
	return summary, nil
}

// Consume deducts amount credits for ownerKey. When preferredAccountID names
// one of the owner's accounts it is tried first with a wallet fallback; with
// no preferred account only the wallet is charged. A deduction lands on
// exactly one scope or fails entirely.
func (s *CreditService) Consume(ctx context.Context, ownerKey, preferredAccountID string, amount int64, reason string) (*ConsumeResult, error) {
	if amount <= 0 {
		amount = s.cfg.Credits.DefaultCost
	}
	if amount <= 0 {
		amount = 1
	}
	if reason == "" {
		reason = JournalReasonConsume
	}

	if preferredAccountID != "" {
		account, err := s.repo.GetAccountByID(ctx, preferredAccountID)
		if err != nil {
			return nil, infraerrors.Internal(ReasonMisconfigured, "load account").WithCause(err)
		}
		if account == nil || account.OwnerKey != ownerKey {
			return nil, infraerrors.Unauthorized(ReasonUnauthorized, "account does not belong to caller")
		}
		if account.Status == AccountStatusActive {
			remaining, ok, err := s.repo.DecrementAccountBalance(ctx, account.ID, amount)
			if err != nil {
				return nil, infraerrors.Internal(ReasonMisconfigured, "deduct account").WithCause(err)
			}
			if ok {
				s.recordJournal(ownerKey, account.ID, -amount, reason, remaining, "")
				return &ConsumeResult{Source: SourceAccount, AccountID: account.ID, Remaining: remaining, Amount: amount}, nil
			}
		}
	}

	remaining, ok, err := s.repo.DecrementWalletBalance(ctx, ownerKey, amount)
	if err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "deduct wallet").WithCause(err)
	}
	if !ok {
		return nil, infraerrors.PaymentRequired(ReasonInsufficientCredits, fmt.Sprintf("insufficient credits, need %d", amount))
	}
	s.recordJournal(ownerKey, "", -amount, reason, remaining, "")
	return &ConsumeResult{Source: SourceWallet, Remaining: remaining, Amount: amount}, nil
}

// Refund returns amount credits to the scope a failed operation charged.
func (s *CreditService) Refund(ctx context.Context, ownerKey, accountID string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if accountID != "" {
		if err := s.repo.IncrementAccountBalance(ctx, accountID, amount); err != nil {
			return infraerrors.Internal(ReasonMisconfigured, "refund account").WithCause(err)
		}
	} else {
		if err := s.repo.IncrementWalletBalance(ctx, ownerKey, amount); err != nil {
			return infraerrors.Internal(ReasonMisconfigured, "refund wallet").WithCause(err)
		}
	}
	s.recordJournal(ownerKey, accountID, amount, JournalReasonRefund, 0, "")
	return nil
}

// Grant credits purchased credits to ownerKey: the newest active account
// when one exists, otherwise the wallet. eventID ties the journal row back
// to the payment event.
func (s *CreditService) Grant(ctx context.Context, ownerKey string, credits int64, eventID string) (*GrantResult, error) {
	if credits <= 0 {
		return &GrantResult{Destination: SourceWallet}, nil
	}
	accounts, err := s.repo.ListActiveAccounts(ctx, ownerKey)
	if err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "load accounts").WithCause(err)
	}
	if len(accounts) > 0 {
		target := accounts[0]
		if err := s.repo.IncrementAccountBalance(ctx, target.ID, credits); err != nil {
			return nil, infraerrors.Internal(ReasonMisconfigured, "credit account").WithCause(err)
		}
		s.recordJournal(ownerKey, target.ID, credits, JournalReasonGrant, 0, eventID)
		logger.Info("credits granted",
			zap.String("owner_key", ownerKey),
			zap.String("account_id", target.ID),
			zap.Int64("credits", credits))
		return &GrantResult{Destination: SourceAccount, AccountID: target.ID}, nil
	}
	if err := s.repo.IncrementWalletBalance(ctx, ownerKey, credits); err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "credit wallet").WithCause(err)
	}
	s.recordJournal(ownerKey, "", credits, JournalReasonGrant, 0, eventID)
	logger.Info("credits granted",
		zap.String("owner_key", ownerKey),
		zap.Int64("credits", credits))
	return &GrantResult{Destination: SourceWallet}, nil
}

// CreditsForAmount converts a payment amount in minor currency units into
// credits at the configured rate, rounding to the nearest credit. Amounts
// that convert to nothing are clamped to 0, loudly.
func (s *CreditService) CreditsForAmount(minorUnits int64) int64 {
	rate := s.cfg.Credits.RatePerUSD
	if rate <= 0 {
		rate = 5
	}
	if minorUnits <= 0 {
		logger.Warn("non-positive payment amount clamped to zero credits",
			zap.Int64("minor_units", minorUnits))
		return 0
	}
	credits := math.Round(float64(minorUnits) / 100.0 * rate)
	if math.IsNaN(credits) || credits < 0 {
		logger.Warn("credit conversion clamped to zero",
			zap.Int64("minor_units", minorUnits),
			zap.Float64("rate", rate))
		return 0
	}
	return int64(credits)
}

// CostFor returns the configured credit cost of an operation, falling back
// to the default cost.
func (s *CreditService) CostFor(operation string) int64 {
	if cost, ok := s.cfg.Credits.Pricing[operation]; ok && cost > 0 {
		return cost
	}
	if s.cfg.Credits.DefaultCost > 0 {
		return s.cfg.Credits.DefaultCost
	}
	return 1
}

func (s *CreditService) recordJournal(ownerKey, accountID string, delta int64, reason string, remaining int64, eventID string) {
	if s.journal == nil {
		return
	}
	s.journal.Record(&CreditTransaction{
		OwnerKey:  ownerKey,
		AccountID: accountID,
		Delta:     delta,
		Reason:    reason,
		Remaining: remaining,
		EventID:   eventID,
	})
}

func newAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "rk_" + hex.EncodeToString(buf), nil
}
