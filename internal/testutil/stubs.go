//go:build unit

// Package testutil provides shared stubs, fixtures and helpers for unit
// tests. Everything carries the unit build tag so production builds never
// include it.
package testutil

import (
	"context"
	"time"

	"github.com/reelpostly/repostly/internal/pkg/oauth"
	"github.com/reelpostly/repostly/internal/service"
)

var _ service.CredentialRepository = (*MockCredentialRepo)(nil)

// MockCredentialRepo implements CredentialRepository with overridable
// function fields; unset fields return zero values.
type MockCredentialRepo struct {
	FindByIdentityFn           func(ctx context.Context, provider string, identity service.CredentialIdentity) (*service.CredentialRecord, error)
	GetByOwnerAndProviderFn    func(ctx context.Context, ownerKey, provider string) (*service.CredentialRecord, error)
	UpsertFn                   func(ctx context.Context, record *service.CredentialRecord) error
	UpdateTokensFn             func(ctx context.Context, id int64, accessToken string, refreshToken *string, expiresAt time.Time, scope string) error
	DeleteByOwnerAndProviderFn func(ctx context.Context, ownerKey, provider string) error
}

func (m *MockCredentialRepo) FindByIdentity(ctx context.Context, provider string, identity service.CredentialIdentity) (*service.CredentialRecord, error) {
	if m.FindByIdentityFn != nil {
		return m.FindByIdentityFn(ctx, provider, identity)
	}
	return nil, nil
}

func (m *MockCredentialRepo) GetByOwnerAndProvider(ctx context.Context, ownerKey, provider string) (*service.CredentialRecord, error) {
	if m.GetByOwnerAndProviderFn != nil {
		return m.GetByOwnerAndProviderFn(ctx, ownerKey, provider)
	}
	return nil, nil
}

func (m *MockCredentialRepo) Upsert(ctx context.Context, record *service.CredentialRecord) error {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, record)
	}
	return nil
}

func (m *MockCredentialRepo) UpdateTokens(ctx context.Context, id int64, accessToken string, refreshToken *string, expiresAt time.Time, scope string) error {
	if m.UpdateTokensFn != nil {
		return m.UpdateTokensFn(ctx, id, accessToken, refreshToken, expiresAt, scope)
	}
	return nil
}

func (m *MockCredentialRepo) DeleteByOwnerAndProvider(ctx context.Context, ownerKey, provider string) error {
	if m.DeleteByOwnerAndProviderFn != nil {
		return m.DeleteByOwnerAndProviderFn(ctx, ownerKey, provider)
	}
	return nil
}

var _ service.TokenClient = (*MockTokenClient)(nil)

// MockTokenClient implements the provider token endpoint surface.
type MockTokenClient struct {
	RefreshFn      func(ctx context.Context, endpoint oauth.Endpoint, app oauth.App, refreshToken string) (*oauth.TokenResponse, error)
	ExchangeCodeFn func(ctx context.Context, endpoint oauth.Endpoint, app oauth.App, code, codeVerifier string) (*oauth.TokenResponse, error)
}

func (m *MockTokenClient) Refresh(ctx context.Context, endpoint oauth.Endpoint, app oauth.App, refreshToken string) (*oauth.TokenResponse, error) {
	if m.RefreshFn != nil {
		return m.RefreshFn(ctx, endpoint, app, refreshToken)
	}
	return &oauth.TokenResponse{AccessToken: "stub-access", ExpiresIn: 3600}, nil
}

func (m *MockTokenClient) ExchangeCode(ctx context.Context, endpoint oauth.Endpoint, app oauth.App, code, codeVerifier string) (*oauth.TokenResponse, error) {
	if m.ExchangeCodeFn != nil {
		return m.ExchangeCodeFn(ctx, endpoint, app, code, codeVerifier)
	}
	return &oauth.TokenResponse{AccessToken: "stub-access", RefreshToken: "stub-refresh", ExpiresIn: 3600}, nil
}

var _ service.CreditRepository = (*MockCreditRepo)(nil)

// MockCreditRepo implements CreditRepository with overridable function
// fields.
type MockCreditRepo struct {
	GetAccountByIDFn          func(ctx context.Context, id string) (*service.APIKeyAccount, error)
	CreateAccountFn           func(ctx context.Context, account *service.APIKeyAccount) error
	ListActiveAccountsFn      func(ctx context.Context, ownerKey string) ([]service.APIKeyAccount, error)
	DecrementAccountBalanceFn func(ctx context.Context, accountID string, amount int64) (int64, bool, error)
	DecrementWalletBalanceFn  func(ctx context.Context, ownerKey string, amount int64) (int64, bool, error)
	IncrementAccountBalanceFn func(ctx context.Context, accountID string, amount int64) error
	IncrementWalletBalanceFn  func(ctx context.Context, ownerKey string, amount int64) error
	GetWalletFn               func(ctx context.Context, ownerKey string) (*service.UserWallet, error)
	RecordPurchaseStatsFn     func(ctx context.Context, ownerKey string, grossMinor, netMinor, credits int64) error
	OwnerBalanceFn            func(ctx context.Context, ownerKey string) (int64, error)
}

func (m *MockCreditRepo) GetAccountByID(ctx context.Context, id string) (*service.APIKeyAccount, error) {
	if m.GetAccountByIDFn != nil {
		return m.GetAccountByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *MockCreditRepo) CreateAccount(ctx context.Context, account *service.APIKeyAccount) error {
	if m.CreateAccountFn != nil {
		return m.CreateAccountFn(ctx, account)
	}
	return nil
}

func (m *MockCreditRepo) ListActiveAccounts(ctx context.Context, ownerKey string) ([]service.APIKeyAccount, error) {
	if m.ListActiveAccountsFn != nil {
		return m.ListActiveAccountsFn(ctx, ownerKey)
	}
	return nil, nil
}

func (m *MockCreditRepo) DecrementAccountBalance(ctx context.Context, accountID string, amount int64) (int64, bool, error) {
	if m.DecrementAccountBalanceFn != nil {
		return m.DecrementAccountBalanceFn(ctx, accountID, amount)
	}
	return 0, false, nil
}

func (m *MockCreditRepo) DecrementWalletBalance(ctx context.Context, ownerKey string, amount int64) (int64, bool, error) {
	if m.DecrementWalletBalanceFn != nil {
		return m.DecrementWalletBalanceFn(ctx, ownerKey, amount)
	}
	return 0, false, nil
}

func (m *MockCreditRepo) IncrementAccountBalance(ctx context.Context, accountID string, amount int64) error {
	if m.IncrementAccountBalanceFn != nil {
		return m.IncrementAccountBalanceFn(ctx, accountID, amount)
	}
	return nil
}

func (m *MockCreditRepo) IncrementWalletBalance(ctx context.Context, ownerKey string, amount int64) error {
	if m.IncrementWalletBalanceFn != nil {
		return m.IncrementWalletBalanceFn(ctx, ownerKey, amount)
	}
	return nil
}

func (m *MockCreditRepo) GetWallet(ctx context.Context, ownerKey string) (*service.UserWallet, error) {
	if m.GetWalletFn != nil {
		return m.GetWalletFn(ctx, ownerKey)
	}
	return nil, nil
}

func (m *MockCreditRepo) RecordPurchaseStats(ctx context.Context, ownerKey string, grossMinor, netMinor, credits int64) error {
	if m.RecordPurchaseStatsFn != nil {
		return m.RecordPurchaseStatsFn(ctx, ownerKey, grossMinor, netMinor, credits)
	}
	return nil
}

func (m *MockCreditRepo) OwnerBalance(ctx context.Context, ownerKey string) (int64, error) {
	if m.OwnerBalanceFn != nil {
		return m.OwnerBalanceFn(ctx, ownerKey)
	}
	return 0, nil
}

var _ service.WebhookEventRepository = (*MockWebhookEventRepo)(nil)

// MockWebhookEventRepo implements WebhookEventRepository in memory, keyed by
// event id, which is enough for idempotency tests.
type MockWebhookEventRepo struct {
	Events map[string]*service.WebhookEvent
}

func NewMockWebhookEventRepo() *MockWebhookEventRepo {
	return &MockWebhookEventRepo{Events: make(map[string]*service.WebhookEvent)}
}

func (m *MockWebhookEventRepo) CreateIfAbsent(_ context.Context, event *service.WebhookEvent) (bool, error) {
	if _, ok := m.Events[event.EventID]; ok {
		return false, nil
	}
	stored := *event
	m.Events[event.EventID] = &stored
	return true, nil
}

func (m *MockWebhookEventRepo) MarkCredited(_ context.Context, eventID, accountID string) error {
	if event, ok := m.Events[eventID]; ok {
		now := time.Now()
		event.CreditedAt = &now
		event.CreditedAccount = accountID
		event.ProcessingError = ""
	}
	return nil
}

func (m *MockWebhookEventRepo) MarkFailed(_ context.Context, eventID, message string) error {
	if event, ok := m.Events[eventID]; ok {
		event.ProcessingError = message
	}
	return nil
}

func (m *MockWebhookEventRepo) ListUncredited(_ context.Context, olderThan time.Time, limit int) ([]service.WebhookEvent, error) {
	var out []service.WebhookEvent
	for _, event := range m.Events {
		if event.CreditedAt == nil && event.Credits > 0 && event.ProcessedAt.Before(olderThan) {
			out = append(out, *event)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var _ service.MediaCacheRepository = (*MockMediaCacheRepo)(nil)

// MockMediaCacheRepo implements MediaCacheRepository in memory, keyed by
// content hash.
type MockMediaCacheRepo struct {
	Entries map[string]*service.MediaCacheEntry
}

func NewMockMediaCacheRepo() *MockMediaCacheRepo {
	return &MockMediaCacheRepo{Entries: make(map[string]*service.MediaCacheEntry)}
}

func (m *MockMediaCacheRepo) GetByHash(_ context.Context, contentHash string) (*service.MediaCacheEntry, error) {
	entry, ok := m.Entries[contentHash]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (m *MockMediaCacheRepo) CreateIfAbsent(_ context.Context, entry *service.MediaCacheEntry) (*service.MediaCacheEntry, error) {
	if existing, ok := m.Entries[entry.ContentHash]; ok {
		copied := *existing
		return &copied, nil
	}
	stored := *entry
	m.Entries[entry.ContentHash] = &stored
	copied := stored
	return &copied, nil
}

var _ service.JournalRepository = (*StubJournalRepo)(nil)

// StubJournalRepo records journal rows in memory.
type StubJournalRepo struct {
	Rows []*service.CreditTransaction
}

func (s *StubJournalRepo) Create(_ context.Context, tx *service.CreditTransaction) error {
	s.Rows = append(s.Rows, tx)
	return nil
}

var _ service.ObjectStore = (*StubObjectStore)(nil)

// StubObjectStore records uploads and returns deterministic URLs.
type StubObjectStore struct {
	Uploads   []string
	UploadErr error
}

func (s *StubObjectStore) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	s.Uploads = append(s.Uploads, key)
	return "https://cdn.test/" + key, nil
}

func (s *StubObjectStore) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://s3.test/presigned/" + key, nil
}
