package service

import (
	"context"
	"time"
)

// Stable reason codes surfaced in error envelopes. Handlers and clients
// branch on these, never on message text.
const (
	ReasonNotConnected        = "NOT_CONNECTED"
	ReasonAuthExpired         = "AUTH_EXPIRED"
	ReasonUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ReasonInsufficientCredits = "INSUFFICIENT_CREDITS"
	ReasonUnauthorized        = "UNAUTHORIZED"
	ReasonDuplicateEvent      = "DUPLICATE_EVENT"
	ReasonDownloadFailed      = "DOWNLOAD_FAILED"
	ReasonRehostFailed        = "REHOST_FAILED"
	ReasonMisconfigured       = "MISCONFIGURED"
)

// Account statuses.
const (
	AccountStatusActive  = "active"
	AccountStatusRevoked = "revoked"
)

// CredentialRecord is the durable per-(owner, provider) OAuth2 credential.
// At most one active record exists per pair; refreshes mutate it in place
// and either fully replace the token triple or leave it untouched.
type CredentialRecord struct {
	ID                  int64     `gorm:"primaryKey" json:"id"`
	OwnerKey            string    `gorm:"size:128;not null;uniqueIndex:ux_credentials_owner_provider,priority:1" json:"owner_key"`
	Provider            string    `gorm:"size:32;not null;uniqueIndex:ux_credentials_owner_provider,priority:2" json:"provider"`
	ProviderUserID      string    `gorm:"size:191;index" json:"provider_user_id"`
	Email               string    `gorm:"size:200;index" json:"email"`
	AccessToken         string    `gorm:"type:text;not null" json:"-"`
	RefreshToken        string    `gorm:"type:text" json:"-"`
	TokenType           string    `gorm:"size:32" json:"token_type"`
	Scope               string    `gorm:"type:text" json:"scope"`
	ExpiresAt           time.Time `gorm:"not null" json:"expires_at"`
	RotatesRefreshToken bool      `json:"rotates_refresh_token"`
	LastRefreshedAt     time.Time `json:"last_refreshed_at"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// APIKeyAccount is a metered credit account; its ID doubles as the API key.
type APIKeyAccount struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	OwnerKey     string    `gorm:"size:128;not null;index" json:"owner_key"`
	Balance      int64     `gorm:"not null;default:0" json:"balance"`
	InitialGrant int64     `gorm:"not null;default:0" json:"initial_grant"`
	Status       string    `gorm:"size:16;not null;default:'active';index" json:"status"`
	PlanID       string    `gorm:"size:32;default:'starter'" json:"plan_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserWallet is the owner-scoped balance plus cumulative purchase statistics.
// Statistics are updated for every reconciled payment regardless of which
// destination the credits land on.
type UserWallet struct {
	OwnerKey              string    `gorm:"primaryKey;size:128" json:"owner_key"`
	Balance               int64     `gorm:"not null;default:0" json:"balance"`
	TotalPaidNet          int64     `gorm:"not null;default:0" json:"total_paid_net"`
	TotalPaidGross        int64     `gorm:"not null;default:0" json:"total_paid_gross"`
	TotalPurchases        int64     `gorm:"not null;default:0" json:"total_purchases"`
	TotalCreditsPurchased int64     `gorm:"not null;default:0" json:"total_credits_purchased"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// WebhookEvent is the idempotency marker for an external payment event,
// enriched with enough context for the reconciliation sweep to retry a grant
// that failed after the marker was written. The unique EventID index gives
// create-if-absent semantics.
type WebhookEvent struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	EventID         string     `gorm:"size:191;not null;uniqueIndex" json:"event_id"`
	Provider        string     `gorm:"size:20;not null;default:'stripe'" json:"provider"`
	EventType       string     `gorm:"size:100;not null" json:"event_type"`
	OwnerKey        string     `gorm:"size:128;index" json:"owner_key"`
	Credits         int64      `gorm:"not null;default:0" json:"credits"`
	AmountGross     int64      `gorm:"not null;default:0" json:"amount_gross"`
	AmountNet       int64      `gorm:"not null;default:0" json:"amount_net"`
	PayloadJSON     string     `gorm:"type:text" json:"-"`
	ProcessedAt     time.Time  `gorm:"not null" json:"processed_at"`
	CreditedAt      *time.Time `json:"credited_at,omitempty"`
	CreditedAccount string     `gorm:"size:64" json:"credited_account,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// MediaCacheEntry maps a content hash to its canonical rehosted URL. The
// durable row is the source of truth; in-process caches are rebuilt from it.
type MediaCacheEntry struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	ContentHash  string    `gorm:"size:64;not null;uniqueIndex" json:"content_hash"`
	CanonicalURL string    `gorm:"size:1024;not null" json:"canonical_url"`
	MediaType    string    `gorm:"size:16;not null" json:"media_type"`
	SizeBytes    int64     `json:"size_bytes"`
	SourceURL    string    `gorm:"size:1024" json:"source_url"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CreditTransaction is an append-only journal row, written asynchronously.
// Balances are authoritative; the journal exists for reporting and can be
// rebuilt without affecting correctness.
type CreditTransaction struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerKey  string    `gorm:"size:128;not null;index" json:"owner_key"`
	AccountID string    `gorm:"size:64;index" json:"account_id,omitempty"`
	Delta     int64     `gorm:"not null" json:"delta"`
	Reason    string    `gorm:"size:32;not null" json:"reason"` // consume | grant | bonus
	Remaining int64     `json:"remaining"`
	EventID   string    `gorm:"size:191" json:"event_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CredentialIdentity carries the identifier forms a caller may know for the
// owner of a credential. Resolution prefers the provider-native id, then the
// internal owner key, then the email, most stable first.
type CredentialIdentity struct {
	ProviderUserID string
	OwnerKey       string
	Email          string
}

// CredentialRepository persists credential records. Lookups return (nil, nil)
// when no record exists.
type CredentialRepository interface {
	FindByIdentity(ctx context.Context, provider string, identity CredentialIdentity) (*CredentialRecord, error)
	GetByOwnerAndProvider(ctx context.Context, ownerKey, provider string) (*CredentialRecord, error)
	Upsert(ctx context.Context, record *CredentialRecord) error
	// UpdateTokens atomically replaces the token triple for record id.
	// refreshToken is applied only when non-nil (providers that do not
	// rotate omit it on refresh).
	UpdateTokens(ctx context.Context, id int64, accessToken string, refreshToken *string, expiresAt time.Time, scope string) error
	DeleteByOwnerAndProvider(ctx context.Context, ownerKey, provider string) error
}

// CreditRepository persists accounts, wallets and their balances. All
// balance mutations are conditional or unconditional single-statement
// updates; no read-modify-write.
type CreditRepository interface {
	GetAccountByID(ctx context.Context, id string) (*APIKeyAccount, error)
	CreateAccount(ctx context.Context, account *APIKeyAccount) error
	// ListActiveAccounts returns the owner's active accounts newest-first
	// (created_at DESC, then id DESC for deterministic ties).
	ListActiveAccounts(ctx context.Context, ownerKey string) ([]APIKeyAccount, error)
	// DecrementAccountBalance applies balance -= amount iff balance >= amount
	// and the account is active. ok is false when the guard failed.
	DecrementAccountBalance(ctx context.Context, accountID string, amount int64) (remaining int64, ok bool, err error)
	DecrementWalletBalance(ctx context.Context, ownerKey string, amount int64) (remaining int64, ok bool, err error)
	IncrementAccountBalance(ctx context.Context, accountID string, amount int64) error
	// IncrementWalletBalance upserts the wallet row and adds amount.
	IncrementWalletBalance(ctx context.Context, ownerKey string, amount int64) error
	GetWallet(ctx context.Context, ownerKey string) (*UserWallet, error)
	// RecordPurchaseStats upserts the wallet row and accumulates purchase
	// statistics without touching the balance.
	RecordPurchaseStats(ctx context.Context, ownerKey string, grossMinor, netMinor, credits int64) error
	// OwnerBalance sums active account balances plus the wallet balance.
	OwnerBalance(ctx context.Context, ownerKey string) (int64, error)
}

// WebhookEventRepository persists idempotency markers.
type WebhookEventRepository interface {
	// CreateIfAbsent inserts the marker; created is false when a marker for
	// the same EventID already exists.
	CreateIfAbsent(ctx context.Context, event *WebhookEvent) (created bool, err error)
	MarkCredited(ctx context.Context, eventID, accountID string) error
	MarkFailed(ctx context.Context, eventID, message string) error
	// ListUncredited returns markers whose grant has not completed, oldest
	// first, skipping markers newer than olderThan.
	ListUncredited(ctx context.Context, olderThan time.Time, limit int) ([]WebhookEvent, error)
}

// MediaCacheRepository persists content-hash → canonical-URL mappings.
type MediaCacheRepository interface {
	GetByHash(ctx context.Context, contentHash string) (*MediaCacheEntry, error)
	// CreateIfAbsent inserts the entry, returning the stored row (the
	// existing one when another writer got there first).
	CreateIfAbsent(ctx context.Context, entry *MediaCacheEntry) (*MediaCacheEntry, error)
}

// JournalRepository appends credit transaction journal rows.
type JournalRepository interface {
	Create(ctx context.Context, tx *CreditTransaction) error
}
