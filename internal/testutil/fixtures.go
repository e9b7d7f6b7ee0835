//go:build unit

package testutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/reelpostly/repostly/internal/config"
	"github.com/reelpostly/repostly/internal/service"
)

// NewTestConfig returns a config with sane test defaults; override via opts.
func NewTestConfig(opts ...func(*config.Config)) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = ":memory:"
	cfg.JWT.Secret = "test-jwt-secret-32bytes-long!!!!"
	cfg.JWT.AccessTokenExpireMinutes = 60
	cfg.Credential.RefreshWindowSeconds = 300
	cfg.Credential.RefreshTimeoutSeconds = 5
	cfg.Credential.Providers = map[string]config.ProviderApp{
		service.PlatformTikTok:    {ClientID: "tt-client", ClientSecret: "tt-secret", RedirectURI: "https://app.test/callback/tiktok"},
		service.PlatformInstagram: {ClientID: "ig-client", ClientSecret: "ig-secret", RedirectURI: "https://app.test/callback/instagram"},
		service.PlatformYouTube:   {ClientID: "yt-client", ClientSecret: "yt-secret", RedirectURI: "https://app.test/callback/youtube"},
	}
	cfg.Credits.RatePerUSD = 5
	cfg.Credits.InitialGrant = 10
	cfg.Credits.DefaultCost = 10
	cfg.Credits.Pricing = map[string]int64{"video.generate": 25}
	cfg.Stripe.WebhookSecret = "whsec_test_secret"
	cfg.Stripe.ToleranceSeconds = 300
	cfg.Media.MaxDownloadBytes = 10 << 20
	cfg.Media.DownloadTimeoutSeconds = 5
	cfg.Media.CacheMaxEntries = 1000
	cfg.Media.CanonicalHosts = []string{"cdn.test"}
	cfg.S3.Bucket = "test-bucket"
	cfg.S3.Region = "us-east-1"
	cfg.Sweep.Schedule = "@every 5m"
	cfg.Sweep.GraceSeconds = 60
	cfg.Sweep.BatchSize = 100
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewTestCredential creates a usable credential record; override via opts.
func NewTestCredential(opts ...func(*service.CredentialRecord)) *service.CredentialRecord {
	record := &service.CredentialRecord{
		ID:           1,
		OwnerKey:     "owner-1",
		Provider:     service.PlatformTikTok,
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		TokenType:    "Bearer",
		Scope:        "video.publish",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
	}
	for _, opt := range opts {
		opt(record)
	}
	return record
}

// NewTestAccount creates an active API-key account; override via opts.
func NewTestAccount(opts ...func(*service.APIKeyAccount)) *service.APIKeyAccount {
	account := &service.APIKeyAccount{
		ID:           "rk_testaccount000000000000000000000000000000000000",
		OwnerKey:     "owner-1",
		Balance:      10,
		InitialGrant: 10,
		Status:       service.AccountStatusActive,
		PlanID:       "starter",
		CreatedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(account)
	}
	return account
}

// CheckoutSessionPayload builds a checkout.session.completed event body.
func CheckoutSessionPayload(eventID, ownerKey string, amountTotal int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"client_reference_id": %q,
				"amount_total": %d,
				"amount_subtotal": %d,
				"currency": "usd",
				"payment_status": "paid"
			}
		}
	}`, eventID, ownerKey, amountTotal, amountTotal))
}

// StripeSignature computes a valid Stripe-Signature header for payload.
func StripeSignature(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
