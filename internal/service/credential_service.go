package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/reelpostly/repostly/internal/config"
	infraerrors "github.com/reelpostly/repostly/internal/pkg/errors"
	"github.com/reelpostly/repostly/internal/pkg/logger"
	"github.com/reelpostly/repostly/internal/pkg/oauth"
)

// connectSessionTTL bounds how long a started authorization flow stays
// redeemable.
const connectSessionTTL = 10 * time.Minute

// defaultTokenLifetime is assumed when a provider omits expires_in.
const defaultTokenLifetime = time.Hour

// TokenClient is the provider token endpoint surface the credential service
// depends on.
type TokenClient interface {
	Refresh(ctx context.Context, endpoint oauth.Endpoint, app oauth.App, refreshToken string) (*oauth.TokenResponse, error)
	ExchangeCode(ctx context.Context, endpoint oauth.Endpoint, app oauth.App, code, codeVerifier string) (*oauth.TokenResponse, error)
}

type connectSession struct {
	OwnerKey     string
	Provider     string
	CodeVerifier string
}

// CredentialService manages the OAuth2 credential lifecycle: connect flows,
// token freshness and single-flighted refresh.
type CredentialService struct {
	repo     CredentialRepository
	client   TokenClient
	cfg      *config.Config
	sessions *gocache.Cache
	// flight collapses concurrent refreshes of the same (owner, provider)
	// pair into one provider call.
	flight singleflight.Group
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(repo CredentialRepository, client TokenClient, cfg *config.Config) *CredentialService {
	return &CredentialService{
		repo:     repo,
		client:   client,
		cfg:      cfg,
		sessions: gocache.New(connectSessionTTL, connectSessionTTL),
	}
}

// AuthorizationURL starts a connect flow for ownerKey on provider and
// returns the consent URL the user should be sent to. The state value keys a
// short-lived session holding the PKCE verifier.
func (s *CredentialService) AuthorizationURL(ownerKey, provider string) (string, error) {
	traits, app, err := s.providerSetup(provider)
	if err != nil {
		return "", err
	}

	state, err := oauth.GenerateState()
	if err != nil {
		return "", infraerrors.Internal(ReasonMisconfigured, "generate state").WithCause(err)
	}
	verifier, err := oauth.GenerateCodeVerifier()
	if err != nil {
		return "", infraerrors.Internal(ReasonMisconfigured, "generate code verifier").WithCause(err)
	}

	s.sessions.Set(sessionKey(state), connectSession{
		OwnerKey:     ownerKey,
		Provider:     traits.Provider,
		CodeVerifier: verifier,
	}, connectSessionTTL)

	endpoint := oauth.Endpoint{AuthorizeURL: traits.AuthorizeEndpoint, TokenURL: traits.TokenEndpoint, SecretInBody: traits.SecretInBody}
	return oauth.BuildAuthorizationURL(endpoint, app, traits.Scopes, state, oauth.GenerateCodeChallenge(verifier)), nil
}

// CompleteConnect redeems the provider callback: it validates state,
// exchanges the code and stores the resulting credential, replacing any
// previous credential for the same (owner, provider) pair.
func (s *CredentialService) CompleteConnect(ctx context.Context, provider, state, code string) (*CredentialRecord, error) {
	cached, ok := s.sessions.Get(sessionKey(state))
	if !ok {
		return nil, infraerrors.BadRequest(ReasonUnauthorized, "unknown or expired state")
	}
	s.sessions.Delete(sessionKey(state))
	session := cached.(connectSession)
	if session.Provider != normalizeProvider(provider) {
		return nil, infraerrors.BadRequest(ReasonUnauthorized, "state does not match provider")
	}

	traits, app, err := s.providerSetup(provider)
	if err != nil {
		return nil, err
	}
	endpoint := oauth.Endpoint{TokenURL: traits.TokenEndpoint, SecretInBody: traits.SecretInBody}

	exchangeCtx, cancel := context.WithTimeout(ctx, s.cfg.RefreshTimeout())
	defer cancel()
	token, err := s.client.ExchangeCode(exchangeCtx, endpoint, app, code, session.CodeVerifier)
	if err != nil {
		return nil, mapTokenError(err, traits.Provider)
	}

	record := &CredentialRecord{
		OwnerKey:            session.OwnerKey,
		Provider:            traits.Provider,
		ProviderUserID:      token.OpenID,
		AccessToken:         token.AccessToken,
		RefreshToken:        token.RefreshToken,
		TokenType:           token.TokenType,
		Scope:               token.Scope,
		ExpiresAt:           expiryFrom(token, time.Now()),
		RotatesRefreshToken: traits.RotatesRefreshToken,
		LastRefreshedAt:     time.Now(),
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "store credential").WithCause(err)
	}
	logger.Info("credential connected",
		zap.String("owner_key", session.OwnerKey),
		zap.String("provider", traits.Provider))
	return record, nil
}

// GetValidAccessToken returns an access token for (ownerKey, provider) with
// at least the configured freshness window remaining, refreshing first when
// needed.
func (s *CredentialService) GetValidAccessToken(ctx context.Context, ownerKey, provider string) (string, error) {
	record, err := s.repo.GetByOwnerAndProvider(ctx, ownerKey, normalizeProvider(provider))
	if err != nil {
		return "", infraerrors.Internal(ReasonMisconfigured, "load credential").WithCause(err)
	}
	return s.freshToken(ctx, record, provider)
}

// ResolveAccessToken is GetValidAccessToken for callers that only hold an
// external identifier. Resolution prefers the provider-native user id, then
// the owner key, then the email.
func (s *CredentialService) ResolveAccessToken(ctx context.Context, provider string, identity CredentialIdentity) (string, error) {
	record, err := s.repo.FindByIdentity(ctx, normalizeProvider(provider), identity)
	if err != nil {
		return "", infraerrors.Internal(ReasonMisconfigured, "resolve credential").WithCause(err)
	}
	return s.freshToken(ctx, record, provider)
}

// Disconnect removes the stored credential for (ownerKey, provider).
func (s *CredentialService) Disconnect(ctx context.Context, ownerKey, provider string) error {
	if !ValidPlatform(provider) {
		return infraerrors.BadRequest(ReasonMisconfigured, fmt.Sprintf("unsupported provider %q", provider))
	}
	if err := s.repo.DeleteByOwnerAndProvider(ctx, ownerKey, normalizeProvider(provider)); err != nil {
		return infraerrors.Internal(ReasonMisconfigured, "delete credential").WithCause(err)
	}
	return nil
}

func (s *CredentialService) freshToken(ctx context.Context, record *CredentialRecord, provider string) (string, error) {
	if record == nil {
		return "", infraerrors.NotFound(ReasonNotConnected, fmt.Sprintf("no %s credential on file", normalizeProvider(provider)))
	}
	if s.isFresh(record, time.Now()) {
		return record.AccessToken, nil
	}
	refreshed, err := s.refresh(ctx, record)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (s *CredentialService) isFresh(record *CredentialRecord, now time.Time) bool {
	return record.ExpiresAt.Sub(now) > s.cfg.RefreshWindow()
}

// refresh performs the single-flighted token refresh for record. The winner
// persists the new token triple before anyone observes it; losers share the
// winner's result.
func (s *CredentialService) refresh(ctx context.Context, record *CredentialRecord) (*CredentialRecord, error) {
	key := record.OwnerKey + "|" + record.Provider
	result, err, _ := s.flight.Do(key, func() (any, error) {
		// Re-read inside the flight: a refresh finishing just before we
		// joined already stored a fresh token.
		current, err := s.repo.GetByOwnerAndProvider(ctx, record.OwnerKey, record.Provider)
		if err != nil {
			return nil, infraerrors.Internal(ReasonMisconfigured, "load credential").WithCause(err)
		}
		if current == nil {
			return nil, infraerrors.NotFound(ReasonNotConnected, fmt.Sprintf("no %s credential on file", record.Provider))
		}
		if s.isFresh(current, time.Now()) {
			return current, nil
		}
		return s.refreshNow(current)
	})
	if err != nil {
		return nil, err
	}
	return result.(*CredentialRecord), nil
}

func (s *CredentialService) refreshNow(record *CredentialRecord) (*CredentialRecord, error) {
	if record.RefreshToken == "" {
		return nil, infraerrors.Unauthorized(ReasonAuthExpired, fmt.Sprintf("%s authorization expired, reconnect required", record.Provider))
	}
	traits, app, err := s.providerSetup(record.Provider)
	if err != nil {
		return nil, err
	}
	endpoint := oauth.Endpoint{TokenURL: traits.TokenEndpoint, SecretInBody: traits.SecretInBody}

	// Detached from the caller so one cancelled waiter cannot fail a refresh
	// other flights depend on.
	refreshCtx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshTimeout())
	defer cancel()

	token, err := s.client.Refresh(refreshCtx, endpoint, app, record.RefreshToken)
	if err != nil {
		logger.Warn("token refresh failed",
			zap.String("owner_key", record.OwnerKey),
			zap.String("provider", record.Provider),
			zap.Error(err))
		return nil, mapTokenError(err, record.Provider)
	}

	now := time.Now()
	expiresAt := expiryFrom(token, now)
	scope := token.Scope
	if scope == "" {
		scope = record.Scope
	}
	var newRefresh *string
	if token.RefreshToken != "" {
		newRefresh = &token.RefreshToken
	}

	// Persist before returning the token so no caller ever holds an access
	// token the store does not know about.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer persistCancel()
	if err := s.repo.UpdateTokens(persistCtx, record.ID, token.AccessToken, newRefresh, expiresAt, scope); err != nil {
		return nil, infraerrors.Internal(ReasonMisconfigured, "store refreshed token").WithCause(err)
	}

	updated := *record
	updated.AccessToken = token.AccessToken
	if newRefresh != nil {
		updated.RefreshToken = *newRefresh
	}
	updated.ExpiresAt = expiresAt
	updated.Scope = scope
	updated.LastRefreshedAt = now

	logger.Info("token refreshed",
		zap.String("owner_key", record.OwnerKey),
		zap.String("provider", record.Provider),
		zap.Time("expires_at", expiresAt),
		zap.Bool("rotated", newRefresh != nil))
	return &updated, nil
}

func (s *CredentialService) providerSetup(provider string) (ProviderTraits, oauth.App, error) {
	traits, ok := TraitsFor(provider)
	if !ok {
		return ProviderTraits{}, oauth.App{}, infraerrors.BadRequest(ReasonMisconfigured, fmt.Sprintf("unsupported provider %q", provider))
	}
	appCfg, ok := s.cfg.Credential.Providers[traits.Provider]
	if !ok || appCfg.ClientID == "" {
		return ProviderTraits{}, oauth.App{}, infraerrors.Internal(ReasonMisconfigured, fmt.Sprintf("provider %s is not configured", traits.Provider))
	}
	return traits, oauth.App{
		ClientID:     appCfg.ClientID,
		ClientSecret: appCfg.ClientSecret,
		RedirectURI:  appCfg.RedirectURI,
	}, nil
}

func mapTokenError(err error, provider string) error {
	if errors.Is(err, oauth.ErrInvalidGrant) {
		return infraerrors.Unauthorized(ReasonAuthExpired, fmt.Sprintf("%s authorization expired, reconnect required", provider)).WithCause(err)
	}
	return infraerrors.ServiceUnavailable(ReasonUpstreamUnavailable, fmt.Sprintf("%s token endpoint unavailable", provider)).WithCause(err)
}

func expiryFrom(token *oauth.TokenResponse, now time.Time) time.Time {
	lifetime := defaultTokenLifetime
	if token.ExpiresIn > 0 {
		lifetime = time.Duration(token.ExpiresIn) * time.Second
	}
	return now.Add(lifetime)
}

func sessionKey(state string) string {
	return "connect:" + state
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
