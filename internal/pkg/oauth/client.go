// Package oauth implements the provider-facing OAuth2 calls: authorization
// URL construction, code exchange and token refresh. Providers differ only
// in endpoints and a couple of traits; everything here is shaped by RFC 6749
// plus PKCE.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidGrant marks a refresh token the provider no longer accepts; the
// only recovery is user re-authorization.
var ErrInvalidGrant = errors.New("oauth: invalid grant")

// ErrUpstream marks transient transport or provider-side failures; the
// stored credential remains valid until its own expiry.
var ErrUpstream = errors.New("oauth: upstream unavailable")

// TokenResponse is the provider token endpoint reply. RefreshToken is empty
// when the provider reuses the existing one.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	OpenID       string `json:"open_id,omitempty"` // provider-native user id, TikTok-style
}

// App holds one OAuth application registration.
type App struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Endpoint describes where and how to talk to one provider.
type Endpoint struct {
	AuthorizeURL string
	TokenURL     string
	// SecretInBody sends client credentials form-encoded instead of via
	// HTTP basic auth.
	SecretInBody bool
}

// Client performs token endpoint calls with a bounded timeout.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client; timeout bounds every token endpoint call.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Refresh exchanges a refresh token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, endpoint Endpoint, app App, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.postToken(ctx, endpoint, app, form)
}

// ExchangeCode exchanges an authorization code for the initial token set.
// codeVerifier may be empty for providers without PKCE.
func (c *Client) ExchangeCode(ctx context.Context, endpoint Endpoint, app App, code, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", app.RedirectURI)
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}
	return c.postToken(ctx, endpoint, app, form)
}

func (c *Client) postToken(ctx context.Context, endpoint Endpoint, app App, form url.Values) (*TokenResponse, error) {
	if endpoint.SecretInBody {
		form.Set("client_id", app.ClientID)
		form.Set("client_secret", app.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if !endpoint.SecretInBody {
		req.SetBasicAuth(url.QueryEscape(app.ClientID), url.QueryEscape(app.ClientSecret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: status %d: %s", ErrInvalidGrant, resp.StatusCode, oauthErrorCode(body))
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: response missing access_token", ErrUpstream)
	}
	return &token, nil
}

func oauthErrorCode(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		return "unknown_error"
	}
	return payload.Error
}

// GenerateState returns a random URL-safe state value.
func GenerateState() (string, error) {
	return randomToken(24)
}

// GenerateCodeVerifier returns a PKCE code verifier.
func GenerateCodeVerifier() (string, error) {
	return randomToken(48)
}

// GenerateCodeChallenge derives the S256 code challenge for a verifier.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// BuildAuthorizationURL constructs the provider consent URL.
func BuildAuthorizationURL(endpoint Endpoint, app App, scopes []string, state, codeChallenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", app.ClientID)
	q.Set("redirect_uri", app.RedirectURI)
	q.Set("state", state)
	if len(scopes) > 0 {
		q.Set("scope", strings.Join(scopes, " "))
	}
	if codeChallenge != "" {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", "S256")
	}
	sep := "?"
	if strings.Contains(endpoint.AuthorizeURL, "?") {
		sep = "&"
	}
	return endpoint.AuthorizeURL + sep + q.Encode()
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
