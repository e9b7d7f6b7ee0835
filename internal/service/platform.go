package service

import "strings"

// Supported publishing platforms.
const (
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformYouTube   = "youtube"
	PlatformLinkedIn  = "linkedin"
	PlatformFacebook  = "facebook"
	PlatformTwitter   = "twitter"
)

// Media types the cache distinguishes.
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// ProviderTraits is the small per-provider behavior set the credential
// lifecycle manager is parameterized by. Everything else about a provider
// lives in its (out of scope) adapter.
type ProviderTraits struct {
	Provider          string
	AuthorizeEndpoint string
	TokenEndpoint     string
	// RotatesRefreshToken marks providers that issue a new refresh token on
	// every refresh; for these, losing the response invalidates the stored
	// token, which is why refresh is single-flighted.
	RotatesRefreshToken bool
	// SecretInBody selects form-encoded client credentials over basic auth.
	SecretInBody bool
	Scopes       []string
}

// PlatformLimits captures per-platform posting constraints used for request
// validation before an adapter is invoked.
type PlatformLimits struct {
	MaxCharacters  int
	MaxHashtags    int
	SupportedMedia []string
}

var providerTraits = map[string]ProviderTraits{
	PlatformTikTok: {
		Provider:            PlatformTikTok,
		AuthorizeEndpoint:   "https://www.tiktok.com/v2/auth/authorize/",
		TokenEndpoint:       "https://open.tiktokapis.com/v2/oauth/token/",
		RotatesRefreshToken: true,
		SecretInBody:        true,
		Scopes:              []string{"user.info.basic", "video.publish"},
	},
	PlatformInstagram: {
		Provider:            PlatformInstagram,
		AuthorizeEndpoint:   "https://api.instagram.com/oauth/authorize",
		TokenEndpoint:       "https://graph.instagram.com/refresh_access_token",
		RotatesRefreshToken: false,
		SecretInBody:        true,
		Scopes:              []string{"instagram_basic", "instagram_content_publish"},
	},
	PlatformYouTube: {
		Provider:            PlatformYouTube,
		AuthorizeEndpoint:   "https://accounts.google.com/o/oauth2/v2/auth",
		TokenEndpoint:       "https://oauth2.googleapis.com/token",
		RotatesRefreshToken: false,
		SecretInBody:        true,
		Scopes:              []string{"https://www.googleapis.com/auth/youtube.upload"},
	},
	PlatformLinkedIn: {
		Provider:            PlatformLinkedIn,
		AuthorizeEndpoint:   "https://www.linkedin.com/oauth/v2/authorization",
		TokenEndpoint:       "https://www.linkedin.com/oauth/v2/accessToken",
		RotatesRefreshToken: true,
		SecretInBody:        true,
		Scopes:              []string{"w_member_social"},
	},
	PlatformFacebook: {
		Provider:            PlatformFacebook,
		AuthorizeEndpoint:   "https://www.facebook.com/v19.0/dialog/oauth",
		TokenEndpoint:       "https://graph.facebook.com/v19.0/oauth/access_token",
		RotatesRefreshToken: false,
		SecretInBody:        true,
		Scopes:              []string{"pages_manage_posts"},
	},
	PlatformTwitter: {
		Provider:            PlatformTwitter,
		AuthorizeEndpoint:   "https://twitter.com/i/oauth2/authorize",
		TokenEndpoint:       "https://api.twitter.com/2/oauth2/token",
		RotatesRefreshToken: true,
		SecretInBody:        false,
		Scopes:              []string{"tweet.read", "tweet.write", "offline.access"},
	},
}

var platformLimits = map[string]PlatformLimits{
	PlatformInstagram: {MaxCharacters: 2200, MaxHashtags: 30, SupportedMedia: []string{"image", "video", "carousel"}},
	PlatformTwitter:   {MaxCharacters: 280, MaxHashtags: 10, SupportedMedia: []string{"image", "video", "gif"}},
	PlatformFacebook:  {MaxCharacters: 63206, MaxHashtags: 30, SupportedMedia: []string{"image", "video", "carousel", "link"}},
	PlatformLinkedIn:  {MaxCharacters: 3000, MaxHashtags: 15, SupportedMedia: []string{"image", "video", "document"}},
	PlatformTikTok:    {MaxCharacters: 150, MaxHashtags: 30, SupportedMedia: []string{"video"}},
	PlatformYouTube:   {MaxCharacters: 5000, MaxHashtags: 15, SupportedMedia: []string{"video"}},
}

// TraitsFor returns the traits for a provider, normalizing case.
func TraitsFor(provider string) (ProviderTraits, bool) {
	traits, ok := providerTraits[strings.ToLower(strings.TrimSpace(provider))]
	return traits, ok
}

// ValidPlatform reports whether provider is a supported platform.
func ValidPlatform(provider string) bool {
	_, ok := providerTraits[strings.ToLower(strings.TrimSpace(provider))]
	return ok
}

// LimitsFor returns posting limits for a platform; Instagram limits are the
// fallback for unknown input, matching historical behavior.
func LimitsFor(platform string) PlatformLimits {
	if limits, ok := platformLimits[strings.ToLower(strings.TrimSpace(platform))]; ok {
		return limits
	}
	return platformLimits[PlatformInstagram]
}
