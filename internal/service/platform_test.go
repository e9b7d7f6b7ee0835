//go:build unit

package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTraitsFor_KnownProviders(t *testing.T) {
	for _, provider := range []string{PlatformTikTok, PlatformInstagram, PlatformYouTube, PlatformLinkedIn, PlatformFacebook, PlatformTwitter} {
		traits, ok := TraitsFor(provider)
		require.True(t, ok, provider)
		require.Equal(t, provider, traits.Provider)
		require.NotEmpty(t, traits.TokenEndpoint, provider)
	}
}

func TestTraitsFor_NormalizesInput(t *testing.T) {
	traits, ok := TraitsFor("  TikTok ")
	require.True(t, ok)
	require.Equal(t, PlatformTikTok, traits.Provider)

	_, ok = TraitsFor("myspace")
	require.False(t, ok)
}

func TestRotationFlags(t *testing.T) {
	rotating := map[string]bool{
		PlatformTikTok:    true,
		PlatformLinkedIn:  true,
		PlatformTwitter:   true,
		PlatformYouTube:   false,
		PlatformInstagram: false,
		PlatformFacebook:  false,
	}
	for provider, expect := range rotating {
		traits, ok := TraitsFor(provider)
		require.True(t, ok, provider)
		require.Equal(t, expect, traits.RotatesRefreshToken, provider)
	}
}

func TestLimitsFor_FallsBackToInstagram(t *testing.T) {
	require.Equal(t, 280, LimitsFor(PlatformTwitter).MaxCharacters)
	require.Equal(t, LimitsFor(PlatformInstagram), LimitsFor("unknown"))
	require.Equal(t, []string{MediaTypeVideo}, LimitsFor(PlatformTikTok).SupportedMedia)
}
