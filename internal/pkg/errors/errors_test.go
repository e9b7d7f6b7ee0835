//go:build unit

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_CarriesStatusReasonMessage(t *testing.T) {
	err := New(http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", "need 6 credits")
	require.Equal(t, http.StatusPaymentRequired, err.Status)
	require.Equal(t, "INSUFFICIENT_CREDITS", err.Reason)
	require.Contains(t, err.Error(), "need 6 credits")
}

func TestWithCause_Unwraps(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := ServiceUnavailable("UPSTREAM_UNAVAILABLE", "token endpoint unavailable").WithCause(cause)
	require.ErrorIs(t, err, cause)
}

func TestFromError_PassesThroughTypedErrors(t *testing.T) {
	typed := NotFound("NOT_CONNECTED", "no tiktok credential on file")
	got := FromError(fmt.Errorf("wrapped: %w", typed))
	require.Equal(t, http.StatusNotFound, got.Status)
	require.Equal(t, "NOT_CONNECTED", got.Reason)
}

func TestFromError_MasksUnknownErrors(t *testing.T) {
	got := FromError(errors.New("pq: connection reset by peer"))
	require.Equal(t, http.StatusInternalServerError, got.Status)
	require.Equal(t, UnknownMessage, got.Message)
	require.NotContains(t, got.Message, "pq:")
}

func TestIsReason(t *testing.T) {
	err := Unauthorized("AUTH_EXPIRED", "reconnect required")
	require.True(t, IsReason(err, "AUTH_EXPIRED"))
	require.False(t, IsReason(err, "NOT_CONNECTED"))
	require.False(t, IsReason(errors.New("plain"), "AUTH_EXPIRED"))
	require.True(t, IsReason(fmt.Errorf("wrap: %w", err), "AUTH_EXPIRED"))
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, StatusOf(BadRequest("DOWNLOAD_FAILED", "bad url")))
	require.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}

func TestWithMetadata(t *testing.T) {
	err := PaymentRequired("INSUFFICIENT_CREDITS", "not enough").
		WithMetadata(map[string]string{"needed": "6"})
	require.Equal(t, "6", err.Metadata["needed"])
}
