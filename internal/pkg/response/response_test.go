//go:build unit

package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/reelpostly/repostly/internal/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSuccess_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	Success(c, gin.H{"credits": 42})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, 0, body.Code)
	require.Equal(t, "success", body.Message)
}

func TestErrorFrom_TypedError(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	ErrorFrom(c, infraerrors.PaymentRequired("INSUFFICIENT_CREDITS", "need 6 credits"))

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decode(t, rec)
	require.Equal(t, http.StatusPaymentRequired, body.Code)
	require.Equal(t, "INSUFFICIENT_CREDITS", body.Reason)
	require.Equal(t, "need 6 credits", body.Message)
}

func TestErrorFrom_UnknownErrorIsMasked(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	ErrorFrom(c, errors.New("secret internal detail"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	require.Equal(t, infraerrors.UnknownMessage, body.Message)
	require.NotContains(t, rec.Body.String(), "secret internal detail")
}

func TestBadRequestAndUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	BadRequest(c, "url is required")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	Unauthorized(c, "missing api key")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
