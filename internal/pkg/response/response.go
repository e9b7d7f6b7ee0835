// Package response defines the JSON envelope shared by all HTTP handlers.
// Success responses carry code 0; error responses carry the HTTP status as
// code plus a stable reason string.
package response

import (
	"net/http"

	infraerrors "github.com/reelpostly/repostly/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response is the wire envelope for every API reply.
type Response struct {
	Code     int               `json:"code"`
	Message  string            `json:"message"`
	Reason   string            `json:"reason,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Data     any               `json:"data,omitempty"`
}

// Success writes a 200 envelope with the given payload.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error writes a bare error envelope with the given HTTP status.
func Error(c *gin.Context, status int, message string) {
	ErrorWithDetails(c, status, message, "", nil)
}

// ErrorWithDetails writes an error envelope with reason and metadata.
func ErrorWithDetails(c *gin.Context, status int, message, reason string, metadata map[string]string) {
	c.JSON(status, Response{
		Code:     status,
		Message:  message,
		Reason:   reason,
		Metadata: metadata,
	})
}

// BadRequest writes a 400 envelope.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized writes a 401 envelope.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// ErrorFrom writes the envelope for an application error. Unknown error
// types become a 500 with a generic message. Returns false when err is nil
// and nothing was written.
func ErrorFrom(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	appErr := infraerrors.FromError(err)
	ErrorWithDetails(c, appErr.Status, appErr.Message, appErr.Reason, appErr.Metadata)
	return true
}
