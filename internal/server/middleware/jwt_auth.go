package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/reelpostly/repostly/internal/config"
	"github.com/reelpostly/repostly/internal/pkg/response"
)

// Claims is the JWT payload for dashboard sessions. Subject carries the
// owner key.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTAuth authenticates requests by a Bearer token signed with the
// configured HS256 secret. It sets the owner key for downstream handlers.
func JWTAuth(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Set(ctxKeyOwnerKey, claims.Subject)
		c.Next()
	}
}

// IssueToken signs a session token for ownerKey. Used by tests and the auth
// surface.
func IssueToken(cfg config.JWTConfig, ownerKey string) (string, error) {
	expire := time.Duration(cfg.AccessTokenExpireMinutes) * time.Minute
	if expire <= 0 {
		expire = time.Hour
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expire)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}
