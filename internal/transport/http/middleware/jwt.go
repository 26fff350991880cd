package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lumina-knowledge-base/internal/pkg/jwtutil"
	"lumina-knowledge-base/internal/transport/http/response"
)

const (
	ContextUserIDKey       = "user_id"
	ContextUsernameKey     = "username"
	ContextTokenExpiresKey = "token_expires_at"
)

var (
	errMissingToken = errors.New("missing authorization header")
	errBadScheme    = errors.New("invalid authorization scheme")
)

// AuthJWT resolves the caller from a Bearer token. Documents and searches are
// scoped to the user id it places in the context.
func AuthJWT(secret string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("auth")

	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			reject(c, logger, err.Error(), err)
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		switch {
		case errors.Is(err, jwtutil.ErrTokenExpired):
			reject(c, logger, "token expired", err)
			return
		case err != nil:
			reject(c, logger, "invalid token", err)
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		if claims.ExpiresAt != nil {
			c.Set(ContextTokenExpiresKey, claims.ExpiresAt.Time)
		}
		c.Next()
	}
}

// bearerToken accepts the scheme in any case.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", errBadScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func reject(c *gin.Context, logger *zap.Logger, message string, err error) {
	logger.Debug("request rejected",
		zap.String("route", c.FullPath()),
		zap.String("client_ip", c.ClientIP()),
		zap.Error(err),
	)
	response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, message)
	c.Abort()
}
