package middleware

import (
	"net/http"
	"strings"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	apperrors "streamcast/pkg/errors"
	"streamcast/pkg/logger"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// AuthMiddleware resolves the bearer token to a user and rejects the request
// when that fails.
func AuthMiddleware(resolver ports.SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, apperrors.NewUnauthorizedError("bearer token required"))
			return
		}

		userID, err := resolver.ResolveUserID(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, apperrors.WrapError(err, apperrors.ErrCodeUnauthorized, err.Error(), http.StatusUnauthorized))
			return
		}

		setUser(c, userID)
		c.Next()
	}
}

// OptionalAuthMiddleware records the user when a valid token is present and
// lets anonymous requests through.
func OptionalAuthMiddleware(resolver ports.SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if userID, err := resolver.ResolveUserID(c.Request.Context(), token); err == nil {
				setUser(c, userID)
			}
		}
		c.Next()
	}
}

// UserID returns the user set by one of the auth middlewares.
func UserID(c *gin.Context) (domain.UserID, bool) {
	v, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(domain.UserID)
	return id, ok
}

func setUser(c *gin.Context, userID domain.UserID) {
	c.Set(userIDKey, userID)
	c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), userID))
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
