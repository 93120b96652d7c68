package middleware

import (
	"context"
	"errors"
	"net/http"

	"streamcast/internal/core/domain"
	apperrors "streamcast/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last error attached to the gin context.
// Domain errors map to their HTTP meaning; anything else is a 500.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := toAppError(c.Errors.Last().Err)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", appErr.Error(),
			)
		} else {
			logger.Debugw("request rejected",
				"code", appErr.Code,
				"path", c.Request.URL.Path,
				"error", appErr.Error(),
			)
		}

		writeError(c, appErr)
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				abortWithError(c, apperrors.NewInternalError("internal server error"))
			}
		}()

		c.Next()
	}
}

func toAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrStreamNotFound):
		return apperrors.WrapError(err, apperrors.ErrCodeNotFound, "stream not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidToken), errors.Is(err, domain.ErrUserUnknown):
		return apperrors.WrapError(err, apperrors.ErrCodeUnauthorized, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "store unavailable", http.StatusServiceUnavailable)
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "internal server error", http.StatusInternalServerError)
	}
}

func writeError(c *gin.Context, appErr *apperrors.AppError) {
	body := gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	}
	if len(appErr.Context) > 0 {
		body["details"] = appErr.Context
	}
	c.JSON(appErr.HTTPStatus, body)
}

func abortWithError(c *gin.Context, appErr *apperrors.AppError) {
	writeError(c, appErr)
	c.Abort()
}
