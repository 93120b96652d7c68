package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"streamcast/internal/core/domain"
	apperrors "streamcast/pkg/errors"
	"streamcast/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubResolver map[string]domain.UserID

func (s stubResolver) ResolveUserID(ctx context.Context, token string) (domain.UserID, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return 0, domain.ErrInvalidToken
}

func newRouter(middleware ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware...)
	return router
}

func TestAuthMiddleware(t *testing.T) {
	resolver := stubResolver{"tok-5": 5}
	router := newRouter(AuthMiddleware(resolver))
	router.GET("/me", func(c *gin.Context) {
		id, ok := UserID(c)
		ctxID, _ := logger.UserIDFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": id, "ok": ok, "ctx": ctxID})
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic tok-5", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer tok-5", http.StatusOK},
		{"lowercase scheme", "bearer tok-5", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.header != "" {
				header.Set("Authorization", tc.header)
			}
			w := get(router, "/me", header)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":5,"ok":true,"ctx":5}`, w.Body.String())
			}
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	router := newRouter(OptionalAuthMiddleware(stubResolver{"tok-5": 5}))
	router.GET("/me", func(c *gin.Context) {
		_, ok := UserID(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	assert.JSONEq(t, `{"authenticated":false}`, get(router, "/me", nil).Body.String())
	assert.JSONEq(t, `{"authenticated":false}`, get(router, "/me", http.Header{"Authorization": {"Bearer bad"}}).Body.String())
	assert.JSONEq(t, `{"authenticated":true}`, get(router, "/me", http.Header{"Authorization": {"Bearer tok-5"}}).Body.String())
}

func TestErrorHandlerMiddleware(t *testing.T) {
	router := newRouter(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	errs := map[string]error{
		"/app":         apperrors.NewInvalidInputError("title too long").WithContext("field", "title"),
		"/not-found":   fmt.Errorf("lookup: %w", domain.ErrStreamNotFound),
		"/unavailable": domain.ErrStoreUnavailable,
		"/token":       domain.ErrInvalidToken,
		"/other":       errors.New("boom"),
	}
	for path, err := range errs {
		err := err
		router.GET(path, func(c *gin.Context) { _ = c.Error(err) })
	}

	cases := []struct {
		path   string
		status int
		code   apperrors.ErrorCode
	}{
		{"/app", http.StatusBadRequest, apperrors.ErrCodeInvalidInput},
		{"/not-found", http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"/unavailable", http.StatusServiceUnavailable, apperrors.ErrCodeServiceUnavailable},
		{"/token", http.StatusUnauthorized, apperrors.ErrCodeUnauthorized},
		{"/other", http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			w := get(router, tc.path, nil)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), string(tc.code))
		})
	}

	assert.Contains(t, get(router, "/app", nil).Body.String(), `"details":{"field":"title"}`)
	assert.NotContains(t, get(router, "/other", nil).Body.String(), "boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	router := newRouter(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.GET("/panic", func(c *gin.Context) { panic("unexpected") })

	w := get(router, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeInternal))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := newRouter(RequestLogger(logger.NewContextLogger(zap.New(core))))
	router.GET("/streams/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := get(router, "/streams/7", http.Header{RequestIDHeader: {"req-1"}})
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "/streams/:id", fields["path"])
		assert.Equal(t, int64(http.StatusNoContent), fields["status_code"])
		assert.Equal(t, "req-1", fields["request_id"])
	}

	generated := get(router, "/streams/8", nil)
	assert.NotEmpty(t, generated.Header().Get(RequestIDHeader))
}

func TestTracingMiddleware(t *testing.T) {
	router := newRouter(TracingMiddleware())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(router, "/ok", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/missing", nil).Code)
}
