package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/users/42?token=secret", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "req-1", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	first := entries[0]
	require.Equal(t, zapcore.WarnLevel, first.Level)
	fields := first.ContextMap()
	require.Equal(t, "/users/:id", fields["route"])
	require.Equal(t, "req-1", fields["request_id"])
	for _, v := range fields {
		if s, ok := v.(string); ok {
			require.NotContains(t, s, "secret")
		}
	}

	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
}
