package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Login("success")
	m.Login("success")
	m.Login("invalid_credentials")
	m.RateLimited("login")

	require.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("login")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Login("success")
	m.Refresh("success")
	m.Revocation("success")
	m.Authn("anonymous")
	m.RateLimited("login")
	require.Nil(t, m.Registry())
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	engine := gin.New()
	engine.Use(m.GinMiddleware())
	engine.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/metrics", gin.WrapH(m.Handler()))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/users/:id", "200")))

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "ifs_auth_http_requests_total"))
}
