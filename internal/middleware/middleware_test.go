package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haierkeys/schedule-note-sync/pkg/app"
	"github.com/haierkeys/schedule-note-sync/pkg/limiter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetDeviceID(c))
	})
	return r
}

func TestDeviceAuthToken(t *testing.T) {
	tm := app.NewTokenManager(app.TokenConfig{SecretKey: "secret"})
	r := newEngine(DeviceAuthToken(tm))
	token, err := tm.Generate("dev-1")
	require.NoError(t, err)

	cases := []struct {
		name     string
		deviceID string
		token    string
		status   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong device", "dev-2", token, http.StatusUnauthorized},
		{"garbage", "dev-1", "not-a-jwt", http.StatusUnauthorized},
		{"ok", "dev-1", token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.deviceID != "" {
				req.Header.Set(HeaderDeviceID, tc.deviceID)
			}
			if tc.token != "" {
				req.Header.Set(HeaderDeviceToken, tc.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "dev-1", w.Body.String())
			}
		})
	}
}

func TestRateLimiterPerDevice(t *testing.T) {
	l := limiter.NewDeviceLimiter(HeaderDeviceID, limiter.BucketRule{FillInterval: time.Hour, Capacity: 2, Quantum: 1})
	r := newEngine(RateLimiter(l))

	do := func(device string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderDeviceID, device)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"))
	// 其他设备有独立的令牌桶
	assert.Equal(t, http.StatusOK, do("b"))
}

func TestTraceMiddlewareEchoesHeader(t *testing.T) {
	r := newEngine(TraceMiddleware("", nil))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(DefaultTraceIDHeader, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Header().Get(DefaultTraceIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(DefaultTraceIDHeader))
}

func TestRecoveryReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryWithLogger(zapNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func zapNop() *zap.Logger { return zap.NewNop() }
