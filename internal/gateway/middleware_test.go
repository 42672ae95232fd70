package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/tagstream/internal/config"
	"github.com/soyeahso/tagstream/internal/logging"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func TestLoggingMiddlewareCapturesStatus(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rr := httptest.NewRecorder()
	loggingMiddleware(inner, logging.New(nil, "silent")).ServeHTTP(rr, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	h := requestIDMiddleware(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}

func TestRequireToken(t *testing.T) {
	srv := New(config.GatewayConfig{Auth: config.GatewayAuth{Token: "tok"}}, logging.New(nil, "silent"))
	h := srv.requireToken(okHandler)

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest("GET", "/v1/failover", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "token required")

	req := httptest.NewRequest("GET", "/v1/failover", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireTokenRateLimits(t *testing.T) {
	srv := New(config.GatewayConfig{Auth: config.GatewayAuth{Token: "tok"}}, logging.New(nil, "silent"))
	h := srv.requireToken(okHandler)

	for range authRateMaxFails {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		h(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestStatusWriterHijackUnsupported(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _, err := sw.Hijack()
	assert.Error(t, err)
	assert.NotNil(t, sw.Unwrap())
}
