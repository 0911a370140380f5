package ingress

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlapz/kvrt-bot-sub000/internal/metrics"
)

func newTestServer(t *testing.T, handler Handler) *Server {
	t.Helper()
	reg := metrics.New(prometheus.NewRegistry())
	cfg := Config{
		HookHost:    "example.com",
		HookPath:    "/hook",
		SecretToken: "shh",
	}
	return New(cfg, handler, reg)
}

func doWebhook(s *Server, method, path, host, contentType, secret, contentLength, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Host = host
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	if contentLength != "" {
		req.Header.Set("Content-Length", contentLength)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	called := false
	s := newTestServer(t, func(raw []byte) { called = true })

	rec := doWebhook(s, http.MethodPost, "/hook", "example.com", "application/json", "wrong", "2", "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "400 Bad Request")
	assert.False(t, called)
}

func TestWebhookAcceptsValidRequest(t *testing.T) {
	var got []byte
	s := newTestServer(t, func(raw []byte) { got = raw })

	rec := doWebhook(s, http.MethodPost, "/hook", "example.com", "application/json", "shh", "2", "{}")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "200 OK")
	assert.Equal(t, "{}", string(got))
}

func TestWebhookRejectsWrongMethod(t *testing.T) {
	s := newTestServer(t, func(raw []byte) {})
	rec := doWebhook(s, http.MethodGet, "/hook", "example.com", "application/json", "shh", "2", "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	s := newTestServer(t, func(raw []byte) {})
	rec := doWebhook(s, http.MethodPost, "/hook", "example.com", "application/json", "shh", "7", "not-json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHostMatchesStripsHTTPSPrefix(t *testing.T) {
	require.True(t, hostMatches("example.com", "https://example.com"))
	require.True(t, hostMatches("Example.COM", "example.com"))
	require.False(t, hostMatches("other.com", "https://example.com"))
}
