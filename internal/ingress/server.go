// Package ingress implements the webhook-facing HTTP server described in
// spec.md §4.1. The original is a single-threaded epoll state machine
// (REQUEST_HEADER -> REQUEST_BODY -> RESPONSE -> FINISH) over raw fds;
// net/http plus echo already give every accepted connection its own
// goroutine-driven state machine, so this component keeps that original
// shape's CONTRACTS (validation order, canned response bytes, bounded
// concurrency, per-connection timeout) while dropping the hand-rolled fd
// bookkeeping net/http already does. MAX_CLIENTS is enforced with a
// weighted semaphore, the same primitive and limiting idiom
// server/router/api/v1's APIV1Service uses for its thumbnail generator.
package ingress

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
	"github.com/rlapz/kvrt-bot-sub000/internal/metrics"
)

// Responses are exactly the two fixed byte strings spec.md §6 mandates.
// They are written as literal bodies over echo's response writer rather
// than echo's JSON helpers, since the contract is byte-for-byte, not
// semantic.
const (
	respOK  = "HTTP/1.1 200 OK\r\nContent-Length:0\r\n\r\n"
	respErr = "HTTP/1.1 400 Bad Request\r\nContent-Length:0\r\n\r\n"
)

// Handler is invoked once per accepted, authenticated, parsed update. It
// runs on the HTTP goroutine only long enough to hand the job to the
// worker pool; spec.md's dispatcher/command-layer work happens off this
// goroutine.
type Handler func(raw []byte)

// Config is the subset of the gateway config the ingress server needs.
type Config struct {
	ListenAddr  string
	HookHost    string // Host header to match, https:// prefix stripped
	HookPath    string
	SecretToken string
	MaxClients  int64 // default bot.MaxClients
}

// Server hosts the single webhook endpoint.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	sem     *semaphore.Weighted
	handler Handler
	metrics *metrics.Registry
}

// New builds a Server. handler is called for every request that passes
// authentication and JSON parsing.
func New(cfg Config, handler Handler, m *metrics.Registry) *Server {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = bot.MaxClients
	}
	if m == nil {
		m = metrics.Global()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{cfg: cfg, echo: e, sem: semaphore.NewWeighted(cfg.MaxClients), handler: handler, metrics: m}
	e.Any(cfg.HookPath, s.handleWebhook)
	e.GET("/metrics", echo.WrapHandler(metricsHandler()))
	return s
}

// handleWebhook implements spec.md §4.1's authentication and body-parse
// contract. Every branch that rejects writes respErr and returns; the
// only accept path writes respOK after successfully handing the raw body
// to handler.
func (s *Server) handleWebhook(c echo.Context) error {
	if !s.sem.TryAcquire(1) {
		// At MAX_CLIENTS capacity: log and answer 503 with an empty body
		// without reading the request. The connection itself is not
		// closed here; net/http keeps or closes it as usual.
		slog.Warn("ingress: max clients reached, rejecting connection")
		return c.NoContent(http.StatusServiceUnavailable)
	}
	defer s.sem.Release(1)

	r := c.Request()

	if !strings.EqualFold(r.Method, http.MethodPost) {
		return s.reject(c, "bad_method")
	}
	if r.URL.Path != s.cfg.HookPath {
		return s.reject(c, "bad_path")
	}
	if !hostMatches(r.Host, s.cfg.HookHost) {
		return s.reject(c, "bad_host")
	}
	if !strings.EqualFold(r.Header.Get("Content-Type"), "application/json") {
		return s.reject(c, "bad_content_type")
	}
	if values := r.Header.Values("X-Telegram-Bot-Api-Secret-Token"); len(values) != 1 || values[0] != s.cfg.SecretToken {
		return s.reject(c, "bad_secret")
	}
	if values := r.Header.Values("Content-Length"); len(values) != 1 {
		return s.reject(c, "bad_content_length")
	} else if n, err := strconv.ParseInt(values[0], 10, 64); err != nil || n < 0 {
		return s.reject(c, "bad_content_length")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return s.reject(c, "body_read_error")
	}
	if !json.Valid(body) {
		return s.reject(c, "bad_json")
	}

	s.metrics.WebhookReceived.Inc()
	s.handler(body)

	return c.Blob(http.StatusOK, "", []byte(respOK))
}

func (s *Server) reject(c echo.Context, reason string) error {
	s.metrics.WebhookRejected.WithLabelValues(reason).Inc()
	return c.Blob(http.StatusBadRequest, "", []byte(respErr))
}

// hostMatches compares host against cfg.HookHost after stripping a
// leading "https://" from the configured value, per spec.md §4.1 rule 3.
func hostMatches(host, configured string) bool {
	configured = strings.TrimPrefix(configured, "https://")
	return strings.EqualFold(host, configured)
}

// Start begins serving and blocks until the server is shut down.
// CONNECTION_TIMEOUT_S is applied via http.Server's ReadTimeout, which is
// the net/http-idiomatic replacement for the original's 1-second timer
// sweep over the client list (spec.md §4.1).
func (s *Server) Start() error {
	s.echo.Server.ReadTimeout = bot.ConnectionTimeoutS * time.Second
	s.echo.Server.WriteTimeout = bot.ConnectionTimeoutS * time.Second
	slog.Info("ingress: listening", "addr", s.cfg.ListenAddr, "path", s.cfg.HookPath)
	return s.echo.Start(s.cfg.ListenAddr)
}

// Shutdown gracefully stops the server, tearing down in-flight clients
// once ctx expires, per spec.md §4.1's graceful-stop contract.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
