// Package api provides the HTTP server for barkeep.
//
// It exposes the contact form endpoint and the concierge endpoints
// (one-shot suggestions and images, per-page sessions and an SSE stream)
// on top of the contact and concierge modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/canmore-mixology/barkeep/internal/concierge"
	"github.com/canmore-mixology/barkeep/internal/models"
)

// Server defaults.
const (
	DefaultAddr              = ":8080"
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultRateLimitRPM is the per-client request budget on the concierge
	// suggestion routes.
	DefaultRateLimitRPM   = 30
	DefaultRateLimitBurst = 10
	// DefaultImageRateLimitRPM budgets the image route separately. A results
	// page asks for one image per suggestion, so the burst covers several
	// pages of fan-out from one client.
	DefaultImageRateLimitRPM   = 180
	DefaultImageRateLimitBurst = 60
	// maxBodyBytes bounds every JSON request body.
	maxBodyBytes = 1 << 20
)

// ContactSubmitter processes contact form submissions.
type ContactSubmitter interface {
	Submit(ctx context.Context, req models.ContactRequest, idempotencyKey string) (models.ContactResponse, int)
}

// Opts holds configuration for the API server.
type Opts struct {
	Addr            string
	AllowedOrigins  []string
	RateLimitRPM    int // <= 0 disables rate limiting
	RateLimitBurst  int
	ImageRPM        int // <= 0 disables the image route limit
	ImageBurst      int
	TrustProxy      bool // take the client IP from X-Forwarded-For
	ShutdownTimeout time.Duration
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithAllowedOrigins sets the CORS allow list. Empty allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(o *Opts) {
		o.AllowedOrigins = origins
	}
}

// WithRateLimit sets the per-client budget on the suggestion, stream and
// session routes.
func WithRateLimit(rpm, burst int) Option {
	return func(o *Opts) {
		o.RateLimitRPM = rpm
		o.RateLimitBurst = burst
	}
}

// WithImageRateLimit sets the per-client budget on the image route.
func WithImageRateLimit(rpm, burst int) Option {
	return func(o *Opts) {
		o.ImageRPM = rpm
		o.ImageBurst = burst
	}
}

// WithTrustProxy keys rate limits on the first X-Forwarded-For address.
// Enable it only behind a proxy that sets the header.
func WithTrustProxy(trust bool) Option {
	return func(o *Opts) {
		o.TrustProxy = trust
	}
}

// WithShutdownTimeout bounds graceful shutdown, including the wait for
// in-flight image generation.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ShutdownTimeout = d
	}
}

// Server serves the barkeep HTTP API.
type Server struct {
	concierge *concierge.Service
	sessions  *concierge.Sessions
	contact   ContactSubmitter
	opts      Opts
	limiter   *clientLimiter
	images    *clientLimiter
}

// NewServer creates a server over the given modules.
func NewServer(svc *concierge.Service, sessions *concierge.Sessions, contact ContactSubmitter, opts ...Option) *Server {
	cfg := Opts{
		Addr:            DefaultAddr,
		RateLimitRPM:    DefaultRateLimitRPM,
		RateLimitBurst:  DefaultRateLimitBurst,
		ImageRPM:        DefaultImageRateLimitRPM,
		ImageBurst:      DefaultImageRateLimitBurst,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		concierge: svc,
		sessions:  sessions,
		contact:   contact,
		opts:      cfg,
	}
	if cfg.RateLimitRPM > 0 {
		s.limiter = newClientLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst, cfg.TrustProxy)
	}
	if cfg.ImageRPM > 0 {
		s.images = newClientLimiter(cfg.ImageRPM, cfg.ImageBurst, cfg.TrustProxy)
	}
	return s
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /api/contact", s.contactHandler)

	mux.Handle("POST /api/concierge/ingredients", rateLimited(s.limiter, s.ingredientsHandler))
	mux.Handle("POST /api/concierge/flavor", rateLimited(s.limiter, s.flavorHandler))
	mux.Handle("POST /api/concierge/image", rateLimited(s.images, s.imageHandler))
	mux.Handle("POST /api/concierge/stream", rateLimited(s.limiter, s.streamHandler))

	mux.HandleFunc("POST /api/concierge/sessions", s.createSessionHandler)
	mux.HandleFunc("GET /api/concierge/sessions/{id}", s.getSessionHandler)
	mux.Handle("POST /api/concierge/sessions/{id}/suggestions", rateLimited(s.limiter, s.submitSessionHandler))
	mux.HandleFunc("DELETE /api/concierge/sessions/{id}/suggestions", s.clearSessionHandler)

	var h http.Handler = mux
	h = newCORS(s.opts.AllowedOrigins).Handler(h)
	h = accessLog(h)
	h = requestID(h)
	h = recoverPanics(h)
	return h
}

// Run serves until ctx is cancelled, then shuts down gracefully and waits
// for background image work to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	if err := s.concierge.Wait(shutdownCtx); err != nil {
		slog.Warn("Server.Run: image fan-out still running at shutdown", "error", err)
	}
	slog.Info("Server.Run: stopped")
	return nil
}
