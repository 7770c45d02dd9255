// Package server exposes envelope signing and verification over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"github.com/vitalvas/canonsig/envelope"
	"github.com/vitalvas/canonsig/keys"
)

// Defaults for Config.
const (
	DefaultMaxBodyBytes    = 1 << 20
	DefaultShutdownTimeout = 10 * time.Second
)

// ErrMissingDependency is returned by New when Signer or Keys is nil.
var ErrMissingDependency = errors.New("server: signer and key manager are required")

// Config configures a Server.
type Config struct {
	// Signer produces envelopes for POST /v1/sign. Required.
	Signer *envelope.Signer

	// Keys backs the public key and rotation endpoints. Required.
	Keys *keys.Manager

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// MaxBodyBytes caps request bodies. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// MaxConnections caps concurrently open connections. Zero means no
	// limit.
	MaxConnections int

	// AllowedOrigins enables CORS for the listed origins. "*" allows any
	// origin. Empty disables CORS headers.
	AllowedOrigins []string

	// AllowRotate registers POST /v1/keys/rotate.
	AllowRotate bool

	// ShutdownTimeout bounds graceful shutdown. Defaults to
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Server is the HTTP front end of a signer.
type Server struct {
	signer          *envelope.Signer
	keys            *keys.Manager
	logger          *slog.Logger
	maxConnections  int
	allowRotate     bool
	shutdownTimeout time.Duration
	handler         http.Handler
	openAPI         openAPICache
}

// New validates cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	if cfg.Signer == nil || cfg.Keys == nil {
		return nil, ErrMissingDependency
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	sizeLimit, err := RequestSizeLimitMiddleware(cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	s := &Server{
		signer:          cfg.Signer,
		keys:            cfg.Keys,
		logger:          cfg.Logger,
		maxConnections:  cfg.MaxConnections,
		allowRotate:     cfg.AllowRotate,
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	mws := []Middleware{
		RequestIDMiddleware(RequestIDConfig{}),
		RecoveryMiddleware(s.logger),
	}

	if len(cfg.AllowedOrigins) > 0 {
		mws = append(mws, CORSMiddleware(CORSConfig{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedHeaders: []string{"Content-Type", "X-Request-ID", headerContentDigest},
			ExposeHeaders:  []string{"X-Request-ID", headerRecordCID, headerContentDigest},
		}))
	}

	mws = append(mws, sizeLimit, JSONContentTypeMiddleware(), ContentDigestMiddleware())

	s.handler = chain(s.routes(), mws...)

	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sign", s.handleSign)
	mux.HandleFunc("POST /v1/verify", s.handleVerify)
	mux.HandleFunc("GET /v1/public-key", s.handlePublicKey)

	if s.allowRotate {
		mux.HandleFunc("POST /v1/keys/rotate", s.handleRotate)
	}

	mux.HandleFunc("GET /openapi.yaml", s.handleOpenAPI)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)

	return mux
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. When MaxConnections is set, further connections wait in the
// kernel backlog until a slot frees up.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.maxConnections > 0 {
		ln = netutil.LimitListener(ln, s.maxConnections)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.InfoContext(ctx, "http server started",
		slog.String("addr", ln.Addr().String()),
		slog.Int("max_connections", s.maxConnections),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	s.logger.InfoContext(ctx, "http server shutting down")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
