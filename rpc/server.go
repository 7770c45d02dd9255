// Package rpc exposes envelope signing and verification as the gRPC
// service canonsig.v1.Signing.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/envelope"
	"github.com/vitalvas/canonsig/keys"
)

// Public key formats accepted by PublicKey.
const (
	FormatDER = "der"
	FormatPEM = "pem"
)

// DefaultMaxMsgBytes bounds request and response messages.
const DefaultMaxMsgBytes = 4 << 20

// ErrMissingDependency is returned by NewServer when Signer or Keys is nil.
var ErrMissingDependency = errors.New("rpc: signer and key manager are required")

// ErrInvalidMaxMsgBytes is returned by NewServer when MaxMsgBytes is
// negative.
var ErrInvalidMaxMsgBytes = errors.New("rpc: max message size must not be negative")

// ServerConfig configures a Server.
type ServerConfig struct {
	Signer *envelope.Signer
	Keys   *keys.Manager

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// MaxMsgBytes defaults to DefaultMaxMsgBytes when zero.
	MaxMsgBytes int
}

// Server implements SigningServer on top of an envelope.Signer.
type Server struct {
	UnimplementedSigningServer

	signer      *envelope.Signer
	keys        *keys.Manager
	logger      *slog.Logger
	maxMsgBytes int
}

// NewServer validates cfg and returns a Server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Signer == nil || cfg.Keys == nil {
		return nil, ErrMissingDependency
	}

	if cfg.MaxMsgBytes < 0 {
		return nil, ErrInvalidMaxMsgBytes
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.MaxMsgBytes == 0 {
		cfg.MaxMsgBytes = DefaultMaxMsgBytes
	}

	return &Server{
		signer:      cfg.Signer,
		keys:        cfg.Keys,
		logger:      cfg.Logger,
		maxMsgBytes: cfg.MaxMsgBytes,
	}, nil
}

// Sign canonicalizes and signs the record JSON in the request and returns
// the envelope JSON.
func (s *Server) Sign(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	record, err := canonical.ParseRecord(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	env, err := s.signer.Sign(ctx, record)
	if err != nil {
		return nil, mapErr(err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, status.Error(codes.Internal, "envelope encoding failed")
	}

	return wrapperspb.Bytes(data), nil
}

// Verify returns the verification result name for the envelope JSON in the
// request. A failed verification is a normal response, not an RPC error.
func (s *Server) Verify(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	out := envelope.VerifyJSON(in.GetValue())

	s.logger.InfoContext(ctx, "envelope verified", slog.String("result", out.Result.String()))

	return wrapperspb.String(out.Result.String()), nil
}

// PublicKey returns the active public key as DER, or PEM when the request
// asks for FormatPEM. An empty format means DER.
func (s *Server) PublicKey(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	format := in.GetValue()
	if format != "" && format != FormatDER && format != FormatPEM {
		return nil, status.Errorf(codes.InvalidArgument, "unknown public key format %q", format)
	}

	der, err := s.keys.ExportPublicKey()
	if err != nil {
		return nil, mapErr(err)
	}

	if format == FormatPEM {
		return wrapperspb.Bytes(keys.EncodePublicKeyPEM(der)), nil
	}

	return wrapperspb.Bytes(der), nil
}

// NewGRPCServer returns a gRPC server with s registered and request logging
// installed.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.MaxRecvMsgSize(s.maxMsgBytes),
		grpc.MaxSendMsgSize(s.maxMsgBytes),
		grpc.ChainUnaryInterceptor(LoggingInterceptor(s.logger)),
	}, opts...)

	srv := grpc.NewServer(opts...)
	RegisterSigningServer(srv, s)

	return srv
}

// Serve serves the Signing service on ln until ctx is cancelled, then
// stops gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.NewGRPCServer()

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.InfoContext(ctx, "grpc server started", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err

	case <-ctx.Done():
	}

	s.logger.InfoContext(ctx, "grpc server shutting down")

	srv.GracefulStop()

	if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, ln)
}

// LoggingInterceptor logs every unary call with its method, status code
// and duration.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo

		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}

		logger.LogAttrs(ctx, level, "grpc request",
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(start)),
		)

		return resp, err
	}
}
