package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vitalvas/canonsig/config"
	"github.com/vitalvas/canonsig/envelope"
	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/keys"
	"github.com/vitalvas/canonsig/rpc"
	"github.com/vitalvas/canonsig/server"
	"github.com/vitalvas/canonsig/signature"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the signing service",
		Long: `Run the HTTP signing service, and the gRPC service when grpc.addr is set.

Settings come from the YAML file given with --config. Without a file the
defaults apply and the key lives in memory only. The service stops
gracefully on SIGINT or SIGTERM.`,
		Args:              cobra.NoArgs,
		RunE:              runServe,
		DisableAutoGenTag: true,
	}

	cmd.Flags().String(flagConfig, "", "path to the YAML configuration file")

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return config.Default(), nil
	}

	return config.Load(path)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// serve runs the configured listeners until ctx is cancelled or one of
// them fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := cfg.Keys.Store()
	if err != nil {
		return err
	}

	m, err := keys.NewManager(keys.ManagerConfig{Store: store, KeyBits: cfg.Keys.Bits, Logger: logger})
	if err != nil {
		return err
	}

	if err := m.Init(ctx); err != nil {
		return err
	}

	signer, err := envelope.NewSigner(envelope.SignerConfig{
		Keys:          m,
		HashAlgorithm: hashing.Algorithm(cfg.Signing.HashAlgorithm),
		Scheme:        signature.Scheme(cfg.Signing.SignatureScheme),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer, err := server.New(server.Config{
		Signer:          signer,
		Keys:            m,
		Logger:          logger,
		MaxBodyBytes:    cfg.HTTP.MaxBodyBytes,
		MaxConnections:  cfg.HTTP.MaxConnections,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		AllowRotate:     cfg.HTTP.AllowRotate,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	var grpcServer *rpc.Server

	if cfg.GRPC.Addr != "" {
		grpcServer, err = rpc.NewServer(rpc.ServerConfig{
			Signer:      signer,
			Keys:        m,
			Logger:      logger,
			MaxMsgBytes: cfg.GRPC.MaxMsgBytes,
		})
		if err != nil {
			return err
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return httpServer.ListenAndServe(ctx, cfg.HTTP.Addr)
	})

	if grpcServer != nil {
		group.Go(func() error {
			return grpcServer.ListenAndServe(ctx, cfg.GRPC.Addr)
		})
	}

	return group.Wait()
}
