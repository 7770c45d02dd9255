package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitalvas/canonsig/config"
	"github.com/vitalvas/canonsig/keys"
)

const (
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
	flagDir       = "dir"
	flagBits      = "bits"
	flagForce     = "force"
	flagPEM       = "pem"
	flagHash      = "hash"
	flagScheme    = "scheme"
	flagConfig    = "config"
)

// errVerificationFailed makes the process exit non-zero after the outcome
// has been printed.
var errVerificationFailed = errors.New("verification failed")

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canonsig",
		Short: "Sign and verify canonical JSON records",
		Long: `canonsig signs JSON records over their RFC 8785 canonical form and
verifies the resulting self-contained envelopes.

An envelope carries the record, the signature, the signer's public key and
the names of the hash algorithm and signature scheme, so it can be verified
without any other input.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().String(flagLogLevel, config.DefaultLogLevel, "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(flagLogFormat, config.DefaultLogFormat, "log format (text, json)")

	cmd.AddCommand(
		newKeygenCommand(),
		newPubkeyCommand(),
		newSignCommand(),
		newVerifyCommand(),
		newServeCommand(),
	)

	return cmd
}

// commandLogger builds the logger selected by the persistent log flags.
// Logs go to stderr so that stdout carries only command output.
func commandLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := cmd.Flags().GetString(flagLogLevel)
	if err != nil {
		return nil, err
	}

	format, err := cmd.Flags().GetString(flagLogFormat)
	if err != nil {
		return nil, err
	}

	return config.Log{Level: level, Format: format}.NewLogger(cmd.ErrOrStderr())
}

// fileStore opens the key directory given by --dir.
func fileStore(cmd *cobra.Command) (*keys.FileStore, error) {
	dir, err := cmd.Flags().GetString(flagDir)
	if err != nil {
		return nil, err
	}

	if dir == "" {
		return nil, fmt.Errorf("--%s is required", flagDir)
	}

	return keys.NewFileStore(dir)
}

// readInput reads the named file, or stdin when name is empty or "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s failed: %w", args[0], err)
	}

	return data, nil
}
