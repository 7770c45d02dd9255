package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitalvas/canonsig/envelope"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [file|-]",
		Short: "Verify an envelope",
		Long: `Verify a signed envelope read from the given file or from stdin.

The result is printed as one of valid, invalid_signature, malformed_envelope
or unsupported_algorithm, followed by the reason when there is one. The exit
status is 0 only for a valid envelope.`,
		Args:              cobra.MaximumNArgs(1),
		RunE:              runVerify,
		DisableAutoGenTag: true,
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	out := envelope.VerifyJSON(data)

	if _, err := fmt.Fprintln(cmd.OutOrStdout(), out.String()); err != nil {
		return err
	}

	if !out.Valid() {
		cmd.SilenceErrors = true
		return errVerificationFailed
	}

	return nil
}
