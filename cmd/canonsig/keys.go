package main

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitalvas/canonsig/keys"
)

func newKeygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		Long: `Generate an RSA signing key and store it in the key directory.

The private key is written as PKCS#8 PEM with mode 0600 and the public key as
PKIX PEM next to it. An existing key is only replaced with --force.`,
		Args:              cobra.NoArgs,
		RunE:              runKeygen,
		DisableAutoGenTag: true,
	}

	cmd.Flags().String(flagDir, "", "key directory")
	cmd.Flags().Int(flagBits, keys.DefaultKeyBits, "RSA modulus size in bits")
	cmd.Flags().Bool(flagForce, false, "replace an existing key")

	return cmd
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	logger, err := commandLogger(cmd)
	if err != nil {
		return err
	}

	store, err := fileStore(cmd)
	if err != nil {
		return err
	}

	bits, err := cmd.Flags().GetInt(flagBits)
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool(flagForce)
	if err != nil {
		return err
	}

	if !force {
		_, err := store.Load(ctx)
		switch {
		case err == nil:
			return fmt.Errorf("a key already exists in %s, use --%s to replace it", store.Dir(), flagForce)
		case !errors.Is(err, keys.ErrKeyNotFound):
			return err
		}
	}

	m, err := keys.NewManager(keys.ManagerConfig{Store: store, KeyBits: bits, Logger: logger})
	if err != nil {
		return err
	}

	kp, err := m.Generate(ctx, bits)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", kp.ID())

	return err
}

func newPubkeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pubkey",
		Short: "Print the public signing key",
		Long: `Print the public key of the stored signing key.

By default the key is printed as base64 DER (PKIX), the form used in the
public_key field of envelopes. With --pem it is printed as PEM.`,
		Args:              cobra.NoArgs,
		RunE:              runPubkey,
		DisableAutoGenTag: true,
	}

	cmd.Flags().String(flagDir, "", "key directory")
	cmd.Flags().Bool(flagPEM, false, "print PEM instead of base64 DER")

	return cmd
}

func runPubkey(cmd *cobra.Command, _ []string) error {
	store, err := fileStore(cmd)
	if err != nil {
		return err
	}

	asPEM, err := cmd.Flags().GetBool(flagPEM)
	if err != nil {
		return err
	}

	kp, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}

	der, err := keys.ExportPublicKey(kp)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if asPEM {
		_, err = out.Write(keys.EncodePublicKeyPEM(der))
		return err
	}

	_, err = fmt.Fprintln(out, base64.StdEncoding.EncodeToString(der))

	return err
}
