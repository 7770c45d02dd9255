package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/vitalvas/canonsig/canonical"
	"github.com/vitalvas/canonsig/envelope"
	"github.com/vitalvas/canonsig/hashing"
	"github.com/vitalvas/canonsig/keys"
	"github.com/vitalvas/canonsig/signature"
)

func newSignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [file|-]",
		Short: "Sign a record",
		Long: `Sign a JSON record with the stored key and print the envelope.

The record is read from the given file or from stdin. JSON input is used as
is. Any other input is read as YAML and converted to JSON first.`,
		Args:              cobra.MaximumNArgs(1),
		RunE:              runSign,
		DisableAutoGenTag: true,
	}

	cmd.Flags().String(flagDir, "", "key directory")
	cmd.Flags().String(flagHash, string(hashing.Default), "hash algorithm")
	cmd.Flags().String(flagScheme, string(signature.Default), "signature scheme")

	return cmd
}

// recordFromInput parses JSON directly, and anything else as YAML.
func recordFromInput(data []byte) (canonical.Record, error) {
	if !json.Valid(data) {
		converted, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", canonical.ErrEncoding, err)
		}

		data = converted
	}

	return canonical.ParseRecord(data)
}

func runSign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	logger, err := commandLogger(cmd)
	if err != nil {
		return err
	}

	store, err := fileStore(cmd)
	if err != nil {
		return err
	}

	hash, err := cmd.Flags().GetString(flagHash)
	if err != nil {
		return err
	}

	scheme, err := cmd.Flags().GetString(flagScheme)
	if err != nil {
		return err
	}

	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	record, err := recordFromInput(data)
	if err != nil {
		return err
	}

	if _, err := store.Load(ctx); err != nil {
		if errors.Is(err, keys.ErrKeyNotFound) {
			return fmt.Errorf("no key in %s, run keygen first", store.Dir())
		}

		return err
	}

	m, err := keys.NewManager(keys.ManagerConfig{Store: store, Logger: logger})
	if err != nil {
		return err
	}

	if err := m.Init(ctx); err != nil {
		return err
	}

	signer, err := envelope.NewSigner(envelope.SignerConfig{
		Keys:          m,
		HashAlgorithm: hashing.Algorithm(hash),
		Scheme:        signature.Scheme(scheme),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	env, err := signer.Sign(ctx, record)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)

	return enc.Encode(env)
}
