// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/semdex/internal/secrets"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage API keys stored in the OS keyring",
		Long:  "Store and delete secrets under the semdex keyring service. Reference them from the config as keyring://semdex/<name>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretDeleteCmd(),
	)
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret read from the first line of stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return semerr.Wrapf(err, semerr.CodeCLIInputInvalid, "reading secret from stdin")
			}
			value := strings.TrimSpace(line)
			if value == "" {
				return semerr.New(semerr.CodeCLIInputInvalid, "secret value must not be empty")
			}

			if err := secretStoreFactory().Set(secrets.DefaultService, name, value); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %s. Reference it as %s\n", name, secrets.URI(name))
			return nil
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := secretStoreFactory().Delete(secrets.DefaultService, name); err != nil {
				if semerr.HasCode(err, semerr.CodeSecretNotFound) {
					return semerr.Errorf(semerr.CodeSecretNotFound, "secret %q not found", name)
				}
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
			return nil
		},
	}
}
