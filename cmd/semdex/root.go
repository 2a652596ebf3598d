// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/semdex/internal/config"
	"github.com/sigil-dev/semdex/internal/secrets"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// secretStoreFactory creates the secrets.Store used for keyring references.
// Tests substitute it.
var secretStoreFactory = func() secrets.Store {
	return secrets.Keyring{}
}

// app carries the configuration shared by every subcommand of one root.
type app struct {
	v *viper.Viper
}

// NewRootCmd creates the root semdex command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "semdex",
		Short:         "semdex keeps semantic search indexes in sync with a record store",
		Long:          "semdex reconciles vector indexes with canonical records, answers semantic queries and serves a REST API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringP("output", "o", formatTable, "output format: table, json or yaml")

	root.AddCommand(
		newServeCmd(a),
		newStatusCmd(a),
		newDoctorCmd(a),
		newIndexCmd(a),
		newQueryCmd(a),
		newRecordCmd(a),
		newSecretCmd(),
		newOpenAPICmd(),
		newVersionCmd(),
	)

	return root
}

// load loads configuration into a.v with the usual precedence
// (flag > env > file > defaults), installs the logger and resolves keyring
// references.
func (a *app) load(cmd *cobra.Command) error {
	v := a.v

	config.SetDefaults(v)
	config.SetupEnv(v)

	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(cmd, verbose)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return semerr.Errorf(semerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so viper never falls back to the bare
		// name, which collides with a ./semdex binary.
		v.SetConfigName("semdex")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/semdex")
		v.AddConfigPath("/etc/semdex")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return semerr.Errorf(semerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return semerr.Errorf(semerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("storage.data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return semerr.Errorf(semerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}

	config.WarnInsecurePermissions(v.ConfigFileUsed())
	secrets.ResolveViperSecrets(v, secretStoreFactory())
	return nil
}

// config decodes and validates the loaded configuration.
func (a *app) config() (*config.Config, error) {
	return config.FromViper(a.v)
}

func setupLogging(cmd *cobra.Command, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
