// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/warden/internal/config"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// NewRootCmd creates the root warden command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Warden: safety-gated answers for plant operators",
		Long: "Warden answers operational questions from equipment manuals and process simulation,\n" +
			"and checks every draft against documented limits before it is returned.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags; initViper maps them to viper keys.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStartCmd(),
		newAskCmd(),
		newManualCmd(),
		newAuditCmd(),
		newWorkflowCmd(),
		newSecretCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	viper.Reset()
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted: with it Viper also tries the bare name,
		// which collides with a ./warden binary.
		v.SetConfigName("warden")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/warden")
		v.AddConfigPath("/etc/warden")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	// Bind persistent flags to viper keys.
	if err := v.BindPFlag("storage.data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

// loadConfig decodes and validates the configuration prepared by
// initViper, resolving keyring references, and installs the configured
// logger as the process default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	v := viper.GetViper()

	config.WarnInsecurePermissions(v.ConfigFileUsed())

	cfg, err := config.FromViper(v, secretStoreFactory())
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(cfg.Logging, v.GetBool("verbose"), nil)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
