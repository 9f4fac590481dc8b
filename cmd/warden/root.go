// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/xdg"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the warden CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&Deps{})
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps.setDefaults()
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - account and token service",
		Long: `Warden manages user accounts, issues and rotates JWT access and
refresh tokens, runs password resets and enforces role-based access.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(opts, deps))
	cmd.AddCommand(newMigrateCmd(opts, deps))
	cmd.AddCommand(newCreateSuperAdminCmd(opts, deps))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadOptions falls back to $XDG_CONFIG_HOME/warden/config.yaml when no
// --config was given.
func (o *rootOptions) loadOptions(cmd *cobra.Command) (config.LoadOptions, error) {
	file := o.configFile
	if file == "" {
		found, err := xdg.FindConfigFile()
		if err != nil && !errors.Is(err, xdg.ErrNoHome) {
			return config.LoadOptions{}, err
		}
		file = found
	}
	return config.LoadOptions{File: file, DotEnv: o.envFile, Flags: cmd.Flags()}, nil
}

// load reads and validates the configuration.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	opts, err := o.loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	return config.Load(opts) //nolint:wrapcheck // config errors carry their own codes
}

// read reads the configuration without validating it.
func (o *rootOptions) read(cmd *cobra.Command) (*config.Config, error) {
	opts, err := o.loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	return config.Read(opts) //nolint:wrapcheck // config errors carry their own codes
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "warden "+versionString())
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Long: `Print the configuration assembled from defaults, the config file,
the environment and flags. Secrets are masked and passwords are removed from
connection URLs. A configuration that would not start the server is reported
after it is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.read(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err //nolint:wrapcheck // already coded
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err //nolint:wrapcheck // terminal write
			}
			return cfg.Validate() //nolint:wrapcheck // already coded
		},
	}
}
