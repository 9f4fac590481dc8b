// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
)

type superAdminOptions struct {
	email         string
	passwordFile  string
	passwordStdin bool
}

func newCreateSuperAdminCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	sa := &superAdminOptions{}

	cmd := &cobra.Command{
		Use:   "create-super-admin",
		Short: "Create a SUPER_ADMIN account from the command line",
		Long: `Create a SUPER_ADMIN account directly against the configured stores.
Operator invocations are trusted and skip the bootstrap token. The password is
read from a file or from standard input, never from a flag.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			password, err := sa.readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg, deps)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			backends, err := deps.Backends(ctx, cfg, logger)
			if err != nil {
				return oops.With("operation", "connect backends").Wrap(err)
			}
			defer backends.Close(context.Background(), logger)

			a, err := buildApp(cfg, backends, deps, logger)
			if err != nil {
				return err
			}
			view, err := a.service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
				Email:    sa.email,
				Password: password,
				Trusted:  true,
			})
			if err != nil {
				return err //nolint:wrapcheck // auth codes are the user-facing result
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created SUPER_ADMIN %s (%s)\n", view.Email, view.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&sa.email, "email", "", "email of the new account")
	cmd.Flags().StringVar(&sa.passwordFile, "password-file", "", "file holding the password")
	cmd.Flags().BoolVar(&sa.passwordStdin, "password-stdin", false, "read the password from standard input")
	_ = cmd.MarkFlagRequired("email")
	cmd.MarkFlagsMutuallyExclusive("password-file", "password-stdin")
	cmd.MarkFlagsOneRequired("password-file", "password-stdin")

	return cmd
}

// readPassword returns the first line of the selected source.
func (o *superAdminOptions) readPassword(stdin io.Reader) (string, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case o.passwordFile != "":
		raw, err = os.ReadFile(o.passwordFile)
	case o.passwordStdin:
		raw, err = io.ReadAll(io.LimitReader(stdin, auth.MaxPasswordBytes+2))
	default:
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("one of --password-file or --password-stdin is required")
	}
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password, _, _ := strings.Cut(string(raw), "\n")
	password = strings.TrimSuffix(password, "\r")
	if password == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("password is empty")
	}
	return password, nil
}
