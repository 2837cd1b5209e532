// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/internal/config"
)

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	return newUserCmd(nil)
}

func newUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCmd(deps))
	return cmd
}

// userCreateRequest holds the user create flags.
type userCreateRequest struct {
	name          string
	email         string
	passwordStdin bool
	verified      bool
}

func newUserCreateCmd(deps *Deps) *cobra.Command {
	var req userCreateRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Long: `Create a user account in the configured database. Without
--password-stdin the account has no password; its owner sets one through
the set-password flow after signing in by other means.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserCreate(cmd.Context(), cmd, deps, req)
		},
	}
	cmd.Flags().StringVar(&req.name, "name", "", "display name")
	cmd.Flags().StringVar(&req.email, "email", "", "email address")
	cmd.Flags().BoolVar(&req.passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	cmd.Flags().BoolVar(&req.verified, "verified", false, "mark the email address as verified")
	_ = cmd.MarkFlagRequired("name")  //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag is defined above
	config.BindFlags(cmd.Flags())
	return cmd
}

func runUserCreate(ctx context.Context, cmd *cobra.Command, deps *Deps, req userCreateRequest) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver == config.StorageMemory {
		return oops.Code("CONFIG_INVALID").
			With("driver", cfg.Storage.Driver).
			Errorf("user create needs persistent storage")
	}

	var password string
	if req.passwordStdin {
		if password, err = readPassword(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	logger := setupLogging(cfg.Log, deps.LogWriter)
	a, err := buildApp(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := createUser(ctx, a.users, auth.NewArgon2idHasher(cfg.Argon2), req, password, time.Now())
	if err != nil {
		return err
	}
	logger.Info("user created", "user_id", user.ID.String())
	cmd.Println(user.ID.String())
	return nil
}

// createUser hashes password, if any, and registers the account.
func createUser(ctx context.Context, users *auth.UserService, hasher auth.PasswordHasher, req userCreateRequest, password string, now time.Time) (*auth.User, error) {
	var hash *string
	if req.passwordStdin {
		if err := auth.ValidatePassword(password); err != nil {
			return nil, err
		}
		encoded, err := hasher.Hash(password)
		if err != nil {
			return nil, oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
		}
		hash = &encoded
	}
	var verifiedAt *time.Time
	if req.verified {
		verifiedAt = &now
	}
	return users.CreateUser(ctx, req.name, req.email, hash, verifiedAt)
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
