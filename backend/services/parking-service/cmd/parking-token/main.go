// Command parking-token mints owner tokens for local development and smoke tests.
// Accounts live outside this service, so nothing else in the tree issues tokens.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	libconfig "parkinglot/backend/libs/config"
	"parkinglot/backend/services/parking-service/internal/auth"
)

type secretConfig struct {
	JWT struct {
		Secret string `yaml:"secret" env:"JWT_SECRET"`
	} `yaml:"jwt"`
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		email  string
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "parking-token <owner-id>",
		Short: "Mint a bearer token for an owner",
		Long: `Sign a token with the parking-service JWT secret.

The secret is read from --secret, or else from JWT_SECRET / the jwt.secret key
of the file named by CONFIG_FILE.

Examples:
  parking-token owner-42
  parking-token owner-42 --email shop@example.com --ttl 1h`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(secret) == "" {
				var cfg secretConfig
				if err := libconfig.LoadConfig(&cfg); err != nil {
					return err
				}
				secret = cfg.JWT.Secret
			}
			if strings.TrimSpace(secret) == "" {
				return errors.New("jwt secret is required (--secret or JWT_SECRET)")
			}

			token, err := auth.NewTokenService(secret, ttl).GenerateToken(args[0], email)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, token)
			return err
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (defaults to JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
