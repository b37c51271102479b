// Command linkvault-token mints and inspects session tokens for linkvault.
// It reads LINKVAULT_JWT_SECRET, LINKVAULT_JWT_ISSUER and LINKVAULT_JWT_TTL
// from the environment, the same way the server does.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkvault/internal/auth"
	"github.com/MrSnakeDoc/linkvault/internal/config"
	"github.com/MrSnakeDoc/linkvault/internal/version"
)

func main() {
	if err := newRootCmd(loadManager).Execute(); err != nil {
		os.Exit(1)
	}
}

func loadManager() *auth.Manager {
	secret, issuer, ttl := config.LoadAuth()
	return auth.NewManager(secret, issuer, ttl)
}

func newRootCmd(manager func() *auth.Manager) *cobra.Command {
	root := &cobra.Command{
		Use:          "linkvault-token",
		Short:        "Mint and verify linkvault session tokens",
		SilenceUsage: true,
		Version:      version.String(),
	}
	root.AddCommand(newIssueCmd(manager), newVerifyCmd(manager))
	return root
}

func newIssueCmd(manager func() *auth.Manager) *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a session token for an owner",
		Long: `Sign an HS256 session token whose subject is the owner id.

Without --owner a fresh random owner id is generated and printed on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id := uuid.New()
			if owner != "" {
				parsed, err := uuid.Parse(owner)
				if err != nil || parsed == uuid.Nil {
					return fmt.Errorf("--owner must be a non-nil UUID, got %q", owner)
				}
				id = parsed
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "owner: %s\n", id)
			}

			token, err := manager().Issue(id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner UUID (default: random)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: LINKVAULT_JWT_TTL)")
	return cmd
}

func newVerifyCmd(manager func() *auth.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Check a session token and print its owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := manager().Verify(args[0])
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), owner)
			return nil
		},
	}
}
