package main

import (
	"github.com/spf13/cobra"
)

const serviceName = "user-accounts"

// NewRootCmd creates the root command. Configuration comes from the
// environment; see internal/infrastructure/config.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useraccounts",
		Short: "User accounts service",
		Long: `User accounts service: registration, login with signed access
tokens, and role-gated user administration over HTTP.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCreateAdminCmd())

	return cmd
}
