package main

import (
	"context"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/useraccounts/user-accounts/internal/core/domain"
	"github.com/useraccounts/user-accounts/internal/core/ports"
	"github.com/useraccounts/user-accounts/internal/core/service"
	"github.com/useraccounts/user-accounts/internal/infrastructure/config"
	"github.com/useraccounts/user-accounts/pkg/logger"
)

const adminPasswordEnv = "ADMIN_PASSWORD"

type adminOptions struct {
	name     string
	email    string
	password string
}

// NewCreateAdminCmd creates the create-admin subcommand, which bootstraps the
// first administrator directly against the store.
func NewCreateAdminCmd() *cobra.Command {
	var opts adminOptions

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ADMIN account",
		Long: `Create an ADMIN account directly in the configured store.
The password is read from --password or the ADMIN_PASSWORD environment variable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.password == "" {
				opts.password = os.Getenv(adminPasswordEnv)
			}
			if err := opts.validate(); err != nil {
				return err
			}

			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			if cfg.StoreDriver == config.StoreMemory {
				return oops.Code("CONFIG_INVALID").Errorf("create-admin needs a persistent store, STORE_DRIVER is %q", cfg.StoreDriver)
			}
			log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true, Service: serviceName, Env: cfg.Env})

			a := &app{}
			defer a.Close()
			a.startHashing(cfg, log)
			if err := a.openStore(cmd.Context(), cfg, log); err != nil {
				return err
			}

			user, err := createAdmin(cmd.Context(), service.NewUserService(a.store, a.hasher, log), opts)
			if err != nil {
				return err
			}
			cmd.Printf("Created admin %s (id %d)\n", user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&opts.email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&opts.password, "password", "", "password; prefer "+adminPasswordEnv)
	return cmd
}

func (o adminOptions) validate() error {
	if strings.TrimSpace(o.email) == "" {
		return oops.Code("INVALID_ARGUMENT").Errorf("--email is required")
	}
	if o.password == "" {
		return oops.Code("INVALID_ARGUMENT").Errorf("--password or %s is required", adminPasswordEnv)
	}
	return nil
}

func createAdmin(ctx context.Context, users ports.UserService, opts adminOptions) (*domain.User, error) {
	return users.Create(ctx, ports.NewUserInput{
		Name:     opts.name,
		Email:    opts.email,
		Password: opts.password,
		Role:     string(domain.RoleAdmin),
	})
}
