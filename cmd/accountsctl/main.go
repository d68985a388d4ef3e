package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"accounts/internal/config"
	"accounts/internal/db"
	"accounts/internal/repository"
	"accounts/internal/service"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "accountsctl",
		Short:         "Administrative tasks for the accounts service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newCreateSuperuserCommand())
	cmd.AddCommand(newSetPasswordCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openDatabase loads config and connects; the caller closes the handle.
func openDatabase(ctx context.Context) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, gormDB, nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := openDatabase(commandContext(cmd))
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			if err := db.Migrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func accountService(cfg *config.Config, store repository.Store) (service.AccountService, error) {
	validator, err := service.NewPasswordValidator(cfg.PasswordMinLength)
	if err != nil {
		return nil, err
	}
	return service.NewAccountService(store, validator, nil), nil
}

func newCreateSuperuserCommand() *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create a staff account with every permission",
		Long:  "Create a staff account with every permission. Without --password the account gets an unusable password until one is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, gormDB, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			accounts, err := accountService(cfg, repository.NewStore(gormDB))
			if err != nil {
				return err
			}
			return createSuperuser(ctx, accounts, cmd.OutOrStdout(), email, password, name)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address of the new superuser")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func createSuperuser(ctx context.Context, accounts service.AccountService, out io.Writer, email, password, name string) error {
	user, err := accounts.CreateSuperuser(ctx, email, password, service.UserFields{Name: name})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "superuser %s created with id %d\n", user.Email, user.ID)
	return nil
}

func newSetPasswordCommand() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "setpassword",
		Short: "Set the password of an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, gormDB, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			store := repository.NewStore(gormDB)
			accounts, err := accountService(cfg, store)
			if err != nil {
				return err
			}
			return setPassword(ctx, store, accounts, cmd.OutOrStdout(), email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address of the account")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func setPassword(ctx context.Context, store repository.Store, accounts service.AccountService, out io.Writer, email, password string) error {
	user, err := store.Users().FindByEmail(ctx, service.NormalizeEmail(email))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("no account with email %s", email)
	}
	if err != nil {
		return err
	}
	if err := accounts.SetPassword(ctx, user, password); err != nil {
		return err
	}
	fmt.Fprintf(out, "password updated for %s\n", user.Email)
	return nil
}
