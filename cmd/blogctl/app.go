package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/blog-api/cmd/blogctl/ui"
	"github.com/redmonkez12/blog-api/internal/auth"
	"github.com/redmonkez12/blog-api/internal/config"
	"github.com/redmonkez12/blog-api/internal/database"
	"github.com/redmonkez12/blog-api/internal/logging"
	"github.com/redmonkez12/blog-api/internal/user"
	"github.com/redmonkez12/blog-api/internal/worker/cleanup"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// app carries the connections the admin commands open on demand
type app struct {
	cfg    *config.Config
	out    io.Writer
	logger *logging.Logger

	openDB    func(ctx context.Context) (*bun.DB, error)
	openRedis func(ctx context.Context) (redis.UniversalClient, error)
	migrate   func(up bool, steps int) error
	confirm   func(title, description string) (bool, error)
}

func newApp(out io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &app{
		cfg:    cfg,
		out:    out,
		logger: logging.NewLogger(cfg.Server.IsDevelopment()),
		openDB: func(ctx context.Context) (*bun.DB, error) {
			return database.Open(ctx, cfg.Database.ConnectionString())
		},
		openRedis: func(ctx context.Context) (redis.UniversalClient, error) {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Address(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := client.Ping(ctx).Err(); err != nil {
				client.Close()
				return nil, fmt.Errorf("failed to ping Redis: %w", err)
			}
			return client, nil
		},
		migrate: func(up bool, steps int) error {
			if up {
				return database.RunMigrations(cfg.Database.MigrationURL())
			}
			return database.RollbackMigrations(cfg.Database.MigrationURL(), steps)
		},
		confirm: ui.Confirm,
	}, nil
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "blogctl",
		Short:         "Administer the blog API",
		Long:          "Operational commands for the blog API: schema migrations, token housekeeping and account fixes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(a.out)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	migrateUpCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  a.runMigrateUp,
	}

	migrateDownCmd := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runMigrateDown,
	}
	migrateDownCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage stored tokens",
	}

	tokensPruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired tokens from the configured store",
		RunE:  a.runTokensPrune,
	}

	tokensCmd.AddCommand(tokensPruneCmd)

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Fix up user accounts",
	}

	usersVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Mark a user's email address as verified",
		RunE:  a.runUsersVerify,
	}
	usersVerifyCmd.Flags().String("email", "", "Email of the account to verify")
	_ = usersVerifyCmd.MarkFlagRequired("email")

	usersCmd.AddCommand(usersVerifyCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blogctl %s\n", version)
		},
	}

	rootCmd.AddCommand(migrateCmd, tokensCmd, usersCmd, versionCmd)
	return rootCmd
}

func (a *app) runMigrateUp(cmd *cobra.Command, args []string) error {
	if err := a.migrate(true, 0); err != nil {
		ui.PrintError(cmd.ErrOrStderr(), err.Error())
		return err
	}

	ui.PrintSuccess(a.out, "Migrations applied")
	return nil
}

func (a *app) runMigrateDown(cmd *cobra.Command, args []string) error {
	steps := 1
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("steps must be a positive integer, got %q", args[0])
		}
		steps = n
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		ok, err := a.confirm(
			fmt.Sprintf("Roll back %d migration(s)?", steps),
			"Dropped tables lose their data. Database: "+a.cfg.Database.DBName,
		)
		if err != nil {
			return err
		}
		if !ok {
			ui.PrintHint(a.out, "Aborted.")
			return nil
		}
	}

	if err := a.migrate(false, steps); err != nil {
		ui.PrintError(cmd.ErrOrStderr(), err.Error())
		return err
	}

	ui.PrintSuccess(a.out, fmt.Sprintf("Rolled back %d migration(s)", steps))
	return nil
}

func (a *app) runTokensPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	repo, closeFn, err := a.tokenRepository(ctx)
	if err != nil {
		ui.PrintError(cmd.ErrOrStderr(), err.Error())
		return err
	}
	defer closeFn()

	deleted, err := cleanup.NewJob(storePruner{repo: repo}, a.logger, 0).RunOnce(ctx)
	if err != nil {
		ui.PrintError(cmd.ErrOrStderr(), err.Error())
		return err
	}

	ui.PrintSummary(a.out, "Expired tokens pruned",
		ui.Field{Key: "Store", Value: a.cfg.Auth.TokenStore},
		ui.Field{Key: "Deleted", Value: strconv.FormatInt(deleted, 10)},
	)
	return nil
}

func (a *app) runUsersVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	addr, _ := cmd.Flags().GetString("email")
	addr = strings.ToLower(strings.TrimSpace(addr))

	db, err := a.openDB(ctx)
	if err != nil {
		ui.PrintError(cmd.ErrOrStderr(), err.Error())
		return err
	}
	defer db.Close()

	users := user.NewRepository(db)

	u, err := users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			err = fmt.Errorf("no active user with email %s", addr)
		}
		ui.PrintError(cmd.ErrOrStderr(), err.Error())
		return err
	}

	if u.IsVerified {
		ui.PrintHint(a.out, u.Email+" is already verified")
		return nil
	}

	if err := users.MarkEmailAsVerified(ctx, u.ID); err != nil {
		ui.PrintError(cmd.ErrOrStderr(), err.Error())
		return err
	}

	ui.PrintSuccess(a.out, u.Email+" verified")
	return nil
}

// tokenRepository opens the store selected by TOKEN_STORE
func (a *app) tokenRepository(ctx context.Context) (auth.TokenRepository, func(), error) {
	if a.cfg.Auth.TokenStore == config.TokenStoreRedis {
		client, err := a.openRedis(ctx)
		if err != nil {
			return nil, nil, err
		}
		return auth.NewRedisRepository(client), func() { client.Close() }, nil
	}

	db, err := a.openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRepository(db), func() { db.Close() }, nil
}

// storePruner adapts a token store to the cleanup job
type storePruner struct {
	repo auth.TokenRepository
}

func (p storePruner) PruneExpiredTokens(ctx context.Context) (int64, error) {
	return p.repo.CleanupExpired(ctx, time.Now())
}
