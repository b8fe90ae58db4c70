// Package activityctl is the operator CLI for the gateway's database and
// upstream dependencies.
package activityctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/activity-logging-gateway/internal/config"
	"github.com/sandeepkv93/activity-logging-gateway/internal/database"
	"github.com/sandeepkv93/activity-logging-gateway/internal/domain"
	"github.com/sandeepkv93/activity-logging-gateway/internal/geoip"
	"github.com/sandeepkv93/activity-logging-gateway/internal/repository"
	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
	"github.com/sandeepkv93/activity-logging-gateway/internal/tools/common"
	"github.com/sandeepkv93/activity-logging-gateway/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
	timeout time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "activityctl",
		Short: "Operate the activity logging gateway",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(opts.envFile)
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file loaded before the environment is read")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "ci run timeout")
	cmd.AddCommand(
		newMigrateCommand(opts),
		newSessionsCommand(opts),
		newGeoIPCommand(opts),
		newTokenCommand(opts),
	)
	return cmd
}

func newMigrateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Manage the gateway schema"}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Create or update every gateway table",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "migrate up", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				if err := database.Migrate(db.WithContext(ctx)); err != nil {
					return nil, fmt.Errorf("migrate: %w", err)
				}
				return tableStatus(db), nil
			})
			return finish(opts, "migrate up", details, err)
		},
	}, &cobra.Command{
		Use:   "status",
		Short: "Report which gateway tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "migrate status", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				return tableStatus(db.WithContext(ctx)), nil
			})
			return finish(opts, "migrate status", details, err)
		},
	})
	return cmd
}

func newSessionsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Maintain device sessions"}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Deactivate sessions past their expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "sessions sweep", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				return sweepSessions(ctx, repository.NewSessionRepository(db, nil), time.Now().UTC())
			})
			return finish(opts, "sessions sweep", details, err)
		},
	})
	return cmd
}

func newGeoIPCommand(opts *options) *cobra.Command {
	var endpoint string
	var lookupTimeout time.Duration
	cmd := &cobra.Command{Use: "geoip", Short: "Inspect the geolocation upstream"}
	lookup := &cobra.Command{
		Use:   "lookup [ip]",
		Short: "Resolve an address the way the gateway does",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ip := ""
			if len(args) == 1 {
				ip = args[0]
			}
			details, err := run(opts, "geoip lookup", func(ctx context.Context) ([]string, error) {
				logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
				return lookupIP(ctx, geoip.NewHTTPResolver(endpoint, lookupTimeout, logger), ip)
			})
			return finish(opts, "geoip lookup", details, err)
		},
	}
	lookup.Flags().StringVar(&endpoint, "endpoint", envOr("GEOIP_ENDPOINT", "https://ipapi.co"), "geolocation service base URL")
	lookup.Flags().DurationVar(&lookupTimeout, "lookup-timeout", 3*time.Second, "per-request timeout")
	cmd.AddCommand(lookup)
	return cmd
}

func newTokenCommand(opts *options) *cobra.Command {
	var userID, email string
	var ttl time.Duration
	cmd := &cobra.Command{Use: "token", Short: "Mint access tokens for local testing"}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign an access token with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "token issue", func(ctx context.Context) ([]string, error) {
				cfg, err := config.Load(opts.envFile)
				if err != nil {
					return nil, err
				}
				mgr := security.NewJWTManager(cfg.AuthJWTIssuer, cfg.AuthJWTAudience, cfg.AuthJWTSecret)
				return issueToken(mgr, userID, email, ttl)
			})
			return finish(opts, "token issue", details, err)
		},
	}
	issue.Flags().StringVar(&userID, "user", "", "subject user id")
	issue.Flags().StringVar(&email, "email", "", "email claim")
	issue.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("user")
	cmd.AddCommand(issue)
	return cmd
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func finish(opts *options, title string, details []string, err error) error {
	if opts.ci {
		common.PrintCIResult(err == nil, title, details, err)
	}
	if err != nil {
		os.Exit(4)
	}
	return nil
}

func openDB(envFile string) (*gorm.DB, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	return database.Open(cfg)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func tableStatus(db *gorm.DB) []string {
	models := []interface{ TableName() string }{
		&domain.Session{},
		&domain.UserActivity{},
		&domain.AIPromptLog{},
		&domain.CommunicationLog{},
		&domain.FileOperationLog{},
	}
	details := make([]string, 0, len(models))
	for _, m := range models {
		state := "missing"
		if db.Migrator().HasTable(m) {
			state = "present"
		}
		details = append(details, m.TableName()+": "+state)
	}
	return details
}

func sweepSessions(ctx context.Context, sessions repository.SessionRepository, now time.Time) ([]string, error) {
	n, err := sessions.DeactivateExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("deactivate expired sessions: %w", err)
	}
	return []string{fmt.Sprintf("deactivated=%d", n), "cutoff=" + now.Format(time.RFC3339)}, nil
}

var errLookupFallback = errors.New("geoip lookup returned the fallback location")

func lookupIP(ctx context.Context, resolver geoip.Resolver, ip string) ([]string, error) {
	info := resolver.Lookup(ctx, ip)
	details := []string{
		"ip=" + info.IP,
		"country=" + info.Country,
		"region=" + info.Region,
		"city=" + info.City,
		"timezone=" + info.Timezone,
	}
	if info.IsFallback() {
		return details, errLookupFallback
	}
	return details, nil
}

func issueToken(mgr *security.JWTManager, userID, email string, ttl time.Duration) ([]string, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be > 0")
	}
	token, err := mgr.SignAccessToken(userID, email, "", ttl)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return []string{token, "expires_in=" + ttl.String()}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
