// Command chatbot-api serves the university chatbot backend and carries its
// administrative commands.
//
// @title University Chatbot API
// @version 1.0
// @description Accounts, chat history and the admin dashboard for the university transport chatbot.
// @contact.name API Support
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/transportuni/chatbot-api/auth"
	"github.com/transportuni/chatbot-api/chat"
	"github.com/transportuni/chatbot-api/config"
	"github.com/transportuni/chatbot-api/dashboard"
	"github.com/transportuni/chatbot-api/db"
	"github.com/transportuni/chatbot-api/memstore"
	"github.com/transportuni/chatbot-api/metrics"
	"github.com/transportuni/chatbot-api/server"
	"github.com/transportuni/chatbot-api/users"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	usernameFlag := &cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "account username", Required: true}
	return &cli.App{
		Name:   "chatbot-api",
		Usage:  "university chatbot backend",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "down", Usage: "roll back `N` migrations instead of applying"},
				},
				Action: migrateDB,
			},
			{
				Name:  "set-admin",
				Usage: "grant or revoke administrator privileges",
				Flags: []cli.Flag{
					usernameFlag,
					&cli.BoolFlag{Name: "admin", Value: true, Usage: "admin flag to set"},
				},
				Action: func(c *cli.Context) error {
					return updateAccount(c, func(ctx context.Context, svc *users.UserService, username string) (*auth.Account, error) {
						return svc.SetAdmin(ctx, username, c.Bool("admin"))
					})
				},
			},
			{
				Name:  "set-active",
				Usage: "enable or disable an account",
				Flags: []cli.Flag{
					usernameFlag,
					&cli.BoolFlag{Name: "active", Value: true, Usage: "active flag to set"},
				},
				Action: func(c *cli.Context) error {
					return updateAccount(c, func(ctx context.Context, svc *users.UserService, username string) (*auth.Account, error) {
						return svc.SetActive(ctx, username, c.Bool("active"))
					})
				},
			},
		},
	}
}

// setup loads the configuration and installs the process logger.
func setup() (*config.AppConfig, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg *config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func serve(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	switch cfg.Database.Driver {
	case config.StoreDriverMemory:
		logger.Warn("using the in-memory store; data is lost on restart")
		store := memstore.New()
		deps.Accounts, deps.Admin, deps.Chat, deps.Stats = store, store, store.Chat(), store
	default:
		if cfg.Database.MigrateOnStart {
			if _, err := db.RunMigrations(cfg.Database, logger); err != nil {
				return err
			}
		}
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("connected to PostgreSQL", "pool_size", cfg.Database.MaxSize)

		accounts := users.NewPostgresStore(pool)
		deps.Accounts, deps.Admin = accounts, accounts
		deps.Chat = chat.NewPostgresStore(pool)
		deps.Stats = dashboard.NewPostgresStats(pool)
		deps.HealthCheck = pool.Ping
	}

	if cfg.RateLimit.RedisURL != "" {
		rdb, err := db.NewRedis(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			return err
		}
		defer closeRedis(rdb, logger)
		deps.Redis = rdb
		logger.Info("login rate limiting enabled", "limit", cfg.RateLimit.Limit, "window", cfg.RateLimit.Window)
	}

	srv, err := server.New(deps)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func closeRedis(rdb *redis.Client, logger *slog.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Warn("failed to close redis client", "error", err)
	}
}

func migrateDB(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if steps := c.Int("down"); steps > 0 {
		return db.RollbackMigrations(cfg.Database, steps, logger)
	}
	version, err := db.RunMigrations(cfg.Database, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "database at migration version %d\n", version)
	return nil
}

func updateAccount(c *cli.Context, apply func(ctx context.Context, svc *users.UserService, username string) (*auth.Account, error)) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.Database.Driver == config.StoreDriverMemory {
		return errors.New("account commands need STORE_DRIVER=postgres")
	}
	pool, err := db.NewPool(c.Context, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	account, err := apply(c.Context, users.NewUserService(users.NewPostgresStore(pool), logger), c.String("username"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s: active=%t admin=%t\n", account.Username, account.IsActive, account.IsAdmin)
	return nil
}
