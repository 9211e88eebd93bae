// Leitura Auth - session and account service
//
// This is the main entry point for the leitura binary. It serves the
// HTTP API for login, token refresh, logout and user management, and
// provides maintenance commands for migrations and session cleanup.
//
// Usage:
//
//	leitura serve             run the API server (default command)
//	leitura migrate up        apply pending migrations
//	leitura migrate down      roll back the latest migration
//	leitura migrate status    list applied and pending migrations
//	leitura sessions cleanup  purge expired and stale sessions once
//	leitura version           print build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/leitura-auth/migrations"

	"github.com/nerrad567/leitura-auth/internal/api"
	"github.com/nerrad567/leitura-auth/internal/audit"
	"github.com/nerrad567/leitura-auth/internal/auth"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/config"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/database"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/influxdb"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/logging"
	"github.com/nerrad567/leitura-auth/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand serves the API.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "leitura",
		Short:         "Leitura session and account service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"path to the YAML configuration file (env LEITURA_CONFIG)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		newMigrateCmd(&configPath),
		newSessionsCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion(cmd.OutOrStdout())
			},
		},
	)
	return root
}

func newMigrateCmd(configPath *string) *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), *configPath, func(ctx context.Context, _ *config.Config, db *database.DB) error {
					if err := db.Migrate(ctx); err != nil {
						return fmt.Errorf("running migrations: %w", err)
					}
					v, err := db.MigrationVersion(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), *configPath, func(ctx context.Context, _ *config.Config, db *database.DB) error {
					if err := db.MigrateDown(ctx); err != nil {
						return fmt.Errorf("rolling back migration: %w", err)
					}
					v, err := db.MigrationVersion(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), *configPath, func(ctx context.Context, _ *config.Config, db *database.DB) error {
					applied, pending, err := db.GetMigrationStatus(ctx)
					if err != nil {
						return fmt.Errorf("reading migration status: %w", err)
					}
					printMigrationStatus(cmd.OutOrStdout(), applied, pending)
					return nil
				})
			},
		},
	)
	return migrate
}

func newSessionsCmd(configPath *string) *cobra.Command {
	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "Session maintenance",
	}

	sessions.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired and long-revoked sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), *configPath, func(ctx context.Context, cfg *config.Config, db *database.DB) error {
				if err := db.Migrate(ctx); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				store := auth.NewSessionStore(db, nil, cfg.StatsLocation())
				manager := auth.NewSessionManager(store, auth.SessionConfig{AccessTTL: cfg.AccessTTL()}, logging.Discard())

				n, err := manager.CleanupExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions\n", n)
				return nil
			})
		},
	})
	return sessions
}

// getConfigPath returns the configuration file path.
// Uses LEITURA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LEITURA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "leitura %s (commit %s, built %s)\n", version, commit, date)
}

func printMigrationStatus(w io.Writer, applied, pending []database.MigrationRecord) {
	for _, m := range applied {
		fmt.Fprintf(w, "applied  %05d  %s  %s\n", m.Version, m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "pending  %05d  %s\n", m.Version, m.Name)
	}
	if len(applied)+len(pending) == 0 {
		fmt.Fprintln(w, "no migrations")
	}
}

// withDatabase loads the configuration, opens the database and runs fn.
// The database is closed when fn returns.
func withDatabase(ctx context.Context, configPath string, fn func(context.Context, *config.Config, *database.DB) error) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing database: %w", closeErr))
		}
	}()

	return fn(ctx, cfg, db)
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Driver:         cfg.Database.Driver,
		Path:           cfg.Database.Path,
		DSN:            cfg.Database.DSN,
		WALMode:        cfg.Database.WALMode,
		BusyTimeout:    cfg.Database.BusyTimeout,
		ConnectRetries: cfg.Database.ConnectRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// runServe is the server lifecycle, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runServe(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Leitura",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", cfg.Database.Driver)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	metrics := api.NewMetrics()
	auditRepo := audit.NewSQLRepository(db, nil)
	publishers := auth.Fanout{metrics, audit.NewRecorder(auditRepo)}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		publishers = append(publishers, mqtt.NewSessionEvents(mqttClient, mqttClient.Topics(), byte(cfg.MQTT.QoS)))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		publishers = append(publishers, influxdb.NewSessionEvents(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	codec := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  cfg.Security.JWT.AccessSecret,
		RefreshSecret: cfg.Security.JWT.RefreshSecret,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		Issuer:        cfg.Security.JWT.Issuer,
	}, nil)

	sessions := auth.NewSessionManager(
		auth.NewSessionStore(db, nil, cfg.StatsLocation()),
		auth.SessionConfig{AccessTTL: cfg.AccessTTL()},
		log,
		auth.WithEventPublisher(publishers),
	)

	directory := auth.NewDirectory(
		auth.NewUserRepository(db, nil),
		sessions,
		nil,
		auth.DirectoryConfig{RootUsername: cfg.Security.Root.Username},
		log,
	)

	if _, seedErr := directory.SeedRoot(ctx, auth.RootConfig{
		Enabled:  cfg.Security.Root.Enabled,
		Username: cfg.Security.Root.Username,
		Password: cfg.Security.Root.Password,
		Email:    cfg.Security.Root.Email,
	}); seedErr != nil {
		return fmt.Errorf("seeding root account: %w", seedErr)
	}

	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log,
		DB:        db,
		Codec:     codec,
		Sessions:  sessions,
		Directory: directory,
		Metrics:   metrics,
		MQTT:      mqttClient,
		Audit:     auditRepo,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		sessions.RunCleanup(cleanupCtx, cfg.CleanupInterval())
	}()
	defer func() {
		stopCleanup()
		<-cleanupDone
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal", "address", srv.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// cleanup loop, API server, InfluxDB, MQTT, database.

	log.Info("Leitura stopped")
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
