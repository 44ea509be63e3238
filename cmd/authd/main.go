// authd - token-based authentication service
//
// This is the main entry point for authd. It wires the token core
// (issuance, rotation, revocation), the SQLite-backed repositories, the
// HTTP API, and the optional MQTT and InfluxDB integrations, then waits
// for a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/finchsec/authd/migrations"

	"github.com/finchsec/authd/internal/api"
	"github.com/finchsec/authd/internal/audit"
	"github.com/finchsec/authd/internal/auth"
	"github.com/finchsec/authd/internal/infrastructure/config"
	"github.com/finchsec/authd/internal/infrastructure/database"
	"github.com/finchsec/authd/internal/infrastructure/influxdb"
	"github.com/finchsec/authd/internal/infrastructure/logging"
	"github.com/finchsec/authd/internal/infrastructure/mqtt"
	"github.com/finchsec/authd/internal/notify"
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

// sweepInterval is how often expired tokens and stale revocations are
// removed from storage.
const sweepInterval = time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting authd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled; token hand-offs go to the log")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the token core
	codec := auth.NewCodec(cfg.Security.JWT.Secret, nil)
	users := auth.NewSQLiteUserRepository(db.DB)
	tokens := auth.NewSQLiteTokenRepository(db.DB)
	oneShots := auth.NewSQLiteOneShotRepository(db.DB)
	revocations := auth.NewSQLiteRevocationRepository(db.DB)
	issuer := auth.NewIssuer(codec, nil, auth.IssuerConfig{
		IssuerName: cfg.Service.Name,
		AccessTTL:  cfg.Security.AccessTokenTTL(),
		RefreshTTL: cfg.Security.RefreshTokenTTL(),
		ResetTTL:   cfg.Security.ResetTokenTTL(),
		VerifyTTL:  cfg.Security.VerifyTokenTTL(),
	})
	verifier := auth.NewVerifier(codec, revocations)

	// WebSocket hub for the admin security event stream. Created here so
	// it can join the event fan-out before the server starts.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Event fan-out: audit trail always, dashboards, metrics and bus
	// when connected.
	auditRepo := audit.NewSQLiteRepository(db.DB)
	sinks := auth.MultiSink{audit.NewSink(auditRepo, log), hub}
	if influxClient != nil {
		sinks = append(sinks, influxdb.NewSink(influxClient, log))
	}
	if mqttClient != nil {
		sinks = append(sinks, mqtt.NewEventSink(mqttClient, log))
	}

	// Token delivery: hand off to the mailer over MQTT, or log without it.
	var notifier auth.Notifier
	if mqttClient != nil {
		notifier = notify.NewMQTTNotifier(mqttClient)
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	service := auth.NewService(auth.ServiceDeps{
		Users:       users,
		Tokens:      tokens,
		OneShots:    oneShots,
		Revocations: revocations,
		Issuer:      issuer,
		Verifier:    verifier,
		Codec:       codec,
		Notifier:    notifier,
		Events:      sinks,
		Logger:      log,
	})

	// Seed the initial admin account if configured
	if email := os.Getenv("AUTHD_ADMIN_EMAIL"); email != "" {
		admin, seedErr := auth.SeedAdmin(ctx, users, email, os.Getenv("AUTHD_ADMIN_PASSWORD"))
		if seedErr != nil {
			return fmt.Errorf("seeding admin account: %w", seedErr)
		}
		log.Info("admin account ready", "user_id", admin.ID, "email", admin.Email)
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Auth:     service,
		Audit:    auditRepo,
		Metrics:  influxClient,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Periodic sweep of expired tokens and stale revocations
	go sweepLoop(ctx, service, influxClient, log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("authd stopped")
	return nil
}

// sweepLoop removes expired tokens and stale revocations on an interval.
func sweepLoop(ctx context.Context, service *auth.Service, metrics *influxdb.Client, log *logging.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := service.Sweep(ctx)
			if err != nil {
				log.Error("token sweep failed", "error", err)
				continue
			}
			log.Info("token sweep complete",
				"refresh_tokens", result.RefreshTokens,
				"oneshot_tokens", result.OneShotTokens,
				"revocations", result.Revocations,
			)
			if metrics != nil {
				//nolint:errcheck // Metrics are best-effort
				metrics.WriteSweepMetric(result.RefreshTokens, result.OneShotTokens, result.Revocations)
			}
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses AUTHD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUTHD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB are optional; nil clients are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.Health(ctx); err != nil {
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
