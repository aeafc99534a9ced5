package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fundchain/config"
	"fundchain/core"
	"fundchain/core/events"
	"fundchain/core/genesis"
	"fundchain/observability/logging"
	telemetry "fundchain/observability/otel"
	"fundchain/rpc"
	"fundchain/storage"
	"fundchain/storage/idempotency"
	"fundchain/storage/journal"
)

const serviceName = "crowdfundd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml or .yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Environment
	logger := logging.Setup(serviceName, env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	telemetryCfg := telemetry.ApplyEnv(telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	var j *journal.Journal
	sinks := events.Multi{eventLogger(logger)}
	if !cfg.Journal.Disabled {
		j, err = journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		sinks = append(events.Multi{j}, sinks...)
	}
	var emitter events.Emitter = sinks

	node, err := core.NewNode(db, core.WithEmitter(emitter), core.WithLogger(logger))
	if err != nil {
		return err
	}

	allocs, err := loadAllocations(cfg)
	if err != nil {
		return err
	}
	applied, err := node.ApplyGenesis(allocs)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis allocations applied", slog.Int("accounts", len(allocs)))
	}

	var idem *idempotency.Store
	if !cfg.Idempotency.Disabled {
		idem, err = idempotency.Open(cfg.Idempotency.Driver, cfg.Idempotency.DSN)
		if err != nil {
			return err
		}
		defer idem.Close()
		purgeCtx, stopPurge := context.WithCancel(ctx)
		defer stopPurge()
		go purgeIdempotency(purgeCtx, idem, time.Duration(cfg.Idempotency.TTLHours)*time.Hour, logger)
	}

	server, err := rpc.NewServer(node, j, rpc.Config{
		Auth: rpc.AuthConfig{
			HMACSecret: cfg.Auth.JWTSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		},
		RateLimit: rpc.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Idempotency: idem,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: seconds(cfg.HTTP.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.HTTP.ReadTimeout),
		WriteTimeout:      seconds(cfg.HTTP.WriteTimeout),
		IdleTimeout:       seconds(cfg.HTTP.IdleTimeout),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("crowdfundd listening",
			slog.String("address", cfg.ListenAddress),
			slog.String("backend", cfg.Storage.Backend))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), seconds(cfg.HTTP.ShutdownTimeout))
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forcing server stop", slog.String("error", err.Error()))
		_ = httpServer.Close()
	}
	return nil
}

// loadAllocations merges the genesis file, if any, with inline allocations.
func loadAllocations(cfg *config.Config) ([]genesis.Allocation, error) {
	spec := &genesis.Spec{}
	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		loaded, err := genesis.LoadSpec(path)
		if err != nil {
			return nil, err
		}
		spec = loaded
	}
	if err := spec.Merge(cfg.Alloc); err != nil {
		return nil, err
	}
	return spec.Allocations()
}

// purgeIdempotency drops replay records older than ttl, once at start and then
// hourly until ctx ends.
func purgeIdempotency(ctx context.Context, store *idempotency.Store, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		removed, err := store.Purge(ctx, time.Now().UTC().Add(-ttl))
		if err != nil && ctx.Err() == nil {
			logger.Warn("idempotency purge failed", slog.String("error", err.Error()))
		} else if removed > 0 {
			logger.Info("idempotency records purged", slog.Int64("removed", removed))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func seconds(v int) time.Duration { return time.Duration(v) * time.Second }

// eventLogger writes every committed notification to the service log at
// debug level.
func eventLogger(logger *slog.Logger) events.Emitter {
	return events.EmitterFunc(func(evt events.Event) {
		attrs := []any{slog.String("event", evt.EventType())}
		if payload, ok := evt.(events.Payload); ok && payload.Event() != nil {
			if campaign := payload.Event().Attribute("campaign"); campaign != "" {
				attrs = append(attrs, slog.String("campaign", campaign))
			}
		}
		logger.Debug("notification committed", attrs...)
	})
}
