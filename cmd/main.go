// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/config"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/database"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/handler"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/logging"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/notify"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/repository"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/service"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/settings"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/speech"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/tenant"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "barbersoft: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("barbersoft", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	migrate := flags.Bool("migrate", true, "apply the database schema on start")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres", "host", cfg.Database.Host, "name", cfg.Database.Name)

	if *migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	manager := tenant.NewManager(
		repository.NewTenantStore(pool),
		tenant.StaticSession(cfg.Tenant.OwnerUserID),
		tenant.WithLogger(logger),
		tenant.WithDefaultNames(cfg.Tenant.DefaultOrganization, cfg.Tenant.DefaultLocation),
	)
	if cfg.Tenant.OwnerUserID == "" {
		logger.Warn("no owner user configured, bootstrap disabled")
	}

	provider := settings.NewProvider(repository.NewSettingsRepository(pool), logger)
	speaker := newSpeaker(cfg.Speech, logger)
	defer speaker.Close()

	realtime := repository.NewRealtime(pool, logger)
	pipeline := notify.New(
		manager.Selection(),
		notify.SubscriberFunc(func(ctx context.Context, locationID string, onInsert func(model.Appointment)) (notify.Feed, error) {
			sub, err := realtime.Subscribe(ctx, locationID, onInsert)
			if err != nil {
				return nil, err
			}
			return sub, nil
		}),
		repository.NewDirectoryRepository(pool),
		provider,
		speaker,
		notify.WithLogger(logger),
		notify.WithTimeZone(cfg.Location()),
		notify.WithLanguage(cfg.Speech.Language),
	)

	svc := service.NewSchedulingService(manager, repository.NewAppointmentRepository(pool), provider)

	// ── 3. Build the router ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler.NewRouter(handler.NewSchedulingHandler(svc), logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── 4. Run until SIGINT or SIGTERM ────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error {
		provider.Follow(gctx, manager.Selection())
		return nil
	})
	g.Go(func() error { return pipeline.Run(gctx) })
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	pipeline.Wait()
	logger.Info("server stopped")
	return err
}

func newSpeaker(cfg config.Speech, logger *slog.Logger) *speech.Speaker {
	if !cfg.Enabled {
		return speech.NewSpeaker(nil, logger)
	}
	engine, ok := speech.LookupEspeak(cfg.Command)
	if !ok {
		logger.Warn("no speech synthesizer found, announcements are disabled", "command", cfg.Command)
		return speech.NewSpeaker(nil, logger)
	}
	return speech.NewSpeaker(engine, logger)
}
