package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/flock"
	"github.com/italolelis/bundle_installer/internal/bundle"
	"github.com/italolelis/bundle_installer/internal/config"
	"github.com/italolelis/bundle_installer/internal/http/rest"
	"github.com/italolelis/bundle_installer/internal/installer"
	"github.com/italolelis/bundle_installer/internal/logctx"
	"github.com/italolelis/bundle_installer/internal/notifier"
	"github.com/italolelis/bundle_installer/internal/storage"
	"github.com/italolelis/bundle_installer/internal/storage/sqlite"
	"github.com/italolelis/bundle_installer/internal/telemetry"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger, closeLog := logctx.SetupLogger(cfg.LogFile, cfg.SlogLevel())
	defer closeLog()

	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("bundle installer starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fatal error", "err", err)
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Acquire Data Directory Lock
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(cfg.LockPath())

	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !locked {
		return fmt.Errorf("another bundle installer is already using %s", cfg.DataDir)
	}

	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "err", err)
		}
	}()

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}

	defer func() {
		// The run context is already cancelled here.
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	prefs := sqlite.NewPreferencesRepository(database)
	recipes := sqlite.NewInstrumentedRecipeRepository(database, tel)

	if err := seedDescriptor(ctx, prefs, cfg); err != nil {
		return err
	}

	// =========================================================================
	// Start Bundle Service
	extractor, err := installer.NewExtractor(cfg.ExtractStrategy, cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to build extractor: %w", err)
	}

	inst := installer.New(installer.Config{
		WorkDir:          cfg.WorkDir,
		ImagesDir:        cfg.ImagesDir,
		ProgressInterval: cfg.ProgressIntervalBytes,
		ImageWorkers:     cfg.ImageWorkers,
	}, buildHTTPClient(ctx, tel, cfg.BundleToken), prefs, recipes, extractor, tel)

	opts := []bundle.Option{
		bundle.WithRetryPolicy(bundle.RetryPolicy{Delays: cfg.RetryDelays}),
		bundle.WithTelemetry(tel),
	}

	if cfg.DiscordWebhookURL != "" {
		opts = append(opts, bundle.WithNotifier(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL, nil)))
	}

	svc := bundle.NewService(prefs, inst, opts...)

	if _, err := svc.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("failed to recover interrupted install: %w", err)
	}

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, svc, tel, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	if cfg.AutoStart {
		g.Go(func() error {
			if _, err := svc.Retry(gctx); err != nil {
				logger.Error("automatic bundle install failed", "err", err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// seedDescriptor stores the descriptor from the environment unless one has
// been set through the API already.
func seedDescriptor(ctx context.Context, prefs storage.PreferencesRepository, cfg *config.Config) error {
	if cfg.BundleURL == "" {
		return nil
	}

	current, err := prefs.Descriptor(ctx)
	if err != nil {
		return fmt.Errorf("failed to read bundle descriptor: %w", err)
	}

	if current.URL != "" {
		return nil
	}

	return prefs.SetDescriptor(ctx, storage.Descriptor{
		URL:      cfg.BundleURL,
		Version:  cfg.BundleVersion,
		Checksum: cfg.BundleChecksum,
	})
}

// buildHTTPClient returns the client used for bundle downloads. Downloads are
// long-lived so the client carries no overall timeout.
func buildHTTPClient(ctx context.Context, tel *telemetry.Telemetry, token string) *http.Client {
	base := &http.Client{Transport: tel.Transport(nil)}

	if token == "" {
		return base
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, svc *bundle.Service, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/", rest.NewBundleHandler(ctx, svc).Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
