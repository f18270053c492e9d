// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/haldvard/lectern/internal/ai"
	"github.com/haldvard/lectern/internal/api"
	"github.com/haldvard/lectern/internal/assets"
	"github.com/haldvard/lectern/internal/library"
	"github.com/haldvard/lectern/internal/mcpserver"
	"github.com/haldvard/lectern/internal/sse"
	"github.com/haldvard/lectern/internal/store"
	"github.com/haldvard/lectern/internal/web"
)

// Run starts the web application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("inbox_path", cfg.Library.Inbox),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, db, err := buildLibrary(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// AI gateway. Without an API key analysis endpoints return 502 and
	// the reader UI hides the AI actions.
	gateway, err := ai.New(ai.Config{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
	})
	if err != nil {
		return fmt.Errorf("init ai gateway: %w", err)
	}
	if !gateway.Enabled() {
		logger.Info("AI analysis disabled: no API key configured")
	}

	// SSE broker; library events fan out to connected pages.
	broker := sse.NewBroker()
	defer broker.Close()
	svc.OnEvent = broker.PublishBookEvent

	// Import whatever is already waiting in the inbox.
	if cfg.Library.Inbox != "" {
		if err := library.Scan(ctx, svc, cfg.Library.Inbox, logger); err != nil {
			logger.Warn("initial inbox scan failed", slog.String("error", err.Error()))
		}
	}

	webHandler, err := web.NewHandler(svc, gateway.Enabled())
	if err != nil {
		return fmt.Errorf("init web: %w", err)
	}

	apiRouter := api.NewRouter(svc, gateway, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api, pages at the root.
	r.Mount("/api", apiRouter)
	r.Mount("/", webHandler.Routes())

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the inbox for dropped EPUB files.
	if cfg.Library.Inbox != "" {
		g.Go(func() error {
			if err := library.Watch(gCtx, svc, cfg.Library.Inbox, logger); err != nil {
				logger.Warn("inbox watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the library over the Model Context Protocol on stdio.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	// stdout carries the MCP protocol, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	svc, db, err := buildLibrary(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Library.Inbox != "" {
		if err := library.Scan(ctx, svc, cfg.Library.Inbox, logger); err != nil {
			logger.Warn("initial inbox scan failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}

// buildLibrary opens the store and asset directories shared by the web
// and MCP entrypoints.
func buildLibrary(cfg *Config) (*library.Service, *store.DB, error) {
	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create library dir: %w", err)
	}
	if cfg.Library.Inbox != "" {
		if err := os.MkdirAll(cfg.Library.Inbox, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create inbox dir: %w", err)
		}
	}

	assetFS, err := assets.NewFS(cfg.Library.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init assets: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	return library.NewService(db, assetFS, cfg.Library.Inbox), db, nil
}
