package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookscape/internal/app"
	"bookscape/internal/config"
	"bookscape/internal/logger"
	"bookscape/internal/response"
	"bookscape/internal/server"
)

func main() {
	_, thisFile, _, _ := runtime.Caller(0)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config: " + err.Error())
		os.Exit(1)
	}

	err = logger.SetupSLog(cfg.Logging, os.Stderr, path.Dir(path.Dir(path.Dir(thisFile))), middleware.RequestIDKey)
	if err != nil {
		slog.Error("Failed to set up logging: " + err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to open storage: " + err.Error())
		os.Exit(1)
	}
	defer a.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Mount("/api", server.Handler(server.Services{
		Ingest:  a.Pipeline(false),
		Books:   a.Books,
		Authors: a.Authors,
		Genres:  a.Genres,
		Reports: a.Reports,
		Fails:   a.Fails,
	}, &response.Responder{DebugMode: cfg.Server.DebugMode}, cfg.Server.RateLimitPerMinute))
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening on " + cfg.Server.BindAddr)
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("aborting: " + err.Error())
		a.Close()
		os.Exit(1)
	}
}
