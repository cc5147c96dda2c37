// Package server initializes and runs the authentication server. It wires
// the database, repositories, services, and HTTP transport, and handles
// graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/censusconnect/authserver/internal/dbx"
	"github.com/censusconnect/authserver/internal/logging"
	"github.com/censusconnect/authserver/internal/server/config"
	"github.com/censusconnect/authserver/internal/server/httpapi"
	"github.com/censusconnect/authserver/internal/server/repositories/repomanager"
	"github.com/censusconnect/authserver/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	handler http.Handler
	limiter *httpapi.IPRateLimiter
	pruner  *services.Pruner
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := dbx.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("repository init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	auditService := services.NewAuditService(db, rm)
	throttleService := services.NewThrottleService(db, rm)
	tokenService := services.NewTokenService(db, rm, cfg)
	sessionService := services.NewSessionService(db, rm, cfg)

	var sender services.EmailSender
	if cfg.SMTPAddr != "" {
		sender = services.NewSMTPSender(cfg)
	} else {
		sender = services.NewLogSender(logger)
	}

	authService := services.NewAuthService(db, rm, cfg,
		throttleService, tokenService, sessionService, auditService, sender, logger)

	handler := httpapi.NewHandler(authService, sessionService, auditService, logger)
	limiter := httpapi.NewIPRateLimiter(cfg.RequestRatePerSec, cfg.RequestBurst)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		handler: httpapi.NewRouter(handler, limiter),
		limiter: limiter,
		pruner:  services.NewPruner(db, rm, cfg, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:         app.config.EndpointAddrHTTP,
		Handler:      app.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "server shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "starting http server", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, "http server error", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.pruner.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.limiter.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "app stopped")
}
