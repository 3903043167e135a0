package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/tindecisos/internal/app"
	"github.com/oggyb/tindecisos/internal/auth"
	"github.com/oggyb/tindecisos/internal/config"
	"github.com/oggyb/tindecisos/internal/db"
	"github.com/oggyb/tindecisos/internal/docstore"
	"github.com/oggyb/tindecisos/internal/logger"
	"github.com/oggyb/tindecisos/internal/server"
	"github.com/oggyb/tindecisos/internal/service/documents"
	"github.com/oggyb/tindecisos/internal/service/identity"
	"github.com/oggyb/tindecisos/internal/telemetry"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitJaeger(cfg.Trace.Service, releaseVersion, cfg.Trace.Endpoint, log)
	if err != nil {
		log.Warn("tracing disabled", "err", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("failed to flush traces", "err", err)
		}
	}()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis change feed
	feed := docstore.NewRedisFeed(cfg)
	if err := feed.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}
	defer feed.Close()

	policy := auth.PolicyFromConfig(cfg)
	if !policy.Open() {
		log.Warn("ALLOWED_EMAILS is empty, only ADMIN_EMAILS can sign in")
	}
	authenticator := auth.NewAuthenticator(database, policy, logger.Module("auth"))
	appCtx := app.New(database, feed, authenticator, log)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	grpcServer := server.NewGRPCServer(log,
		documents.NewRegistrar(appCtx),
		identity.NewRegistrar(appCtx),
	)

	httpServer := server.NewHTTPServer(cfg, server.NewHTTPHandler(releaseVersion, map[string]server.Checker{
		"db": func(ctx context.Context) error {
			sqlDB, err := database.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": feed.Ping,
	}))
	go func() {
		log.Info("starting http server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)

		// open Watch streams never finish on their own
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
	}()

	addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
	log.Info("starting gRPC server", "addr", addr, "db", cfg.DB.Driver, "version", releaseVersion)

	if err := server.StartGRPCServer(cfg, grpcServer); err != nil {
		log.Error("failed to start gRPC server", "err", err)
	}
}
