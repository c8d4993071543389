package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/bootstrap"
	"github.com/zhouzirui/timemachine/backend/internal/config"
	"github.com/zhouzirui/timemachine/backend/internal/handler"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
	"github.com/zhouzirui/timemachine/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	if envErr != nil {
		zlog.Info("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	store, closeStore, err := bootstrap.NewStore(ctx, cfg.Store, zlog)
	if err != nil {
		zlog.Fatal("failed to initialise session store", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := closeStore(closeCtx); err != nil {
			zlog.Warn("failed to close session store", zap.Error(err))
		}
	}()

	reasoner, err := bootstrap.NewReasoner(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to initialise reasoning engine", zap.Error(err))
	}

	sessions := session.NewService(store, reasoner, session.Config{
		RollbackFailedTurns: cfg.Session.RollbackFailedTurns,
	}, zlog.Named("session"))

	router := handler.NewRouter(sessions, zlog)

	if err := startServer(ctx, cfg.Server, router, zlog); err != nil {
		zlog.Error("server error", zap.Error(err))
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zlog *zap.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zlog.Info("timemachine backend listening", zap.String("addr", addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
