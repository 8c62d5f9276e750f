// Command classroom is a terminal client for the classroom API.
package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/fastygo/classroom/internal/apiclient"
	"github.com/fastygo/classroom/internal/config"
	"github.com/fastygo/classroom/internal/services/lifecycle"
	"github.com/fastygo/classroom/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config error: %v", err)
		return 1
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Printf("logger error: %v", err)
		return 1
	}
	defer zapLogger.Sync()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	defer func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			zapLogger.Error("graceful shutdown error", zap.Error(err))
		}
	}()

	ctx, stop := manager.SignalContext(context.Background())
	defer stop()

	repo, err := openSessionRepository(ctx, cfg, manager)
	if err != nil {
		zapLogger.Error("session backend unavailable", zap.String("backend", cfg.Session.Backend), zap.Error(err))
		return 1
	}

	doer := apiclient.NewFastHTTPClient(apiclient.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
		MaxConns:  cfg.API.MaxConns,
	})

	a, err := newApp(ctx, cfg, zapLogger, manager, repo, doer, os.Stdout, os.Stderr)
	if err != nil {
		zapLogger.Error("startup failed", zap.Error(err))
		return 1
	}
	return a.run(ctx, args)
}
