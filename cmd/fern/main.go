package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fern: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env", ".env.local")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEnabled {
		otlpCfg, err := exporters.OTLPConfigFromEnv(cfg.OTLPEndpoint, cfg.OTLPProtocol, cfg.OTLPInsecure, cfg.OTLPHeaders)
		if err != nil {
			return err
		}
		exporter, err := exporters.NewOTLPExporter(ctx, otlpCfg)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		shutdown := tracing.Setup(cfg.AppName, exporter)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to flush traces")
			}
		}()
	}

	svc := newApp(cfg, logger)
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	svc.register(boot)

	if err := boot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := boot.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("Shutdown finished with errors")
		}
	}()

	svc.health.SetReady(true)
	logger.WithFields(map[string]any{"port": cfg.Port, "version": cfg.Version}).Info("fern is ready")

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		return nil
	case err := <-svc.serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]any{"app": cfg.AppName, "version": cfg.Version}

	return zapCfg.Build()
}

