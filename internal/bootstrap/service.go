package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianjwalters/graphrag-service/internal/services"
	"github.com/brianjwalters/graphrag-service/pkg/dbgateway"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const clientInitTimeout = 30 * time.Second

// Service is the application glue where we put all top level components to be used.
type Service struct {
	DB           *dbgateway.Client
	UseCase      *services.UseCase
	HealthServer *HealthServer
	Logger       *zap.SugaredLogger

	serviceName   string
	meterProvider *sdkmetric.MeterProvider
}

// InitService assembles the application: config, logger, metrics, gateway
// client and the health server.
func InitService() (*Service, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}

	meterProvider := sdkmetric.NewMeterProvider()
	otel.SetMeterProvider(meterProvider)

	settings, err := cfg.GatewaySettings()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build gateway settings")
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientInitTimeout)
	defer cancel()

	db, err := dbgateway.NewClient(ctx, settings, dbgateway.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize gateway client")
	}

	return &Service{
		DB:            db,
		UseCase:       &services.UseCase{DB: db},
		HealthServer:  NewHealthServer(cfg.ServerPort, db, logger),
		Logger:        logger,
		serviceName:   cfg.ServiceName,
		meterProvider: meterProvider,
	}, nil
}

// Run starts the application and blocks until an interrupt or termination
// signal arrives, then shuts everything down in order.
func (app *Service) Run() {
	app.HealthServer.Start()

	app.Logger.Infof("%s started", app.serviceName)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	app.Logger.Infof("Received signal %s, starting graceful shutdown...", sig)

	app.HealthServer.Shutdown()
	app.DB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.meterProvider.Shutdown(ctx); err != nil {
		app.Logger.Errorf("Meter provider shutdown error: %v", err)
	}

	app.Logger.Info("Graceful shutdown complete")

	_ = app.Logger.Sync()
}

func initLogger(cfg *Config) (*zap.SugaredLogger, error) {
	var zapCfg zap.Config

	if cfg.EnvName == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.LogLevel)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}
