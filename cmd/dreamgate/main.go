package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/dreamgate/dreamgate/internal/config"
	"github.com/dreamgate/dreamgate/internal/dreamina"
	"github.com/dreamgate/dreamgate/internal/handlers"
	"github.com/dreamgate/dreamgate/internal/logger"
	"github.com/dreamgate/dreamgate/internal/polling"
	"github.com/dreamgate/dreamgate/internal/server"
	"github.com/dreamgate/dreamgate/internal/version"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideBackendClient(log *slog.Logger, cfg config.Config) *dreamina.Client {
	return dreamina.NewClient(log, dreamina.ClientConfig{
		HTTPClient: &http.Client{
			Timeout: time.Duration(cfg.Backend.RequestTimeoutSeconds) * time.Second,
		},
	})
}

func provideGenerationService(log *slog.Logger, cfg config.Config, client *dreamina.Client) *dreamina.Service {
	return dreamina.NewService(log, dreamina.ServiceConfig{
		Client: client,
		UploadHTTPClient: &http.Client{
			Timeout: time.Duration(cfg.Upload.TimeoutSeconds) * time.Second,
		},
		TokenPerMinute: cfg.Upload.TokenPerMinute,
		Polling: polling.Config{
			MaxAttempts:  cfg.Polling.MaxAttempts,
			Interval:     time.Duration(cfg.Polling.IntervalMs) * time.Millisecond,
			StableRounds: cfg.Polling.StableRounds,
			Timeout:      time.Duration(cfg.Polling.TimeoutSeconds) * time.Second,
		},
		InitialDelay: time.Duration(cfg.Polling.InitialDelaySeconds) * time.Second,
	})
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
) {
	fmt.Printf("Starting dreamgate %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil { // block until server is stopped
					if !errors.Is(err, http.ErrServerClosed) {
						logger.Error("server failed", slog.Any("error", err))
					}
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,

			provideBackendClient,
			provideGenerationService,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewInfoHandler),
			provideServerHandler(handlers.NewModelsHandler),
			provideServerHandler(handlers.NewTokenHandler),
			provideServerHandler(handlers.NewGenerationsHandler),

			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}
