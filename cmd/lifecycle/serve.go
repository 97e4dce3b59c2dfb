package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/container"
	httpapi "github.com/garyjia/barangay-lifecycle/internal/interfaces/http"
	"github.com/garyjia/barangay-lifecycle/pkg/utils"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API over the lifecycle engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("Starting barangay lifecycle engine",
				zap.String("version", version),
				zap.String("storage", cfg.Storage.Driver),
				zap.Int("port", cfg.Server.Port))

			if cfg.Logger.Level == "debug" {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
			if err != nil {
				return err
			}
			if err := c.Start(ctx); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error("Shutdown finished with errors", zap.Error(err))
				}
			}()

			var serverOpts []httpapi.ServerOption
			if m := c.Metrics(); m != nil {
				serverOpts = append(serverOpts,
					httpapi.WithMiddleware(m.GinMiddleware()),
					httpapi.WithMetricsHandler(m.Handler()))
			}

			sc := cfg.Server
			if sc.ActorSecret != "" {
				serverOpts = append(serverOpts, httpapi.WithActorVerifier(httpapi.NewActorVerifier(sc.ActorSecret, sc.ActorMaxSkew)))
			} else {
				logger.Warn("Actor headers are trusted without signature verification")
			}

			server := httpapi.NewServer(httpapi.ServerConfig{
				Host:            sc.Host,
				Port:            sc.Port,
				ReadTimeout:     sc.ReadTimeout,
				WriteTimeout:    sc.WriteTimeout,
				ShutdownTimeout: sc.ShutdownTimeout,
			}, c.Engine(), utils.NewKVLogger(logger.Named("http")), serverOpts...)

			if err := server.Start(ctx); err != nil {
				return err
			}
			logger.Info("Server exited")
			return nil
		},
	}
}
