package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"guardget/config"
	"guardget/cron"
	"guardget/middleware"
	"guardget/routes"
	"guardget/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		logger := a.logger.Sugar()

		if config.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(utils.ErrorHandler())
		router.Use(middleware.RequestLogger(a.logger))
		routes.RegisterRoutes(router, a.handlerBundle())

		utils.StartHealthMonitor(ctx, 30*time.Second, a.stores.Ping,
			[]*redis.Client{utils.GetCacheClient(), utils.GetAuthCacheClient()})

		if withWorker {
			if !a.redisUp {
				logger.Warn("serve: --with-worker ignored, redis is unavailable")
			} else {
				worker := cron.NewWorker(utils.QueueRedisOpt(), a.notifications, a.coordinator, config.AppConfig.SweepInterval, a.logger)
				if err := worker.Start(ctx); err != nil {
					return err
				}
				defer worker.Shutdown()
			}
		}

		port := config.AppConfig.AppPort
		if port == "" {
			port = "8080"
		}
		srv := &http.Server{
			Addr:    "0.0.0.0:" + port,
			Handler: router,
		}

		logger.Infof("Starting server on %s...", srv.Addr)
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		logger.Info("serve: server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("serve: server forced to shutdown: %v", err)
			return err
		}
		logger.Info("serve: server stopped gracefully")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the background worker and sweep scheduler")
	rootCmd.AddCommand(serveCmd)
}
