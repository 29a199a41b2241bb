package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"guardget/config"
	"guardget/cron"
	"guardget/utils"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background worker: push notifications and the expiry sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if !a.redisUp {
			return errors.New("worker needs redis for its queue")
		}

		worker := cron.NewWorker(utils.QueueRedisOpt(), a.notifications, a.coordinator, config.AppConfig.SweepInterval, a.logger)
		if err := worker.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		worker.Shutdown()
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire lapsed transfers once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.coordinator.ExpireStale(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		cmd.Printf("expired %d transfer(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(sweepCmd)
}
