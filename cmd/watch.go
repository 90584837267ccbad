package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dlsite-manager/logger"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run periodic catalog syncs until interrupted",
	Long: `Schedules a sync of every account on the configured interval
(SYNC_INTERVAL, cron syntax or @every durations) and keeps running until
interrupted with SIGINT or SIGTERM.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configPath)

		scheduler := cron.New()
		_, err := scheduler.AddFunc(a.cfg.SyncInterval, func() {
			logger.Log.Info("Scheduled sync starting")
			runSync(a, a.store.ListAccounts())
		})
		if err != nil {
			logger.Log.Fatalw("Invalid sync interval",
				zap.String("interval", a.cfg.SyncInterval),
				zap.Error(err),
			)
		}

		// Sync once immediately so a fresh install is not empty until the
		// first tick fires.
		runSync(a, a.store.ListAccounts())

		scheduler.Start()
		fmt.Printf("Watching, syncing every %q. Press Ctrl+C to stop.\n", a.cfg.SyncInterval)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		ctx := scheduler.Stop()
		<-ctx.Done()
		logger.Log.Info("Watch stopped")
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
