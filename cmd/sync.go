package cmd

import (
	"context"
	"fmt"

	"dlsite-manager/db"
	"dlsite-manager/logger"
	"dlsite-manager/query"
	"dlsite-manager/reconcile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the catalog with the remote purchase lists",
	Long: `Fetches the full purchase list of each account and folds it into the
local catalog: new purchases are added, changed metadata is updated, and
products no longer owned are marked removed. Products whose remote version is
newer than the local copy are flagged for re-download.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configPath)

		accountID, _ := cmd.Flags().GetInt64("account")
		accounts := a.targetAccounts(accountID)
		if len(accounts) == 0 {
			fmt.Println("No accounts registered. Add one with 'account add'.")
			return
		}

		runSync(a, accounts)
	},
}

func runSync(a *app, accounts []db.Account) {
	reconciler := reconcile.NewReconciler(a.store, logger.Log)

	for _, account := range accounts {
		if account.SessionJSON == "" {
			logger.Log.Warnw("Account has no session, skipping",
				zap.Int64("account_id", account.ID),
				zap.String("username", account.Username),
			)
			continue
		}

		result, err := reconciler.FetchAndReconcile(context.Background(), a.client, account.ID, account.SessionJSON)
		if err != nil {
			logger.Log.Errorw("Sync failed",
				zap.Int64("account_id", account.ID),
				zap.String("username", account.Username),
				zap.Error(err),
			)
			continue
		}

		fmt.Printf("%s: %d added, %d updated, %d removed\n",
			account.Username, len(result.Added), len(result.Updated), len(result.Removed))
	}

	// A remembered query reflects the pre-sync catalog; re-evaluate it so the
	// user sees fresh results without retyping the filter.
	if q, ok := a.session.Latest(); ok {
		results := query.Evaluate(a.store.ListAll(), q, a.session.Languages())
		fmt.Printf("Remembered query now matches %d products\n", len(results))
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Int64("account", 0, "Sync a single account id (0 = all accounts)")
}
