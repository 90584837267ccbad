package cmd

import (
	"fmt"

	"dlsite-manager/catalog"
	"dlsite-manager/db"
	"dlsite-manager/download"
	"dlsite-manager/logger"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var downloadCmd = &cobra.Command{
	Use:   "download [product-id]...",
	Short: "Download product files",
	Long: `Downloads the files of the given products into the download tree,
verifies them, and unpacks single-archive products in place. With --upgrades,
downloads every product whose remote version is newer than the local copy.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configPath)

		accountID, _ := cmd.Flags().GetInt64("account")
		upgrades, _ := cmd.Flags().GetBool("upgrades")
		all, _ := cmd.Flags().GetBool("all")

		targets := resolveTargets(a, accountID, args, upgrades, all)
		if len(targets) == 0 {
			fmt.Println("Nothing to download.")
			return
		}

		events := make(chan download.Event, 100) // Buffer slightly to avoid blocking
		orch := download.NewOrchestrator(a.store, a.client, events, a.cfg.DownloadRootDir, logger.Log, a.downloadOptions())
		orch.Recover()

		model := initialDownloadModel(a, orch, events, targets)
		if _, err := tea.NewProgram(model).Run(); err != nil {
			logger.Log.Fatalw("Download UI failed", zap.Error(err))
		}
	},
}

// resolveTargets expands the command arguments into concrete catalog entries.
func resolveTargets(a *app, accountID int64, ids []string, upgrades, all bool) []db.Product {
	if upgrades || all {
		var targets []db.Product
		for _, account := range a.targetAccounts(accountID) {
			for _, p := range a.store.List(account.ID) {
				if p.Removed {
					continue
				}
				if upgrades && p.UpgradePending {
					targets = append(targets, p)
					continue
				}
				if all && wantsDownload(p) {
					targets = append(targets, p)
				}
			}
		}
		return targets
	}

	if len(ids) == 0 {
		logger.Log.Fatal("Error: pass product ids or use --upgrades or --all.")
	}
	if accountID == 0 {
		accounts := a.store.ListAccounts()
		if len(accounts) != 1 {
			logger.Log.Fatal("Error: --account is required when more than one account is registered.")
		}
		accountID = accounts[0].ID
	}

	targets := make([]db.Product, 0, len(ids))
	for _, id := range ids {
		p, err := a.store.Get(accountID, id)
		if err != nil {
			logger.Log.Fatalw("Unknown product", zap.String("product_id", id), zap.Error(err))
		}
		targets = append(targets, p)
	}
	return targets
}

// wantsDownload reports whether a product has no usable local copy yet.
func wantsDownload(p db.Product) bool {
	if p.Download == nil {
		return true
	}
	switch p.Download.State {
	case string(catalog.StateNotDownloaded), string(catalog.StateFailed):
		return true
	}
	return false
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().Int64("account", 0, "Account the products belong to")
	downloadCmd.Flags().Bool("upgrades", false, "Download every product with a pending upgrade")
	downloadCmd.Flags().Bool("all", false, "Download every product without a local copy")
}
