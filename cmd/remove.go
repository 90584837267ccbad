package cmd

import (
	"fmt"
	"os"

	"dlsite-manager/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var removeCmd = &cobra.Command{
	Use:   "remove <product-id>...",
	Short: "Remove products from the catalog",
	Long: `Removes products from the local catalog. Downloaded files are kept
unless --purge-files is given. Products with an active download cannot be
removed until the download finishes or is cancelled.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configPath)

		accountID, _ := cmd.Flags().GetInt64("account")
		purge, _ := cmd.Flags().GetBool("purge-files")

		if accountID == 0 {
			accounts := a.store.ListAccounts()
			if len(accounts) != 1 {
				logger.Log.Fatal("Error: --account is required when more than one account is registered.")
			}
			accountID = accounts[0].ID
		}

		for _, id := range args {
			product, err := a.store.Get(accountID, id)
			if err != nil {
				logger.Log.Errorw("Unknown product", zap.String("product_id", id), zap.Error(err))
				continue
			}

			path := ""
			if product.Download != nil {
				path = product.Download.Path
			}

			if err := a.store.RemoveProduct(accountID, id); err != nil {
				logger.Log.Errorw("Failed to remove product", zap.String("product_id", id), zap.Error(err))
				continue
			}

			if purge && path != "" {
				if err := os.RemoveAll(path); err != nil {
					logger.Log.Warnw("Failed to delete downloaded files",
						zap.String("product_id", id),
						zap.String("path", path),
						zap.Error(err),
					)
				}
			}
			fmt.Printf("Removed %s\n", id)
		}
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)

	removeCmd.Flags().Int64("account", 0, "Account the products belong to")
	removeCmd.Flags().Bool("purge-files", false, "Also delete downloaded files from disk")
}
