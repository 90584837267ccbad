package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dlsite-manager",
	Short: "Manage a local catalog of purchased storefront products",
	Long: `dlsite-manager keeps a local, queryable catalog of the products
purchased on your storefront accounts, downloads and unpacks their files,
and keeps the catalog in sync with the remote purchase lists.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "Directory containing the .env config file")
}
