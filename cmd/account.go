package cmd

import (
	"fmt"
	"strconv"

	"dlsite-manager/db"
	"dlsite-manager/logger"
	"dlsite-manager/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage storefront accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a storefront account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configPath)

		label, _ := cmd.Flags().GetString("label")
		memo, _ := cmd.Flags().GetString("memo")
		session, _ := cmd.Flags().GetString("session")

		account := db.Account{
			Label:       label,
			Username:    args[0],
			Memo:        memo,
			SessionJSON: session,
		}
		if err := a.store.CreateAccount(&account); err != nil {
			logger.Log.Fatalw("Failed to create account", zap.String("username", args[0]), zap.Error(err))
		}

		fmt.Printf("Added account %d (%s)\n", account.ID, account.Username)
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered accounts",
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configPath)

		accounts := a.store.ListAccounts()
		if len(accounts) == 0 {
			fmt.Println("No accounts registered.")
			return
		}

		for _, account := range accounts {
			products := len(a.store.List(account.ID))
			line := fmt.Sprintf("%4d  %s", account.ID, ui.Bold(account.Username))
			if account.Label != "" {
				line += "  " + account.Label
			}
			line += "  " + ui.Dim(fmt.Sprintf("%d products", products))
			fmt.Println(line)
		}
	},
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update <account-id>",
	Short: "Update an account's label, memo or session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configPath)

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			logger.Log.Fatalw("Invalid account id", zap.String("argument", args[0]))
		}
		account, err := a.store.GetAccount(id)
		if err != nil {
			logger.Log.Fatalw("Unknown account", zap.Int64("account_id", id), zap.Error(err))
		}

		if cmd.Flags().Changed("label") {
			account.Label, _ = cmd.Flags().GetString("label")
		}
		if cmd.Flags().Changed("memo") {
			account.Memo, _ = cmd.Flags().GetString("memo")
		}
		if cmd.Flags().Changed("session") {
			account.SessionJSON, _ = cmd.Flags().GetString("session")
		}

		if err := a.store.UpdateAccount(account); err != nil {
			logger.Log.Fatalw("Failed to update account", zap.Int64("account_id", id), zap.Error(err))
		}
		fmt.Printf("Updated account %d\n", id)
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <account-id>",
	Short: "Remove an account and its catalog entries",
	Long: `Removes an account together with all of its catalog entries.
Downloaded files on disk are kept.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configPath)

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			logger.Log.Fatalw("Invalid account id", zap.String("argument", args[0]))
		}

		if err := a.store.RemoveAccount(id); err != nil {
			logger.Log.Fatalw("Failed to remove account", zap.Int64("account_id", id), zap.Error(err))
		}
		fmt.Printf("Removed account %d\n", id)
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountUpdateCmd)
	accountCmd.AddCommand(accountRemoveCmd)

	accountAddCmd.Flags().String("label", "", "Display label for the account")
	accountAddCmd.Flags().String("memo", "", "Free-form note")
	accountAddCmd.Flags().String("session", "", "Session cookie blob used for API authentication")

	accountUpdateCmd.Flags().String("label", "", "Display label for the account")
	accountUpdateCmd.Flags().String("memo", "", "Free-form note")
	accountUpdateCmd.Flags().String("session", "", "Session cookie blob used for API authentication")
}
