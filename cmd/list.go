package cmd

import (
	"fmt"

	"dlsite-manager/catalog"
	"dlsite-manager/db"
	"dlsite-manager/logger"
	"dlsite-manager/query"
	"dlsite-manager/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Query the product catalog",
	Long: `Filters and sorts the locally cached product catalog. Text search
matches every language variant of titles and group names. The query is
remembered for the session so a following sync can re-evaluate it.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configPath)

		accountID, _ := cmd.Flags().GetInt64("account")
		q := buildQuery(cmd)
		a.session.SetLatest(q)

		var products []db.Product
		if accountID != 0 {
			products = a.store.List(accountID)
		} else {
			products = a.store.ListAll()
		}

		results := query.Evaluate(products, q, a.session.Languages())
		if len(results) == 0 {
			fmt.Println("No products matched.")
			return
		}

		for _, p := range results {
			printProduct(p, a.session.Languages())
		}
		fmt.Printf("\n%d products\n", len(results))
	},
}

// buildQuery translates the list flags into a catalog query. Invalid enum
// tags are fatal so a typo never silently shows the unfiltered catalog.
func buildQuery(cmd *cobra.Command) query.ProductQuery {
	q := query.ProductQuery{}
	q.Query, _ = cmd.Flags().GetString("query")

	if raw, _ := cmd.Flags().GetString("type"); raw != "" {
		ty := catalog.ProductTypeOrUnknown(raw)
		if string(ty) != raw {
			logger.Log.Fatalw("Unknown product type", zap.String("type", raw))
		}
		q.Type = &ty
	}
	if raw, _ := cmd.Flags().GetString("age"); raw != "" {
		age := catalog.AgeCategoryOrUnknown(raw)
		if string(age) != raw {
			logger.Log.Fatalw("Unknown age rating", zap.String("age", raw))
		}
		q.Age = &age
	}
	if raw, _ := cmd.Flags().GetString("state"); raw != "" {
		state, err := query.ParseDisplayState(raw)
		if err != nil {
			logger.Log.Fatalw("Invalid download state filter", zap.Error(err))
		}
		q.Download = &state
	}
	if raw, _ := cmd.Flags().GetString("order"); raw != "" {
		order, err := query.ParseOrderBy(raw)
		if err != nil {
			logger.Log.Fatalw("Invalid sort order", zap.Error(err))
		}
		q.OrderBy = order
	}
	return q
}

func printProduct(p db.Product, languages []string) {
	title := query.Resolve(p.Title, languages)
	if title == "" {
		title = p.ProductID
	}
	group := query.Resolve(p.GroupName, languages)
	state := query.DisplayStateOf(p)

	line := fmt.Sprintf("%-10s  %-24s  %s", p.ProductID, ui.ColorizeState(state), ui.Bold(title))
	if group != "" {
		line += "  " + ui.Dim(group)
	}
	if p.UpgradePending {
		line += "  " + ui.Bold("[upgrade available]")
	}
	fmt.Println(line)
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().Int64("account", 0, "Limit to one account id (0 = all accounts)")
	listCmd.Flags().StringP("query", "q", "", "Case-insensitive substring match on titles and group names")
	listCmd.Flags().String("type", "", "Filter by product type (Adult, Game, Comic, Manga, Music, Novel, Voice, Software, Unknown)")
	listCmd.Flags().String("age", "", "Filter by age rating (All, R15, R18, Unknown)")
	listCmd.Flags().String("state", "", "Filter by download state")
	listCmd.Flags().String("order", string(query.OrderPurchaseDateDesc), "Sort order")
}
