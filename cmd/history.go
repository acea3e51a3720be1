package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/candyvend/internal/utils"
	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/storage"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the most recently eaten candies saved with play --db",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		rows, err := db.ListHistory(context.Background(), limit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No history in the database yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "WHEN\tFLOOR\tCANDY\tSCORE\tID\t")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t\n",
				r.Timestamp.Local().Format(time.DateTime), r.Floor, candy.DetailsOf(r.Type).Name, r.Score, r.ID)
		}
		return w.Flush()
	},
}

// openExistingDB opens the database named by --dbpath, refusing to create one.
func openExistingDB(cmd *cobra.Command) (*storage.DB, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database file not found: %s", absPath)
	}
	return storage.Open(absPath)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/candyvend/candyvend.sqlite)")
}
