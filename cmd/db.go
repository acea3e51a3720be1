package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/candyvend/internal/utils"
	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/stock"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the candyvend database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		absPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}

		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", absPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, absPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, absPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints stock totals and eaten-candy statistics from the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openExistingDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := context.Background()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "TABLE\tROWS\tCANDIES\t")
		for _, tier := range []stock.Tier{stock.Machine, stock.Floor, stock.Vendor} {
			rows, err := db.GetStock(ctx, tier)
			if err != nil {
				return err
			}
			total := 0
			for _, r := range rows {
				total += r.Counts.Total()
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t\n", tier.Table(), len(rows), total)
		}
		fmt.Fprintln(w, " \t \t \t")

		stats, err := db.HistoryStats(ctx)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			w.Flush()
			fmt.Println("No history in the database to generate stats.")
			return nil
		}

		fmt.Fprintln(w, "CANDY\tEATEN\tSCORE\t")
		var totalEaten, totalScore int
		for _, s := range stats {
			name := s.Type
			if t, err := candy.ParseType(s.Type); err == nil {
				name = candy.DetailsOf(t).Name
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t\n", name, s.Count, s.TotalScore)
			totalEaten += s.Count
			totalScore += s.TotalScore
		}

		fmt.Fprintln(w, " \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t\n", totalEaten, totalScore)

		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/candyvend/candyvend.sqlite)")
}
