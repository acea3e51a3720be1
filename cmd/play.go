package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/candyvend/internal/utils"
	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/dispense"
	"github.com/sw33tLie/candyvend/pkg/history"
	"github.com/sw33tLie/candyvend/pkg/storage"
	"github.com/sw33tLie/candyvend/pkg/vending"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play one round: get a score, win candies, collect them",
	Long: `Registers the email with the scoring service, polls every poll.interval
until a score arrives, then dispenses the matching number of candies from the
machine on the given floor. With --db every candy collected is also written to
the local history database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		floor, _ := cmd.Flags().GetInt("floor")
		useDB, _ := cmd.Flags().GetBool("db")
		collect, _ := cmd.Flags().GetBool("collect")

		repo, err := newStockRepository(cmd)
		if err != nil {
			return err
		}
		scores, err := newScoringClient(cmd)
		if err != nil {
			return err
		}

		cfg := vending.Config{
			Floor:            floor,
			Stock:            repo,
			Scores:           scores,
			DispenseInterval: viper.GetDuration("dispense.interval"),
			PollInterval:     viper.GetDuration("poll.interval"),
			Notifier:         vending.LogNotifier{Log: utils.Log},
			Log:              utils.Log,
		}

		if useDB {
			dbPath, _ := cmd.Flags().GetString("dbpath")
			absPath, err := utils.GetAbsDBPath(dbPath)
			if err != nil {
				return err
			}
			lock, err := utils.NewDBLock(absPath)
			if err != nil {
				return err
			}
			if err := lock.Lock(); err != nil {
				return err
			}
			defer lock.Unlock()

			db, err := storage.Open(absPath)
			if err != nil {
				return err
			}
			defer db.Close()
			cfg.Sink = storage.HistorySink{DB: db, Floor: floor}
		}

		session, err := vending.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if _, err := session.Refresh(ctx); err != nil {
			return err
		}

		_, err = session.Play(ctx, email, func(u dispense.Unit) {
			fmt.Printf("  dropped %-12s at (%.0f, %.0f)\n", candy.DetailsOf(u.Type).Name, u.Position.X, u.Position.Y)
		})
		if err != nil {
			return err
		}

		if collect {
			session.CollectAll(ctx)
			printLedger(session.Ledger())
		} else {
			fmt.Printf("%d candies waiting in the tray:\n", session.Tray().Len())
			for _, u := range session.Tray().Units() {
				fmt.Printf("  %-12s %s\n", candy.DetailsOf(u.Type).Name, u.ID)
			}
		}
		return nil
	},
}

func printLedger(l *history.Ledger) {
	groups := l.GroupByType()
	for _, t := range candy.All() {
		g, ok := groups[t]
		if !ok {
			continue
		}
		fmt.Printf("  %-12s x%d  %d pts\n", candy.DetailsOf(t).Name, g.Count, g.TotalScore)
	}
	fmt.Printf("Total: %d candies, %d pts\n", l.Len(), l.TotalScore())
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().StringP("email", "e", "", "Player email sent to the scoring service")
	playCmd.Flags().IntP("floor", "f", 1, "Floor of the machine (1-3)")
	playCmd.Flags().Bool("collect", true, "Collect every dispensed candy into the history")
	playCmd.Flags().Bool("db", false, "Also save history to the local SQLite database")
	playCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/candyvend/candyvend.sqlite)")
	playCmd.MarkFlagRequired("email")
}
