package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/candyvend/internal/utils"
	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/dispense"
	"github.com/sw33tLie/candyvend/pkg/stock"
)

// dispenseCmd represents the dispense command
var dispenseCmd = &cobra.Command{
	Use:   "dispense",
	Short: "Dispense a batch of candies from a machine",
	Long: `Dispense a batch of candies from the machine on the given floor, one every
dispense.interval. The batch size comes from --count, or from --score using
the score-to-candy table (20→2, 40→4, 60→6, 80→8, 100→10, anything else 1).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		floor, _ := cmd.Flags().GetInt("floor")
		if err := stock.ValidateFloor(stock.Machine, floor); err != nil {
			return err
		}
		target, err := batchSize(cmd)
		if err != nil {
			return err
		}

		repo, err := newStockRepository(cmd)
		if err != nil {
			return err
		}
		ctx := context.Background()
		rec, err := repo.FetchStock(ctx, stock.Machine, floor)
		if err != nil {
			return err
		}
		if rec.Degraded {
			utils.Log.Warnf("Stock for floor %d unavailable, dispensing from default counts", floor)
		}

		seq := newSequencer(repo)
		out, err := seq.Run(ctx, floor, rec.Counts, target, func(u dispense.Unit) {
			fmt.Printf("%-12s %s\n", candy.DetailsOf(u.Type).Name, u.ID)
		})
		if err != nil {
			return err
		}
		printOutcome(out)
		return nil
	},
}

var dispenseOneCmd = &cobra.Command{
	Use:   "one",
	Short: "Dispense a single candy of a given type",
	RunE: func(cmd *cobra.Command, args []string) error {
		floor, _ := cmd.Flags().GetInt("floor")
		if err := stock.ValidateFloor(stock.Machine, floor); err != nil {
			return err
		}
		typeName, _ := cmd.Flags().GetString("type")
		t, err := candy.ParseType(typeName)
		if err != nil {
			return err
		}

		repo, err := newStockRepository(cmd)
		if err != nil {
			return err
		}
		ctx := context.Background()
		rec, err := repo.FetchStock(ctx, stock.Machine, floor)
		if err != nil {
			return err
		}

		next, u, err := newSequencer(repo).DispenseOne(ctx, floor, rec.Counts, t)
		if err != nil {
			return err
		}
		if u == nil {
			fmt.Printf("No %s left on floor %d\n", candy.DetailsOf(t).Name, floor)
			return nil
		}
		fmt.Printf("%-12s %s (%d left)\n", candy.DetailsOf(t).Name, u.ID, next.Get(t))
		return nil
	},
}

func newSequencer(w dispense.StockWriter) *dispense.Sequencer {
	return dispense.New(dispense.Config{
		Interval: viper.GetDuration("dispense.interval"),
		Writer:   w,
		Tier:     stock.Machine,
		Log:      utils.Log,
	})
}

func batchSize(cmd *cobra.Command) (int, error) {
	count, _ := cmd.Flags().GetInt("count")
	score, _ := cmd.Flags().GetString("score")
	switch {
	case count > 0 && score != "":
		return 0, errors.New("use either --count or --score, not both")
	case count > 0:
		return count, nil
	case score != "":
		n, err := candy.ParseScore(score)
		if err != nil {
			return 0, err
		}
		return candy.ScoreToCount(n), nil
	}
	return 0, errors.New("one of --count or --score is required")
}

func printOutcome(out dispense.Outcome) {
	if msg := out.Message(); msg != "" {
		fmt.Println(msg)
	} else {
		fmt.Printf("Dispensed %d candies\n", out.Produced)
	}
	for _, w := range out.Writes {
		if !w.OK {
			utils.Log.Errorf("Stock update %s=%d was not saved", candy.APIFieldName(w.Type), w.Count)
		}
	}
}

func init() {
	rootCmd.AddCommand(dispenseCmd)
	dispenseCmd.AddCommand(dispenseOneCmd)

	dispenseCmd.PersistentFlags().IntP("floor", "f", 1, "Floor of the machine (1-3)")
	dispenseCmd.Flags().IntP("count", "n", 0, "Number of candies to dispense")
	dispenseCmd.Flags().StringP("score", "s", "", "Score to convert into a candy count")

	dispenseOneCmd.Flags().String("type", "", "Candy type (fivestar, milkybar, dairymilk, eclairs, ferrero)")
	dispenseOneCmd.MarkFlagRequired("type")
}
