package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/candyvend/internal/utils"
	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/stock"
)

// stockCmd represents the stock command
var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Read and write machine, floor and vendor stock",
}

var stockGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the stock of one tier",
	Long: `Print the stock of one tier. Machine and floor stock are per floor (1-3);
vendor stock is global. When the stock service cannot be reached the default
counts are shown and flagged as degraded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, floors, err := tierAndFloors(cmd)
		if err != nil {
			return err
		}
		threshold, _ := cmd.Flags().GetInt("low")
		asJSON, _ := cmd.Flags().GetBool("json")

		repo, err := newStockRepository(cmd)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			for _, floor := range floors {
				rec, err := repo.FetchStock(context.Background(), tier, floor)
				if err != nil {
					return err
				}
				if err := enc.Encode(stockJSON{
					Tier:     rec.Tier.String(),
					Floor:    rec.Floor,
					Vendor:   rec.Vendor,
					Counts:   rec.Counts.Map(),
					Degraded: rec.Degraded,
				}); err != nil {
					return err
				}
			}
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprint(w, "SCOPE\t")
		for _, t := range candy.All() {
			fmt.Fprintf(w, "%s\t", candy.DetailsOf(t).Name)
		}
		fmt.Fprintln(w, "TOTAL\t")

		for _, floor := range floors {
			rec, err := repo.FetchStock(context.Background(), tier, floor)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t", scopeLabel(rec))
			for _, t := range candy.All() {
				if threshold > 0 && rec.Counts.Percent(t) < threshold {
					fmt.Fprintf(w, "%d (%d%%)!\t", rec.Counts.Get(t), rec.Counts.Percent(t))
					continue
				}
				fmt.Fprintf(w, "%d\t", rec.Counts.Get(t))
			}
			fmt.Fprintf(w, "%d\t\n", rec.Counts.Total())
		}
		return w.Flush()
	},
}

var stockSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Overwrite a single stock count",
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, floors, err := tierAndFloors(cmd)
		if err != nil {
			return err
		}
		typeName, _ := cmd.Flags().GetString("type")
		t, err := candy.ParseType(typeName)
		if err != nil {
			return err
		}
		n, _ := cmd.Flags().GetInt("count")
		if n < 0 {
			return fmt.Errorf("count must not be negative: %d", n)
		}

		repo, err := newStockRepository(cmd)
		if err != nil {
			return err
		}
		for _, floor := range floors {
			if !repo.WriteStockField(context.Background(), tier, floor, t, n) {
				return fmt.Errorf("could not update %s on %s", candy.APIFieldName(t), tier.Table())
			}
			utils.Log.Infof("%s floor %d: %s set to %d", tier, floor, candy.DetailsOf(t).Name, n)
		}
		return nil
	},
}

type stockJSON struct {
	Tier     string         `json:"tier"`
	Floor    int            `json:"floor,omitempty"`
	Vendor   string         `json:"vendor,omitempty"`
	Counts   map[string]int `json:"counts"`
	Degraded bool           `json:"degraded"`
}

// tierAndFloors resolves --tier and --floor. Floor 0 means every floor for
// the floored tiers.
func tierAndFloors(cmd *cobra.Command) (stock.Tier, []int, error) {
	tierName, _ := cmd.Flags().GetString("tier")
	tier, err := stock.ParseTier(tierName)
	if err != nil {
		return 0, nil, err
	}
	floor, _ := cmd.Flags().GetInt("floor")

	if !tier.Floored() {
		return tier, []int{0}, stock.ValidateFloor(tier, floor)
	}
	if floor == 0 {
		var all []int
		for f := stock.MinFloor; f <= stock.MaxFloor; f++ {
			all = append(all, f)
		}
		return tier, all, nil
	}
	if err := stock.ValidateFloor(tier, floor); err != nil {
		return 0, nil, err
	}
	return tier, []int{floor}, nil
}

func scopeLabel(rec stock.Record) string {
	label := rec.Vendor
	if rec.Tier.Floored() {
		label = fmt.Sprintf("%s floor %d", rec.Tier, rec.Floor)
	}
	if rec.Degraded {
		label += " (degraded)"
	}
	return label
}

func init() {
	rootCmd.AddCommand(stockCmd)
	stockCmd.AddCommand(stockGetCmd)
	stockCmd.AddCommand(stockSetCmd)

	stockCmd.PersistentFlags().StringP("tier", "t", "machine", "Stock tier: machine, floor or vendor")
	stockCmd.PersistentFlags().IntP("floor", "f", 0, "Floor number (1-3, 0 = all floors; ignored for vendor)")

	stockGetCmd.Flags().Int("low", 0, "Flag counts below this percentage of the default capacity")
	stockGetCmd.Flags().Bool("json", false, "Print one JSON object per record")

	stockSetCmd.Flags().String("type", "", "Candy type (fivestar, milkybar, dairymilk, eclairs, ferrero)")
	stockSetCmd.Flags().Int("count", 0, "New count")
	stockSetCmd.MarkFlagRequired("type")
	stockSetCmd.MarkFlagRequired("count")
}
