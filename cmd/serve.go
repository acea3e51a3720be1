package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/candyvend/internal/server"
	"github.com/sw33tLie/candyvend/internal/utils"
	"github.com/sw33tLie/candyvend/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local stock and scoring emulator",
	Long: `Serves the stock and scoring API from a local SQLite database, seeding every
floor with the default counts on first start. Scores can be set with
PUT /api/score, or are assigned at random after emulator.score_delay when
emulator.auto_score is on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		absPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}
		listenAddr, _ := cmd.Flags().GetString("listen")
		vendorMultiple, _ := cmd.Flags().GetInt("vendor-multiple")

		db, err := storage.Open(absPath)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Seed(context.Background(), viper.GetString("emulator.vendor_name"), vendorMultiple); err != nil {
			return err
		}
		utils.Log.Infof("Using database %s", absPath)

		srv := server.New(db, server.Config{
			AutoScore:  viper.GetBool("emulator.auto_score"),
			ScoreDelay: viper.GetDuration("emulator.score_delay"),
		})
		return srv.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "127.0.0.1:8787", "HTTP listen address")
	serveCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/candyvend/candyvend.sqlite)")
	serveCmd.Flags().Int("vendor-multiple", 5, "Vendor stock as a multiple of the default machine capacity")
}
