package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/sw33tLie/candyvend/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `                      _                              _ 
	  ___ __ _ _ __   __| |_   ___   _____ _ __   __| |
	 / __/ _' | '_ \ / _' | | | \ \ / / _ \ '_ \ / _' |
	| (_| (_| | | | | (_| | |_| |\ V /  __/ | | | (_| |
	 \___\__,_|_| |_|\__,_|\__, | \_/ \___|_| |_|\__,_|
	                       |___/                        
`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "candyvend",
	Short: "Inventory and dispense engine for the candy vending machine.",
	Long: LOGO + `candyvend reads and writes machine, floor and vendor stock, turns scores into
candies, dispenses them one by one and keeps a history of what was eaten.

Run "candyvend serve" for a local emulator of the stock and scoring services.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.candyvend.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("api", "", "Base URL of the stock and scoring services (overrides api.base_url)")

	viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A .env file in the working directory is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("Error reading .env: %s\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".candyvend")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CANDYVEND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("api.base_url", "http://127.0.0.1:8787")
	viper.SetDefault("http.timeout", 10*time.Second)
	viper.SetDefault("http.retry_max", 0)
	viper.SetDefault("dispense.interval", 300*time.Millisecond)
	viper.SetDefault("poll.interval", 3*time.Second)
	viper.SetDefault("emulator.vendor_name", "Sweet Supply Co")
	viper.SetDefault("emulator.auto_score", true)
	viper.SetDefault("emulator.score_delay", 5*time.Second)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".candyvend.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s\n", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if err := utils.SetLogLevel(levelString); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
