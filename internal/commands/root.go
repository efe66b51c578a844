package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/balkashynov/qcscan/internal/app"
	"github.com/balkashynov/qcscan/internal/config"
	"github.com/balkashynov/qcscan/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "qcscan",
	Short: "Two-scan quality-control inspection tracker",
	Long: `qcscan tracks quality-control inspections per worker. A code is scanned
once when it enters inspection and once when it leaves; qcscan decides which
is which, times the inspection and keeps every session consistent.`,
}

// withApp loads the configuration, opens the database and hands the wired
// application to fn
func withApp(fn func(*app.App, *cobra.Command, []string)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			fmt.Printf("Error: invalid configuration: %v\n", err)
			return
		}

		logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
		a, err := app.Open(cfg, logger)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		defer a.Close()

		fn(a, cmd, args)
	}
}

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("qcscan %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/qcscan/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "sqlite database file (default is $HOME/.qcscan/qcscan.db)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug|info|warn|error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(qualityCmd)
	rootCmd.AddCommand(stationCmd)
	rootCmd.AddCommand(helpCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// QCSCAN_SCANNER_SCAN_COOLDOWN_MS for scanner.scan_cooldown_ms
	viper.AutomaticEnv()
	viper.SetEnvPrefix("QCSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
