package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bl4ck0w1/otxsubs/cmd/otxsubs/commands"
	"github.com/bl4ck0w1/otxsubs/pkg/utils"
)

var (
	version   = "1.0.0"
	commit    = "unknown"
	buildDate = "unknown"
)

var logger *utils.Logger

var rootCmd = &cobra.Command{
	Use:   "otxsubs [domain|file]",
	Short: "Find subdomains in AlienVault OTX passive DNS",
	Long: `otxsubs queries the AlienVault OTX passive DNS API for hostnames below a
domain and saves the matching subdomains to alienvault_subs_<domain>.txt.

The argument is read as a file of domains when such a file exists, otherwise
as a single domain. Use --domain or --list to choose explicitly. With no
argument the domain or file is read from stdin.`,
	Version:       version,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if err := initLogging(); err != nil {
			return err
		}

		if !viper.GetBool("quiet") && cmd == cmd.Root() {
			printBanner()
		}
		return nil
	},
	RunE: commands.RunFetch,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.otxsubs/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet mode (no banner output)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "log file path (rotated)")
	rootCmd.PersistentFlags().String("metrics-file", "", "write prometheus metrics to this textfile after a run")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	_ = viper.BindPFlag("metrics_file", rootCmd.PersistentFlags().Lookup("metrics-file"))

	commands.AddFetchFlags(rootCmd)

	rootCmd.AddCommand(commands.NewConfigureCommand())
	rootCmd.AddCommand(commands.NewResultsCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, buildDate))
	rootCmd.AddCommand(commands.NewCompletionCommand())

	rootCmd.SetVersionTemplate(fmt.Sprintf("otxsubs %s (commit %s, built %s)\n", version, commit, buildDate))
}

func initConfig() error {
	commands.SetDefaults()
	viper.SetEnvPrefix("OTXSUBS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home dir: %w", err)
		}
		viper.AddConfigPath(filepath.Join(home, ".otxsubs"))
		viper.AddConfigPath("/etc/otxsubs/")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if viper.GetString("config") != "" {
				return err
			}
			logrus.Warnf("Failed reading config file: %v", err)
		}
	} else {
		logrus.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}

	return nil
}

func initLogging() error {
	logConfig := utils.LogConfig{
		Level:   viper.GetString("log_level"),
		Format:  viper.GetString("log_format"),
		File:    viper.GetString("log_file"),
		Console: true,
	}

	l, err := utils.NewLogger(logConfig, "otxsubs", version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize structured logger, falling back: %v\n", err)
		l = utils.DefaultLogger()
	}
	l.Install()
	logger = l
	return nil
}

func printBanner() {
	fmt.Println(`
  ============================================
        AlienVault Subdomain Finder
  ============================================`)
	fmt.Printf("  otxsubs %s\n\n", version)
}

func main() {
	startTime := time.Now()
	Execute()
	logrus.Debugf("Execution completed in %s", utils.HumanizeDuration(time.Since(startTime)))
}
