package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"payment-mail-reconciler-go/internal/app"
	"payment-mail-reconciler-go/internal/config"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "payment-reconciler",
	Short: "Import payment notification emails into tenant ledgers",
	Long: `payment-reconciler scans mailboxes for Venmo, Cash App, Zelle and PayPal
payment notifications, matches each payment to a tenant, records it in the
tenant's ledger and acknowledges late-rent notices once a period is paid.

Examples:
  payment-reconciler serve --config config.yaml
  payment-reconciler scan
  payment-reconciler resolve-notices --tenant 12 --period 2024-03
  payment-reconciler migrate`,
	SilenceUsage: true,
	Version:      getVersionString(),
}

// Execute runs the root command. It is called once by main.main().
// SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the configuration and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	app.SetupLogging(cfg.Log)
	logrus.Debugf("Loaded configuration from %q", cfgFile)
	return cfg, nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
