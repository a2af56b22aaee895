// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/internal/config"
	"github.com/trolleyhq/trolley/internal/observability"
)

// NewRootCommand builds the trolley CLI. A fresh instance per invocation
// keeps flag state from leaking between executions, which matters for tests.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:     "trolley",
		Short:   "Trolley drives a resilient browser test suite against a demo storefront.",
		Version: Version,
		// Errors are logged once in Execute; cobra should not print them a
		// second time or dump usage after a runtime failure.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(cfgFile); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				// Fall back to a usable logger so the config error itself
				// still gets reported through the normal channel.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "trolley"})
				return err
			}
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting trolley.",
				zap.String("version", Version),
				zap.String("config_file", viper.ConfigFileUsed()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./trolley.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newShopCmd())
	rootCmd.AddCommand(newScenariosCmd())

	return rootCmd
}

// Execute runs the CLI under the given signal-aware context.
func Execute(ctx context.Context) error {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command failed", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig points the global viper at the config file, the TROLLEY_*
// environment, and the built-in defaults.
func initializeConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("trolley")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("TROLLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and environment cover everything.
	}
	return nil
}

// loadConfig unmarshals the current global viper state. RunE handlers call
// it after their PreRunE bound command flags, so flag overrides win.
func loadConfig() (*config.Config, error) {
	return config.NewFromViper(viper.GetViper())
}
