// netfleet 网络设备批量命令编排
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "netfleet",
	Short:         "Run commands and push configuration across a fleet of network devices",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.Log.Level = logLevel
		}
		if err := logger.Init(logger.Config{
			Level:      c.Log.Level,
			Format:     c.Log.Format,
			Output:     c.Log.Output,
			FilePath:   c.Log.FilePath,
			MaxSize:    c.Log.MaxSize,
			MaxBackups: c.Log.MaxBackups,
			MaxAge:     c.Log.MaxAge,
			Compress:   c.Log.Compress,
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newExecCmd(),
		newConfigCmd(),
		newApplyCmd(),
		newDescribeCmd(),
		newDNSCmd(),
		newFactsCmd(),
		newMLAGCmd(),
		newInventoryCmd(),
		newServeCmd(),
		newLabCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
