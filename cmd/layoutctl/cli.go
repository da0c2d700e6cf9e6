package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/albireo-project/uds-layout/pkg/ulog"
)

var (
	flagVerbose bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "layoutctl",
	Short: "Inspect and manage UDS index layouts",
	Long: `layoutctl creates and inspects the persistent index
layout of a deduplication volume: its super block, region table, and
save-slot ring.`,
}

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if path := os.Getenv("UDS_LAYOUT_CONFIG"); path != "" {
			viper.SetConfigFile(path)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("layoutctl: reading %s: %w", path, err)
			}
		}

		logger := ulog.New()
		logger.IsDebug = flagDebug
		logger.IsVerbose = flagVerbose || flagDebug
		log = logger
		return nil
	}

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(debugCmd)

	debugCmd.AddCommand(debugDiscardChapterCmd)
	debugCmd.AddCommand(debugVerifyCmd)
}
