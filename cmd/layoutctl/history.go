package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history NAME",
	Short: "Replay a layout's create/discard-chapter sidecar log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		entries, err := readHistory(name)
		if err != nil {
			return fmt.Errorf("layoutctl history: %w", err)
		}

		for _, e := range entries {
			log.Printf("%s  %-10s  %s", e.Time.Format("2006-01-02T15:04:05Z07:00"), e.Event, e.Detail)
		}
		return nil
	},
}
