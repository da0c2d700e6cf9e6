package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/layout"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect NAME",
	Short: "Dump a layout's super block, region table, and save-slot validity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		factory, err := blockio.Open(name, blockio.ReadOnly)
		if err != nil {
			return fmt.Errorf("layoutctl inspect: opening %s: %w", name, err)
		}

		l, err := layout.Reconstitute(factory)
		if err != nil {
			factory.Release()
			return fmt.Errorf("layoutctl inspect: %w", err)
		}
		defer l.Close()

		sb := l.SuperBlock()
		log.Printf("version: %d", sb.Version)
		log.Printf("nonce: %d", sb.Nonce)
		log.Printf("num_indexes: %d", sb.NumIndexes)
		log.Printf("max_saves: %d", sb.MaxSaves)
		if sb.Version == layout.VersionConverted {
			log.Printf("volume_offset: %d", sb.VolumeOffset)
			log.Printf("start_offset: %d", sb.StartOffset)
		}

		vol := l.VolumeRegion()
		log.Printf("volume: start_block=%d num_blocks=%d", vol.StartBlock, vol.NumBlocks)

		volNonce := l.GetVolumeNonce()
		for i, slot := range l.Saves() {
			valid := slot.Valid(volNonce)
			log.Printf("save[%d]: start_block=%d state=%d valid=%t timestamp=%d",
				i, slot.StartBlock, slot.State, valid, slot.SaveData.Timestamp)
		}

		if meta, err := readSidecarMeta(name); err == nil {
			log.Printf("volume_id: %s", meta.VolumeID)
			log.Printf("created_at: %s", meta.CreatedAt)
		}

		return nil
	},
}
