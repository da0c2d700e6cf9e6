package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/layout"
	"github.com/albireo-project/uds-layout/pkg/saveslot"
)

var debugCmd = &cobra.Command{
	Use:    "debug",
	Short:  "Low-level maintenance operations",
	Hidden: true,
}

var debugDiscardChapterCmd = &cobra.Command{
	Use:   "discard-chapter NAME",
	Short: "Zero-fill the latest valid save slot's open-chapter region",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		factory, err := blockio.Open(name, blockio.ReadWrite)
		if err != nil {
			return fmt.Errorf("layoutctl debug discard-chapter: opening %s: %w", name, err)
		}

		l, err := layout.Reconstitute(factory)
		if err != nil {
			factory.Release()
			return fmt.Errorf("layoutctl debug discard-chapter: %w", err)
		}
		defer l.Close()

		if err := saveslot.NewManager(l).DiscardOpenChapter(); err != nil {
			return fmt.Errorf("layoutctl debug discard-chapter: %w", err)
		}

		if err := appendHistory(name, "discard-chapter", ""); err != nil {
			return fmt.Errorf("layoutctl debug discard-chapter: %w", err)
		}

		log.Printf("discarded open chapter for %s", name)
		return nil
	},
}

var debugVerifyCmd = &cobra.Command{
	Use:   "verify NAME",
	Short: "Scan the full device and reconstitute its layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		factory, err := blockio.Open(name, blockio.ReadOnly)
		if err != nil {
			return fmt.Errorf("layoutctl debug verify: opening %s: %w", name, err)
		}
		defer factory.Release()

		l, err := layout.Reconstitute(factory)
		if err != nil {
			return fmt.Errorf("layoutctl debug verify: %w", err)
		}
		defer l.Close()

		size, err := factory.WritableSize()
		if err != nil {
			return fmt.Errorf("layoutctl debug verify: %w", err)
		}

		rd, err := factory.OpenReader(0, size)
		if err != nil {
			return fmt.Errorf("layoutctl debug verify: %w", err)
		}
		defer rd.Close()

		progress := log.NewProgress("verify", size/blockio.BlockSize)
		buf := make([]byte, blockio.BlockSize)
		ok := true
		for {
			_, err := io.ReadFull(rd, buf)
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			if err != nil {
				ok = false
				break
			}
			progress.Increment(1)
		}
		progress.Finish(ok)
		if !ok {
			return fmt.Errorf("layoutctl debug verify: read error scanning %s", name)
		}

		log.Printf("verified %s: %d blocks, volume nonce %d", name, size/blockio.BlockSize, l.GetVolumeNonce())
		return nil
	},
}
