package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/albireo-project/uds-layout/pkg/blockio"
	"github.com/albireo-project/uds-layout/pkg/geometry"
	"github.com/albireo-project/uds-layout/pkg/layout"
)

var (
	flagBytesPerVolume   int64
	flagVolumeIndexBytes int64
	flagPageMapBytes     int64
	flagOpenChapterBytes int64
	flagQCOW2            bool
)

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a fresh index layout on a backing file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg := geometry.Configuration{
			BytesPerPage:      geometry.BlockSize,
			BytesPerVolume:    flagBytesPerVolume,
			VolumeIndexBytes:  flagVolumeIndexBytes,
			IndexPageMapBytes: flagPageMapBytes,
			OpenChapterBytes:  flagOpenChapterBytes,
		}

		size, err := geometry.ComputeIndexSize(cfg)
		if err != nil {
			return fmt.Errorf("layoutctl create: %w", err)
		}

		var factory blockio.Factory
		if flagQCOW2 {
			factory, err = blockio.OpenQCOW2(name, blockio.ReadWrite, size)
		} else {
			if err := sizeRawFile(name, size); err != nil {
				return fmt.Errorf("layoutctl create: sizing %s: %w", name, err)
			}
			factory, err = blockio.Open(name, blockio.ReadWrite)
		}
		if err != nil {
			return fmt.Errorf("layoutctl create: opening %s: %w", name, err)
		}

		l, err := layout.InitFresh(factory, cfg, rand.Reader)
		if err != nil {
			factory.Release()
			return fmt.Errorf("layoutctl create: %w", err)
		}
		defer l.Close()

		id := uuid.New()
		if err := writeSidecarMeta(name, sidecarMeta{
			VolumeID:  id,
			CreatedAt: time.Now(),
			Geometry:  cfg,
		}); err != nil {
			return fmt.Errorf("layoutctl create: writing sidecar metadata: %w", err)
		}
		if err := appendHistory(name, "create", fmt.Sprintf("volume_id=%s size=%d", id, size)); err != nil {
			return fmt.Errorf("layoutctl create: %w", err)
		}

		log.Printf("created layout %s: %d bytes, volume id %s, nonce %d", name, size, id, l.GetVolumeNonce())
		return nil
	},
}

// sizeRawFile creates name if necessary and truncates it to size, so a
// plain os.File-backed Factory always has the full span InitFresh will
// write into.
func sizeRawFile(name string, size int64) error {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

func init() {
	createCmd.Flags().Int64Var(&flagBytesPerVolume, "volume-bytes", 0, "size of the deduplication volume in bytes (required)")
	createCmd.Flags().Int64Var(&flagVolumeIndexBytes, "volume-index-bytes", 0, "size of one save slot's volume-index zone in bytes")
	createCmd.Flags().Int64Var(&flagPageMapBytes, "page-map-bytes", 0, "size of one save slot's page-map region in bytes")
	createCmd.Flags().Int64Var(&flagOpenChapterBytes, "open-chapter-bytes", 0, "size of one save slot's open-chapter region in bytes")
	createCmd.Flags().BoolVar(&flagQCOW2, "qcow2", false, "create the layout inside a qcow2 container image instead of a raw file")
	createCmd.MarkFlagRequired("volume-bytes")
}
