package main

import (
	"path/filepath"
	"testing"

	"github.com/albireo-project/uds-layout/pkg/ulog"
)

func TestCreateThenInspect(t *testing.T) {
	log = &ulog.CLI{DisableTTY: true}

	name := filepath.Join(t.TempDir(), "index.bin")

	flagBytesPerVolume = 64 * 4096
	flagVolumeIndexBytes = 2 * 4096
	flagPageMapBytes = 4096
	flagOpenChapterBytes = 4 * 4096
	flagQCOW2 = false

	if err := createCmd.RunE(createCmd, []string{name}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := inspectCmd.RunE(inspectCmd, []string{name}); err != nil {
		t.Fatalf("inspect: %v", err)
	}

	if err := historyCmd.RunE(historyCmd, []string{name}); err != nil {
		t.Fatalf("history: %v", err)
	}
}

func TestDebugDiscardChapterAndVerify(t *testing.T) {
	log = &ulog.CLI{DisableTTY: true}

	name := filepath.Join(t.TempDir(), "index.bin")

	flagBytesPerVolume = 64 * 4096
	flagVolumeIndexBytes = 2 * 4096
	flagPageMapBytes = 4096
	flagOpenChapterBytes = 4 * 4096
	flagQCOW2 = false

	if err := createCmd.RunE(createCmd, []string{name}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := debugDiscardChapterCmd.RunE(debugDiscardChapterCmd, []string{name}); err == nil {
		t.Fatal("expected discard-chapter to fail before any save is committed")
	}

	if err := debugVerifyCmd.RunE(debugVerifyCmd, []string{name}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
