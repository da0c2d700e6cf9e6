package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/albireo-project/uds-layout/pkg/geometry"
)

// sidecarMeta is convenience metadata stored beside a layout's backing
// file, never consulted by pkg/layout itself: a volume id distinct from
// the tamper-evident nonce, and the geometry it was created with. Losing
// this file never affects the crash-consistency guarantees spec.md §5
// describes for the layout proper.
type sidecarMeta struct {
	VolumeID  uuid.UUID              `json:"volume_id"`
	CreatedAt time.Time              `json:"created_at"`
	Geometry  geometry.Configuration `json:"geometry"`
}

func metaPath(name string) string {
	return name + ".layout-meta.json"
}

func historyPath(name string) string {
	return name + ".layout-history.log"
}

func writeSidecarMeta(name string, meta sidecarMeta) error {
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath(name), b, 0o644)
}

func readSidecarMeta(name string) (sidecarMeta, error) {
	b, err := os.ReadFile(metaPath(name))
	if err != nil {
		return sidecarMeta{}, err
	}
	var meta sidecarMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		return sidecarMeta{}, err
	}
	return meta, nil
}

// historyEntry is one line of a layout's append-only history log: every
// create and debug discard-chapter the CLI itself drives (not every
// write the library makes — the library has no notion of this log at
// all).
type historyEntry struct {
	Time   time.Time `json:"time"`
	Event  string    `json:"event"`
	Detail string    `json:"detail"`
}

func appendHistory(name, event, detail string) error {
	f, err := os.OpenFile(historyPath(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(historyEntry{Time: time.Now(), Event: event, Detail: detail})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

func readHistory(name string) ([]historyEntry, error) {
	f, err := os.Open(historyPath(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []historyEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e historyEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
