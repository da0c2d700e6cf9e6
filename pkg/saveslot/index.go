// Package saveslot drives the save-slot ring on top of pkg/layout: it
// decides which slot to write next, which to read from, and rotates
// ownership of the SAVE state between them. The deduplication index's
// own content (chapters, the volume index, the page map) is out of
// scope here; Index is the seam this package calls through to get it
// written and read back.
package saveslot

import "io"

// Index is the external collaborator a Manager drives through one save
// or load cycle. Implementations belong to the deduplication index
// itself; this package only sequences calls to them against the right
// region at the right time.
type Index interface {
	SaveOpenChapter(w io.Writer) error
	LoadOpenChapter(r io.Reader) error

	SaveVolumeIndexZone(zone int, w io.Writer) error
	LoadVolumeIndexZone(zone int, r io.Reader) error

	SavePageMap(w io.Writer) error
	LoadPageMap(r io.Reader) error
}
