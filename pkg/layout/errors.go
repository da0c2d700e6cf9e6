package layout

import "errors"

// Sentinel error kinds per spec.md §7. Callers should compare with
// errors.Is; lower layers wrap these with fmt.Errorf and %w (a pkg/codec
// error crossing into this package is reported as ErrCorruptData with
// the codec message appended) so a human-readable chain survives while
// the sentinel stays unwrappable.
var (
	// ErrCorruptData is returned when any on-disk invariant is violated:
	// bad magic, bad sizes, an out-of-range version, an encoded-length
	// mismatch, overlapping regions, or inconsistent offsets.
	ErrCorruptData = errors.New("layout: corrupt data")

	// ErrUnsupportedVersion is returned for a version field in a
	// known-wrong range (super-block 4-6, state version != 301, save
	// version > 1).
	ErrUnsupportedVersion = errors.New("layout: unsupported version")

	// ErrNoIndex is returned when the outer region header's magic is
	// wrong: the device is blank or holds something foreign.
	ErrNoIndex = errors.New("layout: no index found on device")

	// ErrIndexNotSavedCleanly is returned when a load is requested but
	// no save slot is valid.
	ErrIndexNotSavedCleanly = errors.New("layout: index was not saved cleanly")

	// errBadState is an internal error: a slot failed the validity
	// predicate. It is never surfaced across a Load call; callers only
	// ever see ErrIndexNotSavedCleanly.
	errBadState = errors.New("layout: save slot failed its validity predicate")

	// ErrInvalidArgument is returned when the caller violates an input
	// contract (spec.md §7).
	ErrInvalidArgument = errors.New("layout: invalid argument")

	// ErrUnexpectedResult is returned when the region iterator finds a
	// region mismatch; treated as corruption by callers, but identified
	// distinctly for diagnostics.
	ErrUnexpectedResult = errors.New("layout: region iterator found an unexpected result")
)
