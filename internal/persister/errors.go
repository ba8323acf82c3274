package persister

import "errors"

// Recoverable errors. An operation returning one of these has failed;
// the caller decides how to proceed. Use errors.Is() to check.
var (
	// ErrContentTooLarge is returned when a payload exceeds the
	// configured byte budget for the whole store.
	ErrContentTooLarge = errors.New("persister: content exceeds max store size")

	// ErrTrimFailed is returned when eviction itself errors while making
	// room for a new persist. The persist fails even if some space was
	// freed before the error occurred.
	ErrTrimFailed = errors.New("persister: trim failed")

	// ErrWriteFailed is returned when the event file cannot be written.
	ErrWriteFailed = errors.New("persister: write failed")

	// ErrReadFailed is returned when a pending event file cannot be read.
	ErrReadFailed = errors.New("persister: read failed")

	// ErrFileMissing is returned when the index claims a uid is pending
	// but the backing file is absent. This index/storage desync is
	// surfaced, never silently treated as "nothing to retrieve".
	ErrFileMissing = errors.New("persister: pending file missing")

	// ErrReindex is returned for entries that could not be indexed
	// during a reindex walk. The walk continues past them.
	ErrReindex = errors.New("persister: reindex error")
)

// Warnings. Operations reporting these have still succeeded; the
// warning is counted and logged, not acted on.
var (
	// WarnUIDExisted reports that a persisted uid was overwritten.
	// Overwriting supports idempotent re-publication.
	WarnUIDExisted = errors.New("persister: uid already persisted, overwriting")

	// WarnFileMissing reports that a cleared uid's file was already gone.
	WarnFileMissing = errors.New("persister: file already removed")

	// WarnUIDMissing reports a clear for a uid that was never pending.
	WarnUIDMissing = errors.New("persister: uid not pending")
)
