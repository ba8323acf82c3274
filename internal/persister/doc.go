// Package persister provides the durable, crash-safe store for
// outbound events awaiting peer acknowledgment.
//
// # Layout
//
// One file per event uid, grouped into day-bucket directories:
//
//	<base_dir>/
//	  2026-08-28/
//	    2026-08-28T23:59:01.000413.uid[9c1d...].json
//	  2026-08-29/
//	    2026-08-29T00:00:07.120994.uid[4a77...].json
//
// The filename encoding round-trips through Reindex and is load-bearing
// for interoperating with existing on-disk stores.
//
// # Semantics
//
// An event is persisted before it is considered sent and cleared only
// when the peer acknowledges its uid. The store enforces a total byte
// budget by evicting the oldest entries first; eviction order is
// strictly insertion order, never size or uid. The persister is the
// source of truth across restarts: abrupt process death loses nothing
// that Persist has already reported durable.
//
// # Problems
//
// Operations return a *Problems aggregating every error and warning
// raised, rather than stopping at the first. Warnings (duplicate uid,
// already-absent file on clear) indicate success; errors indicate the
// operation failed. See the taxonomy in errors.go.
package persister
