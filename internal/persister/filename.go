package persister

import (
	"fmt"
	"strings"
	"time"
)

// On-disk naming, load-bearing for crash recovery. Existing stores use
// exactly this layout and any change breaks reindex interoperability:
//
//	<base_dir>/<YYYY-MM-DD>/<ISO-8601-timestamp>.uid[<uid>].json
//
// Timestamps are UTC with microsecond precision and no zone suffix,
// e.g. 2026-08-29T14:03:21.004512.uid[2f6c...].json inside 2026-08-29/.
const (
	// timestampLayout formats the filename timestamp prefix.
	timestampLayout = "2006-01-02T15:04:05.000000"

	// dayLayout formats day-bucket directory names.
	dayLayout = "2006-01-02"

	// uidOpen and fileSuffix delimit the uid within a filename.
	uidOpen    = ".uid["
	fileSuffix = "].json"
)

// encodeFilename builds the event filename for a uid at a timestamp.
func encodeFilename(ts time.Time, uid string) string {
	return ts.UTC().Format(timestampLayout) + uidOpen + uid + fileSuffix
}

// encodeDayDir builds the day-bucket directory name for a timestamp.
func encodeDayDir(ts time.Time) string {
	return ts.UTC().Format(dayLayout)
}

// decodeFilename extracts the timestamp and uid from an event filename.
// The encoding must round-trip: decodeFilename(encodeFilename(ts, uid))
// returns ts (truncated to microseconds) and uid.
func decodeFilename(name string) (time.Time, string, error) {
	if !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, "", fmt.Errorf("%w: filename %q lacks %q suffix", ErrReindex, name, fileSuffix)
	}
	open := strings.Index(name, uidOpen)
	if open < 0 {
		return time.Time{}, "", fmt.Errorf("%w: filename %q lacks uid marker", ErrReindex, name)
	}

	uid := name[open+len(uidOpen) : len(name)-len(fileSuffix)]
	if uid == "" {
		return time.Time{}, "", fmt.Errorf("%w: filename %q has empty uid", ErrReindex, name)
	}

	ts, err := time.ParseInLocation(timestampLayout, name[:open], time.UTC)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: filename %q has unparseable timestamp: %w", ErrReindex, name, err)
	}

	return ts, uid, nil
}

// decodeDayDir validates a day-bucket directory name.
func decodeDayDir(name string) (time.Time, error) {
	day, err := time.ParseInLocation(dayLayout, name, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: directory %q is not a day bucket: %w", ErrReindex, name, err)
	}
	return day, nil
}
