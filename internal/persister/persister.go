package persister

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Directory and file permission modes for the event store.
const (
	dirPermissions  = 0750
	filePermissions = 0600

	// reindexPatEvery is how many files to index between liveness pats,
	// so a long reindex of a large store does not trip the watchdog.
	reindexPatEvery = 64
)

// entry is the in-memory index record for one pending event.
type entry struct {
	uid  string
	path string
	day  string
	size int64
}

// TimedRollingFilePersister is a durable, crash-safe store for outbound
// event payloads awaiting acknowledgment.
//
// Events are written one file per uid into day-bucketed directories
// under the base dir. The store enforces a total byte budget by
// evicting the oldest entries first; the in-memory index is rebuilt
// from disk by Reindex after a crash or restart.
//
// Thread Safety:
//   - NOT safe for concurrent use. The persister is owned and mutated
//     exclusively by the proactor core loop; diagnostics read snapshots
//     produced on that loop.
type TimedRollingFilePersister struct {
	baseDir  string
	maxBytes int64

	currBytes int64
	order     []string          // uids, oldest first
	entries   map[string]*entry

	// pat, when set, is invoked periodically during Reindex so a slow
	// walk keeps the watchdog fed.
	pat func()
}

// New creates a persister rooted at baseDir with the given byte budget.
// The base directory is created if absent; the index starts empty and
// is populated by Reindex.
func New(baseDir string, maxBytes int64) (*TimedRollingFilePersister, error) {
	if err := os.MkdirAll(baseDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating event store directory: %w", err)
	}
	return &TimedRollingFilePersister{
		baseDir:  baseDir,
		maxBytes: maxBytes,
		entries:  make(map[string]*entry),
	}, nil
}

// SetReindexPat sets a liveness callback invoked periodically during
// Reindex. Pass nil to disable.
func (p *TimedRollingFilePersister) SetReindexPat(pat func()) {
	p.pat = pat
}

// Persist durably stores content under uid before the event is
// considered sent.
//
// Outcomes, in order of evaluation:
//   - content larger than the whole budget: ErrContentTooLarge.
//   - uid already pending: WarnUIDExisted warning, old copy replaced.
//   - budget exceeded: oldest entries evicted until there is room.
//     Eviction occurring is not an error; eviction failing is
//     ErrTrimFailed and fails the whole persist.
//   - write failure: ErrWriteFailed.
//
// A nil result or a result with only warnings means the event is on
// disk and recoverable via Retrieve until Clear.
func (p *TimedRollingFilePersister) Persist(uid string, content []byte) *Problems {
	var problems *Problems

	size := int64(len(content))
	if size > p.maxBytes {
		return problems.AddError(fmt.Errorf("%w: %d bytes > budget %d", ErrContentTooLarge, size, p.maxBytes))
	}

	// Overwrite an existing uid. Supports idempotent re-publication.
	if _, exists := p.entries[uid]; exists {
		problems = problems.AddWarning(fmt.Errorf("%w: %s", WarnUIDExisted, uid))
		cleared := p.Clear(uid)
		if cleared.HasErrors() {
			return problems.Absorb(cleared)
		}
		problems = problems.Absorb(cleared)
	}

	// Evict oldest-first until the new content fits.
	for p.currBytes+size > p.maxBytes && len(p.order) > 0 {
		oldest := p.order[0]
		if err := p.removeFromDisk(p.entries[oldest]); err != nil {
			return problems.AddError(fmt.Errorf("%w: evicting %s: %w", ErrTrimFailed, oldest, err))
		}
		p.dropFromIndex(oldest)
	}

	now := time.Now().UTC()
	day := encodeDayDir(now)
	dir := filepath.Join(p.baseDir, day)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return problems.AddError(fmt.Errorf("%w: creating day bucket %s: %w", ErrWriteFailed, day, err))
	}

	path := filepath.Join(dir, encodeFilename(now, uid))
	if err := os.WriteFile(path, content, filePermissions); err != nil {
		return problems.AddError(fmt.Errorf("%w: %s: %w", ErrWriteFailed, uid, err))
	}

	p.entries[uid] = &entry{uid: uid, path: path, day: day, size: size}
	p.order = append(p.order, uid)
	p.currBytes += size

	return problems
}

// Retrieve returns the persisted content for uid, or (nil, nil) when
// the uid is not pending.
//
// A pending uid whose backing file is absent returns ErrFileMissing:
// index/storage desync is surfaced, never treated as "nothing stored".
func (p *TimedRollingFilePersister) Retrieve(uid string) ([]byte, *Problems) {
	ent, ok := p.entries[uid]
	if !ok {
		return nil, nil
	}

	content, err := os.ReadFile(ent.path)
	if err != nil {
		var problems *Problems
		if errors.Is(err, fs.ErrNotExist) {
			return nil, problems.AddError(fmt.Errorf("%w: %s (%s)", ErrFileMissing, uid, ent.path))
		}
		return nil, problems.AddError(fmt.Errorf("%w: %s: %w", ErrReadFailed, uid, err))
	}

	return content, nil
}

// Clear removes uid from the pending set and deletes its file.
//
// Clearing an unknown uid succeeds with WarnUIDMissing; a pending uid
// whose file is already gone succeeds with WarnFileMissing. Clearing
// the last entry of a day bucket removes the now-empty directory.
func (p *TimedRollingFilePersister) Clear(uid string) *Problems {
	var problems *Problems

	ent, ok := p.entries[uid]
	if !ok {
		return problems.AddWarning(fmt.Errorf("%w: %s", WarnUIDMissing, uid))
	}

	if err := os.Remove(ent.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			problems = problems.AddWarning(fmt.Errorf("%w: %s", WarnFileMissing, uid))
		} else {
			return problems.AddError(fmt.Errorf("%w: removing %s: %w", ErrWriteFailed, uid, err))
		}
	}

	p.dropFromIndex(uid)
	p.removeDayDirIfEmpty(ent.day)

	return problems
}

// Reindex walks the on-disk directory structure and rebuilds the
// pending index and byte count from scratch. This is the crash-recovery
// path.
//
// Malformed filenames, unparseable directory names, and unstatable
// files are reported and skipped; the walk never aborts on them. A
// result with errors therefore still leaves a usable index covering
// every readable entry.
func (p *TimedRollingFilePersister) Reindex() *Problems {
	var problems *Problems

	p.entries = make(map[string]*entry)
	p.order = nil
	p.currBytes = 0

	days, err := os.ReadDir(p.baseDir)
	if err != nil {
		return problems.AddError(fmt.Errorf("%w: reading base dir: %w", ErrReindex, err))
	}

	// Day buckets sort lexicographically in date order.
	sort.Slice(days, func(i, j int) bool { return days[i].Name() < days[j].Name() })

	sincePat := 0
	for _, day := range days {
		if !day.IsDir() {
			problems = problems.AddError(fmt.Errorf("%w: unexpected file %q in base dir", ErrReindex, day.Name()))
			continue
		}
		if _, err := decodeDayDir(day.Name()); err != nil {
			problems = problems.AddError(err)
			continue
		}

		dir := filepath.Join(p.baseDir, day.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			problems = problems.AddError(fmt.Errorf("%w: reading %s: %w", ErrReindex, day.Name(), err))
			continue
		}

		// Fixed-width timestamp prefixes sort lexicographically in
		// insertion order within a bucket.
		sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

		for _, file := range files {
			sincePat++
			if p.pat != nil && sincePat >= reindexPatEvery {
				p.pat()
				sincePat = 0
			}

			if file.IsDir() {
				problems = problems.AddError(fmt.Errorf("%w: unexpected directory %q in %s", ErrReindex, file.Name(), day.Name()))
				continue
			}

			_, uid, err := decodeFilename(file.Name())
			if err != nil {
				problems = problems.AddError(err)
				continue
			}

			info, err := file.Info()
			if err != nil {
				problems = problems.AddError(fmt.Errorf("%w: stat %s: %w", ErrReindex, file.Name(), err))
				continue
			}

			// A duplicate uid means an overwrite's older file survived
			// a crash. Keep the newer copy and remove the superseded
			// file, or a later restart would resurrect it as pending
			// after the newer copy has been acked and cleared.
			if old, exists := p.entries[uid]; exists {
				problems = problems.AddWarning(fmt.Errorf("%w: %s (reindex)", WarnUIDExisted, uid))
				if err := os.Remove(old.path); err != nil {
					problems = problems.AddWarning(fmt.Errorf("%w: removing superseded %s: %w", ErrReindex, old.path, err))
				}
				p.currBytes -= old.size
				old.path = filepath.Join(dir, file.Name())
				old.day = day.Name()
				old.size = info.Size()
				p.currBytes += info.Size()
				continue
			}

			p.entries[uid] = &entry{
				uid:  uid,
				path: filepath.Join(dir, file.Name()),
				day:  day.Name(),
				size: info.Size(),
			}
			p.order = append(p.order, uid)
			p.currBytes += info.Size()
		}
	}

	return problems
}

// PendingUIDs returns the pending uids, oldest first. The returned
// slice is a copy.
func (p *TimedRollingFilePersister) PendingUIDs() []string {
	uids := make([]string, len(p.order))
	copy(uids, p.order)
	return uids
}

// IsPending reports whether uid awaits acknowledgment.
func (p *TimedRollingFilePersister) IsPending(uid string) bool {
	_, ok := p.entries[uid]
	return ok
}

// NumPending returns the number of pending events.
func (p *TimedRollingFilePersister) NumPending() int {
	return len(p.order)
}

// CurrBytes returns the byte count of all pending entries. It always
// equals the sum of actual file sizes of currently-pending entries;
// Reindex re-derives it from disk.
func (p *TimedRollingFilePersister) CurrBytes() int64 {
	return p.currBytes
}

// MaxBytes returns the configured byte budget.
func (p *TimedRollingFilePersister) MaxBytes() int64 {
	return p.maxBytes
}

// BaseDir returns the store's root directory.
func (p *TimedRollingFilePersister) BaseDir() string {
	return p.baseDir
}

// removeFromDisk deletes an entry's file. A file that is already gone
// is tolerated: the space is gone either way, and dropping the index
// entry restores accurate accounting.
func (p *TimedRollingFilePersister) removeFromDisk(ent *entry) error {
	if err := os.Remove(ent.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	p.removeDayDirIfEmpty(ent.day)
	return nil
}

// dropFromIndex removes uid from the map, order slice, and byte count.
func (p *TimedRollingFilePersister) dropFromIndex(uid string) {
	ent, ok := p.entries[uid]
	if !ok {
		return
	}
	delete(p.entries, uid)
	p.currBytes -= ent.size
	for i, u := range p.order {
		if u == uid {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// removeDayDirIfEmpty removes a day-bucket directory once its last
// entry is gone. Failure to remove is harmless and ignored; the empty
// directory is skipped cleanly by the next Reindex.
func (p *TimedRollingFilePersister) removeDayDirIfEmpty(day string) {
	dir := filepath.Join(p.baseDir, day)
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}
