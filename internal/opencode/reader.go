package opencode

import (
	"errors"
	"time"

	"github.com/samber/lo"
)

// cacheTTL is how long the all-time aggregate is served without touching
// the filesystem.
const cacheTTL = 5 * time.Minute

// ErrNoDataFound means a scan (or a window-filtered scan) contributed no
// accounting records. It is distinct from a valid zero-usage aggregate.
var ErrNoDataFound = errors.New("opencode: no usage data found")

// cacheEntry memoizes one parsed file. It stays valid only while the file's
// observed modification time equals ModifiedAt.
type cacheEntry struct {
	part       *UsagePart
	modifiedAt time.Time
}

// readerCache is rebuilt wholesale on every all-time refresh; entries for
// files that vanished are dropped implicitly because the new map is
// populated only from the current listing.
type readerCache struct {
	metrics UsageMetrics
	asOf    time.Time
	files   map[string]cacheEntry
}

// Reader orchestrates scanner, parser, and aggregator behind an
// incrementally maintained cache. A Reader owns its cache exclusively and
// performs no internal locking; callers sharing one across goroutines must
// wrap it in their own lock.
type Reader struct {
	scanner *Scanner
	cache   *readerCache
	now     func() time.Time
}

// NewReader builds a reader over the given storage root. A missing root is
// a fatal construction error.
func NewReader(storageRoot string) (*Reader, error) {
	scanner, err := NewScanner(storageRoot)
	if err != nil {
		return nil, err
	}
	return NewReaderWithScanner(scanner), nil
}

func NewReaderWithScanner(scanner *Scanner) *Reader {
	return &Reader{scanner: scanner, now: time.Now}
}

// StoragePath returns the storage root the reader scans.
func (r *Reader) StoragePath() string {
	return r.scanner.Root()
}

// Invalidate expires the time-based cache so the next GetUsage refreshes
// immediately. Per-file entries survive and are still reused for files
// whose modification time has not changed.
func (r *Reader) Invalidate() {
	if r.cache != nil {
		r.cache.asOf = time.Time{}
	}
}

// GetUsage returns the all-time aggregate. Within the TTL the cached
// metrics are returned untouched; otherwise the storage tree is rescanned,
// unchanged files are served from the per-file cache, changed or new files
// are re-parsed, and the whole cache is replaced with the fresh result.
func (r *Reader) GetUsage() (UsageMetrics, error) {
	if r.cache != nil && r.now().Sub(r.cache.asOf) < cacheTTL {
		return r.cache.metrics, nil
	}

	files, err := r.scanner.ScanWithMetadata()
	if err != nil {
		return UsageMetrics{}, err
	}
	if len(files) == 0 {
		return UsageMetrics{}, ErrNoDataFound
	}

	parts, newFiles := r.reuseOrParse(files)
	if len(parts) == 0 {
		return UsageMetrics{}, ErrNoDataFound
	}

	metrics := foldParts(parts)
	r.cache = &readerCache{
		metrics: metrics,
		asOf:    r.now(),
		files:   newFiles,
	}
	return metrics, nil
}

// GetUsageToday aggregates files modified during the current UTC day. The
// TTL never short-circuits window queries and the per-file cache is only
// consulted, never replaced.
func (r *Reader) GetUsageToday() (UsageMetrics, error) {
	return r.windowUsage(dayStart(r.now()), time.Time{})
}

// GetUsageMonth aggregates files modified during the current UTC calendar
// month.
func (r *Reader) GetUsageMonth() (UsageMetrics, error) {
	return r.windowUsage(monthStart(r.now()), time.Time{})
}

// GetUsageLastMonth aggregates files modified during the previous UTC
// calendar month.
func (r *Reader) GetUsageLastMonth() (UsageMetrics, error) {
	start := monthStart(r.now())
	return r.windowUsage(start.AddDate(0, -1, 0), start)
}

func (r *Reader) windowUsage(cutoff, before time.Time) (UsageMetrics, error) {
	files, err := r.scanner.ScanModifiedSince(cutoff)
	if err != nil {
		return UsageMetrics{}, err
	}
	if !before.IsZero() {
		files = lo.Filter(files, func(f FileRecord, _ int) bool {
			return f.ModifiedAt.Before(before)
		})
	}
	if len(files) == 0 {
		return UsageMetrics{}, ErrNoDataFound
	}

	parts, _ := r.reuseOrParse(files)
	if len(parts) == 0 {
		return UsageMetrics{}, ErrNoDataFound
	}
	return foldParts(parts), nil
}

// reuseOrParse serves unchanged files from the per-file cache and parses
// the rest. Files whose parse fails, or that carry no token data, are
// silently excluded from this cycle's contribution and from the returned
// map: one corrupt file must never block the whole aggregate.
func (r *Reader) reuseOrParse(files []FileRecord) ([]*UsagePart, map[string]cacheEntry) {
	parts := make([]*UsagePart, 0, len(files))
	next := make(map[string]cacheEntry, len(files))

	for _, file := range files {
		if r.cache != nil {
			if entry, ok := r.cache.files[file.Path]; ok && entry.modifiedAt.Equal(file.ModifiedAt) {
				parts = append(parts, entry.part)
				next[file.Path] = entry
				continue
			}
		}

		part, err := ParseFile(file.Path)
		if err != nil || part == nil {
			continue
		}
		parts = append(parts, part)
		next[file.Path] = cacheEntry{part: part, modifiedAt: file.ModifiedAt}
	}

	return parts, next
}

func foldParts(parts []*UsagePart) UsageMetrics {
	agg := NewAggregator()
	for _, part := range parts {
		agg.Add(part)
	}
	return agg.Finalize()
}

// dayStart truncates now to the current UTC day boundary.
func dayStart(now time.Time) time.Time {
	secs := now.Unix()
	return time.Unix(secs-secs%86400, 0).UTC()
}

// monthStart is the first of the current UTC calendar month at midnight.
func monthStart(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
}
