package opencode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTokenPart(t *testing.T, root, rel string, input, output uint64) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	payload := fmt.Sprintf(
		`{"id":%q,"type":"step-finish","tokens":{"input":%d,"output":%d,"reasoning":0,"cache":{"write":0,"read":0}},"cost":0.01}`,
		rel, input, output,
	)
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestReader(t *testing.T, root string) *Reader {
	t.Helper()
	reader, err := NewReader(root)
	if err != nil {
		t.Fatal(err)
	}
	return reader
}

func TestGetUsageAggregates(t *testing.T) {
	root := t.TempDir()
	writeTokenPart(t, root, "ses_01/prt_a.json", 100, 50)
	writeTokenPart(t, root, "ses_01/prt_b.json", 200, 100)
	writeTokenPart(t, root, "ses_02/prt_c.json", 300, 150)

	metrics, err := newTestReader(t, root).GetUsage()
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if metrics.TotalInputTokens != 600 || metrics.TotalOutputTokens != 300 {
		t.Fatalf("totals: %+v", metrics)
	}
	if metrics.InteractionCount != 3 {
		t.Fatalf("InteractionCount = %d", metrics.InteractionCount)
	}
}

func TestGetUsageNoFiles(t *testing.T) {
	_, err := newTestReader(t, t.TempDir()).GetUsage()
	if !errors.Is(err, ErrNoDataFound) {
		t.Fatalf("expected ErrNoDataFound, got %v", err)
	}
}

func TestGetUsageOnlyNonContributingFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "marker.json"), []byte(`{"type":"step-start"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "broken.json"), []byte(`{"type":`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := newTestReader(t, root).GetUsage()
	if !errors.Is(err, ErrNoDataFound) {
		t.Fatalf("expected ErrNoDataFound, got %v", err)
	}
}

func TestGetUsageMissingRootIsFatal(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "gone"))
	if !errors.Is(err, ErrDirectoryNotFound) {
		t.Fatalf("expected ErrDirectoryNotFound, got %v", err)
	}
}

func TestGetUsageSkipsMalformedFiles(t *testing.T) {
	root := t.TempDir()
	writeTokenPart(t, root, "prt_good.json", 100, 50)
	if err := os.WriteFile(filepath.Join(root, "prt_bad.json"), []byte(`{{{`), 0o644); err != nil {
		t.Fatal(err)
	}

	metrics, err := newTestReader(t, root).GetUsage()
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if metrics.TotalInputTokens != 100 || metrics.InteractionCount != 1 {
		t.Fatalf("malformed file leaked into totals: %+v", metrics)
	}
}

func TestGetUsageServesCacheWithinTTL(t *testing.T) {
	root := t.TempDir()
	path := writeTokenPart(t, root, "prt_a.json", 100, 50)

	reader := newTestReader(t, root)
	first, err := reader.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}

	// Deleting the file must not show until the TTL lapses.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	second, err := reader.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if second != first {
		t.Fatalf("warm cache must return the identical metrics:\n%+v\n%+v", first, second)
	}
	if !second.CapturedAt.Equal(first.CapturedAt) {
		t.Fatal("CapturedAt changed on a warm cache hit")
	}
}

func TestGetUsageRefreshesAfterTTL(t *testing.T) {
	root := t.TempDir()
	path := writeTokenPart(t, root, "prt_a.json", 100, 50)

	reader := newTestReader(t, root)
	base := time.Now()
	reader.now = func() time.Time { return base }

	if _, err := reader.GetUsage(); err != nil {
		t.Fatalf("GetUsage: %v", err)
	}

	writeTokenPart(t, root, "prt_a.json", 500, 250)
	future := base.Add(cacheTTL + time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	reader.now = func() time.Time { return future }

	metrics, err := reader.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if metrics.TotalInputTokens != 500 {
		t.Fatalf("stale refresh served old content: %+v", metrics)
	}
}

func TestGetUsageReusesUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	path := writeTokenPart(t, root, "prt_a.json", 100, 50)
	mtime := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	reader := newTestReader(t, root)
	base := time.Now()
	reader.now = func() time.Time { return base }
	if _, err := reader.GetUsage(); err != nil {
		t.Fatalf("GetUsage: %v", err)
	}

	// Rewrite the content but restore the old mtime: the memoized parse
	// must win because the modification time is unchanged.
	writeTokenPart(t, root, "prt_a.json", 999, 999)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	reader.now = func() time.Time { return base.Add(cacheTTL + time.Second) }

	metrics, err := reader.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if metrics.TotalInputTokens != 100 {
		t.Fatalf("unchanged mtime was re-parsed: %+v", metrics)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	root := t.TempDir()
	path := writeTokenPart(t, root, "prt_a.json", 100, 50)

	reader := newTestReader(t, root)
	if _, err := reader.GetUsage(); err != nil {
		t.Fatalf("GetUsage: %v", err)
	}

	writeTokenPart(t, root, "prt_a.json", 500, 250)
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	reader.Invalidate()
	metrics, err := reader.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if metrics.TotalInputTokens != 500 {
		t.Fatalf("Invalidate did not force a refresh: %+v", metrics)
	}
}

func TestGetUsageTodayExcludesOlderFiles(t *testing.T) {
	root := t.TempDir()
	yesterday := writeTokenPart(t, root, "prt_old.json", 100, 50)
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(yesterday, past, past); err != nil {
		t.Fatal(err)
	}
	writeTokenPart(t, root, "prt_new.json", 200, 100)

	metrics, err := newTestReader(t, root).GetUsageToday()
	if err != nil {
		t.Fatalf("GetUsageToday: %v", err)
	}
	if metrics.TotalInputTokens != 200 || metrics.InteractionCount != 1 {
		t.Fatalf("today window leaked older files: %+v", metrics)
	}
}

func TestGetUsageTodayNoData(t *testing.T) {
	root := t.TempDir()
	old := writeTokenPart(t, root, "prt_old.json", 100, 50)
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	_, err := newTestReader(t, root).GetUsageToday()
	if !errors.Is(err, ErrNoDataFound) {
		t.Fatalf("expected ErrNoDataFound, got %v", err)
	}
}

func TestGetUsageMonthWindows(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	thisMonth := writeTokenPart(t, root, "prt_this.json", 100, 50)
	start := monthStart(now)
	inMonth := start.Add(time.Hour)
	if inMonth.After(now) {
		inMonth = now
	}
	if err := os.Chtimes(thisMonth, inMonth, inMonth); err != nil {
		t.Fatal(err)
	}

	lastMonth := writeTokenPart(t, root, "prt_last.json", 200, 100)
	prev := start.AddDate(0, 0, -1)
	if err := os.Chtimes(lastMonth, prev, prev); err != nil {
		t.Fatal(err)
	}

	reader := newTestReader(t, root)

	month, err := reader.GetUsageMonth()
	if err != nil {
		t.Fatalf("GetUsageMonth: %v", err)
	}
	if month.TotalInputTokens != 100 || month.InteractionCount != 1 {
		t.Fatalf("month window: %+v", month)
	}

	last, err := reader.GetUsageLastMonth()
	if err != nil {
		t.Fatalf("GetUsageLastMonth: %v", err)
	}
	if last.TotalInputTokens != 200 || last.InteractionCount != 1 {
		t.Fatalf("last-month window: %+v", last)
	}
}

func TestWindowQueriesDoNotTouchTheCache(t *testing.T) {
	root := t.TempDir()
	writeTokenPart(t, root, "prt_a.json", 100, 50)

	reader := newTestReader(t, root)
	if _, err := reader.GetUsageToday(); err != nil {
		t.Fatalf("GetUsageToday: %v", err)
	}
	if reader.cache != nil {
		t.Fatal("window query populated the all-time cache")
	}

	all, err := reader.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if _, err := reader.GetUsageToday(); err != nil {
		t.Fatalf("GetUsageToday: %v", err)
	}
	if reader.cache == nil || reader.cache.metrics != all {
		t.Fatal("window query replaced the all-time cache")
	}
}

func TestReaderRecoversAfterMalformedFileDeleted(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "prt_bad.json")
	if err := os.WriteFile(bad, []byte(`][`), 0o644); err != nil {
		t.Fatal(err)
	}

	reader := newTestReader(t, root)
	if _, err := reader.GetUsage(); !errors.Is(err, ErrNoDataFound) {
		t.Fatalf("expected ErrNoDataFound, got %v", err)
	}

	if err := os.Remove(bad); err != nil {
		t.Fatal(err)
	}
	writeTokenPart(t, root, "prt_good.json", 42, 7)

	metrics, err := reader.GetUsage()
	if err != nil {
		t.Fatalf("GetUsage after recovery: %v", err)
	}
	if metrics.TotalInputTokens != 42 {
		t.Fatalf("recovered totals: %+v", metrics)
	}
}

func TestStoragePath(t *testing.T) {
	root := t.TempDir()
	if got := newTestReader(t, root).StoragePath(); got != root {
		t.Fatalf("StoragePath = %q, want %q", got, root)
	}
}
