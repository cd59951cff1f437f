package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/janekbaraniewski/opencodeusage/internal/opencode"
)

// dateLayout is how snapshot dates are stored. Lexicographic order on this
// layout matches chronological order, which the range and prune queries
// rely on.
const dateLayout = "2006-01-02"

// Snapshot is one persisted cumulative usage reading for a calendar date.
type Snapshot struct {
	Date             time.Time
	InputTokens      int64
	OutputTokens     int64
	ReasoningTokens  int64
	CacheWriteTokens int64
	CacheReadTokens  int64
	TotalCost        float64
	InteractionCount int64
	CreatedAt        time.Time
}

// WeekSummary sums the snapshots stored for a seven-day window. Snapshots
// hold cumulative all-time readings, so the sums overstate actual weekly
// usage; they are reported as stored.
type WeekSummary struct {
	StartDate             time.Time
	EndDate               time.Time
	TotalInputTokens      int64
	TotalOutputTokens     int64
	TotalReasoningTokens  int64
	TotalCacheWriteTokens int64
	TotalCacheReadTokens  int64
	TotalCost             float64
	TotalInteractions     int64
}

// Repository exposes snapshot CRUD over a Store.
type Repository struct {
	store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{store: store}
}

// SaveSnapshot upserts the snapshot for date. A second save on the same
// date replaces the previous row rather than accumulating.
func (r *Repository) SaveSnapshot(ctx context.Context, date time.Time, metrics opencode.UsageMetrics) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, err := r.store.db.ExecContext(ctx, `
INSERT OR REPLACE INTO usage_snapshots
	(date, input_tokens, output_tokens, reasoning_tokens,
	 cache_write_tokens, cache_read_tokens, total_cost, interaction_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		date.UTC().Format(dateLayout),
		toInt64(metrics.TotalInputTokens),
		toInt64(metrics.TotalOutputTokens),
		toInt64(metrics.TotalReasoningTokens),
		toInt64(metrics.TotalCacheWriteTokens),
		toInt64(metrics.TotalCacheReadTokens),
		metrics.TotalCost,
		int64(metrics.InteractionCount),
		r.store.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("history: saving snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot for date, or (nil, nil) when none is
// stored.
func (r *Repository) GetSnapshot(ctx context.Context, date time.Time) (*Snapshot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	row := r.store.db.QueryRowContext(ctx, `
SELECT date, input_tokens, output_tokens, reasoning_tokens,
       cache_write_tokens, cache_read_tokens, total_cost, interaction_count, created_at
FROM usage_snapshots
WHERE date = ?`,
		date.UTC().Format(dateLayout),
	)

	snapshot, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: reading snapshot: %w", err)
	}
	return snapshot, nil
}

// GetRange returns snapshots with start <= date <= end in ascending date
// order. Dates without a snapshot are simply absent.
func (r *Repository) GetRange(ctx context.Context, start, end time.Time) ([]Snapshot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rows, err := r.store.db.QueryContext(ctx, `
SELECT date, input_tokens, output_tokens, reasoning_tokens,
       cache_write_tokens, cache_read_tokens, total_cost, interaction_count, created_at
FROM usage_snapshots
WHERE date >= ? AND date <= ?
ORDER BY date ASC`,
		start.UTC().Format(dateLayout),
		end.UTC().Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying snapshot range: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scanning snapshot row: %w", err)
		}
		snapshots = append(snapshots, *snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating snapshot range: %w", err)
	}
	return snapshots, nil
}

// GetLatest returns the most recent snapshot by date, or (nil, nil) when
// the table is empty.
func (r *Repository) GetLatest(ctx context.Context) (*Snapshot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	row := r.store.db.QueryRowContext(ctx, `
SELECT date, input_tokens, output_tokens, reasoning_tokens,
       cache_write_tokens, cache_read_tokens, total_cost, interaction_count, created_at
FROM usage_snapshots
ORDER BY date DESC
LIMIT 1`)

	snapshot, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: reading latest snapshot: %w", err)
	}
	return snapshot, nil
}

// DeleteOld removes snapshots older than retention days, counted back from
// the current UTC date, and reports how many rows went.
func (r *Repository) DeleteOld(ctx context.Context, retentionDays int) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cutoff := dateOf(r.store.now()).AddDate(0, 0, -retentionDays)
	res, err := r.store.db.ExecContext(ctx,
		`DELETE FROM usage_snapshots WHERE date < ?`,
		cutoff.Format(dateLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("history: pruning snapshots: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: counting pruned snapshots: %w", err)
	}
	return deleted, nil
}

// GetWeekSummary sums the snapshots stored for the seven days beginning at
// start. A window with no snapshots yields an all-zero summary, not an
// error.
func (r *Repository) GetWeekSummary(ctx context.Context, start time.Time) (WeekSummary, error) {
	startDate := dateOf(start)
	endDate := startDate.AddDate(0, 0, 6)

	snapshots, err := r.GetRange(ctx, startDate, endDate)
	if err != nil {
		return WeekSummary{}, err
	}

	summary := WeekSummary{StartDate: startDate, EndDate: endDate}
	for _, s := range snapshots {
		summary.TotalInputTokens += s.InputTokens
		summary.TotalOutputTokens += s.OutputTokens
		summary.TotalReasoningTokens += s.ReasoningTokens
		summary.TotalCacheWriteTokens += s.CacheWriteTokens
		summary.TotalCacheReadTokens += s.CacheReadTokens
		summary.TotalCost += s.TotalCost
		summary.TotalInteractions += s.InteractionCount
	}
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		snapshot  Snapshot
		date      string
		createdAt string
	)
	if err := row.Scan(
		&date,
		&snapshot.InputTokens,
		&snapshot.OutputTokens,
		&snapshot.ReasoningTokens,
		&snapshot.CacheWriteTokens,
		&snapshot.CacheReadTokens,
		&snapshot.TotalCost,
		&snapshot.InteractionCount,
		&createdAt,
	); err != nil {
		return nil, err
	}

	parsedDate, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot date %q: %w", date, err)
	}
	snapshot.Date = parsedDate

	parsedCreated, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot created_at %q: %w", createdAt, err)
	}
	snapshot.CreatedAt = parsedCreated

	return &snapshot, nil
}

// toInt64 narrows an unsigned counter for SQLite storage. A value past
// int64 range cannot be represented, so it stores as zero rather than a
// negative number.
func toInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return 0
	}
	return int64(v)
}

// dateOf truncates t to its UTC calendar date at midnight.
func dateOf(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
