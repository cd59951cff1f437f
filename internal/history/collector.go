package history

import (
	"context"
	"sync"
	"time"

	"github.com/janekbaraniewski/opencodeusage/internal/opencode"
)

// Collector gates snapshot persistence to at most one save per UTC
// calendar day. It is safe for concurrent use: of N goroutines racing on
// the same day, exactly one performs the save.
type Collector struct {
	repo *Repository

	mu             sync.Mutex
	lastCollection *time.Time
	now            func() time.Time
}

func NewCollector(repo *Repository) *Collector {
	return &Collector{repo: repo, now: time.Now}
}

// ShouldCollect reports whether a save would happen right now. It is a
// hint only; CollectAndSave re-checks under its own lock.
func (c *Collector) ShouldCollect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCollection == nil || !c.lastCollection.Equal(dateOf(c.now()))
}

// LastCollectionDate returns the date of the most recent save through this
// collector, and whether one has happened.
func (c *Collector) LastCollectionDate() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastCollection == nil {
		return time.Time{}, false
	}
	return *c.lastCollection, true
}

// CollectAndSave persists metrics for today unless a save already happened
// today. It returns whether this call performed the save. The date is
// re-checked under the lock, so concurrent same-day callers collapse to
// one write; a failed save leaves the collector ready to retry.
func (c *Collector) CollectAndSave(ctx context.Context, metrics opencode.UsageMetrics) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := dateOf(c.now())
	if c.lastCollection != nil && c.lastCollection.Equal(today) {
		return false, nil
	}

	if err := c.repo.SaveSnapshot(ctx, today, metrics); err != nil {
		return false, err
	}
	c.lastCollection = &today
	return true, nil
}
