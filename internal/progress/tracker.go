package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status represents the current run status
type Status struct {
	TotalItems     int64
	ProcessedItems int64
	CompletedItems int64
	FailedItems    int64
	SkippedItems   int64
	StartTime      time.Time
	LastUpdateTime time.Time
	ETA            time.Duration
}

// Tracker tracks run progress
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{
		status: Status{
			StartTime:      now,
			LastUpdateTime: now,
		},
	}
}

// SetTotal sets the total number of items
func (t *Tracker) SetTotal(items int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.TotalItems = items
}

// AddCompleted increments the completed item count
func (t *Tracker) AddCompleted() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CompletedItems++
	t.advance()
}

// AddFailed increments the failed item count
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FailedItems++
	t.advance()
}

// AddSkipped increments the skipped item count
func (t *Tracker) AddSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.SkippedItems++
	t.advance()
}

// advance updates derived fields after one item. Caller holds the lock.
func (t *Tracker) advance() {
	t.status.ProcessedItems++
	t.status.LastUpdateTime = time.Now()

	if t.status.ProcessedItems > 0 && t.status.TotalItems > t.status.ProcessedItems {
		elapsed := time.Since(t.status.StartTime)
		perItem := elapsed / time.Duration(t.status.ProcessedItems)
		t.status.ETA = perItem * time.Duration(t.status.TotalItems-t.status.ProcessedItems)
	} else {
		t.status.ETA = 0
	}
}

// GetStatus returns a copy of the current status
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns the completion percentage
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalItems == 0 {
		return 0
	}
	return float64(t.status.ProcessedItems) / float64(t.status.TotalItems) * 100
}

// FormatDuration renders a duration as h/m/s for display
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
