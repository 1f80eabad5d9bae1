package progress

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Display periodically renders run progress to the terminal
type Display struct {
	tracker  *Tracker
	interval time.Duration
	stopCh   chan struct{}
}

// NewDisplay creates a new progress display
func NewDisplay(tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the progress display and prints the final state
func (d *Display) Stop() {
	close(d.stopCh)
}

func (d *Display) displayLoop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Print("\r" + d.line())
		case <-d.stopCh:
			fmt.Println("\r" + d.line())
			return
		}
	}
}

func (d *Display) line() string {
	status := d.tracker.GetStatus()
	percent := d.tracker.GetProgressPercent()

	bar := progressBar(percent, 30)
	return fmt.Sprintf("%s %d/%d  ok:%d fail:%d skip:%d  elapsed:%s eta:%s",
		bar,
		status.ProcessedItems, status.TotalItems,
		status.CompletedItems, status.FailedItems, status.SkippedItems,
		FormatDuration(time.Since(status.StartTime)),
		FormatDuration(status.ETA),
	)
}

func progressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("=", filled) + strings.Repeat("-", width-filled)
	return fmt.Sprintf("[%s] %5.1f%%", bar, percent)
}

// IsTerminalSupported checks if stdout is a terminal
func IsTerminalSupported() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fileInfo.Mode()&os.ModeCharDevice != 0
}
