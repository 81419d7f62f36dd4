package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const barWidth = 40

// Source produces progress snapshots
type Source interface {
	Snapshot() Snapshot
}

// Display periodically renders snapshots to a writer
type Display struct {
	source   Source
	out      io.Writer
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once
}

// NewDisplay creates a new progress display
func NewDisplay(source Source, out io.Writer, interval time.Duration) *Display {
	return &Display{
		source:   source,
		out:      out,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop renders the final state and waits for the loop to exit
func (d *Display) Stop() {
	d.once.Do(func() {
		close(d.stopCh)
		<-d.doneCh
	})
}

func (d *Display) displayLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprintln(d.out, strings.Join(Render(d.source.Snapshot()), "\n"))
		case <-d.stopCh:
			fmt.Fprintln(d.out, strings.Join(RenderFinal(d.source.Snapshot()), "\n"))
			return
		}
	}
}

// Render generates the progress display lines
func Render(s Snapshot) []string {
	lines := make([]string, 0, 12)

	lines = append(lines, "")
	lines = append(lines, "Upload progress")
	lines = append(lines, strings.Repeat("=", 51))

	lines = append(lines, fmt.Sprintf("Files: %d/%d", s.Completed, s.TotalItems))
	lines = append(lines, "    "+ProgressBar(s.Percent, barWidth))

	var bytesPercent float64
	if s.TotalBytes > 0 {
		bytesPercent = float64(s.BytesTransferred) / float64(s.TotalBytes) * 100
	}
	lines = append(lines, fmt.Sprintf("Data:  %s/%s",
		FormatBytes(s.BytesTransferred), FormatBytes(s.TotalBytes)))
	lines = append(lines, "    "+ProgressBar(bytesPercent, barWidth))

	lines = append(lines, fmt.Sprintf("  succeeded: %d  failed: %d  retries: %d  active: %d",
		s.Succeeded, s.Failed, s.Retries, len(s.Active)))
	lines = append(lines, fmt.Sprintf("  speed: %s (avg %s)", FormatSpeed(s.CurrentSpeed), FormatSpeed(s.Throughput)))
	lines = append(lines, fmt.Sprintf("  elapsed: %s  eta: %s", FormatDuration(s.Elapsed), FormatETA(s)))

	return lines
}

// RenderFinal generates the completion display lines
func RenderFinal(s Snapshot) []string {
	return []string{
		"",
		"Upload finished",
		strings.Repeat("=", 51),
		fmt.Sprintf("Files:     %d", s.Completed),
		fmt.Sprintf("Data:      %s", FormatBytes(s.BytesTransferred)),
		fmt.Sprintf("Succeeded: %d", s.Succeeded),
		fmt.Sprintf("Failed:    %d", s.Failed),
		fmt.Sprintf("Retries:   %d", s.Retries),
		fmt.Sprintf("Elapsed:   %s", FormatDuration(s.Elapsed)),
		fmt.Sprintf("Average:   %s", FormatSpeed(s.Throughput)),
		"",
	}
}

// ProgressBar generates a visual progress bar
func ProgressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	return fmt.Sprintf("[%s] %.1f%%", bar, percent)
}

// IsTerminalSupported checks if stdout is an interactive terminal
func IsTerminalSupported() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
