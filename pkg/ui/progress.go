package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

const progressTemplate = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{string . "status"}}`

// DownloadProgress shows a bar over the download jobs of one run and keeps
// the counters for the closing line.
type DownloadProgress struct {
	mu        sync.Mutex
	bar       *pb.ProgressBar
	startTime time.Time
	added     int
	skipped   int
	failed    int
	bytes     int64
}

// NewDownloadProgress starts a bar for total jobs. In quiet mode or for an
// empty run no bar is drawn.
func NewDownloadProgress(label string, total int) *DownloadProgress {
	p := &DownloadProgress{startTime: time.Now()}
	if IsQuietMode() || total <= 0 {
		return p
	}
	bar := pb.ProgressBarTemplate(progressTemplate).Start(total)
	bar.Set("prefix", label+": ")
	p.bar = bar
	return p
}

// Record counts one finished job and advances the bar
func (p *DownloadProgress) Record(added, skipped bool, err error, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case err != nil:
		p.failed++
	case skipped:
		p.skipped++
	case added:
		p.added++
		p.bytes += int64(size)
	}
	if p.bar != nil {
		p.bar.Increment()
		p.bar.Set("status", p.statusLocked())
	}
}

// Counts returns added, skipped and failed so far
func (p *DownloadProgress) Counts() (added, skipped, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.added, p.skipped, p.failed
}

// Finish stops the bar and prints a one-line summary
func (p *DownloadProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	p.bar.Finish()
	fmt.Printf("%s %s in %v\n", Green("[DONE]"), p.statusLocked(), time.Since(p.startTime).Round(time.Millisecond))
	p.bar = nil
}

func (p *DownloadProgress) statusLocked() string {
	return fmt.Sprintf("new %d, present %d, failed %d, %s", p.added, p.skipped, p.failed, FormatBytes(p.bytes))
}

// FormatBytes formats byte count as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
