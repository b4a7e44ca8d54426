package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogQuotaWait logs a quota-window suspension
func LogQuotaWait(l Logger, family string, until time.Time) {
	l.WarnWithFields("Quota exhausted, waiting for reset", map[string]interface{}{
		"family": family,
		"until":  until,
		"wait":   time.Until(until).Round(time.Second),
		"action": "quota_wait",
	})
}

// LogAcquire logs the outcome of one media download
func LogAcquire(l Logger, kind, filename string, success bool, err error) {
	fields := map[string]interface{}{
		"kind":     kind,
		"filename": filename,
		"success":  success,
	}
	entry := l.WithFields(fields)
	switch {
	case err != nil:
		entry.WithError(err).Warn("Media download failed")
	case success:
		entry.Info("Media downloaded")
	default:
		entry.Debug("Media already present, skipped")
	}
}

// LogEviction logs the retention pass result
func LogEviction(l Logger, kind string, kept, removed int) {
	l.InfoWithFields("Retention pass completed", map[string]interface{}{
		"kind":    kind,
		"kept":    kept,
		"removed": removed,
	})
}

// LogDispatch logs a link resolver outcome
func LogDispatch(l Logger, url, fetcher, outcome string, err error) {
	entry := l.WithFields(map[string]interface{}{
		"url":     url,
		"fetcher": fetcher,
		"outcome": outcome,
	})
	if err != nil {
		entry.WithError(err).Warn("Link fetch failed")
		return
	}
	entry.Debug("Link dispatched")
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger {
	return &zerologLogger{z: zerolog.Nop()}
}
