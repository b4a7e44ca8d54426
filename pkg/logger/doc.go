// Package logger provides the structured logging interface used across mediakeeper.
//
// It wraps zerolog behind the Logger interface so components can be handed a
// TestLogger or a nop logger in tests:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("kind", "favorite")
//	log.InfoWithFields("Listing page fetched", map[string]interface{}{
//	    "page":  2,
//	    "posts": 200,
//	})
//
// Domain helpers (LogQuotaWait, LogAcquire, LogEviction, LogDispatch) keep field
// names consistent between the pipeline, the API client and the link resolver.
package logger
