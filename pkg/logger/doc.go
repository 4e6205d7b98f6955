// Package logger provides the structured logging interface used across
// xmediagrab.
//
// It wraps zerolog with:
//   - leveled methods and *WithFields variants taking a field map
//   - immutable child loggers via WithField, WithFields and WithError
//   - colored console output (disabled when the dashboard owns the terminal)
//   - rotating JSON file output through lumberjack
//   - a process-wide logger behind Initialize and GetLogger
//
// Basic usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//		return err
//	}
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.InfoWithFields("Discovery finished", map[string]interface{}{
//		"urls":    len(result.URLs),
//		"scrolls": result.Stats.ScrollIterations,
//	})
//
// Tests use NewNopLogger to silence output or NewTestLogger to assert on
// what was logged.
package logger
