// Package logging provides structured JSON logging for worklog.
//
// Logs are written with log/slog to {data_dir}/logs/worklog.log, one JSON
// object per line, and rotated by size into worklog.log.1 .. worklog.log.N
// (optionally gzipped). Child loggers carry session_id, project_slug and
// component attributes so entries can be filtered later:
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithComponent("store").WithSession(id).Info("session completed")
//
// [AggregateLogs], [FilterLogs] and [WriteEntries] back the "worklog logs"
// command, which reads the active file and its backups, filters them, and
// renders the result as text, JSON or CSV.
//
// A nil *Logger is valid and discards everything, as does [NopLogger].
package logging
