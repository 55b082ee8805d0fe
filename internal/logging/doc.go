// Package logging provides structured logging for browserd processes.
//
// It wraps Go's log/slog to write JSON lines, either to stderr or to a
// size-rotated browserd.log inside the state directory. Every browserd
// process on a machine appends to the same file, so entries carry the
// component and, where relevant, the primary port of the instance.
// [ReadLogs] and [FilterLogs] read the file back for `browserd logs`.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/home/me/.browserd", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("instance registered", "cdp_port", 9868)
//
// # Context Propagation
//
//	regLogger := logger.WithComponent("registry").WithPort(9867)
//	regLogger.Warn("removed stale record", "pid", 4242)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"removed stale record","component":"registry","port":9867,"pid":4242}
//
// # Testing
//
// Components take an optional *Logger; pass nil or [NopLogger] in tests.
package logging
