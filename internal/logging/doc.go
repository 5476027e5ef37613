// Package logging provides structured logging for cto runs.
//
// The [Logger] wraps log/slog with a JSON handler. A logger created with
// [NewLogger] appends to .cto/logs/debug.log; child loggers created with
// [Logger.WithTicket], [Logger.WithTeam], [Logger.WithRole] or [Logger.With]
// share the parent's file and add persistent attributes:
//
//	logger, err := logging.NewLogger(".cto/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithTicket("CTO-004").WithRole("backend").Info("agent finished", "files", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"agent finished","ticket_id":"CTO-004","role":"backend","files":3}
//
// For tests, use [NopLogger] to discard output.
//
// The human-readable activity history (who did what to which ticket) is not
// kept here; see the progress package.
package logging
