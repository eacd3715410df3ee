// Package log provides structured logging for bastion using zerolog.
//
// A single global Logger is initialized once via Init and read from every
// other package. Component loggers (WithComponent, WithRunID, WithTool,
// WithFile) attach scoped fields without having to thread a logger through
// every call:
//
//	schedulerLog := log.WithComponent("scheduler")
//	schedulerLog.Info().Str("tool", task.Tool.ID).Msg("task scheduled")
//
// JSONOutput controls wire format; console output is meant for interactive
// runs, JSON for piping into a log aggregator.
package log
