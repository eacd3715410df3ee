// Package errs defines the sentinel error taxonomy shared across bastion,
// checked with errors.Is at call sites that need to distinguish failure
// classes (retry vs fail-fast vs fatal-to-the-task).
package errs

import "errors"

var (
	// ErrConfiguration covers a missing required tool field, an unknown
	// command placeholder, or a compiler version that cannot be resolved.
	// The affected (file, tool) pair is skipped with a warning; other tasks
	// proceed.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransient covers a container-engine connection error or pull
	// glitch. A tool is attempted up to 3 times with backoff before the
	// task is reported as failed.
	ErrTransient = errors.New("transient runtime error")

	// ErrStateCollision means a result directory now holds a TaskLog for a
	// different (tool, mode, filename, args) identity than the task that
	// is about to write to it. Fatal for that task.
	ErrStateCollision = errors.New("result directory occupied by a different task")

	// ErrIO covers failure to create or clear a task's result artifacts,
	// or a parser crash. Fatal for that task.
	ErrIO = errors.New("unrecoverable io error")

	// ErrInterrupted means a run's context was cancelled (SIGINT/SIGTERM)
	// before every queued task finished. cmd/bastion maps it to the
	// conventional 130/143 shell exit codes.
	ErrInterrupted = errors.New("run interrupted")
)
