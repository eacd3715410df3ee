package main

import (
	"errors"
	"sync/atomic"
	"syscall"

	"github.com/forgelabs/bastion/pkg/errs"
)

// caughtSignal records which of SIGINT/SIGTERM (if either) triggered the
// most recent run cancellation, so exitCodeFor can report the conventional
// shell exit code for that signal (130/143) rather than a generic failure.
var caughtSignal atomic.Int32

// exitCodeFor maps a run error to a process exit code, mirroring
// original_source/sb/analysis.py's run()'s signal-driven exit status.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errs.ErrInterrupted) {
		if syscall.Signal(caughtSignal.Load()) == syscall.SIGTERM {
			return 143
		}
		return 130
	}
	return 1
}
