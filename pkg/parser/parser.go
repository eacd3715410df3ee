// Package parser holds the per-tool parser strategies that turn a
// completed task's raw artifacts (exit code, log text, output archive)
// into a normalized types.ParsedOutput. Tools without a bespoke strategy
// fall back to Generic, a log-scraping parser. Grounded on
// original_source/tools/echidna/parser.py, the one concrete per-tool
// parser retrieved in the pack.
package parser

import (
	"strconv"
	"strings"
	"sync"

	"github.com/forgelabs/bastion/pkg/types"
)

// Func is one tool's parse strategy: given a task's exit code, decoded log
// text, and raw output archive bytes (a tar, empty if the tool declared no
// output path), produce a normalized ParsedOutput.
type Func func(toolID string, exitCode *int, logs string, archive []byte) (*types.ParsedOutput, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Func{
		"echidna": parseEchidna,
	}
)

// Register adds or replaces the parse strategy for toolID.
func Register(toolID string, fn Func) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[toolID] = fn
}

// Parse dispatches to toolID's registered strategy, or Generic if none is
// registered.
func Parse(toolID string, exitCode *int, logs string, archive []byte) (*types.ParsedOutput, error) {
	registryMu.Lock()
	fn, ok := registry[toolID]
	registryMu.Unlock()
	if !ok {
		fn = Generic
	}
	return fn(toolID, exitCode, logs, archive)
}

// Generic is the fallback parser: it produces no findings or infos and only
// scrapes errors/fails out of the exit code and log text, for tools without a
// bespoke structured-output parser.
func Generic(toolID string, exitCode *int, logs string, archive []byte) (*types.ParsedOutput, error) {
	errorsList, failsList := errorsFails(exitCode, logs)
	return &types.ParsedOutput{
		Parser: types.ParserInfo{ID: "generic"},
		Errors: errorsList,
		Fails:  failsList,
	}, nil
}

// errorsFails classifies a tool's run as a set of error/fail notes: a
// non-zero or missing exit code is a fail (the tool never produced usable
// output); any log line containing "error" (case-insensitive) is surfaced
// as an error note. Mirrors the shape of sb.parse_utils.errors_fails, which
// itself was not retrieved in the pack — only its call sites (this parser
// and tools/echidna/parser.py) are.
func errorsFails(exitCode *int, logs string) (errorsList, failsList []string) {
	if exitCode == nil || *exitCode != 0 {
		code := "unknown"
		if exitCode != nil {
			code = strconv.Itoa(*exitCode)
		}
		failsList = append(failsList, "tool exited with non-zero code "+code)
	}
	for _, line := range strings.Split(logs, "\n") {
		if strings.Contains(strings.ToLower(line), "error") {
			errorsList = append(errorsList, strings.TrimSpace(line))
		}
	}
	return errorsList, failsList
}
