// Package reparse re-derives a task's parsed result.json (and optionally
// result.sarif) from its already-persisted raw artifacts
// (smartbugs.json/result.log/result.tar), without rerunning the tool.
// Grounded on original_source/sb/reparse.py: the scheduler's dynamic
// routing path uses it to classify a just-finished tool's findings even
// when the run wasn't asked to produce JSON/SARIF output, and the
// `bastion reparse` CLI subcommand uses it to regenerate parsed output
// for an existing results tree (e.g. after a parser bug fix).
package reparse

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/errs"
	"github.com/forgelabs/bastion/pkg/parser"
	"github.com/forgelabs/bastion/pkg/sarif"
	"github.com/forgelabs/bastion/pkg/types"
)

// Reparse reads resultDir's smartbugs.json plus its raw result.log/
// result.tar (either may be absent), clears any stale result.json/
// result.sarif, and writes a freshly parsed result.json. When withSarif is
// set, result.sarif is written alongside it. Returns the parsed output so
// callers that only need the in-memory findings (the scheduler's dynamic
// router) don't have to read result.json back.
func Reparse(resultDir string, withSarif bool) (*types.ParsedOutput, error) {
	taskLogPath := filepath.Join(resultDir, config.TaskLogFile)
	taskLog, err := readTaskLog(taskLogPath)
	if err != nil {
		return nil, err
	}

	toolLogPath := filepath.Join(resultDir, config.ToolLogFile)
	toolOutputPath := filepath.Join(resultDir, config.ToolOutputFile)
	parserOutputPath := filepath.Join(resultDir, config.ParserOutputFile)
	sarifOutputPath := filepath.Join(resultDir, config.SARIFOutputFile)

	logs, err := readOptionalText(toolLogPath)
	if err != nil {
		return nil, err
	}
	archive, err := readOptionalBytes(toolOutputPath)
	if err != nil {
		return nil, err
	}

	for _, fn := range []string{parserOutputPath, sarifOutputPath} {
		if err := os.Remove(fn); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: clearing stale parse output %s: %v", errs.ErrIO, fn, err)
		}
	}

	parsed, err := parser.Parse(taskLog.Tool.ID, taskLog.Result.ExitCode, logs, archive)
	if err != nil {
		return nil, err
	}
	parsed.ToolArgs = taskLog.ToolArgs

	if err := writeJSON(parserOutputPath, parsed); err != nil {
		return nil, err
	}

	if withSarif {
		sarifLog := sarif.Sarify(taskLog.Tool, taskLog.Filename, parsed.Findings)
		if err := writeJSON(sarifOutputPath, sarifLog); err != nil {
			return nil, err
		}
	}

	return parsed, nil
}

// DiscoverResultDirs walks each root looking for directories containing a
// smartbugs.json, the marker a completed task leaves behind. Duplicate
// directories reachable from more than one root are collapsed.
func DiscoverResultDirs(roots []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if info.Name() != config.TaskLogFile {
				return nil
			}
			dir := filepath.Dir(path)
			if !seen[dir] {
				seen[dir] = true
				out = append(out, dir)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: walking %s: %v", errs.ErrIO, root, err)
		}
	}
	return out, nil
}

func readTaskLog(path string) (*types.TaskLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", errs.ErrIO, path, err)
	}
	var tl types.TaskLog
	if err := json.Unmarshal(data, &tl); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", errs.ErrIO, path, err)
	}
	return &tl, nil
}

func readOptionalText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return string(data), nil
}

func readOptionalBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return data, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return nil
}
