// Package executor runs a single Task to completion: stage/execute its
// container, persist the task log and raw artifacts, and optionally parse
// and render them as JSON/SARIF. Grounded on
// original_source/sb/analysis.py's execute() and task_log_dict().
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/errs"
	"github.com/forgelabs/bastion/pkg/log"
	"github.com/forgelabs/bastion/pkg/parser"
	"github.com/forgelabs/bastion/pkg/runtime"
	"github.com/forgelabs/bastion/pkg/sarif"
	"github.com/forgelabs/bastion/pkg/types"
)

// retries is the number of times a tool is attempted before giving up, to
// absorb transient container-runtime connection errors (docker.py's "try
// each tool 3 times").
const retries = 3

const retryDelay = 15 * time.Second

// Runner is the narrow slice of ContainerRunner that Execute needs,
// letting tests substitute a fake without a live containerd connection.
type Runner interface {
	Run(ctx context.Context, req runtime.RunRequest) (*runtime.RunResult, error)
}

// Executor runs tasks against a Runner.
type Executor struct {
	Runner Runner
}

// New builds an Executor bound to runner.
func New(runner Runner) *Executor {
	return &Executor{Runner: runner}
}

// Execute runs task, persists its artifacts under task.ResultDir, and
// returns the tool's measured duration in seconds. A previously completed,
// identical task (same tool/mode/file/args) is a no-op unless
// task.Settings.Overwrite is set.
func (e *Executor) Execute(ctx context.Context, task *types.Task) (float64, error) {
	logger := log.WithTool(task.Tool.ID).With().Str("file", task.RelPath).Logger()

	if err := os.MkdirAll(task.ResultDir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: cannot create result directory %s: %v", errs.ErrIO, task.ResultDir, err)
	}

	taskLogPath := filepath.Join(task.ResultDir, config.TaskLogFile)
	toolLogPath := filepath.Join(task.ResultDir, config.ToolLogFile)
	toolOutputPath := filepath.Join(task.ResultDir, config.ToolOutputFile)
	parserOutputPath := filepath.Join(task.ResultDir, config.ParserOutputFile)
	sarifOutputPath := filepath.Join(task.ResultDir, config.SARIFOutputFile)

	if !task.Settings.Overwrite {
		if previous, ok := readTaskLog(taskLogPath); ok &&
			previous.Tool.ID == task.Tool.ID &&
			previous.Filename == task.RelPath &&
			previous.ToolArgs == task.ToolArgs {
			logger.Info().Msg("skipping: already completed")
			return 0, nil
		}
	}

	for _, fn := range []string{taskLogPath, toolLogPath, toolOutputPath, parserOutputPath, sarifOutputPath} {
		if err := os.Remove(fn); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: cannot clear old output %s: %v", errs.ErrIO, fn, err)
		}
	}

	var (
		result    *runtime.RunResult
		duration  float64
		startTime time.Time
		execErr   error
	)
	for attempt := 1; attempt <= retries; attempt++ {
		args := task.ToolArgs
		if args == "" {
			args = "no args"
		} else {
			args = "args: " + args
		}
		logger.Info().Int("attempt", attempt).Str("args", args).Msg("running tool")

		startTime = time.Now()
		result, execErr = e.Runner.Run(ctx, runtime.RunRequest{
			Tool:     task.Tool,
			AbsFn:    task.AbsPath,
			Mode:     task.Tool.Mode,
			ToolArgs: task.ToolArgs,
			Timeout:  time.Duration(task.Timeout) * time.Second,
			Main:     task.Settings.Main,
			SolcPath: task.SolcPath,
			CPUQuota: task.Settings.CPUQuota,
			MemLimit: task.Settings.MemLimit,
		})
		duration = time.Since(startTime).Seconds()
		if execErr == nil {
			logger.Info().Float64("duration", duration).Msg("tool finished")
			break
		}

		logger.Error().Err(execErr).Int("attempt", attempt).Msg("tool execution failed")
		if attempt == retries {
			return 0, fmt.Errorf("%w: %v", errs.ErrTransient, execErr)
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if previous, ok := readTaskLog(taskLogPath); ok {
		if task.RelPath != previous.Filename ||
			task.Tool.ID != previous.Tool.ID ||
			task.Tool.Mode != previous.Tool.Mode ||
			task.ToolArgs != previous.ToolArgs {
			return 0, fmt.Errorf("%w: result directory %s occupied by another task (%s/%s, %s)",
				errs.ErrStateCollision, task.ResultDir, previous.Tool.ID, previous.Tool.Mode, previous.Filename)
		}
	}

	taskLog := buildTaskLog(task, startTime, duration, result)
	if result.Logs != "" {
		if err := os.WriteFile(toolLogPath, []byte(result.Logs), 0o644); err != nil {
			return 0, fmt.Errorf("%w: %v", errs.ErrIO, err)
		}
	}
	if len(result.Output) > 0 {
		if err := os.WriteFile(toolOutputPath, result.Output, 0o644); err != nil {
			return 0, fmt.Errorf("%w: %v", errs.ErrIO, err)
		}
	}
	if err := writeJSON(taskLogPath, taskLog); err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}

	if task.Settings.JSON || task.Settings.SARIF {
		parsed, err := parser.Parse(task.Tool.ID, result.ExitCode, result.Logs, result.Output)
		if err != nil {
			logger.Warn().Err(err).Msg("parsing tool output failed")
		} else {
			if err := writeJSON(parserOutputPath, parsed); err != nil {
				return 0, fmt.Errorf("%w: %v", errs.ErrIO, err)
			}
			if task.Settings.SARIF {
				sarifLog := sarif.Sarify(task.Tool.ToolInfo(), task.RelPath, parsed.Findings)
				if err := writeJSON(sarifOutputPath, sarifLog); err != nil {
					return 0, fmt.Errorf("%w: %v", errs.ErrIO, err)
				}
			}
		}
	}

	return duration, nil
}

func buildTaskLog(task *types.Task, start time.Time, duration float64, result *runtime.RunResult) *types.TaskLog {
	toolLog := ""
	if result.Logs != "" {
		toolLog = config.ToolLogFile
	}
	toolOutput := ""
	if len(result.Output) > 0 {
		toolOutput = config.ToolOutputFile
	}
	return &types.TaskLog{
		Filename: task.RelPath,
		RunID:    task.Settings.RunID,
		Result: types.TaskResult{
			Start:    start.Unix(),
			Duration: duration,
			ExitCode: result.ExitCode,
			Logs:     toolLog,
			Output:   toolOutput,
		},
		Solc:     task.SolcVersion,
		Tool:     task.Tool.ToolInfo(),
		ToolArgs: task.ToolArgs,
		Platform: config.Platform(),
	}
}

func readTaskLog(path string) (*types.TaskLog, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var tl types.TaskLog
	if err := json.Unmarshal(data, &tl); err != nil {
		return nil, false
	}
	return &tl, true
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
