package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/bastion/pkg/runtime"
	"github.com/forgelabs/bastion/pkg/types"
)

type fakeRunner struct {
	result *runtime.RunResult
	err    error
	calls  int
	onRun  func()
}

func (f *fakeRunner) Run(ctx context.Context, req runtime.RunRequest) (*runtime.RunResult, error) {
	f.calls++
	if f.onRun != nil {
		f.onRun()
	}
	return f.result, f.err
}

func zero() *int {
	n := 0
	return &n
}

func newTask(t *testing.T, resultDir string) *types.Task {
	t.Helper()
	return &types.Task{
		AbsPath:   "/contracts/A.sol",
		RelPath:   "A.sol",
		ResultDir: resultDir,
		Tool:      &types.Tool{ID: "slither", Mode: types.ModeSolidity},
		Settings:  &types.Settings{RunID: "run-1"},
	}
}

func TestExecute_WritesTaskLog(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{result: &runtime.RunResult{ExitCode: zero(), Logs: "all good\n"}}
	exec := New(runner)

	duration, err := exec.Execute(context.Background(), newTask(t, dir))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, duration, 0.0)

	data, err := os.ReadFile(filepath.Join(dir, "smartbugs.json"))
	require.NoError(t, err)
	var tl types.TaskLog
	require.NoError(t, json.Unmarshal(data, &tl))
	assert.Equal(t, "slither", tl.Tool.ID)
	assert.Equal(t, "A.sol", tl.Filename)

	logData, err := os.ReadFile(filepath.Join(dir, "result.log"))
	require.NoError(t, err)
	assert.Equal(t, "all good\n", string(logData))
}

func TestExecute_SkipsCompletedTaskUnlessOverwrite(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{result: &runtime.RunResult{ExitCode: zero()}}
	exec := New(runner)
	task := newTask(t, dir)

	_, err := exec.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)

	_, err = exec.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls, "second run should be a no-op skip")
}

func TestExecute_OverwriteReruns(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{result: &runtime.RunResult{ExitCode: zero()}}
	exec := New(runner)
	task := newTask(t, dir)

	_, err := exec.Execute(context.Background(), task)
	require.NoError(t, err)

	task.Settings.Overwrite = true
	_, err = exec.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 2, runner.calls)
}

func TestExecute_DetectsResultDirCollision(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{result: &runtime.RunResult{ExitCode: zero()}}
	exec := New(runner)

	// A differently-keyed task writes its log into the same result
	// directory while this task's tool is running.
	runner.onRun = func() {
		data, err := json.Marshal(types.TaskLog{
			Filename: "A.sol",
			Tool:     types.ToolInfo{ID: "mythril", Mode: types.ModeSolidity},
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "smartbugs.json"), data, 0o644))
	}

	_, err := exec.Execute(context.Background(), newTask(t, dir))
	assert.Error(t, err)
}

func TestExecute_ParsesAndWritesSARIFWhenRequested(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{result: &runtime.RunResult{ExitCode: zero(), Logs: "clean run\n"}}
	exec := New(runner)

	task := newTask(t, dir)
	task.Settings.JSON = true
	task.Settings.SARIF = true

	_, err := exec.Execute(context.Background(), task)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "result.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "result.sarif"))
	require.NoError(t, err)
}
