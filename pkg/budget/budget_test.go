package budget

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/discovery"
	"github.com/forgelabs/bastion/pkg/planner"
	"github.com/forgelabs/bastion/pkg/types"
)

type fakeSolc struct{}

func (fakeSolc) GetVersion(pragma string) (string, error) { return "0.8.20", nil }
func (fakeSolc) GetPath(version string) (string, error)   { return "/cache/solc", nil }

func writeToolConfig(t *testing.T, toolsHome, name, body string) {
	t.Helper()
	dir := filepath.Join(toolsHome, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ToolConfigFile), []byte(body), 0o644))
}

func setupToolsHome(t *testing.T) {
	t.Helper()
	toolsHome := t.TempDir()
	writeToolConfig(t, toolsHome, "all", "alias:\n  - toola\n  - toolb\n  - sfuzz\n")
	writeToolConfig(t, toolsHome, "toola", "image: img/toola\ncommand: \"toola $FILENAME\"\n")
	writeToolConfig(t, toolsHome, "toolb", "image: img/toolb\ncommand: \"toolb $FILENAME\"\n")
	writeToolConfig(t, toolsHome, "sfuzz", "image: img/sfuzz\ncommand: \"sfuzz $FILENAME\"\n")

	prev := config.ToolsHome
	config.ToolsHome = toolsHome
	t.Cleanup(func() { config.ToolsHome = prev })
}

func writeContract(t *testing.T, dir, name string) discovery.File {
	t.Helper()
	abs := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(abs, []byte("pragma solidity ^0.8.0;\ncontract A {}\n"), 0o644))
	return discovery.File{AbsPath: abs, RelPath: name}
}

func newPhase(t *testing.T) (*Phase, string) {
	setupToolsHome(t)
	dir := t.TempDir()
	file := writeContract(t, dir, "A.sol")

	resultsRoot := t.TempDir()
	settings := &types.Settings{
		ResultsRoot:      resultsRoot,
		ResultDirPattern: config.DefaultResultDirPattern,
		Processes:        1,
		RunID:            "run-1",
	}
	p := planner.New(fakeSolc{}, config.NewSharedState())
	phase := NewPhase(p, settings, []discovery.File{file}, nil)
	return phase, file.AbsPath
}

func TestPlanBudgetTasks_SchedulesMissingCoverageTools(t *testing.T) {
	phase, _ := newPhase(t)

	tasks, err := phase.PlanBudgetTasks(30 * time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, tasks)

	seen := make(map[string]bool)
	for _, task := range tasks {
		seen[task.Tool.ID] = true
	}
	assert.True(t, seen["toola"] || seen["toolb"] || seen["sfuzz"])
}

func TestPlanBudgetTasks_NoTimeReturnsEmpty(t *testing.T) {
	phase, _ := newPhase(t)

	tasks, err := phase.PlanBudgetTasks(0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestPlanBudgetTasks_SkipsAlreadyCoveredTool(t *testing.T) {
	phase, absfn := newPhase(t)
	phase.Planner.State.AddToolKey(absfn, "toola|")
	phase.Planner.State.AddToolKey(absfn, "toolb|")
	phase.Planner.State.AddToolKey(absfn, "sfuzz|")

	tasks, err := phase.PlanBudgetTasks(30 * time.Second)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRun_StopsWhenNoTasksPlanned(t *testing.T) {
	phase, absfn := newPhase(t)
	phase.Planner.State.AddToolKey(absfn, "toola|")
	phase.Planner.State.AddToolKey(absfn, "toolb|")
	phase.Planner.State.AddToolKey(absfn, "sfuzz|")

	called := false
	phase.RunBatch = func(tasks []*types.Task) (time.Duration, error) {
		called = true
		return 0, nil
	}

	elapsed, err := phase.Run(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), elapsed)
	assert.False(t, called)
}

func TestRun_RestoresDynamicSettingAfterCompletion(t *testing.T) {
	phase, _ := newPhase(t)
	phase.Settings.Dynamic = true
	phase.RunBatch = func(tasks []*types.Task) (time.Duration, error) {
		return 5 * time.Second, nil
	}

	_, err := phase.Run(5 * time.Second)
	require.NoError(t, err)
	assert.True(t, phase.Settings.Dynamic)
}

func TestCollectCompletedKeys_ReadsMatchingRunArtifacts(t *testing.T) {
	dir := t.TempDir()
	file := writeContract(t, dir, "A.sol")

	resultsRoot := t.TempDir()
	taskDir := filepath.Join(resultsRoot, "toola", "solidity", "run-1", "A")
	require.NoError(t, os.MkdirAll(taskDir, 0o755))
	logBody := `{"filename":"A.sol","tool":{"id":"toola"},"tool_args":""}`
	require.NoError(t, os.WriteFile(filepath.Join(taskDir, config.TaskLogFile), []byte(logBody), 0o644))

	completed, err := CollectCompletedKeys(resultsRoot, "run-1", []discovery.File{file})
	require.NoError(t, err)
	require.Contains(t, completed, file.AbsPath)
	assert.True(t, completed[file.AbsPath]["toola|"])
}
