package reparse

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/types"
)

func writeTaskLog(t *testing.T, dir string, tl types.TaskLog) {
	t.Helper()
	data, err := json.Marshal(tl)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.TaskLogFile), data, 0o644))
}

func exitCode(n int) *int { return &n }

func TestReparse_WritesParsedOutputFromLogOnly(t *testing.T) {
	dir := t.TempDir()
	writeTaskLog(t, dir, types.TaskLog{
		Filename: "A.sol",
		Tool:     types.ToolInfo{ID: "unregistered-tool"},
		Result:   types.TaskResult{ExitCode: exitCode(0)},
		ToolArgs: "--fast",
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ToolLogFile), []byte("no issues found\n"), 0o644))

	parsed, err := Reparse(dir, false)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, "--fast", parsed.ToolArgs)

	raw, err := os.ReadFile(filepath.Join(dir, config.ParserOutputFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tool_args"`)

	_, err = os.Stat(filepath.Join(dir, config.SARIFOutputFile))
	assert.True(t, os.IsNotExist(err))
}

func TestReparse_WritesSarifWhenRequested(t *testing.T) {
	dir := t.TempDir()
	writeTaskLog(t, dir, types.TaskLog{
		Filename: "A.sol",
		Tool:     types.ToolInfo{ID: "unregistered-tool"},
		Result:   types.TaskResult{ExitCode: exitCode(0)},
	})

	parsed, err := Reparse(dir, true)
	require.NoError(t, err)
	require.NotNil(t, parsed)

	_, err = os.Stat(filepath.Join(dir, config.SARIFOutputFile))
	require.NoError(t, err)
}

func TestReparse_ClearsStaleOutputsBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	writeTaskLog(t, dir, types.TaskLog{
		Filename: "A.sol",
		Tool:     types.ToolInfo{ID: "unregistered-tool"},
		Result:   types.TaskResult{ExitCode: exitCode(0)},
	})
	stalePath := filepath.Join(dir, config.ParserOutputFile)
	require.NoError(t, os.WriteFile(stalePath, []byte("stale"), 0o644))

	_, err := Reparse(dir, false)
	require.NoError(t, err)

	raw, err := os.ReadFile(stalePath)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(raw))
}

func TestReparse_MissingTaskLogReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := Reparse(dir, false)
	assert.Error(t, err)
}

func TestDiscoverResultDirs_FindsAndDedupesDirectories(t *testing.T) {
	root := t.TempDir()
	dirA := filepath.Join(root, "toola", "solidity", "A")
	dirB := filepath.Join(root, "toolb", "solidity", "B")
	require.NoError(t, os.MkdirAll(dirA, 0o755))
	require.NoError(t, os.MkdirAll(dirB, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dirA, config.TaskLogFile), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, config.TaskLogFile), []byte("{}"), 0o644))

	dirs, err := DiscoverResultDirs([]string{root, root})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{dirA, dirB}, dirs)
}
