package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/discovery"
	"github.com/forgelabs/bastion/pkg/types"
)

type fakeResolver struct {
	version string
	path    string
	err     error
}

func (f *fakeResolver) GetVersion(pragma string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.version, nil
}

func (f *fakeResolver) GetPath(version string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

func writeContract(t *testing.T, dir, name, body string) (abs, rel string) {
	t.Helper()
	abs = filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(abs, []byte(body), 0o644))
	return abs, name
}

func baseSettings(root string) *types.Settings {
	return &types.Settings{
		ResultsRoot:      root,
		ResultDirPattern: config.DefaultResultDirPattern,
		SkipAfterNoArgs:  true,
	}
}

func solidityTool(id string, solcReq bool) *types.Tool {
	return &types.Tool{ID: id, Mode: types.ModeSolidity, Solc: solcReq, CommandTpl: "tool $FILENAME"}
}

func TestCollectTasks_BuildsOneTaskPerMatchingFileAndTool(t *testing.T) {
	dir := t.TempDir()
	abs, rel := writeContract(t, dir, "A.sol", "pragma solidity ^0.8.0;\ncontract A {}\n")

	settings := baseSettings(t.TempDir())
	resolver := &fakeResolver{version: "0.8.20", path: "/cache/0.8.20/solc"}
	p := New(resolver, config.NewSharedState())

	tasks, err := p.CollectTasks(
		[]discovery.File{{AbsPath: abs, RelPath: rel}},
		[]*types.Tool{solidityTool("slither", true)},
		settings,
	)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "0.8.20", tasks[0].SolcVersion)
	assert.Equal(t, "/cache/0.8.20/solc", tasks[0].SolcPath)
}

func TestCollectTasks_SkipsModeMismatch(t *testing.T) {
	dir := t.TempDir()
	abs, rel := writeContract(t, dir, "A.sol", "pragma solidity ^0.8.0;\ncontract A {}\n")

	settings := baseSettings(t.TempDir())
	p := New(&fakeResolver{}, config.NewSharedState())

	bytecodeTool := &types.Tool{ID: "mythril", Mode: types.ModeBytecode, CommandTpl: "tool $FILENAME"}
	tasks, err := p.CollectTasks([]discovery.File{{AbsPath: abs, RelPath: rel}}, []*types.Tool{bytecodeTool}, settings)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCollectTasks_SkipsWhenNoPragma(t *testing.T) {
	dir := t.TempDir()
	abs, rel := writeContract(t, dir, "A.sol", "contract A {}\n")

	settings := baseSettings(t.TempDir())
	p := New(&fakeResolver{}, config.NewSharedState())

	tasks, err := p.CollectTasks([]discovery.File{{AbsPath: abs, RelPath: rel}}, []*types.Tool{solidityTool("slither", true)}, settings)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCollectTasks_MainRequiresMatchingContractName(t *testing.T) {
	dir := t.TempDir()
	abs, rel := writeContract(t, dir, "A.sol", "pragma solidity ^0.8.0;\ncontract B {}\n")

	settings := baseSettings(t.TempDir())
	settings.Main = true
	p := New(&fakeResolver{version: "0.8.20", path: "/solc"}, config.NewSharedState())

	_, err := p.CollectTasks([]discovery.File{{AbsPath: abs, RelPath: rel}}, []*types.Tool{solidityTool("slither", true)}, settings)
	assert.Error(t, err)
}

func TestCollectTasks_DisambiguatesCollidingResultDirs(t *testing.T) {
	dir := t.TempDir()
	abs1, rel1 := writeContract(t, dir, "A.sol", "pragma solidity ^0.8.0;\ncontract A {}\n")
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	abs2, rel2 := writeContract(t, sub, "A.sol", "pragma solidity ^0.8.0;\ncontract A {}\n")

	settings := baseSettings(t.TempDir())
	settings.ResultDirPattern = "$TOOL/$MODE/$FILEBASE" // collapses directory structure on purpose
	p := New(&fakeResolver{version: "0.8.20", path: "/solc"}, config.NewSharedState())

	tasks, err := p.CollectTasks(
		[]discovery.File{{AbsPath: abs1, RelPath: rel1}, {AbsPath: abs2, RelPath: rel2}},
		[]*types.Tool{solidityTool("slither", true)},
		settings,
	)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.NotEqual(t, tasks[0].ResultDir, tasks[1].ResultDir)
}

func TestCollectSingleTask_SkipsExactDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	abs, rel := writeContract(t, dir, "A.sol", "pragma solidity ^0.8.0;\ncontract A {}\n")

	state := config.NewSharedState()
	settings := baseSettings(t.TempDir())
	p := New(&fakeResolver{version: "0.8.20", path: "/solc"}, state)

	tool := solidityTool("mythril", true)
	first, err := p.CollectSingleTask(tool, abs, rel, settings, "--modules ExternalCalls", 0)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := p.CollectSingleTask(tool, abs, rel, settings, "--modules ExternalCalls", 0)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestCollectSingleTask_SkipsSubsetOfPriorArgs(t *testing.T) {
	dir := t.TempDir()
	abs, rel := writeContract(t, dir, "A.sol", "pragma solidity ^0.8.0;\ncontract A {}\n")

	state := config.NewSharedState()
	settings := baseSettings(t.TempDir())
	p := New(&fakeResolver{version: "0.8.20", path: "/solc"}, state)

	tool := solidityTool("mythril", true)
	_, err := p.CollectSingleTask(tool, abs, rel, settings, "--modules ExternalCalls,Exceptions", 0)
	require.NoError(t, err)

	subset, err := p.CollectSingleTask(tool, abs, rel, settings, "--modules ExternalCalls", 0)
	require.NoError(t, err)
	assert.Nil(t, subset)
}

func TestCollectSingleTask_SkipAfterNoArgsBlocksFlaggedVariant(t *testing.T) {
	dir := t.TempDir()
	abs, rel := writeContract(t, dir, "A.sol", "pragma solidity ^0.8.0;\ncontract A {}\n")

	state := config.NewSharedState()
	settings := baseSettings(t.TempDir())
	settings.SkipAfterNoArgs = true
	p := New(&fakeResolver{version: "0.8.20", path: "/solc"}, state)

	tool := solidityTool("mythril", true)
	_, err := p.CollectSingleTask(tool, abs, rel, settings, "", 0)
	require.NoError(t, err)

	blocked, err := p.CollectSingleTask(tool, abs, rel, settings, "--modules ExternalCalls", 0)
	require.NoError(t, err)
	assert.Nil(t, blocked)
}

func TestCollectSingleTask_UnresolvedSolcSkipsWithoutError(t *testing.T) {
	dir := t.TempDir()
	abs, rel := writeContract(t, dir, "A.sol", "pragma solidity ^99.0.0;\ncontract A {}\n")

	state := config.NewSharedState()
	settings := baseSettings(t.TempDir())
	p := New(&fakeResolver{err: assertError{}}, state)

	tool := solidityTool("mythril", true)
	task, err := p.CollectSingleTask(tool, abs, rel, settings, "", 0)
	require.NoError(t, err)
	assert.Nil(t, task)
}

type assertError struct{}

func (assertError) Error() string { return "no matching solc version" }
