package runtime

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/bastion/pkg/types"
)

func TestParseMemLimit(t *testing.T) {
	cases := map[string]int64{
		"512m": 512 * 1024 * 1024,
		"2g":   2 * 1024 * 1024 * 1024,
		"100k": 100 * 1024,
	}
	for in, want := range cases {
		got, err := parseMemLimit(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseMemLimit_Empty(t *testing.T) {
	got, err := parseMemLimit("")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestProcessArgs_CommandWinsOverEntrypoint(t *testing.T) {
	args := processArgs("slither /sb/A.sol", "")
	assert.Equal(t, []string{"/bin/sh", "-c", "slither /sb/A.sol"}, args)
}

func TestProcessArgs_Entrypoint(t *testing.T) {
	args := processArgs("", "mythril analyze /sb/A.sol")
	assert.Equal(t, []string{"mythril", "analyze", "/sb/A.sol"}, args)
}

func TestRenderExec_CommandTemplate(t *testing.T) {
	tool := &types.Tool{ID: "slither", CommandTpl: "slither $FILENAME --timeout $TIMEOUT"}
	req := RunRequest{Tool: tool, AbsFn: "/contracts/A.sol", Timeout: 30 * time.Second}

	command, entrypoint, err := renderExec(req)
	require.NoError(t, err)
	assert.Empty(t, entrypoint)
	assert.Equal(t, "slither /sb/A.sol --timeout 30", command)
}

func TestRenderExec_FallsBackToEntrypoint(t *testing.T) {
	tool := &types.Tool{ID: "mythril", EntrypointTpl: "myth analyze $FILENAME"}
	req := RunRequest{Tool: tool, AbsFn: "/contracts/A.sol"}

	command, entrypoint, err := renderExec(req)
	require.NoError(t, err)
	assert.Empty(t, command)
	assert.Equal(t, "myth analyze /sb/A.sol", entrypoint)
}

func TestStageInputs_SanitizesHex(t *testing.T) {
	dir := t.TempDir()
	hexFile := filepath.Join(dir, "contract.hex")
	require.NoError(t, os.WriteFile(hexFile, []byte("0x6080604052\n"), 0o644))

	sbdir, err := stageInputs(RunRequest{
		Tool:  &types.Tool{ID: "mythril"},
		AbsFn: hexFile,
		Mode:  types.ModeBytecode,
	})
	require.NoError(t, err)
	defer os.RemoveAll(sbdir)

	data, err := os.ReadFile(filepath.Join(sbdir, "contract.hex"))
	require.NoError(t, err)
	assert.Equal(t, "6080604052", string(data))

	info, err := os.Stat(filepath.Join(sbdir, "bin"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStageInputs_CopiesSolidityAsIs(t *testing.T) {
	dir := t.TempDir()
	solFile := filepath.Join(dir, "A.sol")
	require.NoError(t, os.WriteFile(solFile, []byte("pragma solidity ^0.8.0;"), 0o644))

	sbdir, err := stageInputs(RunRequest{
		Tool:  &types.Tool{ID: "slither"},
		AbsFn: solFile,
		Mode:  types.ModeSolidity,
	})
	require.NoError(t, err)
	defer os.RemoveAll(sbdir)

	data, err := os.ReadFile(filepath.Join(sbdir, "A.sol"))
	require.NoError(t, err)
	assert.Equal(t, "pragma solidity ^0.8.0;", string(data))
}

func TestReadOutput_DirectoryBecomesTar(t *testing.T) {
	sbdir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(sbdir, "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sbdir, "out", "echidna.json"), []byte(`{"ok":true}`), 0o644))

	data, err := readOutput(sbdir, "/sb/out")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	tr := tar.NewReader(bytes.NewReader(data))
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Contains(t, hdr.Name, "echidna.json")
	content, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(content))
}

func TestReadOutput_MissingPathReturnsNil(t *testing.T) {
	sbdir := t.TempDir()
	data, err := readOutput(sbdir, "/sb/nope")
	require.NoError(t, err)
	assert.Nil(t, data)
}
