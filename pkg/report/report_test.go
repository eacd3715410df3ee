package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/types"
)

func writeResultDir(t *testing.T, dir string, tl types.TaskLog, parsed types.ParsedOutput) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	tlData, err := json.Marshal(tl)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.TaskLogFile), tlData, 0o644))
	pData, err := json.Marshal(parsed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ParserOutputFile), pData, 0o644))
}

func zero() *int { n := 0; return &n }

func TestWrite_OneRowPerDirectory(t *testing.T) {
	root := t.TempDir()
	dirA := filepath.Join(root, "slither", "solidity", "A")
	writeResultDir(t, dirA,
		types.TaskLog{
			Filename: "A.sol", RunID: "run-1",
			Tool:   types.ToolInfo{ID: "slither", Mode: types.ModeSolidity},
			Result: types.TaskResult{Start: 100, Duration: 1.5, ExitCode: zero()},
		},
		types.ParsedOutput{
			Parser: types.ParserInfo{Version: "1.0"},
			Findings: []types.Finding{
				{Name: "Reentrancy Bug", Line: 10, Categories: []string{"REENTRANCY"}},
			},
			Infos: []string{"note"},
		},
	)

	dirs, err := DiscoverResultDirs([]string{root})
	require.NoError(t, err)
	require.Len(t, dirs, 1)

	var buf, warnings bytes.Buffer
	require.NoError(t, Write(&buf, dirs, AllFields, ListExcel, &warnings))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "A.sol")
	assert.Contains(t, lines[1], "slither")
	assert.Contains(t, lines[1], "reentrancy_bug@10")
	assert.Contains(t, lines[1], "REENTRANCY@10")
	assert.Empty(t, warnings.String())
}

func TestWrite_SkipsUnparsedDirectoryWithWarning(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "slither", "solidity", "A")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	tlData, _ := json.Marshal(types.TaskLog{Filename: "A.sol"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.TaskLogFile), tlData, 0o644))

	var buf, warnings bytes.Buffer
	require.NoError(t, Write(&buf, []string{dir}, AllFields, ListExcel, &warnings))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 1) // header only
	assert.Contains(t, warnings.String(), "cannot read parsed output")
}

func TestList2Postgres_QuotesReservedCharacters(t *testing.T) {
	assert.Equal(t, `{a,b}`, list2postgres([]string{"a", "b"}))
	assert.Equal(t, `{"a,b"}`, list2postgres([]string{"a,b"}))
}

func TestList2Excel_QuotesReservedCharacters(t *testing.T) {
	assert.Equal(t, "a,b", list2excel([]string{"a", "b"}))
	assert.Equal(t, `"a,b"`, list2excel([]string{"a,b"}))
}

func TestStr2Label_NormalizesToLowerSnakeCase(t *testing.T) {
	assert.Equal(t, "reentrancy_bug", str2label("Reentrancy Bug"))
	assert.Equal(t, "unchecked_call", str2label("  Unchecked-Call!! "))
}
