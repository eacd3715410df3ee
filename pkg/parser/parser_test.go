package parser

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/bastion/pkg/types"
)

func intPtr(n int) *int { return &n }

func TestGeneric_NonZeroExitIsFail(t *testing.T) {
	out, err := Generic("smartcheck", intPtr(1), "some log\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "generic", out.Parser.ID)
	require.Len(t, out.Fails, 1)
	assert.Contains(t, out.Fails[0], "1")
}

func TestGeneric_NilExitIsFail(t *testing.T) {
	out, err := Generic("smartcheck", nil, "", nil)
	require.NoError(t, err)
	require.Len(t, out.Fails, 1)
	assert.Contains(t, out.Fails[0], "unknown")
}

func TestGeneric_ScrapesErrorLines(t *testing.T) {
	logs := "starting up\nERROR: could not compile\nall good\n"
	out, err := Generic("smartcheck", intPtr(0), logs, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Fails)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "could not compile")
}

func TestParse_DispatchesToRegistered(t *testing.T) {
	Register("custom-tool", func(toolID string, exitCode *int, logs string, archive []byte) (*types.ParsedOutput, error) {
		return &types.ParsedOutput{Parser: types.ParserInfo{ID: "custom"}}, nil
	})

	out, err := Parse("custom-tool", intPtr(0), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", out.Parser.ID)
}

func TestParse_FallsBackToGeneric(t *testing.T) {
	out, err := Parse("some-unregistered-tool", intPtr(0), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "generic", out.Parser.ID)
}

func buildTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: 0o644}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return buf.Bytes()
}
