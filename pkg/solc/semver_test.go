package solc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVersion_Caret(t *testing.T) {
	candidates := []string{"0.7.6", "0.8.0", "0.8.19", "0.8.20", "0.9.0"}

	v, err := ResolveVersion("^0.8.0", candidates)
	require.NoError(t, err)
	assert.Equal(t, "0.8.20", v)
}

func TestResolveVersion_Tilde(t *testing.T) {
	candidates := []string{"0.8.0", "0.8.1", "0.8.2", "0.9.0"}

	v, err := ResolveVersion("~0.8.0", candidates)
	require.NoError(t, err)
	assert.Equal(t, "0.8.2", v)
}

func TestResolveVersion_Range(t *testing.T) {
	candidates := []string{"0.4.26", "0.5.0", "0.5.17", "0.6.0"}

	v, err := ResolveVersion(">=0.5.0 <0.6.0", candidates)
	require.NoError(t, err)
	assert.Equal(t, "0.5.17", v)
}

func TestResolveVersion_Exact(t *testing.T) {
	candidates := []string{"0.8.19", "0.8.20"}

	v, err := ResolveVersion("=0.8.19", candidates)
	require.NoError(t, err)
	assert.Equal(t, "0.8.19", v)
}

func TestResolveVersion_BareIsCaret(t *testing.T) {
	candidates := []string{"0.8.0", "0.8.19", "0.9.0"}

	v, err := ResolveVersion("0.8.0", candidates)
	require.NoError(t, err)
	assert.Equal(t, "0.8.19", v)
}

func TestResolveVersion_NoMatch(t *testing.T) {
	_, err := ResolveVersion("^2.0.0", []string{"0.8.19"})
	assert.Error(t, err)
}

func TestExtractPragma(t *testing.T) {
	src := []byte("// SPDX-License-Identifier: MIT\npragma solidity ^0.8.0;\ncontract C {}\n")
	constraint, ok := ExtractPragma(src)
	require.True(t, ok)
	assert.Equal(t, "^0.8.0", constraint)
}

func TestExtractPragma_Missing(t *testing.T) {
	_, ok := ExtractPragma([]byte("contract C {}\n"))
	assert.False(t, ok)
}
