package solc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractContractNames_Multiple(t *testing.T) {
	src := []byte(`// SPDX-License-Identifier: MIT
pragma solidity ^0.8.0;

library SafeMath {}

abstract contract Base {}

contract Token is Base {}
`)
	names := ExtractContractNames(src)
	assert.Equal(t, []string{"SafeMath", "Base", "Token"}, names)
}

func TestExtractContractNames_None(t *testing.T) {
	assert.Empty(t, ExtractContractNames([]byte("pragma solidity ^0.8.0;\n")))
}
