package sarif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/bastion/pkg/types"
)

func TestSarify_OneRunPerTool(t *testing.T) {
	tool := types.ToolInfo{ID: "slither", Version: "0.10.0"}
	findings := []types.Finding{
		{Name: "reentrancy-eth", Line: 12},
		{Name: "reentrancy-eth", Line: 42},
		{Name: "unchecked-transfer"},
	}

	log := Sarify(tool, "contracts/A.sol", findings)

	require.Len(t, log.Runs, 1)
	run := log.Runs[0]
	assert.Equal(t, "slither", run.Tool.Driver.Name)
	assert.Len(t, run.Tool.Driver.Rules, 2) // deduped by finding name
	require.Len(t, run.Results, 3)
	assert.Equal(t, 12, run.Results[0].Locations[0].PhysicalLocation.Region.StartLine)
	assert.Nil(t, run.Results[2].Locations[0].PhysicalLocation.Region)
}

func TestSarify_Empty(t *testing.T) {
	log := Sarify(types.ToolInfo{ID: "mythril"}, "A.sol", nil)
	assert.Equal(t, "2.1.0", log.Version)
	assert.Empty(t, log.Runs[0].Results)
}
