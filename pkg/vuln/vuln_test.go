package vuln

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forgelabs/bastion/pkg/types"
)

func TestClassify_DropsUnknownCategories(t *testing.T) {
	parsed := &types.ParsedOutput{
		Findings: []types.Finding{
			{Name: "reentrancy-eth", Categories: []string{"reentrancy"}},
			{Name: "totally-made-up", Categories: []string{"NOT_A_REAL_CATEGORY"}},
			{Name: "mixed", Categories: []string{"overflow", "NOT_A_REAL_CATEGORY"}},
		},
	}

	reports := Classify(parsed)

	assert.Len(t, reports, 2)
	assert.Equal(t, []string{"REENTRANCY"}, reports[0].Categories)
	assert.Equal(t, []string{"OVERFLOW"}, reports[1].Categories)
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Reentrancy))
	assert.False(t, Valid(Category("NOT_REAL")))
}
