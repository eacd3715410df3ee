package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const echidnaFixture = `{
  "Contract": {
    "errors": [
      {
        "title": "assertion-failed",
        "description": "failed in /sb/contracts/Vuln.sol#12-34",
        "severity": "high"
      },
      {
        "title": "property-failed",
        "description": "no location here",
        "severity": "medium"
      }
    ]
  }
}`

func TestParseEchidna_ExtractsFindingsAndLines(t *testing.T) {
	archive := buildTar(t, "echidna.json", []byte(echidnaFixture))

	out, err := parseEchidna("echidna", intPtr(0), "", archive)
	require.NoError(t, err)
	require.Len(t, out.Findings, 2)

	byName := map[string]int{}
	for _, f := range out.Findings {
		byName[f.Name] = f.Line
	}
	assert.Equal(t, 12, byName["assertion-failed"])
	assert.Equal(t, 0, byName["property-failed"])
}

func TestParseEchidna_MissingArchiveFailsGracefully(t *testing.T) {
	out, err := parseEchidna("echidna", intPtr(0), "", nil)
	require.NoError(t, err)
	assert.Empty(t, out.Findings)
}

func TestParseEchidna_CorruptArchiveRecordsFail(t *testing.T) {
	out, err := parseEchidna("echidna", intPtr(0), "", []byte("not a tar"))
	require.NoError(t, err)
	assert.NotEmpty(t, out.Fails)
}
