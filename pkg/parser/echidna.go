package parser

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/forgelabs/bastion/pkg/types"
)

var echidnaLocationRe = regexp.MustCompile(`/sb/(.*?)#([0-9-]*)`)

// echidnaResult is one entry of a contract's "errors" list in echidna.json.
type echidnaResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// parseEchidna reads echidna.json out of the output archive and turns its
// per-contract error lists into findings. Direct port of
// original_source/tools/echidna/parser.py's parse().
func parseEchidna(toolID string, exitCode *int, logs string, archive []byte) (*types.ParsedOutput, error) {
	errorsList, failsList := errorsFails(exitCode, logs)

	contracts, err := readEchidnaArchive(archive)
	if err != nil {
		failsList = append(failsList, "Error parsing Echidna results: "+err.Error())
		contracts = nil
	}

	var findings []types.Finding
	for _, results := range contracts {
		for _, v := range results {
			finding := types.Finding{Name: nonEmpty(v.Title, "Unknown Issue")}
			if m := echidnaLocationRe.FindStringSubmatch(v.Description); m != nil {
				finding.Line = parseEchidnaLine(m[2])
			}
			findings = append(findings, finding)
		}
	}

	return &types.ParsedOutput{
		Parser:   types.ParserInfo{ID: "echidna"},
		Findings: findings,
		Errors:   errorsList,
		Fails:    failsList,
	}, nil
}

func readEchidnaArchive(archive []byte) (map[string][]echidnaResult, error) {
	if len(archive) == 0 {
		return nil, nil
	}
	tr := tar.NewReader(bytes.NewReader(archive))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name != "echidna.json" {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		var raw map[string]struct {
			Errors []echidnaResult `json:"errors"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		out := make(map[string][]echidnaResult, len(raw))
		for contract, v := range raw {
			out[contract] = v.Errors
		}
		return out, nil
	}
	return nil, nil
}

func parseEchidnaLine(s string) int {
	first := strings.SplitN(s, "-", 2)[0]
	n, err := strconv.Atoi(first)
	if err != nil {
		return 0
	}
	return n
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
