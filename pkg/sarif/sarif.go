// Package sarif formats a ParsedOutput as a SARIF 2.1.0 log, the artifact
// named as SARIFOutputFile in pkg/config (sb.cfg.SARIF_OUTPUT in
// original_source/sb/cfg.py).
package sarif

import "github.com/forgelabs/bastion/pkg/types"

const schemaURL = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
const version = "2.1.0"

// Log is the top-level SARIF document.
type Log struct {
	Schema  string `json:"$schema"`
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run is one tool's analysis run.
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

// Tool identifies the analyzer that produced a run.
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver carries the tool's name/version/rule catalog.
type Driver struct {
	Name            string `json:"name"`
	Version         string `json:"version,omitempty"`
	InformationURI  string `json:"informationUri,omitempty"`
	Rules           []Rule `json:"rules,omitempty"`
}

// Rule describes one distinct finding name as a SARIF reporting descriptor.
type Rule struct {
	ID string `json:"id"`
}

// Result is one finding rendered as a SARIF result.
type Result struct {
	RuleID    string     `json:"ruleId"`
	Level     string     `json:"level"`
	Message   Message    `json:"message"`
	Locations []Location `json:"locations,omitempty"`
}

// Message is a SARIF plain-text message.
type Message struct {
	Text string `json:"text"`
}

// Location points at the physical source location of a finding.
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation names a file and, optionally, a line region.
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           *Region          `json:"region,omitempty"`
}

// ArtifactLocation names the analyzed file.
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region is a single-line source region.
type Region struct {
	StartLine int `json:"startLine"`
}

// Sarify renders tool's findings against relPath as a SARIF log with one
// run. Every distinct finding name becomes a rule; findings carry no
// severity from the parser layer, so every result is emitted at "warning".
func Sarify(tool types.ToolInfo, relPath string, findings []types.Finding) Log {
	ruleSeen := make(map[string]bool)
	var rules []Rule
	var results []Result

	for _, f := range findings {
		if !ruleSeen[f.Name] {
			ruleSeen[f.Name] = true
			rules = append(rules, Rule{ID: f.Name})
		}

		result := Result{
			RuleID:  f.Name,
			Level:   "warning",
			Message: Message{Text: f.Name},
		}
		if f.Line > 0 {
			result.Locations = []Location{{
				PhysicalLocation: PhysicalLocation{
					ArtifactLocation: ArtifactLocation{URI: relPath},
					Region:           &Region{StartLine: f.Line},
				},
			}}
		} else {
			result.Locations = []Location{{
				PhysicalLocation: PhysicalLocation{
					ArtifactLocation: ArtifactLocation{URI: relPath},
				},
			}}
		}
		results = append(results, result)
	}

	return Log{
		Schema:  schemaURL,
		Version: version,
		Runs: []Run{{
			Tool: Tool{Driver: Driver{
				Name:    tool.ID,
				Version: tool.Version,
				Rules:   rules,
			}},
			Results: results,
		}},
	}
}
