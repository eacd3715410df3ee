// Package vuln defines the closed set of finding categories the router
// consumes and a Classify helper filtering a parser's findings down to the
// category tags in that set. Grounded on original_source/sb/analysis.py's
// analyze_parsed_results/VulnerabilityAnalyzer usage pattern: an analyzer
// keyed by parser/tool id producing {name, categories} records.
package vuln

import (
	"strings"

	"github.com/forgelabs/bastion/pkg/types"
)

// Category is one of the closed set of vulnerability tags named in spec.md
// §6, used as VULN_TOOL_MAP keys in pkg/router.
type Category string

const (
	Reentrancy                 Category = "REENTRANCY"
	UnlockedEther              Category = "UNLOCKED_ETHER"
	FrontRunning               Category = "FRONT_RUNNING"
	Suicidal                   Category = "SUICIDAL"
	Prodigal                   Category = "PRODIGAL"
	GreedyContract             Category = "GREEDY_CONTRACT"
	ArbitrarySend              Category = "ARBITRARY_SEND"
	Overflow                   Category = "OVERFLOW"
	Underflow                  Category = "UNDERFLOW"
	UninitializedStorage       Category = "UNINITIALIZED_STORAGE"
	UninitializedStoragePtr    Category = "UNINITIALIZED_STORAGE_POINTER"
	LowLevelCall               Category = "LOW_LEVEL_CALL"
	Delegatecall               Category = "DELEGATECALL"
	Selfdestruct               Category = "SELFDESTRUCT"
	AssertViolation            Category = "ASSERT_VIOLATION"
	WriteToArbitraryStorage    Category = "WRITE_TO_ARBITRARY_STORAGE"
	BlockDependence            Category = "BLOCK_DEPENDENCE"
	WeakRandomness             Category = "WEAK_RANDOMNESS"
	VariableShadowing          Category = "VARIABLE_SHADOWING"
	DeprecatedFunction         Category = "DEPRECATED_FUNCTION"
	UnusedStateVariable        Category = "UNUSED_STATE_VARIABLE"
	StrictBalanceEquality      Category = "STRICT_BALANCE_EQUALITY"
	ArbitraryJump              Category = "ARBITRARY_JUMP"
	DosGasLimit                Category = "DOS_GAS_LIMIT"
	Leak                       Category = "LEAK"
	OutdatedCompiler           Category = "OUTDATED_COMPILER"
	VersionPragma              Category = "VERSION_PRAGMA"
)

// All is the closed enum in declaration order, useful for validation and
// exhaustiveness checks.
var All = []Category{
	Reentrancy, UnlockedEther, FrontRunning, Suicidal, Prodigal, GreedyContract,
	ArbitrarySend, Overflow, Underflow, UninitializedStorage, UninitializedStoragePtr,
	LowLevelCall, Delegatecall, Selfdestruct, AssertViolation, WriteToArbitraryStorage,
	BlockDependence, WeakRandomness, VariableShadowing, DeprecatedFunction,
	UnusedStateVariable, StrictBalanceEquality, ArbitraryJump, DosGasLimit, Leak,
	OutdatedCompiler, VersionPragma,
}

// Valid reports whether c is one of the closed categories.
func Valid(c Category) bool {
	for _, k := range All {
		if k == c {
			return true
		}
	}
	return false
}

// Classify turns a tool's raw parsed findings into VulnReports, dropping
// (with the caller expected to log) any category tag a finding carries that
// isn't in the closed enum. Classify reads only the Category tags already
// on each finding and does not derive categories from finding names; the
// parsers in pkg/parser (Generic and echidna) attach no tags, so their
// findings produce no reports.
func Classify(parsed *types.ParsedOutput) []types.VulnReport {
	if parsed == nil {
		return nil
	}
	out := make([]types.VulnReport, 0, len(parsed.Findings))
	for _, f := range parsed.Findings {
		var cats []string
		for _, c := range f.Categories {
			if Valid(Category(strings.ToUpper(c))) {
				cats = append(cats, strings.ToUpper(c))
			}
		}
		if len(cats) == 0 {
			continue
		}
		out = append(out, types.VulnReport{Name: f.Name, Categories: cats})
	}
	return out
}
