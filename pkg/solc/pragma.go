package solc

import (
	"regexp"
	"strings"
)

var pragmaRe = regexp.MustCompile(`pragma\s+solidity\s+([^;]+);`)

var contractNameRe = regexp.MustCompile(`(?m)^\s*(?:abstract\s+)?(?:contract|library|interface)\s+(\w+)`)

// ExtractPragma returns the first "pragma solidity <constraint>;" found in
// source, trimmed, or ok=false if the source declares none.
func ExtractPragma(source []byte) (constraint string, ok bool) {
	m := pragmaRe.FindSubmatch(source)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(string(m[1])), true
}

// ExtractContractNames returns every contract/library/interface name
// declared in source, in declaration order. Used by the planner's -main
// check, which requires a file's basename to match one of its declared
// contracts.
func ExtractContractNames(source []byte) []string {
	matches := contractNameRe.FindAllSubmatch(source, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, string(m[1]))
	}
	return names
}
