// Package discovery resolves glob patterns into the set of contract files a
// run analyzes. Grounded on original_source/sb/smartbugs.py's collect_files:
// root/pattern pairs, ".sbd" list files expanding to newline-delimited
// sub-patterns, and dedup by absolute path. Uses
// github.com/bmatcuk/doublestar/v4 for recursive "**" glob matching, the Go
// analogue of Python's glob.glob(..., recursive=True).
package discovery

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/forgelabs/bastion/pkg/errs"
)

// File is one discovered contract file.
type File struct {
	AbsPath string // absolute, cleaned path
	RelPath string // path relative to root
}

// Collect expands patterns (evaluated relative to root) into a
// deduplicated, sorted list of contract files. A pattern ending in ".sbd"
// names a list file: each non-empty, non-comment line is itself a pattern,
// expanded recursively. Only files ending in .sol, .hex, or .rt.hex survive
// the final filter.
func Collect(root string, patterns []string) ([]File, error) {
	seen := make(map[string]bool)
	var out []File

	if err := collectInto(root, patterns, seen, &out); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AbsPath < out[j].AbsPath })
	return out, nil
}

func collectInto(root string, patterns []string, seen map[string]bool, out *[]File) error {
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, ".sbd") {
			sub, err := readSBD(filepath.Join(root, pattern))
			if err != nil {
				return err
			}
			if err := collectInto(root, sub, seen, out); err != nil {
				return err
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(filepath.Join(root, pattern))
		if err != nil {
			return fmt.Errorf("%w: invalid glob pattern %q: %v", errs.ErrConfiguration, pattern, err)
		}

		for _, m := range matches {
			if !isContractFile(m) {
				continue
			}
			abs, err := filepath.Abs(m)
			if err != nil {
				return fmt.Errorf("%w: resolving %q: %v", errs.ErrIO, m, err)
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true
			rel, err := filepath.Rel(root, abs)
			if err != nil {
				rel = abs
			}
			*out = append(*out, File{AbsPath: abs, RelPath: rel})
		}
	}
	return nil
}

func isContractFile(path string) bool {
	return strings.HasSuffix(path, ".sol") ||
		strings.HasSuffix(path, ".rt.hex") ||
		strings.HasSuffix(path, ".hex")
}

func readSBD(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading list file %s: %v", errs.ErrConfiguration, path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading list file %s: %v", errs.ErrIO, path, err)
	}
	return lines, nil
}

// Mode returns the execution mode a discovered file implies: .sol ->
// solidity, .rt.hex -> runtime, .hex -> bytecode (or runtime if
// forceRuntime, e.g. from settings.Runtime).
func Mode(relPath string, forceRuntime bool) (mode string, ok bool) {
	switch {
	case strings.HasSuffix(relPath, ".sol"):
		return "solidity", true
	case strings.HasSuffix(relPath, ".rt.hex"):
		return "runtime", true
	case strings.HasSuffix(relPath, ".hex"):
		if forceRuntime {
			return "runtime", true
		}
		return "bytecode", true
	default:
		return "", false
	}
}
