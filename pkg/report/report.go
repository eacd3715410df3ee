// Package report renders a results tree's task logs and parsed outputs as
// a flat CSV, one row per completed task. Grounded on
// original_source/sb/results2csv.py: the same field set, the same
// Excel/Postgres list-encoding choice, and the same re-classification of
// each finding against the vulnerability category map.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/errs"
	"github.com/forgelabs/bastion/pkg/types"
	"github.com/forgelabs/bastion/pkg/vuln"
)

// Field names a results2csv.py FIELDS entry, in the same declared order.
type Field string

const (
	FieldFilename      Field = "filename"
	FieldBasename      Field = "basename"
	FieldToolID        Field = "toolid"
	FieldToolMode      Field = "toolmode"
	FieldToolArgs      Field = "tool_args"
	FieldParserVersion Field = "parser_version"
	FieldRunID         Field = "runid"
	FieldStart         Field = "start"
	FieldDuration      Field = "duration"
	FieldExitCode      Field = "exit_code"
	FieldFindings      Field = "findings"
	FieldClassified    Field = "classified"
	FieldInfos         Field = "infos"
	FieldErrors        Field = "errors"
	FieldFails         Field = "fails"
)

// AllFields is the default column set, in the original's declared order.
var AllFields = []Field{
	FieldFilename, FieldBasename, FieldToolID, FieldToolMode, FieldToolArgs,
	FieldParserVersion, FieldRunID, FieldStart, FieldDuration, FieldExitCode,
	FieldFindings, FieldClassified, FieldInfos, FieldErrors, FieldFails,
}

// ListFormat selects how a multi-value cell (findings, classified, infos,
// errors, fails) is encoded.
type ListFormat int

const (
	// ListExcel quotes a value containing a comma/quote/newline and
	// joins with commas, matching Excel's CSV dialect.
	ListExcel ListFormat = iota
	// ListPostgres wraps the list in {...} braces, Postgres array-literal
	// style, quoting elements that contain reserved characters.
	ListPostgres
)

// DiscoverResultDirs walks each root collecting every directory containing
// a smartbugs.json, deduplicated and sorted, matching results2csv.py
// main()'s os.walk loop.
func DiscoverResultDirs(roots []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || info.Name() != config.TaskLogFile {
				return nil
			}
			dir := filepath.Dir(path)
			if !seen[dir] {
				seen[dir] = true
				out = append(out, dir)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: walking %s: %v", errs.ErrIO, root, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Write renders one CSV header row plus one data row per directory in
// dirs, in order, to w. A directory missing a readable task log or parsed
// output is skipped with a message to warnings, matching the original's
// print-and-continue behavior rather than aborting the whole report.
func Write(w io.Writer, dirs []string, fields []Field, format ListFormat, warnings io.Writer) error {
	if len(fields) == 0 {
		fields = AllFields
	}

	out := csv.NewWriter(w)
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = string(f)
	}
	if err := out.Write(header); err != nil {
		return err
	}

	for _, dir := range dirs {
		taskLog, err := readTaskLog(filepath.Join(dir, config.TaskLogFile))
		if err != nil {
			fmt.Fprintf(warnings, "cannot read task log in %s: %v\n", dir, err)
			continue
		}
		parsed, err := readParsedOutput(filepath.Join(dir, config.ParserOutputFile))
		if err != nil {
			fmt.Fprintf(warnings, "cannot read parsed output in %s (run reparse to generate it): %v\n", dir, err)
			continue
		}

		row := rowFor(taskLog, parsed, fields, format)
		if err := out.Write(row); err != nil {
			return err
		}
	}

	out.Flush()
	return out.Error()
}

func rowFor(taskLog *types.TaskLog, parsed *types.ParsedOutput, fields []Field, format ListFormat) []string {
	toolArgs := parsed.ToolArgs
	if toolArgs == "" {
		toolArgs = taskLog.ToolArgs
	}

	findings := make([]string, 0, len(parsed.Findings))
	for _, f := range parsed.Findings {
		findings = append(findings, labelWithLine(str2label(f.Name), f.Line))
	}
	findings = dedupSorted(findings)

	var classified []string
	for _, f := range parsed.Findings {
		for _, cat := range f.Categories {
			upper := strings.ToUpper(cat)
			if !vuln.Valid(vuln.Category(upper)) {
				continue
			}
			classified = append(classified, labelWithLine(upper, f.Line))
		}
	}
	classified = dedupSorted(classified)

	values := map[Field]string{
		FieldFilename:      taskLog.Filename,
		FieldBasename:      filepath.Base(taskLog.Filename),
		FieldToolID:        taskLog.Tool.ID,
		FieldToolMode:      string(taskLog.Tool.Mode),
		FieldToolArgs:      toolArgs,
		FieldParserVersion: parsed.Parser.Version,
		FieldRunID:         taskLog.RunID,
		FieldStart:         strconv.FormatInt(taskLog.Result.Start, 10),
		FieldDuration:      strconv.FormatFloat(taskLog.Result.Duration, 'f', -1, 64),
		FieldExitCode:      exitCodeString(taskLog.Result.ExitCode),
		FieldFindings:      encodeList(findings, format),
		FieldClassified:    encodeList(classified, format),
		FieldInfos:         encodeList(parsed.Infos, format),
		FieldErrors:        encodeList(parsed.Errors, format),
		FieldFails:         encodeList(parsed.Fails, format),
	}

	row := make([]string, len(fields))
	for i, f := range fields {
		row[i] = values[f]
	}
	return row
}

func exitCodeString(code *int) string {
	if code == nil {
		return ""
	}
	return strconv.Itoa(*code)
}

func labelWithLine(label string, line int) string {
	if line == 0 {
		return label
	}
	return fmt.Sprintf("%s@%d", label, line)
}

func dedupSorted(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

var labelNonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// str2label normalizes a raw finding name into a stable, filename/CSV-safe
// label: collapsed separators, lowercase. original_source has no
// standalone utils.py carrying str2label's exact rule, so this is an
// original implementation of the same intent rather than a port.
func str2label(name string) string {
	trimmed := strings.TrimSpace(name)
	normalized := labelNonAlnumRe.ReplaceAllString(trimmed, "_")
	return strings.ToLower(strings.Trim(normalized, "_"))
}

func encodeList(items []string, format ListFormat) string {
	switch format {
	case ListPostgres:
		return list2postgres(items)
	default:
		return list2excel(items)
	}
}

func list2postgres(items []string) string {
	parts := make([]string, len(items))
	for i, s := range items {
		if strings.ContainsAny(s, `",`+"\n{}") {
			parts[i] = `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
		} else {
			parts[i] = s
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func list2excel(items []string) string {
	parts := make([]string, len(items))
	for i, s := range items {
		if strings.ContainsAny(s, `",`+"\n") {
			parts[i] = `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
		} else {
			parts[i] = s
		}
	}
	return strings.Join(parts, ",")
}

func readTaskLog(path string) (*types.TaskLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tl types.TaskLog
	if err := json.Unmarshal(data, &tl); err != nil {
		return nil, err
	}
	return &tl, nil
}

func readParsedOutput(path string) (*types.ParsedOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p types.ParsedOutput
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
