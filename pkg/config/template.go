package config

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/forgelabs/bastion/pkg/errs"
	"github.com/forgelabs/bastion/pkg/types"
)

var placeholderRe = regexp.MustCompile(`\$[A-Z]+`)

// RenderTemplate substitutes $KEY placeholders in tpl from vals, rejecting
// any placeholder not present in vals (spec.md §9: "reject unknown keys
// eagerly").
func RenderTemplate(tpl string, vals map[string]string) (string, error) {
	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(tpl, func(ph string) string {
		key := ph[1:]
		v, ok := vals[key]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: unknown template placeholder %s", errs.ErrConfiguration, ph)
			}
			return ph
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// TemplateValues builds the placeholder map spec.md §4.1 names:
// FILENAME, TIMEOUT, BIN, MAIN, ARGS.
func TemplateValues(filename string, timeout int, bin string, main bool, args string) map[string]string {
	mainFlag := "0"
	if main {
		mainFlag = "1"
	}
	return map[string]string{
		"FILENAME": filename,
		"TIMEOUT":  strconv.Itoa(timeout),
		"BIN":      bin,
		"MAIN":     mainFlag,
		"ARGS":     args,
	}
}

// RenderCommand renders tool's command template, or "" if it has none.
func RenderCommand(tool *types.Tool, vals map[string]string) (string, error) {
	if tool.CommandTpl == "" {
		return "", nil
	}
	return RenderTemplate(tool.CommandTpl, vals)
}

// RenderEntrypoint renders tool's entrypoint template, or "" if it has none.
func RenderEntrypoint(tool *types.Tool, vals map[string]string) (string, error) {
	if tool.EntrypointTpl == "" {
		return "", nil
	}
	return RenderTemplate(tool.EntrypointTpl, vals)
}
