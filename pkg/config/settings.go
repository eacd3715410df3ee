package config

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/forgelabs/bastion/pkg/types"
)

// DefaultResultDirPattern renders under Settings.ResultsRoot using the
// placeholders named in spec.md §6: $TOOL, $MODE, $ABSDIR, $RELDIR,
// $FILENAME, $FILEBASE, $FILEEXT, $ARGS.
const DefaultResultDirPattern = "$TOOL/$MODE/$RELDIR/$FILEBASE"

// NewSettings returns a Settings with bastion's defaults, unfrozen.
func NewSettings() *types.Settings {
	return &types.Settings{
		Processes:        1,
		RunID:            uuid.NewString(),
		Dynamic:          true,
		SkipAfterNoArgs:  true,
		ResultsRoot:      "results",
		ResultDirPattern: DefaultResultDirPattern,
	}
}

// ResultDir renders the result directory for one (tool, mode, file, args)
// identity, joined under ResultsRoot. Collision disambiguation (the "_N"
// suffix rule from spec.md §3/§4.5) is applied by the caller (pkg/planner),
// which is the only place that holds the cross-file collision counter.
func ResultDir(s *types.Settings, tool, mode, absfn, relfn, args string) string {
	relDir := filepath.Dir(relfn)
	if relDir == "." {
		relDir = ""
	}
	base := filepath.Base(relfn)
	ext := filepath.Ext(base)
	fileBase := strings.TrimSuffix(base, ext)

	r := strings.NewReplacer(
		"$TOOL", tool,
		"$MODE", mode,
		"$ABSDIR", filepath.Dir(absfn),
		"$RELDIR", relDir,
		"$FILENAME", base,
		"$FILEBASE", fileBase,
		"$FILEEXT", ext,
		"$ARGS", sanitizeArgs(args),
	)

	pattern := s.ResultDirPattern
	if pattern == "" {
		pattern = DefaultResultDirPattern
	}
	rendered := r.Replace(pattern)
	return filepath.Join(s.ResultsRoot, filepath.Clean(rendered))
}

// sanitizeArgs turns an argument string into a filesystem-safe path segment
// suffix, empty when args is empty so the base result directory is
// unaffected by an args-less invocation.
func sanitizeArgs(args string) string {
	if args == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "_",
		",", "_",
		"--", "",
		"-", "",
		"=", "-",
	)
	return "-" + replacer.Replace(args)
}
