// Package planner turns discovered files and loaded tools into the Task
// list a run executes: the initial (file x tool) sweep, and the
// dynamically-routed single-task path the scheduler uses for follow-up
// tools. Grounded on original_source/sb/smartbugs.py's collect_tasks and
// collect_single_task.
package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/discovery"
	"github.com/forgelabs/bastion/pkg/errs"
	"github.com/forgelabs/bastion/pkg/log"
	"github.com/forgelabs/bastion/pkg/metrics"
	"github.com/forgelabs/bastion/pkg/router"
	"github.com/forgelabs/bastion/pkg/solc"
	"github.com/forgelabs/bastion/pkg/types"
)

// SolcResolver is the narrow slice of solc.Resolver CollectTasks/
// CollectSingleTask need, letting tests substitute a fake without network
// access.
type SolcResolver interface {
	GetVersion(pragma string) (string, error)
	GetPath(version string) (string, error)
}

// Planner assembles tasks against a fixed tools home, compiler resolver,
// and shared dedup state.
type Planner struct {
	Solc  SolcResolver
	State *config.SharedState
}

// New returns a Planner using resolver for compiler lookups and state for
// cross-file dedup bookkeeping.
func New(resolver SolcResolver, state *config.SharedState) *Planner {
	return &Planner{Solc: resolver, State: state}
}

// mode classification for one file, mirroring smartbugs.py's
// is_sol/is_byc/is_rtc triple.
type fileKind struct {
	isSol bool
	isByc bool
	isRtc bool
}

func classify(absfn string, forceRuntime bool) fileKind {
	m, ok := discovery.Mode(absfn, forceRuntime)
	if !ok {
		return fileKind{}
	}
	return fileKind{
		isSol: m == "solidity",
		isByc: m == "bytecode",
		isRtc: m == "runtime",
	}
}

func (k fileKind) matches(mode types.Mode) bool {
	switch mode {
	case types.ModeSolidity:
		return k.isSol
	case types.ModeBytecode:
		return k.isByc
	case types.ModeRuntime:
		return k.isRtc
	default:
		return false
	}
}

// CollectTasks builds the initial full sweep: every (file, tool) pair whose
// modes agree, in sorted order so reruns with the same inputs produce
// stable result directories. Duplicate absolute paths (the same file
// reachable through two patterns) are collapsed to one. Result-directory
// collisions are disambiguated with a "_2", "_3", ... suffix; more than 10%
// of files colliding logs a suggestion to use a more specific pattern.
func (p *Planner) CollectTasks(files []discovery.File, tools []*types.Tool, settings *types.Settings) ([]*types.Task, error) {
	sorted := make([]discovery.File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AbsPath < sorted[j].AbsPath })

	sortedTools := make([]*types.Tool, len(tools))
	copy(sortedTools, tools)
	sort.Slice(sortedTools, func(i, j int) bool {
		if sortedTools[i].ID != sortedTools[j].ID {
			return sortedTools[i].ID < sortedTools[j].ID
		}
		return sortedTools[i].Mode < sortedTools[j].Mode
	})

	used := make(map[string]bool)
	collisions := 0
	disambiguate := func(base string) string {
		rdir := base
		cnt := 1
		collided := false
		for used[rdir] {
			collided = true
			cnt++
			rdir = fmt.Sprintf("%s_%d", base, cnt)
		}
		used[rdir] = true
		if collided {
			collisions++
		}
		return rdir
	}

	var tasks []*types.Task
	var problems []string
	lastAbs := ""

	for _, f := range sorted {
		if f.AbsPath == lastAbs {
			continue
		}
		lastAbs = f.AbsPath

		kind := classify(f.RelPath, settings.Runtime)

		var pragma string
		var contractNames []string
		if kind.isSol {
			src, err := os.ReadFile(f.AbsPath)
			if err != nil {
				return nil, fmt.Errorf("%w: reading %s: %v", errs.ErrIO, f.AbsPath, err)
			}
			pragma, _ = solc.ExtractPragma(src)
			contractNames = solc.ExtractContractNames(src)
			if settings.Main {
				contract := strings.TrimSuffix(filepath.Base(f.AbsPath), filepath.Ext(f.AbsPath))
				if !containsString(contractNames, contract) {
					problems = append(problems, fmt.Sprintf("contract %q not found in %s", contract, f.AbsPath))
				}
			}
		}

		for _, tool := range sortedTools {
			if !kind.matches(tool.Mode) {
				continue
			}

			base := config.ResultDir(settings, tool.ID, string(tool.Mode), f.AbsPath, f.RelPath, "")
			rdir := disambiguate(base)

			var solcVersion, solcPath string
			if tool.Solc {
				v, path, ok := p.resolveSolc(pragma, f.RelPath, tool.ID)
				if !ok {
					continue
				}
				solcVersion, solcPath = v, path
			}

			baseTool := types.BaseTool(tool.ID)
			taskArgs, timeoutLabel := defaultCoreArgs(baseTool)

			taskTimeout := settings.Timeout
			if taskTimeout == 0 {
				if t, ok := config.Timeouts[baseTool]; ok {
					taskTimeout = t
				}
			}
			if taskTimeout == 0 && timeoutLabel != "" {
				taskTimeout = config.Timeouts[timeoutLabel]
			}
			if settings.TimeBudget != 0 && config.IsCoreTool(baseTool) && settings.CoreBudgetBase > 0 {
				if taskTimeout < settings.CoreBudgetBase {
					taskTimeout = settings.CoreBudgetBase
				}
			}

			tasks = append(tasks, &types.Task{
				AbsPath:     f.AbsPath,
				RelPath:     f.RelPath,
				ResultDir:   rdir,
				Tool:        tool,
				ToolArgs:    taskArgs,
				Timeout:     taskTimeout,
				SolcVersion: solcVersion,
				SolcPath:    solcPath,
				Settings:    settings,
			})

			if p.State != nil {
				p.State.AddToolKey(f.AbsPath, router.ToolKey(baseTool, ""))
			}
		}
	}

	if collisions > 0 {
		metrics.ResultDirCollisionsTotal.Add(float64(collisions))
		log.Warn(fmt.Sprintf("%d collision(s) of result directories resolved", collisions))
		if len(sorted) > 0 && collisions > len(sorted)/10 {
			log.Warn("consider using more of $TOOL, $MODE, $ABSDIR, $RELDIR, $FILENAME, $FILEBASE, $FILEEXT in the result directory pattern")
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("%w: %s", errs.ErrConfiguration, strings.Join(dedupStrings(problems), "\n"))
	}

	return tasks, nil
}

// CollectSingleTask builds one dynamically-routed follow-up task for
// absfn/tool, honoring the same dedup rules as the initial sweep plus the
// exact-key, argument-subset, and skip-after-no-args checks that only
// apply once a run is already in progress. A nil, nil return means the
// caller should skip scheduling (already covered, wrong mode, unresolved
// compiler, ...), mirroring the original's `return None`.
func (p *Planner) CollectSingleTask(tool *types.Tool, absfn, relfn string, settings *types.Settings, toolArgs string, timeoutOverride int) (*types.Task, error) {
	baseTool := types.BaseTool(tool.ID)
	cleanArgs := strings.TrimSpace(toolArgs)
	toolKey := router.ToolKey(baseTool, cleanArgs)

	existingKeys := p.State.ToolKeysForFile(absfn)
	if existingKeys[toolKey] {
		log.Info(fmt.Sprintf("tool %s with args %q already scheduled for %s, skipping", baseTool, cleanArgs, relfn))
		return nil, nil
	}

	newArgMap := router.ParseArgMap(cleanArgs)
	if len(newArgMap) > 0 {
		history := p.State.ArgHistoryFor(baseTool)
		if router.Subsumed(newArgMap, history) {
			log.Info(fmt.Sprintf("tool %s with args %q is a subset of a previous run, skipping", baseTool, cleanArgs))
			return nil, nil
		}
	}

	if settings.SkipAfterNoArgs && existingKeys[router.ToolKey(baseTool, "")] {
		log.Info(fmt.Sprintf("tool %s already scheduled without args for %s, skipping additional run", baseTool, relfn))
		return nil, nil
	}

	kind := classify(relfn, settings.Runtime)
	if !kind.matches(tool.Mode) {
		return nil, nil
	}

	var pragma string
	if kind.isSol {
		src, err := os.ReadFile(absfn)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", errs.ErrIO, absfn, err)
		}
		pragma, _ = solc.ExtractPragma(src)
		contractNames := solc.ExtractContractNames(src)
		contract := strings.TrimSuffix(filepath.Base(absfn), filepath.Ext(absfn))
		if settings.Main && !containsString(contractNames, contract) {
			return nil, fmt.Errorf("%w: contract %q not found in %s", errs.ErrConfiguration, contract, absfn)
		}
	}

	var solcVersion, solcPath string
	if tool.Solc {
		v, path, ok := p.resolveSolc(pragma, relfn, tool.ID)
		if !ok {
			return nil, nil
		}
		solcVersion, solcPath = v, path
	}

	effectiveTimeout := timeoutOverride
	if effectiveTimeout == 0 {
		effectiveTimeout = settings.Timeout
	}
	if effectiveTimeout == 0 {
		if t, ok := config.Timeouts[baseTool]; ok {
			effectiveTimeout = t
		}
	}

	p.State.AddToolKey(absfn, toolKey)
	p.State.RecordArgHistory(baseTool, newArgMap)

	rdir := config.ResultDir(settings, tool.ID, string(tool.Mode), absfn, relfn, cleanArgs)
	return &types.Task{
		AbsPath:     absfn,
		RelPath:     relfn,
		ResultDir:   rdir,
		Tool:        tool,
		ToolArgs:    cleanArgs,
		Timeout:     effectiveTimeout,
		SolcVersion: solcVersion,
		SolcPath:    solcPath,
		Settings:    settings,
	}, nil
}

// resolveSolc resolves pragma to a concrete compiler version and binary
// path, logging and returning ok=false (never an error) for the warning
// cases the original only logs and skips on: missing pragma, an
// unsupported constraint, or a download failure.
func (p *Planner) resolveSolc(pragma, relfn, toolID string) (version, path string, ok bool) {
	if pragma == "" {
		log.Warn(fmt.Sprintf("%s: no pragma, skipping %s", relfn, toolID))
		return "", "", false
	}
	v, err := p.Solc.GetVersion(pragma)
	if err != nil {
		log.Warn(fmt.Sprintf("%s: pragma %s requires unsupported solc, skipping %s", relfn, pragma, toolID))
		return "", "", false
	}
	path, err = p.Solc.GetPath(v)
	if err != nil {
		log.Warn(fmt.Sprintf("%s: cannot load solc %s needed by %s, skipping", relfn, v, toolID))
		return "", "", false
	}
	return v, path, true
}

// defaultCoreArgs returns the default argument string and timeout preset
// label for baseTool if it is one of config.CoreTools, or ("", "")
// otherwise.
func defaultCoreArgs(baseTool string) (args, timeoutLabel string) {
	for _, ct := range config.CoreTools {
		if ct.BaseTool == baseTool {
			return ct.Args, ct.TimeoutLabel
		}
	}
	return "", ""
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func dedupStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
