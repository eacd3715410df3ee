// Package router decides which follow-up tools to run next, based on the
// vulnerability categories a completed task's findings were classified
// under. Grounded on original_source/sb/analysis.py's VULN_TOOL_MAP and
// route_next_tool.
package router

import (
	"sort"
	"strings"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/types"
	"github.com/forgelabs/bastion/pkg/vuln"
)

// mapEntry is one VulnToolMap value: the follow-up tool, its argument
// string, and an optional timeout preset label (a key into config.Timeouts).
type mapEntry struct {
	BaseTool     string
	Args         string
	TimeoutLabel string
}

// VulnToolMap routes a category to its single follow-up tool. The
// original's dict literal repeats several keys (GREEDY_CONTRACT, OVERFLOW,
// UNDERFLOW, LOW_LEVEL_CALL, BLOCK_DEPENDENCE); Python keeps only the last
// assignment for each, so this map already reflects the resolved,
// deduplicated routing table rather than the literal source order.
var VulnToolMap = map[vuln.Category]mapEntry{
	vuln.Reentrancy:              {"mythril", "--modules ExternalCalls", "normal"},
	vuln.UnlockedEther:           {"slither", "--detect reentrancy-eth, reentrancy-events, reentrancy-no-eth", ""},
	vuln.FrontRunning:            {"slither", "--detect out-of-order-retryable", ""},
	vuln.Suicidal:                {"maian", "-c 0", ""},
	vuln.Prodigal:                {"maian", "-c 1", ""},
	vuln.GreedyContract:          {"manticore", "--thorough-mode", ""},
	vuln.ArbitrarySend:           {"slither", "--detect arbitrary-send-erc20, arbitrary-send-erc20-permit, arbitrary-send-eth", ""},
	vuln.Overflow:                {"osiris", "", ""},
	vuln.Underflow:               {"osiris", "", ""},
	vuln.UninitializedStoragePtr: {"slither", "--detect uninitialized-storage", ""},
	vuln.UninitializedStorage:    {"slither", "--detect uninitialized-state", ""},
	vuln.LowLevelCall:            {"conkas", "-vt unchecked_ll_calls", ""},
	vuln.Delegatecall:            {"mythril", "--modules ArbitraryDelegateCall", ""},
	vuln.Selfdestruct:            {"maian", "-c 0", ""},
	vuln.AssertViolation:         {"mythril", "--modules Exceptions", ""},
	vuln.WriteToArbitraryStorage: {"mythril", "--modules ArbitraryStorage", ""},
	vuln.BlockDependence:         {"conkas", "-vt time_manipulation", ""},
	vuln.WeakRandomness:          {"slither", "--detect weak-prng", ""},
	vuln.VariableShadowing:       {"slither", "--detect shadowing-state", ""},
	vuln.DeprecatedFunction:      {"slither", "--detect deprecated-standards", ""},
	vuln.UnusedStateVariable:     {"slither", "--detect unused-state", ""},
	vuln.StrictBalanceEquality:   {"mythril", "--modules UnexpectedEther", ""},
	vuln.ArbitraryJump:           {"manticore", "--policy icount", ""},
	vuln.DosGasLimit:             {"securify", "", ""},
	vuln.Leak:                    {"slither", "--detect uninitialized-storage", ""},
	vuln.OutdatedCompiler:        {"slither", "--detect solc-version", ""},
	vuln.VersionPragma:           {"slither", "--detect solc-version", ""},
}

// toolAccum collects the argument strings and strongest timeout requested
// for one base tool across every category a task's findings routed to it.
type toolAccum struct {
	noArgs  bool
	args    map[string]map[string]bool // flag prefix -> set of values
	timeout int
}

// RouteNextTool decides which follow-up tools to schedule for absfn, given
// reports classified by pkg/vuln.Classify. existingKeys is the set of
// "<base>|<args>" keys already recorded for absfn (completed or already
// routed this run); skipAfterNoArgs mirrors settings.SkipAfterNoArgs: once
// a tool has run on this file with no arguments, no further argument-
// qualified variant of it is scheduled. RouteNextTool performs no
// mutation - the caller records accepted decisions via
// config.SharedState once a task is actually enqueued.
func RouteNextTool(reports []types.VulnReport, existingKeys map[string]bool, skipAfterNoArgs bool) []types.RouteResult {
	if len(reports) == 0 {
		return nil
	}

	accum := make(map[string]*toolAccum)

	for _, report := range reports {
		for _, cat := range report.Categories {
			entry, ok := VulnToolMap[vuln.Category(cat)]
			if !ok {
				continue
			}
			base := types.BaseTool(entry.BaseTool)
			args := strings.TrimSpace(entry.Args)

			baseKey := base + "|"
			toolKey := base + "|" + args
			if skipAfterNoArgs && existingKeys[baseKey] {
				continue
			}
			if existingKeys[toolKey] {
				continue
			}

			a, ok := accum[base]
			if !ok {
				a = &toolAccum{args: make(map[string]map[string]bool)}
				accum[base] = a
			}
			if args == "" {
				a.noArgs = true
				a.args = make(map[string]map[string]bool)
			} else if !a.noArgs {
				prefix, value := splitArg(args)
				if a.args[prefix] == nil {
					a.args[prefix] = make(map[string]bool)
				}
				if value != "" {
					a.args[prefix][value] = true
				}
			}

			if entry.TimeoutLabel != "" {
				if t := config.Timeouts[entry.TimeoutLabel]; t > a.timeout {
					a.timeout = t
				}
			}
		}
	}

	bases := make([]string, 0, len(accum))
	for base := range accum {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	results := make([]types.RouteResult, 0, len(bases))
	for _, base := range bases {
		a := accum[base]
		if a.noArgs || len(a.args) == 0 {
			results = append(results, types.RouteResult{BaseTool: base, Timeout: a.timeout})
			continue
		}
		results = append(results, types.RouteResult{BaseTool: base, Args: combineArgs(a.args), Timeout: a.timeout})
	}
	return results
}

func splitArg(arg string) (prefix, value string) {
	if idx := strings.IndexByte(arg, ' '); idx >= 0 {
		return arg[:idx], arg[idx+1:]
	}
	return arg, ""
}

func combineArgs(flagGroups map[string]map[string]bool) string {
	prefixes := make([]string, 0, len(flagGroups))
	for p := range flagGroups {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	parts := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		values := flagGroups[prefix]
		if len(values) == 0 {
			parts = append(parts, prefix)
			continue
		}
		vs := make([]string, 0, len(values))
		for v := range values {
			vs = append(vs, v)
		}
		sort.Strings(vs)
		parts = append(parts, prefix+" "+strings.Join(vs, ","))
	}
	return strings.Join(parts, " ")
}

// ToolKey builds the "<base>|<args>" dedup key a router decision (or a
// directly scheduled task) is recorded under in config.SharedState.
func ToolKey(baseTool, args string) string {
	return baseTool + "|" + strings.TrimSpace(args)
}

// ParseArgMap breaks an argument string into a flag-prefix -> value-set
// map, used by pkg/planner's CollectSingleTask to check whether a newly
// requested argument set is already subsumed by a base tool's prior runs.
// A flag with no value is recorded under the empty string. Ported from
// original_source/sb/smartbugs.py's _parse_arg_map.
func ParseArgMap(argStr string) map[string]map[string]bool {
	argMap := make(map[string]map[string]bool)
	argStr = strings.TrimSpace(argStr)
	if argStr == "" {
		return argMap
	}

	tokens := strings.Fields(argStr)
	i := 0
	for i < len(tokens) {
		token := tokens[i]
		if !strings.HasPrefix(token, "-") {
			i++
			continue
		}

		prefix := token
		var valueTokens []string
		if idx := strings.IndexByte(token, '='); idx >= 0 {
			prefix = token[:idx]
			if after := token[idx+1:]; after != "" {
				valueTokens = append(valueTokens, after)
			}
			i++
		} else {
			i++
			for i < len(tokens) && !strings.HasPrefix(tokens[i], "-") {
				valueTokens = append(valueTokens, tokens[i])
				i++
			}
		}

		var values []string
		for _, vt := range valueTokens {
			for _, v := range strings.Split(vt, ",") {
				v = strings.Trim(strings.TrimSpace(v), ",")
				if v != "" {
					values = append(values, v)
				}
			}
		}
		if len(values) == 0 {
			values = []string{""}
		}

		if argMap[prefix] == nil {
			argMap[prefix] = make(map[string]bool)
		}
		for _, v := range values {
			argMap[prefix][v] = true
		}
	}

	return argMap
}

// Subsumed reports whether newArgs is already covered by a base tool's
// recorded argument history: every flag/value in newArgs must already
// appear in history. An empty newArgs map is never considered subsumed
// (matching the original, which only performs the subset check when
// new_arg_map is non-empty).
func Subsumed(newArgs map[string]map[string]bool, history map[string]map[string]bool) bool {
	if len(newArgs) == 0 {
		return false
	}
	for flag, values := range newArgs {
		existing := history[flag]
		for v := range values {
			if !existing[v] {
				return false
			}
		}
	}
	return true
}
