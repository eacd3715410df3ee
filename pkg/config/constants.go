package config

// Version is bastion's own version string, carried into every TaskLog's
// platform block.
const Version = "0.1.0"

// Artifact filenames written into every task's result directory.
const (
	TaskLogFile     = "smartbugs.json"
	ToolLogFile     = "result.log"
	ToolOutputFile  = "result.tar"
	ParserOutputFile = "result.json"
	SARIFOutputFile = "result.sarif"
)

// ToolConfigFile and FindingsFile are loaded once per tool out of its home
// directory under ToolsHome.
const (
	ToolConfigFile = "config.yaml"
	FindingsFile   = "findings.yaml"
	SiteConfigFile = "site_cfg.yaml"
)

// CoreTool pairs a base tool id with its default argument string and a
// timeout-preset label, mirroring CORE_TOOLS in original_source/sb/analysis.py.
type CoreTool struct {
	BaseTool     string
	Args         string
	TimeoutLabel string
}

// CoreTools is the fixed roster every input file runs in dynamic mode, in
// scheduling-priority order. The order also decides which missing tool the
// scheduler's core-coverage guarantee picks first.
var CoreTools = []CoreTool{
	{BaseTool: "slither"},
	{BaseTool: "smartcheck"},
	{BaseTool: "mythril"},
	{BaseTool: "solhint"},
	{BaseTool: "maian"},
	{BaseTool: "confuzzius"},
}

// IsCoreTool reports whether base is one of CoreTools.
func IsCoreTool(base string) bool {
	for _, ct := range CoreTools {
		if ct.BaseTool == base {
			return true
		}
	}
	return false
}

// Timeouts are the default per-tool timeout presets in seconds, keyed by
// base tool id or by preset label (fast/normal/accurate).
var Timeouts = map[string]int{
	"fast":             15,
	"normal":           500,
	"accurate":         900,
	"maian":            45,
	"confuzzius_core":  50,
}

// Budget-mode constants, mirroring sb.cfg / sb.budget in original_source.
const (
	BudgetMinTimeout    = 10
	CoreBudgetFraction  = 0.2
	BudgetTargetFraction = 0.8
)

// FallbackTool is the deterministic tool scheduled once per file, in budget
// mode, when a file's missing-coverage list is exhausted.
const FallbackTool = "sfuzz"
