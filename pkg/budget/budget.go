// Package budget implements the optional second orchestration phase a run
// enters once time_budget is set and the core tool sweep finishes early:
// it plans follow-up tasks sized to fill the remaining wall-clock budget,
// assigning one missing tool per file round-robin in file order, and runs
// them in batches
// until the budget is exhausted or no further tasks remain. Grounded on
// original_source/sb/budget.py.
package budget

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/discovery"
	"github.com/forgelabs/bastion/pkg/log"
	"github.com/forgelabs/bastion/pkg/planner"
	"github.com/forgelabs/bastion/pkg/types"
)

// fallbackCoverageTool is scheduled once per file, after every other
// coverage tool has run, as the budget phase's deterministic saturation
// floor.
const fallbackCoverageTool = "sfuzz"

// TaskBatchRunner executes a batch of tasks (the scheduler's run loop) and
// reports how long the batch actually took. Phase depends on this function
// value rather than importing pkg/scheduler directly, since the scheduler
// is the one that drives a Phase, not the other way around.
type TaskBatchRunner func(tasks []*types.Task) (time.Duration, error)

// Phase runs the second-phase budget orchestration for one set of files.
type Phase struct {
	Planner  *planner.Planner
	Settings *types.Settings
	Files    []discovery.File
	RunBatch TaskBatchRunner
}

// NewPhase builds a Phase ready to run against files.
func NewPhase(p *planner.Planner, settings *types.Settings, files []discovery.File, runBatch TaskBatchRunner) *Phase {
	return &Phase{Planner: p, Settings: settings, Files: files, RunBatch: runBatch}
}

// Run drives the budget phase to completion: repeatedly plans a batch
// sized to the time left and runs it, until the budget is exhausted or a
// planning pass yields no tasks. Dynamic routing is suspended for the
// duration (budget-mode scheduling is deterministic and round-robin, not
// vulnerability-routed), and restored before returning.
func (ph *Phase) Run(remaining time.Duration) (time.Duration, error) {
	if remaining <= 0 {
		log.Info("[budget] no remaining time for second phase")
		return 0, nil
	}

	prevDynamic := ph.Settings.Dynamic
	ph.Settings.Dynamic = false
	defer func() { ph.Settings.Dynamic = prevDynamic }()

	var totalElapsed time.Duration
	for batchNo := 1; ; batchNo++ {
		timeLeft := remaining - totalElapsed
		if timeLeft <= 0 {
			break
		}

		tasks, err := ph.PlanBudgetTasks(timeLeft)
		if err != nil {
			return totalElapsed, err
		}
		if len(tasks) == 0 {
			if batchNo == 1 {
				log.Info("[budget] no tasks planned for second phase")
			} else {
				log.Info("[budget] no further tasks to schedule within remaining time")
			}
			break
		}

		log.Info(fmt.Sprintf("[budget] running batch #%d with %d task(s), time left ~%s", batchNo, len(tasks), timeLeft))
		elapsed, err := ph.RunBatch(tasks)
		totalElapsed += elapsed
		if err != nil {
			return totalElapsed, err
		}
		log.Info(fmt.Sprintf("[budget] batch #%d finished in ~%s, remaining budget ~%s", batchNo, elapsed, remaining-totalElapsed))
	}

	return totalElapsed, nil
}

// PlanBudgetTasks plans one batch of follow-up tasks sized to use
// remaining: it computes each Solidity file's missing coverage against the
// tools/all alias roster (already-completed keys are read back from
// SharedState plus any smartbugs.json left by a prior run under the same
// RunID), then schedules tools round-robin across files, one at a time,
// until the planned worker-seconds reaches BudgetTargetFraction of the
// available worker-seconds (processes x remaining).
func (ph *Phase) PlanBudgetTasks(remaining time.Duration) ([]*types.Task, error) {
	remainingSeconds := int(remaining.Seconds())
	if remainingSeconds <= 0 {
		return nil, nil
	}

	allTools, err := config.CoverageAlias()
	if err != nil || len(allTools) == 0 {
		log.Info("[budget] no tool alias list found, skipping second-phase planning")
		return nil, nil
	}

	var coverageTools []string
	for _, t := range allTools {
		if !strings.EqualFold(t, fallbackCoverageTool) {
			coverageTools = append(coverageTools, t)
		}
	}

	type contract struct{ abs, rel string }
	var contracts []contract
	for _, f := range ph.Files {
		if strings.HasSuffix(f.AbsPath, ".sol") {
			contracts = append(contracts, contract{f.AbsPath, f.RelPath})
		}
	}
	if len(contracts) == 0 {
		log.Info("[budget] no Solidity files eligible for the second phase")
		return nil, nil
	}

	completed, err := CollectCompletedKeys(ph.Settings.ResultsRoot, ph.Settings.RunID, ph.Files)
	if err != nil {
		return nil, err
	}
	for absfn, keys := range completed {
		for key := range keys {
			ph.Planner.State.AddToolKey(absfn, key)
		}
	}

	existingBasesFor := func(absfn string) map[string]bool {
		bases := make(map[string]bool)
		for key := range ph.Planner.State.ToolKeysForFile(absfn) {
			bases[baseOf(key)] = true
		}
		return bases
	}

	missingPerFile := make(map[string][]string, len(contracts))
	potentialTasks := 0
	for _, c := range contracts {
		used := existingBasesFor(c.abs)
		var missing []string
		for _, t := range coverageTools {
			if !used[t] {
				missing = append(missing, t)
			}
		}
		missingPerFile[c.abs] = missing
		potentialTasks += len(missing)
		if !used[fallbackCoverageTool] {
			potentialTasks++
		}

		var ranList []string
		for b := range used {
			ranList = append(ranList, b)
		}
		sort.Strings(ranList)
		ran := "none"
		if len(ranList) > 0 {
			ran = strings.Join(ranList, ", ")
		}
		missList := "none"
		if len(missing) > 0 {
			missList = strings.Join(missing, ", ")
		}
		log.Info(fmt.Sprintf("[budget] %s -> ran: %s; missing: %s", filepath.Base(c.abs), ran, missList))
	}
	if potentialTasks == 0 {
		potentialTasks = 1
	}

	processes := ph.Settings.Processes
	if processes < 1 {
		processes = 1
	}
	targetWorkerSeconds := int(float64(remainingSeconds) * float64(processes) * config.BudgetTargetFraction)
	perTaskBase := int(math.Ceil(float64(targetWorkerSeconds) / float64(potentialTasks)))
	if perTaskBase < config.BudgetMinTimeout {
		perTaskBase = config.BudgetMinTimeout
	}

	var planned []*types.Task
	plannedWorkerSeconds := 0
	nextIdx := make(map[string]int, len(contracts))
	for _, c := range contracts {
		nextIdx[c.abs] = 0
	}

	schedule := func(c contract, toolName string) (bool, error) {
		toolMin := config.Timeouts[toolName]
		effTimeout := perTaskBase
		if toolMin > effTimeout {
			effTimeout = toolMin
		}
		if effTimeout < config.BudgetMinTimeout {
			effTimeout = config.BudgetMinTimeout
		}
		if effTimeout > remainingSeconds {
			effTimeout = remainingSeconds
		}

		tool, err := config.LoadToolConfig(toolName, types.ModeSolidity)
		if err != nil {
			log.Warn(fmt.Sprintf("[budget] cannot load tool %q: %v", toolName, err))
			return false, nil
		}
		task, err := ph.Planner.CollectSingleTask(tool, c.abs, c.rel, ph.Settings, "", effTimeout)
		if err != nil {
			return false, err
		}
		if task == nil {
			return false, nil
		}
		planned = append(planned, task)
		plannedWorkerSeconds += effTimeout
		log.Info(fmt.Sprintf("[budget] %s -> schedule %s (timeout: %ds)", filepath.Base(c.abs), toolName, effTimeout))
		return true, nil
	}

	progress := true
	for plannedWorkerSeconds < targetWorkerSeconds && progress {
		progress = false
		for _, c := range contracts {
			idx := nextIdx[c.abs]
			missing := missingPerFile[c.abs]
			if idx < len(missing) {
				ok, err := schedule(c, missing[idx])
				if err != nil {
					return nil, err
				}
				if ok {
					nextIdx[c.abs] = idx + 1
					progress = true
				}
			} else if !existingBasesFor(c.abs)[fallbackCoverageTool] {
				ok, err := schedule(c, fallbackCoverageTool)
				if err != nil {
					return nil, err
				}
				if ok {
					nextIdx[c.abs] = idx + 1
					progress = true
				}
			}
			if plannedWorkerSeconds >= targetWorkerSeconds {
				break
			}
		}
	}

	estWall := int(math.Ceil(float64(plannedWorkerSeconds) / float64(processes)))
	log.Info(fmt.Sprintf("[budget] planned %d task(s) for ~%ds wall-clock (target ~%ds of %ds)",
		len(planned), estWall, int(float64(remainingSeconds)*config.BudgetTargetFraction), remainingSeconds))

	return planned, nil
}

// CollectCompletedKeys scans resultsRoot for smartbugs.json artifacts left
// under a directory path containing runID, mapping each back to the
// originating absolute file path via files, and returns the "<base>|<args>"
// keys already completed per file. Used to seed the budget phase's
// coverage bookkeeping with work a prior, interrupted run already did.
func CollectCompletedKeys(resultsRoot, runID string, files []discovery.File) (map[string]map[string]bool, error) {
	completed := make(map[string]map[string]bool)
	if runID == "" {
		return completed, nil
	}
	if _, err := os.Stat(resultsRoot); err != nil {
		return completed, nil
	}

	relToAbs := make(map[string]string, len(files))
	for _, f := range files {
		relToAbs[f.RelPath] = f.AbsPath
	}

	marker := string(filepath.Separator) + runID + string(filepath.Separator)
	err := filepath.Walk(resultsRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.Name() != config.TaskLogFile {
			return nil
		}
		if !strings.Contains(path+string(filepath.Separator), marker) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var tl types.TaskLog
		if err := json.Unmarshal(data, &tl); err != nil {
			return nil
		}
		absfn, ok := relToAbs[tl.Filename]
		if !ok {
			return nil
		}
		key := fmt.Sprintf("%s|%s", types.BaseTool(tl.Tool.ID), strings.TrimSpace(tl.ToolArgs))
		if completed[absfn] == nil {
			completed[absfn] = make(map[string]bool)
		}
		completed[absfn][key] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

func baseOf(key string) string {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i]
	}
	return key
}
