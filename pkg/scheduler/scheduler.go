// Package scheduler runs a run's task list to completion across a fixed
// pool of worker goroutines, dynamically routing follow-up tools as each
// task's findings come in. Grounded on original_source/sb/analysis.py's
// analyser()/run(): a task is executed, its result reparsed and
// classified, VULN_TOOL_MAP-routed follow-ups are enqueued, and — when
// none were added — the first still-missing core tool is scheduled as a
// coverage floor.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/discovery"
	"github.com/forgelabs/bastion/pkg/errs"
	"github.com/forgelabs/bastion/pkg/executor"
	"github.com/forgelabs/bastion/pkg/log"
	"github.com/forgelabs/bastion/pkg/metrics"
	"github.com/forgelabs/bastion/pkg/planner"
	"github.com/forgelabs/bastion/pkg/router"
	"github.com/forgelabs/bastion/pkg/types"
	"github.com/forgelabs/bastion/pkg/vuln"
)

// ReparseFunc re-derives a completed task's parsed findings from its
// on-disk artifacts, independent of whether the run asked for JSON/SARIF
// output (call_reparse in the original always runs, regardless of
// settings.json/settings.sarif). Satisfied by pkg/reparse.Reparse.
type ReparseFunc func(resultDir string, withSarif bool) (*types.ParsedOutput, error)

// Scheduler drives a task list to completion. Go has no safe way to
// force-terminate a goroutine the way the original force-terminates a
// straggling worker process, so shutdown here is cooperative: a cancelled
// context stops workers from picking up further tasks once their current
// one finishes, rather than killing them mid-task.
type Scheduler struct {
	Executor *executor.Executor
	Planner  *planner.Planner
	State    *config.SharedState
	Reparse  ReparseFunc
}

// New builds a Scheduler wired to its collaborators.
func New(exec *executor.Executor, p *planner.Planner, state *config.SharedState, reparse ReparseFunc) *Scheduler {
	return &Scheduler{Executor: exec, Planner: p, State: state, Reparse: reparse}
}

// Run executes tasks to completion using processes worker goroutines,
// including any follow-up tasks dynamic routing enqueues along the way.
// Returns errs.ErrInterrupted if ctx was cancelled before the queue fully
// drained; tasks already in flight are allowed to finish first.
func (s *Scheduler) Run(ctx context.Context, tasks []*types.Task, processes int) error {
	if processes < 1 {
		processes = 1
	}

	q := newTaskQueue()
	var pending sync.WaitGroup
	for _, t := range tasks {
		pending.Add(1)
		q.push(t)
	}
	s.State.IncTasksTotal(int64(len(tasks)))
	metrics.TasksScheduledTotal.WithLabelValues("initial").Add(float64(len(tasks)))
	metrics.TasksTotal.WithLabelValues("queued").Add(float64(len(tasks)))

	drained := make(chan struct{})
	go func() {
		pending.Wait()
		close(drained)
	}()

	var workers sync.WaitGroup
	for i := 0; i < processes; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.worker(ctx, q, &pending)
		}()
	}

	select {
	case <-drained:
		q.close()
	case <-ctx.Done():
		log.Warn("run cancelled, waiting for in-flight tasks to finish")
		<-drained
		q.close()
	}
	workers.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", errs.ErrInterrupted, ctx.Err())
	}
	return nil
}

func (s *Scheduler) worker(ctx context.Context, q *taskQueue, pending *sync.WaitGroup) {
	for {
		item, ok := q.pop()
		if !ok {
			return
		}
		task := item.(*types.Task)
		if ctx.Err() != nil {
			metrics.TasksTotal.WithLabelValues("queued").Sub(1)
			pending.Done()
			continue
		}
		s.runOne(ctx, task, q, pending)
		pending.Done()
	}
}

func (s *Scheduler) runOne(ctx context.Context, task *types.Task, q *taskQueue, pending *sync.WaitGroup) {
	s.State.IncTasksStarted()
	metrics.TasksTotal.WithLabelValues("queued").Sub(1)
	metrics.TasksTotal.WithLabelValues("running").Add(1)
	metrics.ContainersRunning.Inc()
	log.Info(fmt.Sprintf("starting %s on %s", task.Tool.ID, task.RelPath))

	start := time.Now()
	_, err := s.Executor.Execute(ctx, task)
	duration := time.Since(start).Seconds()
	s.State.CompleteTask(duration)
	logETC(s.State.Snapshot())

	metrics.ContainersRunning.Dec()
	metrics.TasksTotal.WithLabelValues("running").Sub(1)
	metrics.TaskDuration.WithLabelValues(task.Tool.ID).Observe(duration)

	if err != nil {
		metrics.TasksCompletedTotal.WithLabelValues("failed").Inc()
		log.Warn(fmt.Sprintf("%s on %s failed: %v", task.Tool.ID, task.RelPath, err))
		return
	}
	metrics.TasksCompletedTotal.WithLabelValues("success").Inc()

	if ctx.Err() != nil || !task.Settings.Dynamic {
		return
	}

	s.routeFollowUps(task, q, pending)
}

// routeFollowUps reparses task's result, classifies the findings, and
// enqueues whatever pkg/router decides to run next. If nothing new was
// routed, it falls back to the core-tool coverage guarantee: the first
// config.CoreTools entry not yet run for this file.
func (s *Scheduler) routeFollowUps(task *types.Task, q *taskQueue, pending *sync.WaitGroup) {
	parsed, err := s.Reparse(task.ResultDir, task.Settings.SARIF)
	if err != nil {
		log.Warn(fmt.Sprintf("reparsing %s failed: %v", task.ResultDir, err))
		return
	}

	reports := vuln.Classify(parsed)
	existingKeys := s.State.ToolKeysForFile(task.AbsPath)
	results := router.RouteNextTool(reports, existingKeys, task.Settings.SkipAfterNoArgs)

	newToolAdded := false
	for _, r := range results {
		if s.scheduleFollowUp(task, r.BaseTool, r.Args, r.Timeout, "routed", q, pending) {
			newToolAdded = true
		}
	}

	if newToolAdded {
		for _, report := range reports {
			for _, category := range report.Categories {
				metrics.RoutedTasksTotal.WithLabelValues(category).Inc()
			}
		}
		return
	}

	missing, ok := nextMissingCoreTool(s.State, task.AbsPath)
	if !ok {
		return
	}
	s.scheduleFollowUp(task, missing.BaseTool, missing.Args, 0, "core-coverage", q, pending)
}

// scheduleFollowUp loads baseTool for task's file mode and hands it to the
// planner's dedup-authoritative CollectSingleTask; a nil task (already
// covered, wrong mode, unresolved compiler) is a no-op. Returns whether a
// task was actually enqueued.
func (s *Scheduler) scheduleFollowUp(task *types.Task, baseTool, args string, timeout int, origin string, q *taskQueue, pending *sync.WaitGroup) bool {
	modeStr, ok := discovery.Mode(task.RelPath, task.Settings.Runtime)
	if !ok {
		return false
	}

	tool, err := config.LoadToolConfig(baseTool, types.Mode(modeStr))
	if err != nil {
		log.Warn(fmt.Sprintf("cannot load tool %q for follow-up on %s: %v", baseTool, task.RelPath, err))
		return false
	}

	follow, err := s.Planner.CollectSingleTask(tool, task.AbsPath, task.RelPath, task.Settings, args, timeout)
	if err != nil {
		log.Warn(fmt.Sprintf("cannot schedule follow-up %q on %s: %v", baseTool, task.RelPath, err))
		return false
	}
	if follow == nil {
		return false
	}

	s.State.MarkScheduled(task.AbsPath, baseTool)
	s.State.IncTasksTotal(1)
	metrics.TasksScheduledTotal.WithLabelValues(origin).Inc()
	metrics.TasksTotal.WithLabelValues("queued").Inc()
	pending.Add(1)
	q.push(follow)
	log.Info(fmt.Sprintf("routed %s -> %s %s", task.RelPath, baseTool, args))
	return true
}

// nextMissingCoreTool returns the first config.CoreTools entry whose base
// tool has not yet run (completed or already scheduled) for absfn.
func nextMissingCoreTool(state *config.SharedState, absfn string) (config.CoreTool, bool) {
	ran := make(map[string]bool)
	for key := range state.ToolKeysForFile(absfn) {
		ran[baseOfKey(key)] = true
	}
	for base := range state.ScheduledBaseTools(absfn) {
		ran[base] = true
	}
	for _, ct := range config.CoreTools {
		if !ran[ct.BaseTool] {
			return ct, true
		}
	}
	return config.CoreTool{}, false
}

func baseOfKey(key string) string {
	for i, r := range key {
		if r == '|' {
			return key[:i]
		}
	}
	return key
}

// logETC logs an estimated-time-to-completion the way the original's
// post_analysis does: average time per completed task, projected across
// the remaining tasks.
func logETC(counts config.Counts) {
	if counts.Completed == 0 || counts.Total == 0 {
		return
	}
	remaining := counts.Total - counts.Completed
	if remaining <= 0 {
		log.Info("all tasks completed")
		return
	}
	avg := counts.TimeCompleted / float64(counts.Completed)
	etc := time.Duration(avg*float64(remaining)) * time.Second
	log.Info(fmt.Sprintf("%d/%d tasks completed, estimated time to completion: %s", counts.Completed, counts.Total, etc.Round(time.Second)))
}
