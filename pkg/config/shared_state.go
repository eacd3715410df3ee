package config

import "sync"

// SharedState holds the mutable dedup/accounting state a run accumulates:
// per-file tool keys, per-base-tool argument history (for subsumption
// checks), the scheduled-tools map the scheduler's worker loop consults
// before enqueueing a routed or core-coverage task, and the task counters
// used for the running ETC estimate. It is the Go analogue of the
// original's multiprocessing.Manager().dict() plus mp.Value counters;
// every access is serialized through this type so callers never touch
// process-wide globals (spec.md §9).
type SharedState struct {
	mu sync.Mutex

	toolKeys       map[string]map[string]bool            // absfn -> set[toolKey]
	argHistory     map[string]map[string]map[string]bool // baseTool -> flag -> set[value]
	scheduledTools map[string]map[string]bool             // absfn -> set[baseTool]

	tasksTotal     int64
	tasksStarted   int64
	tasksCompleted int64
	timeCompleted  float64
}

// NewSharedState returns an empty SharedState ready for use.
func NewSharedState() *SharedState {
	return &SharedState{
		toolKeys:       make(map[string]map[string]bool),
		argHistory:     make(map[string]map[string]map[string]bool),
		scheduledTools: make(map[string]map[string]bool),
	}
}

// HasToolKey reports whether key has already been recorded for absfn.
func (s *SharedState) HasToolKey(absfn, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolKeys[absfn][key]
}

// HasToolKeyPrefix reports whether any recorded key for absfn has the given
// prefix (used for the "<base>|" no-args-scheduled check).
func (s *SharedState) HasToolKeyPrefix(absfn, prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.toolKeys[absfn] {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// AddToolKey records key as scheduled for absfn.
func (s *SharedState) AddToolKey(absfn, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toolKeys[absfn] == nil {
		s.toolKeys[absfn] = make(map[string]bool)
	}
	s.toolKeys[absfn][key] = true
}

// ToolKeysForFile returns a snapshot copy of the keys recorded for absfn.
func (s *SharedState) ToolKeysForFile(absfn string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.toolKeys[absfn]))
	for k, v := range s.toolKeys[absfn] {
		out[k] = v
	}
	return out
}

// ArgHistoryFor returns a snapshot copy of the flag->values history recorded
// for baseTool, used by the router's subsumption check.
func (s *SharedState) ArgHistoryFor(baseTool string) map[string]map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.argHistory[baseTool]
	out := make(map[string]map[string]bool, len(src))
	for flag, values := range src {
		vs := make(map[string]bool, len(values))
		for v := range values {
			vs[v] = true
		}
		out[flag] = vs
	}
	return out
}

// RecordArgHistory merges argMap into baseTool's recorded flag->values
// history.
func (s *SharedState) RecordArgHistory(baseTool string, argMap map[string]map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.argHistory[baseTool] == nil {
		s.argHistory[baseTool] = make(map[string]map[string]bool)
	}
	for flag, values := range argMap {
		if s.argHistory[baseTool][flag] == nil {
			s.argHistory[baseTool][flag] = make(map[string]bool)
		}
		for v := range values {
			s.argHistory[baseTool][flag][v] = true
		}
	}
}

// MarkScheduled records that baseTool has been scheduled (by any worker)
// for absfn this run, independent of the exact args used.
func (s *SharedState) MarkScheduled(absfn, baseTool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduledTools[absfn] == nil {
		s.scheduledTools[absfn] = make(map[string]bool)
	}
	s.scheduledTools[absfn][baseTool] = true
}

// ScheduledBaseTools returns a snapshot copy of the base tools already
// scheduled for absfn.
func (s *SharedState) ScheduledBaseTools(absfn string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.scheduledTools[absfn]))
	for k, v := range s.scheduledTools[absfn] {
		out[k] = v
	}
	return out
}

// IncTasksTotal increments the shared tasks-total counter, used both at
// initial enqueue and whenever a worker pushes a follow-up task.
func (s *SharedState) IncTasksTotal(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasksTotal += n
}

// IncTasksStarted increments tasks-started by one.
func (s *SharedState) IncTasksStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasksStarted++
}

// CompleteTask records a completed task's duration for the ETC estimate.
func (s *SharedState) CompleteTask(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasksCompleted++
	s.timeCompleted += duration
}

// Counts is a point-in-time snapshot of the scheduling counters.
type Counts struct {
	Total         int64
	Started       int64
	Completed     int64
	TimeCompleted float64
}

// Snapshot returns the current counters, for completion polling and ETC.
func (s *SharedState) Snapshot() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Total:         s.tasksTotal,
		Started:       s.tasksStarted,
		Completed:     s.tasksCompleted,
		TimeCompleted: s.timeCompleted,
	}
}

// Done reports whether every known task has completed. Polled rather than
// joined, so tasks enqueued dynamically mid-run are always observed
// (spec.md §9).
func (s *SharedState) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasksCompleted >= s.tasksTotal
}
