package models

import "time"

// TaskKind determines how the engine treats a task during traversal.
type TaskKind string

const (
	TaskKindAction        TaskKind = "action"
	TaskKindDecision      TaskKind = "decision"
	TaskKindParallel      TaskKind = "parallel"
	TaskKindWait          TaskKind = "wait"
	TaskKindHumanApproval TaskKind = "human_approval"
	TaskKindSubWorkflow   TaskKind = "sub_workflow"
)

// ConditionBranch pairs a parsed condition with the task it selects. Decision
// tasks evaluate their branches in declared order; the first match wins.
type ConditionBranch struct {
	When   Condition `json:"when"`
	Target string    `json:"target" validate:"required"`
}

// TaskDefinition describes one node of a workflow graph. Every id referenced
// in NextTasks or in a condition target must exist in the owning definition's
// task map, and the graph formed by those references must be acyclic; the
// definition store rejects anything else at registration.
type TaskDefinition struct {
	ID           string            `json:"id"   validate:"required"`
	Name         string            `json:"name" validate:"required"`
	Kind         TaskKind          `json:"kind" validate:"required"`
	Handler      string            `json:"handler"`
	Config       map[string]any    `json:"config,omitempty"`
	Timeout      time.Duration     `json:"timeout,omitempty"`
	NextTasks    []string          `json:"next_tasks,omitempty"`
	Conditions   []ConditionBranch `json:"conditions,omitempty"`
	Retry        *RetryPolicy      `json:"retry,omitempty"`
	ErrorHandler string            `json:"error_handler,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

// Successors returns every task id this task can hand control to, in declared
// order: NextTasks first, then condition targets.
func (t *TaskDefinition) Successors() []string {
	out := make([]string, 0, len(t.NextTasks)+len(t.Conditions))
	out = append(out, t.NextTasks...)

	for _, branch := range t.Conditions {
		out = append(out, branch.Target)
	}

	return out
}
