package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEntryTask indicates the definition's entry task id is empty or
	// references a task that does not exist.
	ErrNoEntryTask = errors.New("entry task not found in task map")

	// ErrDanglingReference indicates a next-task or condition target
	// references a task id missing from the definition's task map.
	ErrDanglingReference = errors.New("dangling task reference")

	// ErrCyclicGraph indicates the task graph contains a cycle.
	ErrCyclicGraph = errors.New("task graph contains a cycle")
)

// ValidateGraph checks structural integrity of a definition's task graph:
// the entry task exists, every referenced task id exists, and the graph is a
// DAG. Cyclic definitions would loop forever at runtime, so they are rejected
// here instead.
func ValidateGraph(def *WorkflowDefinition) error {
	if def.EntryTaskID == "" || def.Tasks[def.EntryTaskID] == nil {
		return fmt.Errorf("%w: %q", ErrNoEntryTask, def.EntryTaskID)
	}

	for id, task := range def.Tasks {
		for _, next := range task.Successors() {
			if def.Tasks[next] == nil {
				return fmt.Errorf("%w: task %q references unknown task %q", ErrDanglingReference, id, next)
			}
		}
	}

	return checkAcyclic(def)
}

// checkAcyclic runs Kahn's algorithm over the successor edges; any task left
// with a nonzero in-degree sits on a cycle.
func checkAcyclic(def *WorkflowDefinition) error {
	inDegree := make(map[string]int, len(def.Tasks))
	for id := range def.Tasks {
		inDegree[id] = 0
	}

	for _, task := range def.Tasks {
		for _, next := range task.Successors() {
			inDegree[next]++
		}
	}

	queue := make([]string, 0, len(def.Tasks))
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, next := range def.Tasks[id].Successors() {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(def.Tasks) {
		remaining := make([]string, 0)

		for id, degree := range inDegree {
			if degree > 0 {
				remaining = append(remaining, id)
			}
		}

		return fmt.Errorf("%w: involving tasks %v", ErrCyclicGraph, remaining)
	}

	return nil
}
