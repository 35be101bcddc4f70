package task

import (
	"errors"
	"fmt"
	"sort"
)

// VerifyDAG checks that the blocked_by edges of tasks form a Directed Acyclic Graph.
// Edges to ids outside the set are ignored.
func VerifyDAG(tasks []Task) error {
	taskMap := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return errors.New("task ID cannot be empty")
		}
		taskMap[t.ID] = t
	}

	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var checkCycle func(taskID string) error
	checkCycle = func(taskID string) error {
		visited[taskID] = true
		recursionStack[taskID] = true

		t, exists := taskMap[taskID]
		if !exists {
			recursionStack[taskID] = false
			return nil
		}

		for _, depID := range t.BlockedBy {
			if !visited[depID] {
				if err := checkCycle(depID); err != nil {
					return err
				}
			} else if recursionStack[depID] {
				return fmt.Errorf("%w: %s -> %s", ErrCycle, taskID, depID)
			}
		}

		recursionStack[taskID] = false
		return nil
	}

	for _, t := range tasks {
		if !visited[t.ID] {
			if err := checkCycle(t.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

// TopologicalSort returns tasks in dependency order (blockers first) using Kahn's
// algorithm. Among tasks that are ready at the same time, the one created first
// goes first; equal timestamps keep input order.
//
// If the edges contain a cycle, the tasks that could not be ordered are appended in
// creation order and an error wrapping ErrCycle is returned with the full list.
func TopologicalSort(tasks []Task) ([]Task, error) {
	n := len(tasks)
	index := make(map[string]int, n)
	for i, t := range tasks {
		index[t.ID] = i
	}

	inDegree := make([]int, n)
	dependents := make([][]int, n)
	for i, t := range tasks {
		seen := make(map[int]bool, len(t.BlockedBy))
		for _, dep := range t.BlockedBy {
			j, ok := index[dep]
			if !ok || j == i || seen[j] {
				continue
			}
			seen[j] = true
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// before orders two task positions by creation time, then input position.
	before := func(a, b int) bool {
		ta, tb := tasks[a].CreatedAt, tasks[b].CreatedAt
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a < b
	}

	var ready []int
	for i := range tasks {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	sorted := make([]Task, 0, n)
	placed := make([]bool, n)
	for len(ready) > 0 {
		sort.SliceStable(ready, func(x, y int) bool { return before(ready[x], ready[y]) })
		next := ready[0]
		ready = ready[1:]
		sorted = append(sorted, tasks[next])
		placed[next] = true

		for _, d := range dependents[next] {
			inDegree[d]--
			if inDegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(sorted) == n {
		return sorted, nil
	}

	var leftover []int
	for i := range tasks {
		if !placed[i] {
			leftover = append(leftover, i)
		}
	}
	sort.SliceStable(leftover, func(x, y int) bool { return before(leftover[x], leftover[y]) })
	ids := make([]string, 0, len(leftover))
	for _, i := range leftover {
		sorted = append(sorted, tasks[i])
		ids = append(ids, tasks[i].ID)
	}
	return sorted, fmt.Errorf("%w among tasks %v", ErrCycle, ids)
}
