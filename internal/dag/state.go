// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dag

import "fmt"

// TaskState is the runtime state of a node.
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
	TaskSkipped   TaskState = "SKIPPED"
)

// IsTerminal reports whether s is a finished state.
func IsTerminal(s TaskState) bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped:
		return true
	}
	return false
}

func allowed(from, to TaskState) bool {
	switch from {
	case TaskPending:
		return to == TaskRunning || to == TaskSkipped
	case TaskRunning:
		return to == TaskCompleted || to == TaskFailed
	}
	return false
}

// runState is the per-run node state, indexed like Graph.nodes. It is owned
// by the executor's coordinator goroutine.
type runState struct {
	g      *Graph
	states []TaskState
	notify func(i int, s TaskState)
}

func newRunState(g *Graph, notify func(int, TaskState)) *runState {
	st := &runState{g: g, states: make([]TaskState, len(g.nodes)), notify: notify}
	for i := range st.states {
		st.states[i] = TaskPending
	}
	return st
}

func (st *runState) transition(i int, to TaskState) error {
	from := st.states[i]
	if !allowed(from, to) {
		return fmt.Errorf("invalid transition for %s: %s -> %s", st.g.nodes[i].ID, from, to)
	}
	st.states[i] = to
	if st.notify != nil {
		st.notify(i, to)
	}
	return nil
}

// ready returns the pending nodes whose dependencies allow them to run, in
// insertion order.
func (st *runState) ready() []int {
	var out []int
	for i, s := range st.states {
		if s != TaskPending {
			continue
		}
		barrier := st.g.nodes[i].Barrier
		ok := true
		for _, d := range st.g.incoming[i] {
			ds := st.states[d]
			if (barrier && !IsTerminal(ds)) || (!barrier && ds != TaskCompleted) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// fail marks node i FAILED and skips every pending non-barrier node
// reachable from it. Barrier nodes stop the propagation; they run once
// their dependencies are terminal.
func (st *runState) fail(i int) error {
	if err := st.transition(i, TaskFailed); err != nil {
		return err
	}
	visited := make([]bool, len(st.states))
	visited[i] = true
	queue := append([]int(nil), st.g.outgoing[i]...)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		if visited[u] {
			continue
		}
		visited[u] = true
		if st.g.nodes[u].Barrier {
			continue
		}
		switch st.states[u] {
		case TaskPending:
			if err := st.transition(u, TaskSkipped); err != nil {
				return err
			}
		case TaskRunning:
			return fmt.Errorf("dependent %s of failed %s is running", st.g.nodes[u].ID, st.g.nodes[i].ID)
		}
		queue = append(queue, st.g.outgoing[u]...)
	}
	return nil
}

// skipPending marks every pending node SKIPPED.
func (st *runState) skipPending() {
	for i, s := range st.states {
		if s == TaskPending {
			_ = st.transition(i, TaskSkipped)
		}
	}
}

func (st *runState) done() bool {
	for _, s := range st.states {
		if !IsTerminal(s) {
			return false
		}
	}
	return true
}
