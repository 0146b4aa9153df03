// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dag

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Observer is told about every state change. Calls come from a single
// goroutine, in order.
type Observer func(id NodeID, state TaskState, err error)

// Options controls Run.
type Options struct {
	// Concurrency bounds the number of tasks running at once. Values below
	// 1 mean 1.
	Concurrency int

	Observer Observer
}

// Result is the final state of every node.
type Result struct {
	States map[NodeID]TaskState

	// Errors holds the error of every FAILED node.
	Errors map[NodeID]error

	// Order lists nodes in the order they were dispatched.
	Order []NodeID
}

// Count returns how many nodes ended in state s.
func (r *Result) Count(s TaskState) int {
	n := 0
	for _, st := range r.States {
		if st == s {
			n++
		}
	}
	return n
}

type completion struct {
	node int
	err  error
}

// Run executes g. Whenever a node finishes, every node it unblocks is
// dispatched, up to the concurrency limit. A failed node skips its
// dependents but never its siblings or other units. When ctx is cancelled
// no new node starts and every pending node is skipped; Run still waits for
// running tasks. The returned error reports only executor faults; task
// failures are in the Result.
func Run(ctx context.Context, g *Graph, opts Options) (*Result, error) {
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	res := &Result{
		States: make(map[NodeID]TaskState, len(g.nodes)),
		Errors: make(map[NodeID]error),
	}
	var lastErr error
	st := newRunState(g, func(i int, s TaskState) {
		id := g.nodes[i].ID
		res.States[id] = s
		var err error
		if s == TaskFailed {
			err = lastErr
		}
		if opts.Observer != nil {
			opts.Observer(id, s, err)
		}
	})
	for i, n := range g.nodes {
		res.States[n.ID] = st.states[i]
	}

	// Buffered so finishing workers never block on the coordinator.
	done := make(chan completion, len(g.nodes))
	var eg errgroup.Group
	eg.SetLimit(limit)

	running := 0
	var fault error
	for fault == nil {
		if ctx.Err() == nil {
			for _, i := range st.ready() {
				if err := st.transition(i, TaskRunning); err != nil {
					fault = err
					break
				}
				res.Order = append(res.Order, g.nodes[i].ID)
				running++
				node := g.nodes[i]
				idx := i
				eg.Go(func() error {
					done <- completion{node: idx, err: runTask(ctx, node)}
					return nil
				})
			}
		}
		if running == 0 {
			break
		}

		c := <-done
		running--
		if c.err == nil {
			fault = st.transition(c.node, TaskCompleted)
			continue
		}
		lastErr = c.err
		res.Errors[g.nodes[c.node].ID] = c.err
		fault = st.fail(c.node)
	}

	_ = eg.Wait()
	if fault != nil {
		return res, fault
	}
	if ctx.Err() != nil {
		st.skipPending()
		return res, nil
	}
	if !st.done() {
		return res, fmt.Errorf("no ready nodes but graph not finished")
	}
	return res, nil
}

func runTask(ctx context.Context, n Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Node: n.ID, Value: r}
		}
	}()
	return n.Task(ctx)
}
