// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph = errors.New("invalid task graph")
	ErrCycle        = errors.New("cycle detected")
)

// GraphError reports a graph that failed validation.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(nodes []NodeID) error {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.String()
	}
	return &GraphError{Kind: ErrCycle, Msg: "nodes on or behind a cycle: " + strings.Join(names, ", ")}
}

// PanicError is the failure recorded for a task that panicked.
type PanicError struct {
	Node  NodeID
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Node, e.Value)
}
