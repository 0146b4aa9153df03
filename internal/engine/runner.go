// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine invokes the external R analysis engine. Each analysis is an
// Rscript process whose last stdout lines carry its result.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrEngine is wrapped by every engine invocation failure.
var ErrEngine = errors.New("analysis engine failed")

// ProcessError reports an engine process that could not start, exited
// non-zero, or ran past its timeout.
type ProcessError struct {
	Script string
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("running %s: %v", e.Script, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ProcessError) Unwrap() []error { return []error{ErrEngine, e.Err} }

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, dir, name string, args []string) (stdout []string, stderr string, err error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) Run(ctx context.Context, dir, name string, args []string) ([]string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return splitLines(stdout.String()), tail(stderr.String(), 5), err
}

// splitLines returns the non-blank lines of s with trailing whitespace
// removed.
func splitLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimRight(l, " \t\r")
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// tail returns the last n non-blank lines of s joined by "; ".
func tail(s string, n int) string {
	lines := splitLines(s)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}

var defaultExec = &osExecutor{}
