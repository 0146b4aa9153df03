// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// containerRscript is the Rscript binary inside a container image.
const containerRscript = "Rscript"

// Arg is one "--flag value" pair of an engine invocation.
type Arg struct {
	Flag  string
	Value string
}

// lintPattern matches lintr output such as
// "limma.R:12:3: warning: [object_usage_linter] ...".
var lintPattern = regexp.MustCompile(`R:\d+:\d+: (\w+): \[(\w+)\]`)

// LintError reports lint warnings that are not in the ignored set.
type LintError struct {
	Script string
	Lines  []string
}

func (e *LintError) Error() string {
	return fmt.Sprintf("lint %s: %d warnings: %v", e.Script, len(e.Lines), e.Lines)
}

func (e *LintError) Unwrap() error { return ErrEngine }

// Rscript runs scripts from a scripts directory with the configured Rscript
// binary. It is safe for concurrent use.
type Rscript struct {
	cfg  types.EngineConfig
	exec executor
	w    io.Writer

	box *sandbox

	mu     sync.Mutex
	linted map[string]error
}

// Runtime wraps a command so that it runs inside a container image.
type Runtime interface {
	Name() string
	ImageExists(image string) error
	Command(image string, mounts []string, workdir string, argv []string) []string
}

// sandbox is the container an Rscript runs its scripts in.
type sandbox struct {
	rt     Runtime
	image  string
	mounts []string
}

// NewRscript returns an Rscript for cfg. Progress lines go to w.
func NewRscript(cfg types.EngineConfig, w io.Writer) *Rscript {
	return newRscript(cfg, defaultExec, w)
}

func newRscript(cfg types.EngineConfig, exec executor, w io.Writer) *Rscript {
	if w == nil {
		w = io.Discard
	}
	return &Rscript{cfg: cfg, exec: exec, w: w, linted: make(map[string]error)}
}

// InContainer makes r run every script with Rscript inside image. The
// scripts directory and mounts are bound at their host paths.
func (r *Rscript) InContainer(rt Runtime, image string, mounts ...string) *Rscript {
	r.box = &sandbox{rt: rt, image: image, mounts: append([]string{r.cfg.ScriptsDir}, mounts...)}
	return r
}

// Available reports whether the Rscript binary, or the container image
// when running in a container, can be found.
func (r *Rscript) Available() error {
	if r.box != nil {
		if err := r.box.rt.ImageExists(r.box.image); err != nil {
			return &ProcessError{Script: r.box.rt.Name(), Err: err}
		}
		return nil
	}
	if _, err := r.exec.LookPath(r.cfg.RscriptBin); err != nil {
		return &ProcessError{Script: r.cfg.RscriptBin, Err: err}
	}
	return nil
}

// Invoke runs script with args in the scripts directory and returns its
// stdout lines. A non-zero exit, a start failure, or a timeout is a
// *ProcessError.
func (r *Rscript) Invoke(ctx context.Context, script string, args []Arg) ([]string, error) {
	if r.cfg.Lint {
		if err := r.lint(ctx, script); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(r.cfg.ScriptsDir, script)
	argv := make([]string, 0, 1+2*len(args))
	argv = append(argv, path)
	for _, a := range args {
		argv = append(argv, "--"+a.Flag, a.Value)
	}

	fmt.Fprintf(r.w, "engine: %s\n", script)
	lines, stderr, err := r.run(ctx, argv)
	if err != nil {
		return nil, &ProcessError{Script: script, Stderr: stderr, Err: err}
	}
	return lines, nil
}

func (r *Rscript) run(ctx context.Context, argv []string) ([]string, string, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	bin := r.cfg.RscriptBin
	if r.box != nil {
		cmd := r.box.rt.Command(r.box.image, r.box.mounts, r.cfg.ScriptsDir, append([]string{containerRscript}, argv...))
		bin, argv = cmd[0], cmd[1:]
	}
	lines, stderr, err := r.exec.Run(ctx, r.cfg.ScriptsDir, bin, argv)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w (%v)", ctx.Err(), err)
	}
	return lines, stderr, err
}

// lint runs lintr on script once; later calls return the cached result.
// A lint cut short by cancellation or a timeout is not cached.
func (r *Rscript) lint(ctx context.Context, script string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, done := r.linted[script]; done {
		return err
	}

	path := filepath.Join(r.cfg.ScriptsDir, script)
	expr := fmt.Sprintf("lintr::lint(filename = '%s')", path)
	lines, stderr, err := r.run(ctx, []string{"-e", expr})
	if err != nil {
		err = &ProcessError{Script: "lint " + script, Stderr: stderr, Err: err}
	} else if bad := r.lintWarnings(lines); len(bad) > 0 {
		err = &LintError{Script: script, Lines: bad}
	}
	if ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		r.linted[script] = err
	}
	return err
}

// lintWarnings returns the lines with a warning from a linter that is not
// ignored.
func (r *Rscript) lintWarnings(lines []string) []string {
	ignored := make(map[string]bool, len(r.cfg.IgnoredLinters))
	for _, l := range r.cfg.IgnoredLinters {
		ignored[l] = true
	}
	var bad []string
	for _, line := range lines {
		for _, m := range lintPattern.FindAllStringSubmatch(line, -1) {
			if m[1] == "warning" && !ignored[m[2]] {
				bad = append(bad, line)
				break
			}
			fmt.Fprintf(r.w, "lint: ignoring %s [%s]\n", m[1], m[2])
		}
	}
	return bad
}
