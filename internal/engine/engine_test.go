// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	availableBins map[string]bool
	runFunc       func(ctx context.Context, dir, name string, args []string) ([]string, string, error)

	mu    sync.Mutex
	calls [][]string
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) Run(ctx context.Context, dir, name string, args []string) ([]string, string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string{dir, name}, args...))
	m.mu.Unlock()
	if m.runFunc != nil {
		return m.runFunc(ctx, dir, name, args)
	}
	return nil, "", nil
}

func engineConfig() types.EngineConfig {
	return types.EngineConfig{
		RscriptBin:     "Rscript",
		ScriptsDir:     "/scripts",
		IgnoredLinters: []string{"object_usage_linter"},
	}
}

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestInvokeBuildsCommand(t *testing.T) {
	exec := &mockExecutor{}
	r := newRscript(engineConfig(), exec, io.Discard)

	_, err := r.Invoke(context.Background(), ScriptLimma, []Arg{{"counts", "c.csv"}, {"contrast_1", "MUT"}})
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, []string{"/scripts", "Rscript", "/scripts/limma.R", "--counts", "c.csv", "--contrast_1", "MUT"}, exec.calls[0])
}

func TestInvokeProcessError(t *testing.T) {
	exec := &mockExecutor{runFunc: func(context.Context, string, string, []string) ([]string, string, error) {
		return nil, "Error in library(limma)", errors.New("exit status 1")
	}}
	r := newRscript(engineConfig(), exec, io.Discard)

	_, err := r.Invoke(context.Background(), ScriptLimma, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngine))
	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ScriptLimma, perr.Script)
	assert.Contains(t, err.Error(), "Error in library(limma)")
}

func TestInvokeTimeout(t *testing.T) {
	cfg := engineConfig()
	cfg.Timeout = 10 * time.Millisecond
	exec := &mockExecutor{runFunc: func(ctx context.Context, _, _ string, _ []string) ([]string, string, error) {
		<-ctx.Done()
		return nil, "", errors.New("signal: killed")
	}}
	r := newRscript(cfg, exec, io.Discard)

	_, err := r.Invoke(context.Background(), ScriptLimma, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngine))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLint(t *testing.T) {
	tests := []struct {
		name    string
		output  []string
		wantErr bool
	}{
		{name: "clean", output: []string{"no lints found"}},
		{
			name:   "ignored linter",
			output: []string{"/scripts/limma.R:3:1: warning: [object_usage_linter] no visible binding"},
		},
		{
			name:   "style note is not a warning",
			output: []string{"/scripts/limma.R:3:1: style: [line_length_linter] lines should not be more than 80 characters"},
		},
		{
			name:    "warning fails",
			output:  []string{"/scripts/limma.R:9:5: warning: [seq_linter] use seq_len"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := engineConfig()
			cfg.Lint = true
			exec := &mockExecutor{runFunc: func(_ context.Context, _, _ string, args []string) ([]string, string, error) {
				if args[0] == "-e" {
					return tt.output, "", nil
				}
				return []string{"ok"}, "", nil
			}}
			r := newRscript(cfg, exec, io.Discard)

			for i := 0; i < 2; i++ {
				_, err := r.Invoke(context.Background(), ScriptLimma, nil)
				if tt.wantErr {
					var lerr *LintError
					require.True(t, errors.As(err, &lerr))
					assert.True(t, errors.Is(err, ErrEngine))
				} else {
					require.NoError(t, err)
				}
			}

			var lintCalls int
			for _, c := range exec.calls {
				if c[2] == "-e" {
					lintCalls++
					assert.Contains(t, c[3], "lintr::lint(filename = '/scripts/limma.R')")
				}
			}
			assert.Equal(t, 1, lintCalls, "lint runs once per script")
		})
	}
}

func TestLintRetriedAfterInterruption(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
	}{
		{name: "cancelled", ctx: func() (context.Context, context.CancelFunc) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx, cancel
		}},
		{name: "timed out", ctx: func() (context.Context, context.CancelFunc) {
			return context.WithCancel(context.Background())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := engineConfig()
			cfg.Lint = true
			cfg.Timeout = 20 * time.Millisecond
			var lintCalls int
			exec := &mockExecutor{runFunc: func(ctx context.Context, _, _ string, args []string) ([]string, string, error) {
				if args[0] != "-e" {
					return []string{"ok"}, "", nil
				}
				lintCalls++
				if lintCalls == 1 {
					<-ctx.Done()
					return nil, "", errors.New("signal: killed")
				}
				return []string{"no lints found"}, "", nil
			}}
			r := newRscript(cfg, exec, io.Discard)

			ctx, cancel := tt.ctx()
			_, err := r.Invoke(ctx, ScriptLimma, nil)
			cancel()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEngine))

			_, err = r.Invoke(context.Background(), ScriptLimma, nil)
			require.NoError(t, err)
			assert.Equal(t, 2, lintCalls)

			_, err = r.Invoke(context.Background(), ScriptLimma, nil)
			require.NoError(t, err)
			assert.Equal(t, 2, lintCalls, "a completed lint is cached")
		})
	}
}

func TestAvailable(t *testing.T) {
	r := newRscript(engineConfig(), &mockExecutor{availableBins: map[string]bool{"Rscript": true}}, nil)
	assert.NoError(t, r.Available())

	r = newRscript(engineConfig(), &mockExecutor{}, nil)
	assert.True(t, errors.Is(r.Available(), ErrEngine))
}

// fakeRuntime builds docker-style command lines without a daemon.
type fakeRuntime struct{ missing bool }

func (f *fakeRuntime) Name() string { return "docker" }

func (f *fakeRuntime) ImageExists(image string) error {
	if f.missing {
		return errors.New("no such image " + image)
	}
	return nil
}

func (f *fakeRuntime) Command(image string, mounts []string, workdir string, argv []string) []string {
	cmd := []string{"docker", "run"}
	for _, m := range mounts {
		cmd = append(cmd, "-v", m)
	}
	cmd = append(cmd, "-w", workdir, image)
	return append(cmd, argv...)
}

func TestInvokeInContainer(t *testing.T) {
	exec := &mockExecutor{}
	r := newRscript(engineConfig(), exec, io.Discard).InContainer(&fakeRuntime{}, "r-limma:4", "/data/out")

	_, err := r.Invoke(context.Background(), ScriptLimma, []Arg{{"counts", "/data/out/c.csv"}})
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, []string{"/scripts", "docker", "run", "-v", "/scripts", "-v", "/data/out", "-w", "/scripts",
		"r-limma:4", "Rscript", "/scripts/limma.R", "--counts", "/data/out/c.csv"}, exec.calls[0])

	// The host Rscript is not needed when the image exists.
	assert.NoError(t, r.Available())
	missing := newRscript(engineConfig(), exec, nil).InContainer(&fakeRuntime{missing: true}, "r-limma:4")
	assert.True(t, errors.Is(missing.Available(), ErrEngine))
}

// stubInvoker returns fixed stdout for every script.
type stubInvoker struct {
	lines  []string
	err    error
	script string
	args   []Arg
}

func (s *stubInvoker) Invoke(_ context.Context, script string, args []Arg) ([]string, error) {
	s.script, s.args = script, args
	return s.lines, s.err
}

func TestRunLimma(t *testing.T) {
	dir := t.TempDir()
	result := touch(t, filepath.Join(dir, "MUT_vs_WT_deg_limma.csv"))

	tests := []struct {
		name      string
		inv       *stubInvoker
		wantEmpty bool
		wantErr   bool
	}{
		{name: "existing result", inv: &stubInvoker{lines: []string{"reading", result + "  "}}},
		{name: "no output", inv: &stubInvoker{}, wantEmpty: true},
		{name: "missing file", inv: &stubInvoker{lines: []string{filepath.Join(dir, "nope.csv")}}, wantEmpty: true},
		{name: "process error", inv: &stubInvoker{err: &ProcessError{Script: ScriptLimma, Err: errors.New("exit 1")}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &REngine{r: tt.inv}
			out, err := e.RunLimma(context.Background(), LimmaRequest{
				Counts: "c.csv", Metadata: "m.csv", OutputDir: dir, SigOutputDir: dir,
				Contrast: "MUT_vs_WT", GroupA: "MUT", GroupB: "WT",
			})
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrEngine))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ScriptLimma, tt.inv.script)
			assert.Equal(t, Arg{"contrast_name", "MUT_vs_WT"}, tt.inv.args[4])
			if tt.wantEmpty {
				assert.True(t, out.IsEmpty())
				assert.NotEmpty(t, out.Reason)
				return
			}
			assert.False(t, out.IsEmpty())
			assert.Equal(t, result, out.ResultPath)
		})
	}
}

func TestImagePath(t *testing.T) {
	dir := t.TempDir()
	png := touch(t, filepath.Join(dir, "volcano.png"))
	pdf := touch(t, filepath.Join(dir, "volcano.pdf"))

	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{name: "R print prefix and quotes", lines: []string{`[1] "` + png + `"`}, want: png},
		{name: "bare path", lines: []string{"log", png}, want: png},
		{name: "not a png", lines: []string{`[1] "` + pdf + `"`}},
		{name: "missing file", lines: []string{`[1] "` + filepath.Join(dir, "x.png") + `"`}},
		{name: "no output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, imagePath(tt.lines))
		})
	}
}

func TestRunVolcanoAndHeatmapArgs(t *testing.T) {
	dir := t.TempDir()
	png := touch(t, filepath.Join(dir, "plot.png"))
	inv := &stubInvoker{lines: []string{`[1] "` + png + `"`}}
	e := &REngine{r: inv}

	vc := types.VolcanoConfig{UpregulatedColor: "red", DownregulatedColor: "royalblue", NotSigColor: "black"}
	vc.FCThreshold = 1.5
	vc.PvalThreshold = 0.05
	got, err := e.RunVolcano(context.Background(), VolcanoRequest{Input: "in.csv", OutputDir: dir, Experiment: "MUT_vs_WT", Volcano: vc})
	require.NoError(t, err)
	assert.Equal(t, png, got)
	assert.Equal(t, ScriptVolcano, inv.script)
	assert.Contains(t, inv.args, Arg{"fc_threshold", "1.5"})
	assert.Contains(t, inv.args, Arg{"upregulated_color", "red"})

	hc := types.HeatmapConfig{UseZScore: true, Palette: []string{"royalblue", "white", "red"}}
	got, err = e.RunHeatmap(context.Background(), HeatmapRequest{Matrix: "de.csv", Metadata: "m.csv", OutputDir: dir, Heatmap: hc})
	require.NoError(t, err)
	assert.Equal(t, png, got)
	assert.Equal(t, ScriptHeatmap, inv.script)
	assert.Contains(t, inv.args, Arg{"palette", "royalblue,white,red"})
	assert.Contains(t, inv.args, Arg{"use_z_score", "true"})
}

func TestRunEnrichmentReturnsLines(t *testing.T) {
	inv := &stubInvoker{lines: []string{"a", "b"}}
	e := &REngine{r: inv}
	lines, err := e.RunEnrichment(context.Background(), EnrichmentRequest{Input: "in.csv", Enrichment: types.EnrichmentConfig{Organism: "mmu"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
	assert.Equal(t, Arg{"organism", "mmu"}, inv.args[len(inv.args)-1])
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "  b"}, splitLines("a\r\n\n  b  \n"))
	assert.Equal(t, "c; d", tail("a\nb\nc\nd\n", 2))
	assert.True(t, strings.HasPrefix((&ProcessError{Script: "x", Err: errors.New("boom")}).Error(), "running x"))
}
