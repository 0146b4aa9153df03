// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container detects a container runtime and builds the command
// lines that run the analysis engine inside an image.
package container

import (
	"fmt"
	"os/exec"
)

const (
	binDocker = "docker"
	binPodman = "podman"
)

// Runtime provides container operations: checking availability, verifying
// images, and wrapping a command so it runs in a container.
type Runtime interface {
	// Name returns the runtime name ("docker" or "podman").
	Name() string

	// Available reports whether the runtime binary exists on PATH and
	// responds to an info command.
	Available() bool

	// ImageExists checks whether the named image exists locally.
	// Returns nil when the image is found, or an error describing the failure.
	ImageExists(image string) error

	// Command returns the command line that runs argv in image. Each mount
	// is bound at the same path inside the container and workdir is the
	// working directory, so host paths stay valid in arguments and output.
	Command(image string, mounts []string, workdir string, argv []string) []string
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(name string, args ...string) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// runtime implements Runtime for a specific container binary. Both Docker
// and Podman share the same logic; they differ only in binary name and the
// subcommand used to check image existence.
type runtime struct {
	bin           string
	imageCheckCmd []string // e.g. ["image", "inspect"] for docker
	exec          executor
}

func (r *runtime) Name() string { return r.bin }

func (r *runtime) Available() bool {
	if _, err := r.exec.LookPath(r.bin); err != nil {
		return false
	}
	return r.exec.RunSilent(r.bin, "info") == nil
}

func (r *runtime) ImageExists(image string) error {
	args := make([]string, 0, len(r.imageCheckCmd)+1)
	args = append(args, r.imageCheckCmd...)
	args = append(args, image)

	if err := r.exec.RunSilent(r.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, r.bin, err)
	}
	return nil
}

func (r *runtime) Command(image string, mounts []string, workdir string, argv []string) []string {
	cmd := []string{r.bin, "run", "--rm"}
	seen := make(map[string]bool, len(mounts))
	for _, m := range mounts {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		cmd = append(cmd, "-v", m+":"+m)
	}
	if workdir != "" {
		cmd = append(cmd, "-w", workdir)
	}
	cmd = append(cmd, image)
	return append(cmd, argv...)
}

func newDockerRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binDocker,
		imageCheckCmd: []string{"image", "inspect"},
		exec:          exec,
	}
}

func newPodmanRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binPodman,
		imageCheckCmd: []string{"image", "exists"},
		exec:          exec,
	}
}

var defaultExec = &osExecutor{}

// Detect returns the named runtime, or for an empty name tries docker
// first and falls back to podman. Returns an error if the runtime is
// unknown or not operational.
func Detect(name string) (Runtime, error) {
	return detect(name, defaultExec)
}

func detect(name string, exec executor) (Runtime, error) {
	var candidates []*runtime
	switch name {
	case "":
		candidates = []*runtime{newDockerRuntime(exec), newPodmanRuntime(exec)}
	case binDocker:
		candidates = []*runtime{newDockerRuntime(exec)}
	case binPodman:
		candidates = []*runtime{newPodmanRuntime(exec)}
	default:
		return nil, fmt.Errorf("unknown container runtime %q: use %s or %s", name, binDocker, binPodman)
	}

	for _, rt := range candidates {
		if rt.Available() {
			return rt, nil
		}
	}
	if name != "" {
		return nil, fmt.Errorf("container runtime %s not found or not operational", name)
	}
	return nil, fmt.Errorf(
		"no container runtime available: neither %s nor %s found or operational",
		binDocker, binPodman,
	)
}
