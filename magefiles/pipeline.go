//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// paramsFile returns $PARAMS or params.yaml.
func paramsFile() string {
	if p := os.Getenv("PARAMS"); p != "" {
		return p
	}
	return "params.yaml"
}

// Contrasts validates the inputs and exports the per-contrast engine inputs.
func Contrasts() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "contrasts", paramsFile())
}

// Run executes the full analysis for $PARAMS (default params.yaml).
func Run() error {
	mg.Deps(Build, Init)
	if _, err := os.Stat(paramsFile()); err != nil {
		return fmt.Errorf("params file: %w", err)
	}
	return sh.RunV(binPath(), "run", paramsFile())
}

// Status lists the recorded runs.
func Status() error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "status")
}
