// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alexdaiii/lfq-proteomics/internal/config"
	"github.com/alexdaiii/lfq-proteomics/internal/container"
	"github.com/alexdaiii/lfq-proteomics/internal/engine"
	"github.com/alexdaiii/lfq-proteomics/internal/ledger"
	"github.com/alexdaiii/lfq-proteomics/internal/pipeline"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// --- run subcommand ---

var runCmd = &cobra.Command{
	Use:   "run [params.yaml]",
	Short: "Run the DEG analysis described by a params file",
	Long: `Run loads the imputed intensity matrix and sample metadata, normalizes the
matrix, exports one engine input per contrast and runs the task graph:
limma per contrast, then heatmap, volcano and enrichment, the KEGG gene-id
fix-up and a per-contrast report. Contrasts run independently; a failed
contrast does not stop the others.

With r.container.image set, Rscript runs inside that image under docker or
podman, with the scripts and output directories bind-mounted.

Output goes to <output_dir>/<run id>/. Each run is recorded in
<output_dir>/ledger.db; see "lfq-proteomics status".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	paramsFile, cfg, err := loadParams(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := engine.NewRscript(cfg.Engine, os.Stdout)
	if box := cfg.Engine.Container; box.Image != "" {
		rt, err := container.Detect(box.Runtime)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "engine: %s image %s\n", rt.Name(), box.Image)
		r.InContainer(rt, box.Image, cfg.OutputDir)
	}
	if err := r.Available(); err != nil {
		return err
	}

	l, err := ledger.Open(ctx, filepath.Join(cfg.OutputDir, ledger.FileName))
	if err != nil {
		return err
	}
	defer l.Close()

	p := pipeline.New(cfg, engine.NewREngine(r), l, os.Stdout)
	p.ParamsFile = paramsFile
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if res.Failed() > 0 {
		return fmt.Errorf("%d task(s) failed; see %s", res.Failed(), res.RunDir)
	}
	return nil
}

// --- contrasts subcommand ---

var contrastsCmd = &cobra.Command{
	Use:   "contrasts [params.yaml]",
	Short: "Validate inputs and export the per-contrast engine inputs",
	Long: `Contrasts runs the preparation stage only: it validates the metadata against
the intensity matrix, normalizes, resolves every contrast to its sample
columns and writes the counts and label files the engine reads. No engine
process is started.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runContrasts,
}

func runContrasts(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadParams(cmd, args)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, nil, nil, os.Stderr)
	plan, err := p.Prepare(context.Background())
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatContrasts(plan, jsonOutput)
}

func formatContrasts(plan *pipeline.Plan, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(plan.Artifacts)
	}

	fmt.Fprintf(os.Stdout, "%-30s  %-24s  %-24s  %6s  %s\n", "Contrast", "Group A", "Group B", "Genes", "Counts")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for i, a := range plan.Artifacts {
		c := plan.Contrasts[i]
		fmt.Fprintf(os.Stdout, "%-30s  %-24s  %-24s  %6d  %s\n",
			a.Name,
			fmt.Sprintf("%s (%d)", a.GroupA, len(c.GroupASamples)),
			fmt.Sprintf("%s (%d)", a.GroupB, len(c.GroupBSamples)),
			a.Genes, a.CountsFile)
	}
	fmt.Fprintf(os.Stdout, "\n%d contrasts exported to %s\n", len(plan.Artifacts), plan.RunDir)
	return nil
}

// --- shared helpers ---

// loadParams resolves the params file from the argument, --params or
// LFQ_PROTEOMICS_PARAMS and loads it with flag and environment overrides.
func loadParams(cmd *cobra.Command, args []string) (string, types.PipelineConfig, error) {
	paramsFile := viper.GetString("params")
	if len(args) > 0 {
		paramsFile = args[0]
	}
	if paramsFile == "" {
		return "", types.PipelineConfig{}, fmt.Errorf("params file required: pass it as an argument or with --params")
	}
	cfg, err := config.Load(paramsFile, overrides())
	if err != nil {
		return "", cfg, err
	}
	return paramsFile, cfg, nil
}

func overrides() config.Overrides {
	o := config.Overrides{
		OutputDir:   viper.GetString("output_dir"),
		Concurrency: viper.GetInt("concurrency"),
		RscriptBin:  viper.GetString("rscript_bin"),
		ScriptsDir:  viper.GetString("scripts_dir"),
		Timeout:     viper.GetDuration("timeout"),
	}
	if viper.IsSet("lint") {
		lint := viper.GetBool("lint")
		o.Lint = &lint
	}
	return o
}

func addParamsFlags(cmd *cobra.Command) {
	cmd.Flags().String("params", "", "params file (YAML)")
	cmd.Flags().Int("concurrency", 0, "maximum tasks running at once (overrides concurrency)")
	cmd.Flags().String("rscript", "", "Rscript executable (overrides r.rscript_bin)")
	cmd.Flags().String("scripts-dir", "", "directory of the R scripts (overrides r.scripts_dir)")
	cmd.Flags().Duration("timeout", 0, "limit for one engine invocation (overrides r.timeout)")
	cmd.Flags().Bool("lint", false, "lint each R script before its first use (overrides r.lint)")
}

// bindParamsFlags binds the flags of the command being run. Binding in
// PreRunE keeps the two commands from overwriting each other's bindings.
func bindParamsFlags(cmd *cobra.Command, args []string) error {
	for key, flag := range map[string]string{
		"params":      "params",
		"concurrency": "concurrency",
		"rscript_bin": "rscript",
		"scripts_dir": "scripts-dir",
		"timeout":     "timeout",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	// Only an explicit --lint overrides the params file.
	if cmd.Flags().Changed("lint") {
		lint, _ := cmd.Flags().GetBool("lint")
		viper.Set("lint", lint)
	}
	return nil
}

func init() {
	addParamsFlags(runCmd)
	addParamsFlags(contrastsCmd)
	runCmd.PreRunE = bindParamsFlags
	contrastsCmd.PreRunE = bindParamsFlags
	contrastsCmd.Flags().Bool("json", false, "output artifacts as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(contrastsCmd)
}
