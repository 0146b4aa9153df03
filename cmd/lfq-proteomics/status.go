// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alexdaiii/lfq-proteomics/internal/config"
	"github.com/alexdaiii/lfq-proteomics/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show recorded runs, or the contrasts and tasks of one run",
	Long: `Status reads the run ledger under the output directory. Without an
argument it lists the most recent runs. With a run id it shows the state of
every contrast, every task-graph node and the number of enrichment records
per contrast.

With --params (or LFQ_PROTEOMICS_PARAMS) the output directory is resolved from
the params file exactly as run resolves it, so a relative output_dir is taken
relative to the params file. Without it, --output-dir or output_dir is used
as given, relative to the current directory, defaulting to "output".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	outputDir, err := statusOutputDir(viper.GetString("params"), viper.GetString("output_dir"))
	if err != nil {
		return err
	}
	path := filepath.Join(outputDir, ledger.FileName)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no ledger at %s: %w", path, err)
	}

	ctx := context.Background()
	l, err := ledger.Open(ctx, path)
	if err != nil {
		return err
	}
	defer l.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if len(args) == 1 {
		d, err := l.Detail(ctx, args[0])
		if err != nil {
			return err
		}
		return formatDetail(d, jsonOutput)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := l.Runs(ctx, limit)
	if err != nil {
		return err
	}
	return formatRuns(runs, jsonOutput)
}

// statusOutputDir returns the directory holding the ledger: the one a run
// with paramsFile would use, or outputDir (default "output") without one.
func statusOutputDir(paramsFile, outputDir string) (string, error) {
	if paramsFile != "" {
		return config.OutputDir(paramsFile, outputDir)
	}
	if outputDir == "" {
		outputDir = "output"
	}
	return outputDir, nil
}

func formatRuns(runs []ledger.Run, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-10s  %-20s  %-10s  %s\n", "Run", "Status", "Started", "Duration", "Params")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, r := range runs {
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-10s  %-20s  %-10s  %s\n",
			r.ID, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04:05"), dur, r.ParamsFile)
	}
	fmt.Fprintf(os.Stdout, "\n%d runs\n", len(runs))
	return nil
}

func formatDetail(d *ledger.RunDetail, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(d)
	}

	fmt.Fprintf(os.Stdout, "Run %s: %s\n", d.Run.ID, d.Run.Status)
	fmt.Fprintf(os.Stdout, "Output: %s\n\n", d.Run.OutputDir)

	fmt.Fprintf(os.Stdout, "%-30s  %-16s  %-8s  %-11s  %s\n", "Contrast", "State", "Outcome", "Enrichment", "Report")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, c := range d.Contrasts {
		fmt.Fprintf(os.Stdout, "%-30s  %-16s  %-8s  %-11d  %s\n",
			c.Dir, c.State, c.Outcome, d.Enrichments[c.Dir], c.Report)
	}

	fmt.Fprintf(os.Stdout, "\n%-30s  %-12s  %-10s  %s\n", "Unit", "Branch", "State", "Error")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, t := range d.Tasks {
		unit := t.Unit
		if unit == "" {
			unit = "(run)"
		}
		msg := t.Error
		if len(msg) > 50 {
			msg = msg[:47] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-30s  %-12s  %-10s  %s\n", unit, t.Branch, t.State, msg)
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	statusCmd.Flags().String("params", "", "params file whose output_dir holds the ledger")
	statusCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlag("params", cmd.Flags().Lookup("params"))
	}
	statusCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	statusCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(statusCmd)
}
