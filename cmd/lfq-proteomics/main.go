// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the lfq-proteomics CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the lfq-proteomics CLI.
var rootCmd = &cobra.Command{
	Use:   "lfq-proteomics",
	Short: "Differential expression analysis for label-free proteomics",
	Long: `lfq-proteomics runs the DEG analysis of an imputed label-free intensity
matrix: normalization, PCA, per-contrast limma analysis through Rscript, and
the heatmap, volcano and enrichment analyses fanned out from each contrast.

Runs are described by a params file (YAML). Engine locations can be set in
lfq-proteomics.yaml, in a .env file, or with LFQ_PROTEOMICS_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
		fmt.Fprintf(os.Stderr, "Loaded environment from %s\n", envFile)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./lfq-proteomics.yaml or ~/.config/lfq-proteomics/config.yaml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before running")
	rootCmd.PersistentFlags().String("output-dir", "", "base output directory (overrides output_dir)")
	_ = viper.BindPFlag("output_dir", rootCmd.PersistentFlags().Lookup("output-dir"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("lfq-proteomics")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "lfq-proteomics"))
		}
	}

	viper.SetEnvPrefix("LFQ_PROTEOMICS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
