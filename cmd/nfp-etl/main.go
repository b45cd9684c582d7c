// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the nfp-etl CLI: staged extraction of
// nanomaterial fluorescent probe data from papers, reconciliation into
// per-sample records, and a queryable results warehouse.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshintel/nfp-etl/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback if non-empty, else the named secret.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the nfp-etl CLI.
var rootCmd = &cobra.Command{
	Use:   "nfp-etl",
	Short: "Staged extraction of fluorescent-probe data from papers",
	Long: `nfp-etl runs schema-constrained extraction stages over papers about
nanomaterial fluorescent probes, reconciles the per-stage outputs into one
validated record per physical sample, and maintains a queryable SQLite
warehouse over the merged results.

Each step is a subcommand: extract runs the staged pipeline over PDFs (or
replays captured raw outputs), stages prints the stage field tables, and
store indexes, queries, and exports the merged results.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./nfp-etl.yaml or ~/.config/nfp-etl/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("nfp-etl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "nfp-etl"))
		}
	}

	viper.SetEnvPrefix("NFP_ETL")
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
