// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meshintel/nfp-etl/internal/store"
	"github.com/meshintel/nfp-etl/pkg/types"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the results warehouse (index, query, export)",
	Long: `Store manages a local SQLite warehouse built from per-paper result
files. Use subcommands to index results, query samples, or export the
dataset.`,
}

var storeIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Ingest per-paper result files into the warehouse",
	Long: `Index reads result JSON files from the extraction output directory and
ingests them into the SQLite warehouse. Unchanged papers are skipped on
subsequent runs; each invocation is recorded as a run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		summary, err := s.Ingest(context.Background(), os.Stdout)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d result file(s) failed indexing", summary.Failed)
		}
		return nil
	},
}

var storeQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query samples with structured filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		rows, err := s.Query(context.Background(), queryOptions(cmd))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	},
}

var storeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export matching samples as JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		format, _ := cmd.Flags().GetString("format")
		opts := queryOptions(cmd)

		var path string
		switch format {
		case "json":
			path, err = s.ExportJSON(context.Background(), opts)
		case "csv":
			path, err = s.ExportCSV(context.Background(), opts)
		default:
			return fmt.Errorf("unknown export format %q (json or csv)", format)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "exported %s\n", path)
		return nil
	},
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	var cfg types.StoreConfig
	cfg.OutputDir, _ = cmd.Flags().GetString("out-dir")
	cfg.IndexDir, _ = cmd.Flags().GetString("index-dir")
	cfg.MaxResults, _ = cmd.Flags().GetInt("max-results")
	return store.NewStore(cfg)
}

func queryOptions(cmd *cobra.Command) store.QueryOptions {
	var opts store.QueryOptions
	opts.PaperID, _ = cmd.Flags().GetString("paper")
	opts.MaterialClass, _ = cmd.Flags().GetString("material-class")
	opts.Application, _ = cmd.Flags().GetString("application")
	opts.TargetAnalyte, _ = cmd.Flags().GetString("target-analyte")
	opts.MinEmissionNM, _ = cmd.Flags().GetFloat64("min-emission")
	opts.MaxEmissionNM, _ = cmd.Flags().GetFloat64("max-emission")
	opts.MinQuantumYield, _ = cmd.Flags().GetFloat64("min-qy")
	opts.MaxResults, _ = cmd.Flags().GetInt("max-results")
	return opts
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("out-dir", filepath.Join("output", "extraction"), "directory of per-paper result JSON")
	cmd.Flags().String("index-dir", filepath.Join("output", "index"), "directory for the SQLite database")
	cmd.Flags().Int("max-results", 0, "maximum results (0 = store default)")
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("paper", "", "filter by paper id")
	cmd.Flags().String("material-class", "", "filter by material_class enum literal")
	cmd.Flags().String("application", "", "filter by application enum literal")
	cmd.Flags().String("target-analyte", "", "filter by target_analyte substring")
	cmd.Flags().Float64("min-emission", 0, "minimum emission peak (nm)")
	cmd.Flags().Float64("max-emission", 0, "maximum emission peak (nm)")
	cmd.Flags().Float64("min-qy", 0, "minimum quantum yield (percent)")
}

func init() {
	addStoreFlags(storeIndexCmd)
	addStoreFlags(storeQueryCmd)
	addQueryFlags(storeQueryCmd)
	addStoreFlags(storeExportCmd)
	addQueryFlags(storeExportCmd)
	storeExportCmd.Flags().String("format", "json", "export format: json or csv")

	storeCmd.AddCommand(storeIndexCmd, storeQueryCmd, storeExportCmd)
	rootCmd.AddCommand(storeCmd)
}
