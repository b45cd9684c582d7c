// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/meshintel/nfp-etl/internal/coerce"
	"github.com/meshintel/nfp-etl/internal/ingest"
	"github.com/meshintel/nfp-etl/internal/llm"
	"github.com/meshintel/nfp-etl/internal/pipeline"
	"github.com/meshintel/nfp-etl/internal/schema"
	"github.com/meshintel/nfp-etl/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [papers...]",
	Short: "Run the staged extraction pipeline over papers",
	Long: `Extract runs the schema-constrained extraction stages over each paper,
reconciles per-stage outputs into one validated record per physical sample,
and writes one result JSON file per paper.

Papers come from --papers-dir (PDFs) or, with --raw-dir, from pre-captured
raw stage outputs (one subdirectory per paper holding <stage>.json files),
which replays the reconciliation without new API calls. Positional
arguments restrict the run to the named papers.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("model", "", "AI model identifier")
	extractCmd.Flags().String("api-key", "", "Anthropic API key (default: .secrets/anthropic-api-key)")
	extractCmd.Flags().String("papers-dir", "papers", "directory containing source PDFs")
	extractCmd.Flags().String("figures-dir", "", "directory of pre-extracted figure images, one subdirectory per paper")
	extractCmd.Flags().String("raw-dir", "", "directory of captured raw stage outputs to replay")
	extractCmd.Flags().String("out-dir", filepath.Join("output", "extraction"), "directory for per-paper result JSON")
	extractCmd.Flags().String("stages", "", "comma-separated stage subset (composition always runs)")
	extractCmd.Flags().String("conflict-policy", "last_wins", "field conflict policy: last_wins, first_wins, or flag")
	extractCmd.Flags().String("aliases", "", "extra field-name alias table (YAML)")
	extractCmd.Flags().Int("max-text-chars", 30000, "paper text budget per prompt")
	extractCmd.Flags().Int("workers", 1, "papers processed concurrently")
	extractCmd.Flags().Int("limit", 0, "limit number of papers (0 = no limit)")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := extractionConfig(cmd)

	policy, ok := types.ParseConflictPolicy(string(cfg.ConflictPolicy))
	if !ok {
		return fmt.Errorf("invalid conflict policy %q", cfg.ConflictPolicy)
	}

	for _, name := range cfg.Stages {
		if _, err := schema.Get(name); err != nil {
			return err
		}
	}

	coercer, err := coerce.New()
	if err != nil {
		return err
	}
	if aliases, _ := cmd.Flags().GetString("aliases"); aliases != "" {
		if err := coercer.LoadAliases(aliases); err != nil {
			return err
		}
	}

	var jobs []pipeline.Job
	if cfg.RawDir != "" {
		jobs, err = replayJobs(cfg.RawDir, args)
	} else {
		jobs, err = pdfJobs(cfg, args)
	}
	if err != nil {
		return err
	}

	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no papers to process")
	}
	fmt.Fprintf(os.Stdout, "processing %d paper(s)\n", len(jobs))

	opts := pipeline.Options{
		Policy:  policy,
		Stages:  cfg.Stages,
		Coercer: coercer,
	}

	summary, err := pipeline.RunBatch(context.Background(), jobs, cfg.OutputDir, opts, cfg.Workers, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d paper(s) failed", summary.Failed)
	}
	return nil
}

func extractionConfig(cmd *cobra.Command) types.ExtractionConfig {
	var cfg types.ExtractionConfig
	cfg.Model, _ = cmd.Flags().GetString("model")
	apiKey, _ := cmd.Flags().GetString("api-key")
	cfg.APIKey = secretDefault("anthropic-api-key", apiKey)
	cfg.PapersDir, _ = cmd.Flags().GetString("papers-dir")
	cfg.FiguresDir, _ = cmd.Flags().GetString("figures-dir")
	cfg.RawDir, _ = cmd.Flags().GetString("raw-dir")
	cfg.OutputDir, _ = cmd.Flags().GetString("out-dir")
	cfg.MaxTextChars, _ = cmd.Flags().GetInt("max-text-chars")
	cfg.Workers, _ = cmd.Flags().GetInt("workers")

	policy, _ := cmd.Flags().GetString("conflict-policy")
	cfg.ConflictPolicy = types.ConflictPolicy(policy)

	if stages, _ := cmd.Flags().GetString("stages"); stages != "" {
		for _, s := range strings.Split(stages, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Stages = append(cfg.Stages, s)
			}
		}
	}
	return cfg
}

// replayJobs builds one DirRunner job per captured-output subdirectory.
func replayJobs(rawDir string, only []string) ([]pipeline.Job, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("reading raw directory %s: %w", rawDir, err)
	}

	wanted := nameSet(only)
	var jobs []pipeline.Job
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if len(wanted) > 0 && !wanted[entry.Name()] {
			continue
		}
		jobs = append(jobs, pipeline.Job{
			PaperID: entry.Name(),
			Runner:  pipeline.DirRunner{Dir: filepath.Join(rawDir, entry.Name())},
		})
	}
	return jobs, nil
}

// pdfJobs builds one lazily-ingesting job per PDF.
func pdfJobs(cfg types.ExtractionConfig, only []string) ([]pipeline.Job, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key: set --api-key or .secrets/anthropic-api-key")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("no model: set --model")
	}

	paths, err := filepath.Glob(filepath.Join(cfg.PapersDir, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("listing PDFs in %s: %w", cfg.PapersDir, err)
	}
	sort.Strings(paths)

	backend := llm.NewClaudeBackend(cfg.AIConfig)
	wanted := nameSet(only)

	var jobs []pipeline.Job
	for _, path := range paths {
		paperID := strings.TrimSuffix(filepath.Base(path), ".pdf")
		if len(wanted) > 0 && !wanted[paperID] {
			continue
		}
		jobs = append(jobs, pipeline.Job{
			PaperID: paperID,
			Runner: &paperRunner{
				pdfPath: path,
				paperID: paperID,
				backend: backend,
				cfg:     cfg,
			},
		})
	}
	return jobs, nil
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.TrimSuffix(n, ".pdf")] = true
	}
	return set
}

// paperRunner ingests the PDF on first use, so building a large batch stays
// cheap and ingest failures surface per paper inside the batch.
type paperRunner struct {
	pdfPath string
	paperID string
	backend llm.Backend
	cfg     types.ExtractionConfig

	once    sync.Once
	session *llm.Session
	initErr error
}

func (p *paperRunner) RunStage(ctx context.Context, stage string) (string, error) {
	p.once.Do(func() {
		text, err := ingest.Text(p.pdfPath)
		if err != nil {
			p.initErr = err
			return
		}

		var images []llm.Image
		if p.cfg.FiguresDir != "" {
			images, err = ingest.Figures(p.cfg.FiguresDir, p.paperID)
			if err != nil {
				p.initErr = err
				return
			}
		}

		p.session = &llm.Session{
			Backend:    p.backend,
			PaperText:  ingest.Truncate(text, p.cfg.MaxTextChars),
			Images:     images,
			MaxRetries: p.cfg.MaxRetries,
		}
	})
	if p.initErr != nil {
		return "", p.initErr
	}
	return p.session.RunStage(ctx, stage)
}
