// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Timeout is the per-call HTTP timeout (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// ExtractionConfig holds settings for the staged extraction pipeline.
type ExtractionConfig struct {
	AIConfig `yaml:",inline"`

	// PapersDir is the directory containing source PDFs.
	PapersDir string `json:"papers_dir" yaml:"papers_dir"`

	// FiguresDir is an optional directory of pre-extracted figure images,
	// one subdirectory per paper, attached to the figures stage.
	FiguresDir string `json:"figures_dir,omitempty" yaml:"figures_dir,omitempty"`

	// RawDir is an optional directory of pre-captured raw stage outputs
	// (one subdirectory per paper, one <stage>.json per stage). When set,
	// the pipeline replays these instead of calling the AI API.
	RawDir string `json:"raw_dir,omitempty" yaml:"raw_dir,omitempty"`

	// OutputDir is the directory for per-paper result JSON (default
	// "output/extraction").
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// MaxTextChars truncates paper text before prompting (default 30000).
	// Overlong papers keep their head and tail halves.
	MaxTextChars int `json:"max_text_chars" yaml:"max_text_chars"`

	// Workers is the number of papers processed concurrently (default 1).
	Workers int `json:"workers" yaml:"workers"`

	// ConflictPolicy selects the field merge policy: last_wins (default),
	// first_wins, or flag.
	ConflictPolicy ConflictPolicy `json:"conflict_policy" yaml:"conflict_policy"`

	// Stages optionally restricts the run to a subset of stage names.
	// The composition stage always runs; it seeds sample identities.
	Stages []string `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// StoreConfig holds settings for the results store.
type StoreConfig struct {
	// OutputDir is the directory of per-paper result JSON files to ingest.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// IndexDir is the directory for the SQLite database (default
	// "output/index").
	IndexDir string `json:"index_dir" yaml:"index_dir"`

	// MaxResults is the default maximum number of query results (default 50).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Store      StoreConfig      `json:"store" yaml:"store"`
}
