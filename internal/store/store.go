// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists merged paper results in a SQLite warehouse and
// serves filtered queries and dataset exports over them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/meshintel/nfp-etl/internal/pipeline"
	"github.com/meshintel/nfp-etl/pkg/types"
)

const dbFile = "probes.db"

// Store manages the results SQLite database.
type Store struct {
	db         *sql.DB
	outputDir  string
	indexDir   string
	maxResults int
}

// NewStore opens or creates the results database at indexDir/probes.db,
// creating the schema if needed.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(cfg.IndexDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	s := &Store{
		db:         db,
		outputDir:  cfg.OutputDir,
		indexDir:   cfg.IndexDir,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ingested INTEGER,
			updated INTEGER,
			skipped INTEGER,
			failed INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			run_id TEXT REFERENCES runs(id),
			title TEXT,
			doi TEXT,
			journal TEXT,
			publication_year INTEGER,
			first_author TEXT,
			paper_type TEXT,
			sample_count INTEGER,
			file_mod_time TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS samples (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_id TEXT NOT NULL REFERENCES papers(id),
			sample_id TEXT NOT NULL,
			material_class TEXT,
			core_material TEXT,
			emission_peak_nm REAL,
			quantum_yield_percent REAL,
			application TEXT,
			target_analyte TEXT,
			fields TEXT NOT NULL,
			provenance TEXT,
			figure_provenance TEXT,
			UNIQUE(paper_id, sample_id)
		)`,
		`CREATE TABLE IF NOT EXISTS unresolved (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_id TEXT NOT NULL REFERENCES papers(id),
			stage TEXT NOT NULL,
			sample_id TEXT,
			fields TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_paper_id ON samples(paper_id)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_material_class ON samples(material_class)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_application ON samples(application)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_emission ON samples(emission_peak_nm)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// IngestSummary holds counts from one indexing run.
type IngestSummary struct {
	RunID    string
	Ingested int
	Updated  int
	Skipped  int
	Failed   int
}

// Total returns the number of result files processed.
func (s IngestSummary) Total() int {
	return s.Ingested + s.Updated + s.Skipped + s.Failed
}

// Ingest reads per-paper result JSON files from the output directory and
// populates the database, skipping files unchanged since the last run.
// Each call is recorded as a run with a fresh identifier.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading results directory %s: %w", s.outputDir, err)
	}

	summary := IngestSummary{RunID: uuid.NewString()}
	startedAt := time.Now().UTC().Format(time.RFC3339)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		paperID := strings.TrimSuffix(entry.Name(), ".json")
		path := filepath.Join(s.outputDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", paperID, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM papers WHERE id = ?`, paperID,
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", paperID)
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		result, err := pipeline.ReadResult(path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", paperID, err)
			summary.Failed++
			continue
		}

		if err := s.ingestPaper(ctx, summary.RunID, result, modTime); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", paperID, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d samples)\n", paperID, len(result.Samples))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexed %s (%d samples)\n", paperID, len(result.Samples))
			summary.Ingested++
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, ingested, updated, skipped, failed) VALUES (?, ?, ?, ?, ?, ?)`,
		summary.RunID, startedAt, summary.Ingested, summary.Updated, summary.Skipped, summary.Failed)
	if err != nil {
		return summary, fmt.Errorf("recording run: %w", err)
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Ingested, summary.Updated, summary.Skipped, summary.Failed)
	return summary, nil
}

func (s *Store) ingestPaper(ctx context.Context, runID string, r *types.PaperResult, modTime string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	meta := func(key string) any {
		if r.Metadata == nil {
			return nil
		}
		return r.Metadata[key]
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO papers (id, run_id, title, doi, journal, publication_year, first_author, paper_type, sample_count, file_mod_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			run_id=excluded.run_id, title=excluded.title, doi=excluded.doi,
			journal=excluded.journal, publication_year=excluded.publication_year,
			first_author=excluded.first_author, paper_type=excluded.paper_type,
			sample_count=excluded.sample_count, file_mod_time=excluded.file_mod_time`,
		r.PaperID, runID, meta("title"), meta("doi"), meta("journal"),
		meta("publication_year"), meta("first_author"), meta("paper_type"),
		len(r.Samples), modTime)
	if err != nil {
		return fmt.Errorf("upserting paper: %w", err)
	}

	// Replace the paper's rows wholesale; results are immutable snapshots.
	if _, err := tx.ExecContext(ctx, `DELETE FROM samples WHERE paper_id = ?`, r.PaperID); err != nil {
		return fmt.Errorf("clearing samples: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM unresolved WHERE paper_id = ?`, r.PaperID); err != nil {
		return fmt.Errorf("clearing unresolved: %w", err)
	}

	for _, sample := range r.Samples {
		fieldsJSON, err := json.Marshal(sample.Fields)
		if err != nil {
			return fmt.Errorf("marshaling sample %s: %w", sample.ID, err)
		}
		provJSON, _ := json.Marshal(sample.Provenance)
		figJSON, _ := json.Marshal(sample.FigureProvenance)

		_, err = tx.ExecContext(ctx,
			`INSERT INTO samples (paper_id, sample_id, material_class, core_material,
				emission_peak_nm, quantum_yield_percent, application, target_analyte,
				fields, provenance, figure_provenance)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.PaperID, sample.ID,
			sample.Fields["material_class"], sample.Fields["core_material"],
			sample.Fields["emission_peak_nm"], sample.Fields["quantum_yield_percent"],
			sample.Fields["application"], sample.Fields["target_analyte"],
			string(fieldsJSON), string(provJSON), string(figJSON))
		if err != nil {
			return fmt.Errorf("inserting sample %s: %w", sample.ID, err)
		}
	}

	for _, rec := range r.Unresolved {
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("marshaling unresolved record: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO unresolved (paper_id, stage, sample_id, fields) VALUES (?, ?, ?, ?)`,
			r.PaperID, rec.Stage, rec.RawSampleID, string(fieldsJSON))
		if err != nil {
			return fmt.Errorf("inserting unresolved record: %w", err)
		}
	}

	return tx.Commit()
}
