// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/meshintel/nfp-etl/internal/schema"
)

const exportLimit = 100000

// ExportJSON writes matching samples to indexDir/export.json.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) (string, error) {
	opts.MaxResults = exportLimit
	rows, err := s.Query(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("querying for export: %w", err)
	}

	path := filepath.Join(s.indexDir, "export.json")
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ExportCSV writes matching samples to indexDir/export.csv as a flat table:
// paper_id, sample_id, then every per-sample field in registry order. List
// values are joined with "; ".
func (s *Store) ExportCSV(ctx context.Context, opts QueryOptions) (string, error) {
	opts.MaxResults = exportLimit
	rows, err := s.Query(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("querying for export: %w", err)
	}

	columns := sampleColumns()
	path := filepath.Join(s.indexDir, "export.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"paper_id", "sample_id"}, columns...)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	for _, row := range rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, row.PaperID, row.SampleID)
		for _, col := range columns {
			rec = append(rec, cellString(row.Fields[col]))
		}
		if err := w.Write(rec); err != nil {
			return "", fmt.Errorf("writing row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing csv: %w", err)
	}
	return path, nil
}

// sampleColumns lists every per-sample field in registry order, first
// occurrence wins for fields shared between stages.
func sampleColumns() []string {
	var (
		cols []string
		seen = make(map[string]bool)
	)
	for _, sc := range schema.Stages() {
		if sc.PaperLevel {
			continue
		}
		for _, name := range sc.FieldOrder {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	return cols
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case []string:
		return strings.Join(val, "; ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, el := range val {
			parts = append(parts, fmt.Sprintf("%v", el))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprintf("%v", val)
	}
}
