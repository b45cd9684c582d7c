// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryOptions holds structured filters over the sample warehouse.
type QueryOptions struct {
	// PaperID filters by source paper.
	PaperID string

	// MaterialClass filters by the material_class enum literal.
	MaterialClass string

	// Application filters by the application enum literal.
	Application string

	// TargetAnalyte filters by substring match on target_analyte.
	TargetAnalyte string

	// MinEmissionNM / MaxEmissionNM bound the emission peak. Zero means
	// unbounded.
	MinEmissionNM float64
	MaxEmissionNM float64

	// MinQuantumYield bounds the quantum yield percentage. Zero means
	// unbounded.
	MinQuantumYield float64

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// SampleRow is one warehouse row with its paper context.
type SampleRow struct {
	PaperID             string         `json:"paper_id"`
	SampleID            string         `json:"sample_id"`
	PaperTitle          string         `json:"paper_title,omitempty"`
	MaterialClass       string         `json:"material_class,omitempty"`
	CoreMaterial        string         `json:"core_material,omitempty"`
	EmissionPeakNM      *float64       `json:"emission_peak_nm,omitempty"`
	QuantumYieldPercent *float64       `json:"quantum_yield_percent,omitempty"`
	Application         string         `json:"application,omitempty"`
	TargetAnalyte       string         `json:"target_analyte,omitempty"`
	Fields              map[string]any `json:"fields"`
}

// Query returns samples matching the filters, ordered by paper then sample
// identifier.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]SampleRow, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT sm.paper_id, sm.sample_id, p.title,
			sm.material_class, sm.core_material,
			sm.emission_peak_nm, sm.quantum_yield_percent,
			sm.application, sm.target_analyte, sm.fields
		FROM samples sm
		LEFT JOIN papers p ON sm.paper_id = p.id
		WHERE 1=1`)

	if opts.PaperID != "" {
		qb.WriteString(" AND sm.paper_id = ?")
		args = append(args, opts.PaperID)
	}
	if opts.MaterialClass != "" {
		qb.WriteString(" AND sm.material_class = ?")
		args = append(args, opts.MaterialClass)
	}
	if opts.Application != "" {
		qb.WriteString(" AND sm.application = ?")
		args = append(args, opts.Application)
	}
	if opts.TargetAnalyte != "" {
		qb.WriteString(" AND sm.target_analyte LIKE ?")
		args = append(args, "%"+opts.TargetAnalyte+"%")
	}
	if opts.MinEmissionNM > 0 {
		qb.WriteString(" AND sm.emission_peak_nm >= ?")
		args = append(args, opts.MinEmissionNM)
	}
	if opts.MaxEmissionNM > 0 {
		qb.WriteString(" AND sm.emission_peak_nm <= ?")
		args = append(args, opts.MaxEmissionNM)
	}
	if opts.MinQuantumYield > 0 {
		qb.WriteString(" AND sm.quantum_yield_percent >= ?")
		args = append(args, opts.MinQuantumYield)
	}

	qb.WriteString(" ORDER BY sm.paper_id, sm.sample_id LIMIT ?")
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	var results []SampleRow
	for rows.Next() {
		var (
			row         SampleRow
			title       sql.NullString
			matClass    sql.NullString
			coreMat     sql.NullString
			emission    sql.NullFloat64
			qy          sql.NullFloat64
			application sql.NullString
			analyte     sql.NullString
			fieldsJSON  string
		)
		if err := rows.Scan(&row.PaperID, &row.SampleID, &title,
			&matClass, &coreMat, &emission, &qy,
			&application, &analyte, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("scanning sample row: %w", err)
		}

		row.PaperTitle = title.String
		row.MaterialClass = matClass.String
		row.CoreMaterial = coreMat.String
		row.Application = application.String
		row.TargetAnalyte = analyte.String
		if emission.Valid {
			row.EmissionPeakNM = &emission.Float64
		}
		if qy.Valid {
			row.QuantumYieldPercent = &qy.Float64
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &row.Fields); err != nil {
			return nil, fmt.Errorf("parsing fields for %s/%s: %w", row.PaperID, row.SampleID, err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
