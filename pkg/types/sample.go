// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// CanonicalSample is the unit of truth for one physical probe sample
// across the whole paper. It is created when the composition stage's
// output is resolved, accumulated by every later stage, and never
// deleted.
type CanonicalSample struct {
	// ID is the normalized sample identifier assigned by the composition
	// stage: trimmed, internal whitespace collapsed, case and punctuation
	// preserved. Unique within a PaperResult.
	ID string `json:"sample_id"`

	// Fields maps declared field names to canonical values accumulated
	// from every stage that resolved to this sample.
	Fields map[string]any `json:"fields"`

	// Provenance records which stage last set each non-null field.
	Provenance map[string]string `json:"provenance"`

	// FigureProvenance records the source figure description for values
	// contributed by the multimodal figures stage.
	FigureProvenance map[string]string `json:"figure_provenance,omitempty"`
}

// NewCanonicalSample creates an empty sample for the given canonical ID.
func NewCanonicalSample(id string) *CanonicalSample {
	return &CanonicalSample{
		ID:         id,
		Fields:     make(map[string]any),
		Provenance: make(map[string]string),
	}
}

// PaperResult is the merged, validated output for one paper.
type PaperResult struct {
	// PaperID identifies the source paper (typically the PDF stem).
	PaperID string `json:"paper_id"`

	// Metadata holds paper-level fields from the metadata stage (title,
	// doi, journal, ...). These describe the paper, not any one sample.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Samples lists canonical samples in order of first appearance in the
	// composition stage's output.
	Samples []*CanonicalSample `json:"samples"`

	// Unresolved lists records from later stages that could not be matched
	// to any canonical identity. Reported, never silently dropped.
	Unresolved []CoercedRecord `json:"unresolved,omitempty"`

	// Diagnostics lists recoverable problems in processing order.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Sample returns the canonical sample with the given ID, or nil.
func (r *PaperResult) Sample(id string) *CanonicalSample {
	for _, s := range r.Samples {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// FieldCount returns the number of non-null field values across all
// samples, the figure most batch summaries report.
func (r *PaperResult) FieldCount() int {
	n := 0
	for _, s := range r.Samples {
		for _, v := range s.Fields {
			if v != nil {
				n++
			}
		}
	}
	return n
}

// ConflictPolicy decides what happens when a later stage reports a
// different non-null value for a field an earlier stage already set.
type ConflictPolicy string

const (
	// PolicyLastWins lets the later stage overwrite, with an audit entry.
	// Later stages are defined to be more specific, so this is the default.
	PolicyLastWins ConflictPolicy = "last_wins"

	// PolicyFirstWins keeps the earlier value and drops the later one.
	PolicyFirstWins ConflictPolicy = "first_wins"

	// PolicyFlag keeps the earlier value and records a conflict diagnostic.
	PolicyFlag ConflictPolicy = "flag"
)

// ParseConflictPolicy validates a policy string, defaulting empty to
// last_wins.
func ParseConflictPolicy(s string) (ConflictPolicy, bool) {
	switch ConflictPolicy(s) {
	case "":
		return PolicyLastWins, true
	case PolicyLastWins, PolicyFirstWins, PolicyFlag:
		return ConflictPolicy(s), true
	}
	return "", false
}
