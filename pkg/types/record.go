// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the shared data model for the staged extraction
// pipeline: per-stage records, canonical samples, paper results, and
// stage configuration.
package types

// StageShape declares whether a stage's raw output is one flat object
// or an array of per-sample objects.
type StageShape string

const (
	// ShapeSingle means the stage emits one object covering the whole paper.
	ShapeSingle StageShape = "single"

	// ShapePerSampleArray means the stage emits a "samples" array with one
	// element per physical sample described in the paper.
	ShapePerSampleArray StageShape = "per_sample_array"
)

// RawStageRecord is one record parsed from a stage's raw output text,
// before any type coercion. For single-shaped stages there is at most
// one per paper; for array-shaped stages one per array element.
type RawStageRecord struct {
	// Stage is the canonical stage name that produced this record.
	Stage string

	// RawSampleID is the sample identifier exactly as the stage emitted it,
	// trimmed. Empty means the stage supplied none. Never assumed unique
	// or well-formed.
	RawSampleID string

	// Fields maps raw field names to untyped JSON values.
	Fields map[string]any
}

// CoercionError records one field that failed its declared domain check.
type CoercionError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// CoercedRecord is a RawStageRecord after schema-driven coercion. Fields
// that failed coercion are null here and listed in Errors; fields absent
// from the raw record are null with no error.
type CoercedRecord struct {
	// Stage is the canonical stage name that produced this record.
	Stage string `json:"stage"`

	// RawSampleID is the trimmed identifier from the source record.
	// Empty means none was supplied.
	RawSampleID string `json:"sample_id,omitempty"`

	// Fields maps declared field names to canonical values. A nil value
	// means the field was not reported or failed coercion.
	Fields map[string]any `json:"fields"`

	// Sources maps field names to figure/source descriptions supplied by
	// value-holder objects ({"value": ..., "source": ...}), used by the
	// merger to populate figure provenance.
	Sources map[string]string `json:"sources,omitempty"`

	// Errors lists coercion failures in declared field order.
	Errors []CoercionError `json:"errors,omitempty"`
}

// Diagnostic is one recoverable problem surfaced while processing a paper:
// a malformed stage output, a failed field coercion, an unresolved record,
// or a merge conflict under the flag policy.
type Diagnostic struct {
	// Stage is the stage the problem occurred in.
	Stage string `json:"stage"`

	// RawSampleID is the offending record's identifier, if any.
	RawSampleID string `json:"sample_id,omitempty"`

	// Field is the offending field, if the problem is field-scoped.
	Field string `json:"field,omitempty"`

	// Reason describes the problem.
	Reason string `json:"reason"`
}
