// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package schema declares the fixed per-stage field tables consumed by the
// parser, coercer, and merger. The registry is built once at init and never
// mutated; adding a stage means adding a table entry, not new control flow.
package schema

import (
	"fmt"

	"github.com/meshintel/nfp-etl/pkg/types"
)

// FieldKind is the declared type of a stage field.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindInteger FieldKind = "integer"
	KindEnum    FieldKind = "enum"
	KindList    FieldKind = "list"
	KindObject  FieldKind = "object"
)

// Normalization identifies a documented unit/scale rule applied during
// coercion.
type Normalization string

const (
	// NormNone applies no rule.
	NormNone Normalization = ""

	// NormFractionToPercent converts a fractional value in (0, 1] to a
	// percentage by multiplying by 100. A value of exactly 1.0 is treated
	// as the fraction 100%, not as 1 percent. Values above 1 pass through
	// unchanged.
	NormFractionToPercent Normalization = "fraction_to_percent"
)

// FieldSpec declares one field's type domain.
type FieldSpec struct {
	// Kind is the declared value type.
	Kind FieldKind

	// Enum holds the closed value set, in canonical spelling, when Kind
	// is KindEnum.
	Enum []string

	// Normalize is the unit/scale rule applied after numeric parsing.
	Normalize Normalization

	// Min and Max bound numeric values where the range is documented.
	// Nil means unbounded.
	Min, Max *float64
}

// StageSchema is the immutable declaration for one extraction stage.
type StageSchema struct {
	// Name is the canonical stage name.
	Name string

	// Shape declares single-object or per-sample-array output.
	Shape types.StageShape

	// PaperLevel marks a stage whose fields describe the paper rather than
	// any one sample (the metadata stage). Its records bypass identity
	// resolution unless they carry a sample_id.
	PaperLevel bool

	// Multimodal marks a stage that receives figure images alongside text.
	Multimodal bool

	// Fields maps field names to their specs. sample_id is implicit on
	// every stage and coerced as a plain trimmed string.
	Fields map[string]FieldSpec

	// FieldOrder lists field names in declaration order so coercion errors
	// and exports are deterministic.
	FieldOrder []string
}

// HasField reports whether the stage declares the named field.
func (s *StageSchema) HasField(name string) bool {
	_, ok := s.Fields[name]
	return ok
}

// UnknownStageError reports a lookup for a stage the registry does not
// declare.
type UnknownStageError struct {
	Stage string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.Stage)
}
