// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package merge folds coerced stage records into canonical samples. Null
// never overwrites non-null; what happens when two stages disagree on a
// non-null value is the conflict policy's call, and every silent correction
// is surfaced as an audit entry.
package merge

import (
	"fmt"
	"reflect"

	"github.com/meshintel/nfp-etl/pkg/types"
)

// Overwrite records one value replaced under the last-wins policy, so a
// human can audit corrections after the fact.
type Overwrite struct {
	SampleID string
	Field    string
	Old, New any
	OldStage string
	NewStage string
}

func (o Overwrite) String() string {
	return fmt.Sprintf("%s.%s: %v (%s) -> %v (%s)",
		o.SampleID, o.Field, o.Old, o.OldStage, o.New, o.NewStage)
}

// Outcome reports what one merge pass did.
type Outcome struct {
	// Set counts fields written into previously-null slots.
	Set int

	// Overwrites lists values replaced under last-wins.
	Overwrites []Overwrite

	// Conflicts lists disagreements kept as diagnostics under the flag
	// policy.
	Conflicts []types.Diagnostic
}

// Apply folds one coerced record into the canonical sample in place.
// Stages are processed in pipeline order, so under last-wins the later
// (more specific) stage's value replaces the earlier one.
func Apply(sample *types.CanonicalSample, rec types.CoercedRecord, policy types.ConflictPolicy) Outcome {
	var out Outcome

	for field, value := range rec.Fields {
		if value == nil {
			continue
		}

		current, present := sample.Fields[field]
		switch {
		case !present || current == nil:
			setField(sample, rec, field, value)
			out.Set++

		case reflect.DeepEqual(current, value):
			// Agreement. Refresh provenance to the later stage under
			// last-wins; under the conservative policies the first
			// reporter keeps the credit.
			if policy == types.PolicyLastWins {
				sample.Provenance[field] = rec.Stage
				recordSource(sample, rec, field)
			}

		default:
			switch policy {
			case types.PolicyFirstWins:
				// Keep the earlier value, drop the later one.
			case types.PolicyFlag:
				out.Conflicts = append(out.Conflicts, types.Diagnostic{
					Stage:       rec.Stage,
					RawSampleID: rec.RawSampleID,
					Field:       field,
					Reason: fmt.Sprintf("conflicts with %v from stage %s (kept); %s reported %v",
						current, sample.Provenance[field], rec.Stage, value),
				})
			default: // last-wins
				out.Overwrites = append(out.Overwrites, Overwrite{
					SampleID: sample.ID,
					Field:    field,
					Old:      current,
					New:      value,
					OldStage: sample.Provenance[field],
					NewStage: rec.Stage,
				})
				setField(sample, rec, field, value)
			}
		}
	}

	return out
}

func setField(sample *types.CanonicalSample, rec types.CoercedRecord, field string, value any) {
	sample.Fields[field] = value
	sample.Provenance[field] = rec.Stage
	recordSource(sample, rec, field)
}

func recordSource(sample *types.CanonicalSample, rec types.CoercedRecord, field string) {
	src, ok := rec.Sources[field]
	if !ok || src == "" {
		return
	}
	if sample.FigureProvenance == nil {
		sample.FigureProvenance = make(map[string]string)
	}
	sample.FigureProvenance[field] = src
}
