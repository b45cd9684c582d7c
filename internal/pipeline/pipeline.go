// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences the extraction stages for one paper and folds
// their outputs into a merged, validated PaperResult. The composition stage
// runs first because it seeds the canonical sample identities; every other
// stage only appends to samples already seeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/meshintel/nfp-etl/internal/coerce"
	"github.com/meshintel/nfp-etl/internal/identity"
	"github.com/meshintel/nfp-etl/internal/merge"
	"github.com/meshintel/nfp-etl/internal/rawparse"
	"github.com/meshintel/nfp-etl/internal/schema"
	"github.com/meshintel/nfp-etl/pkg/types"
)

// StageRunner produces the raw output text for one stage invocation. The
// pipeline treats it as an opaque collaborator: prompt construction, model
// choice, and transport live behind it.
type StageRunner interface {
	RunStage(ctx context.Context, stage string) (string, error)
}

// RunnerFunc adapts a function to the StageRunner interface.
type RunnerFunc func(ctx context.Context, stage string) (string, error)

// RunStage calls f.
func (f RunnerFunc) RunStage(ctx context.Context, stage string) (string, error) {
	return f(ctx, stage)
}

// ErrStageSkipped tells the pipeline a stage has no output to contribute
// (e.g. no captured raw file in replay mode). Skipping is silent; every
// other runner error is recorded as a diagnostic.
var ErrStageSkipped = errors.New("stage skipped")

// Options tunes one paper's pipeline run.
type Options struct {
	// Policy is the field conflict policy. Empty means last-wins.
	Policy types.ConflictPolicy

	// Stages restricts the run to a subset of stage names. The composition
	// stage always runs. Empty means all stages.
	Stages []string

	// Coercer supplies the field coercion and alias table. Nil uses the
	// default table.
	Coercer *coerce.Coercer

	// Log receives progress and overwrite-audit lines. Nil discards.
	Log io.Writer
}

func (o *Options) fill() error {
	if o.Policy == "" {
		o.Policy = types.PolicyLastWins
	}
	if o.Coercer == nil {
		c, err := coerce.New()
		if err != nil {
			return err
		}
		o.Coercer = c
	}
	if o.Log == nil {
		o.Log = io.Discard
	}
	return nil
}

// Run executes the staged pipeline for one paper. A stage whose output is
// malformed degrades to an empty contribution and the paper continues; a
// duplicate sample identifier in the composition stage is fatal and no
// partial result is returned.
func Run(ctx context.Context, paperID string, runner StageRunner, opts Options) (*types.PaperResult, error) {
	if err := opts.fill(); err != nil {
		return nil, err
	}

	enabled := stageSet(opts.Stages)
	result := &types.PaperResult{PaperID: paperID}
	resolver := identity.NewResolver()

	for _, sc := range schema.Stages() {
		if !enabled[sc.Name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, ok := runStage(ctx, sc, runner, result, opts)
		if !ok {
			continue
		}

		coerced := make([]types.CoercedRecord, 0, len(records))
		for _, raw := range records {
			rec := opts.Coercer.Coerce(raw, sc)
			for _, ce := range rec.Errors {
				result.Diagnostics = append(result.Diagnostics, types.Diagnostic{
					Stage:       sc.Name,
					RawSampleID: rec.RawSampleID,
					Field:       ce.Field,
					Reason:      ce.Reason,
				})
			}
			coerced = append(coerced, rec)
		}

		switch {
		case sc.Name == schema.StageComposition:
			if err := seedSamples(resolver, coerced, result, opts); err != nil {
				return nil, fmt.Errorf("paper %s: %w", paperID, err)
			}
		case sc.PaperLevel:
			mergePaperLevel(resolver, coerced, result, opts)
		default:
			mergeSampleRecords(resolver, coerced, result, opts)
		}
	}

	result.Samples = resolver.Samples()
	fmt.Fprintf(opts.Log, "merged %s: %d sample(s), %d field(s), %d unresolved\n",
		paperID, len(result.Samples), result.FieldCount(), len(result.Unresolved))
	return result, nil
}

// runStage invokes the stage and parses its raw output. A false return
// means the stage contributes nothing this run.
func runStage(ctx context.Context, sc *schema.StageSchema, runner StageRunner, result *types.PaperResult, opts Options) ([]types.RawStageRecord, bool) {
	raw, err := runner.RunStage(ctx, sc.Name)
	if err != nil {
		if errors.Is(err, ErrStageSkipped) {
			return nil, false
		}
		result.Diagnostics = append(result.Diagnostics, types.Diagnostic{
			Stage:  sc.Name,
			Reason: fmt.Sprintf("stage invocation failed: %v", err),
		})
		fmt.Fprintf(opts.Log, "stage %s failed: %v\n", sc.Name, err)
		return nil, false
	}

	records, err := rawparse.Parse(sc, raw)
	if err != nil {
		result.Diagnostics = append(result.Diagnostics, types.Diagnostic{
			Stage:  sc.Name,
			Reason: err.Error(),
		})
		fmt.Fprintf(opts.Log, "stage %s dropped: %v\n", sc.Name, err)
		return nil, false
	}
	return records, true
}

// seedSamples builds the canonical identity set and merges the composition
// stage's own field values into the new samples.
func seedSamples(resolver *identity.Resolver, coerced []types.CoercedRecord, result *types.PaperResult, opts Options) error {
	skipped, err := resolver.Seed(coerced)
	if err != nil {
		return err
	}

	for _, rec := range skipped {
		result.Unresolved = append(result.Unresolved, rec)
		result.Diagnostics = append(result.Diagnostics, types.Diagnostic{
			Stage:  rec.Stage,
			Reason: "composition record has no sample_id; no identity created",
		})
	}

	for _, rec := range coerced {
		id := identity.CanonicalID(rec.RawSampleID)
		if id == "" {
			continue
		}
		sample, _ := resolver.Resolve(id)
		applyMerge(sample, rec, result, opts)
	}
	return nil
}

// mergePaperLevel routes metadata-stage records. Records without a sample
// identifier describe the paper itself; records that drifted into
// per-sample shape resolve like any later stage.
func mergePaperLevel(resolver *identity.Resolver, coerced []types.CoercedRecord, result *types.PaperResult, opts Options) {
	for _, rec := range coerced {
		if rec.RawSampleID != "" {
			mergeSampleRecords(resolver, []types.CoercedRecord{rec}, result, opts)
			continue
		}
		if result.Metadata == nil {
			result.Metadata = make(map[string]any)
		}
		for field, value := range rec.Fields {
			if value == nil {
				continue
			}
			if _, exists := result.Metadata[field]; !exists {
				result.Metadata[field] = value
			}
		}
	}
}

func mergeSampleRecords(resolver *identity.Resolver, coerced []types.CoercedRecord, result *types.PaperResult, opts Options) {
	for _, rec := range coerced {
		sample, ok := resolver.Resolve(rec.RawSampleID)
		if !ok {
			result.Unresolved = append(result.Unresolved, rec)
			result.Diagnostics = append(result.Diagnostics, types.Diagnostic{
				Stage:       rec.Stage,
				RawSampleID: rec.RawSampleID,
				Reason:      "no matching canonical sample",
			})
			continue
		}
		applyMerge(sample, rec, result, opts)
	}
}

func applyMerge(sample *types.CanonicalSample, rec types.CoercedRecord, result *types.PaperResult, opts Options) {
	outcome := merge.Apply(sample, rec, opts.Policy)
	for _, ow := range outcome.Overwrites {
		fmt.Fprintf(opts.Log, "overwrite %s\n", ow)
	}
	result.Diagnostics = append(result.Diagnostics, outcome.Conflicts...)
}

func stageSet(selected []string) map[string]bool {
	set := make(map[string]bool)
	if len(selected) == 0 {
		for _, name := range schema.StageNames() {
			set[name] = true
		}
		return set
	}
	for _, name := range selected {
		set[name] = true
	}
	set[schema.StageComposition] = true
	return set
}
