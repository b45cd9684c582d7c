// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package schema

import "github.com/meshintel/nfp-etl/pkg/types"

// Stage names, in pipeline order. Composition runs first because it seeds
// the canonical sample identities every later stage resolves against.
const (
	StageComposition = "composition"
	StageMetadata    = "metadata"
	StageSynthesis   = "synthesis"
	StageOptical     = "optical"
	StageSurface     = "surface"
	StageBiological  = "biological"
	StageFigures     = "figures"
)

// SampleIDField is the identifier field every per-sample stage carries.
const SampleIDField = "sample_id"

func f64(v float64) *float64 { return &v }

// fieldDef pairs a name with its spec so stage tables read in declaration
// order.
type fieldDef struct {
	name string
	spec FieldSpec
}

func stage(name string, shape types.StageShape, defs []fieldDef) *StageSchema {
	s := &StageSchema{
		Name:   name,
		Shape:  shape,
		Fields: make(map[string]FieldSpec, len(defs)),
	}
	for _, d := range defs {
		s.Fields[d.name] = d.spec
		s.FieldOrder = append(s.FieldOrder, d.name)
	}
	return s
}

// registry holds the stage declarations, built once at package init.
// Fields whose source schemas only suggest example values (solvent,
// cell_line, target_analyte, ...) are plain strings, not enums.
var registry = map[string]*StageSchema{}

// pipelineOrder fixes a deterministic stage sequence so the merge
// overwrite semantics are reproducible.
var pipelineOrder = []string{
	StageComposition,
	StageMetadata,
	StageSynthesis,
	StageOptical,
	StageSurface,
	StageBiological,
	StageFigures,
}

func init() {
	metadata := stage(StageMetadata, types.ShapeSingle, []fieldDef{
		{"doi", FieldSpec{Kind: KindString}},
		{"title", FieldSpec{Kind: KindString}},
		{"journal", FieldSpec{Kind: KindString}},
		{"publication_year", FieldSpec{Kind: KindInteger}},
		{"first_author", FieldSpec{Kind: KindString}},
		{"paper_type", FieldSpec{Kind: KindEnum, Enum: []string{
			"research_article", "review", "communication", "letter",
		}}},
	})
	metadata.PaperLevel = true

	composition := stage(StageComposition, types.ShapePerSampleArray, []fieldDef{
		{"probe_name", FieldSpec{Kind: KindString}},
		{"material_class", FieldSpec{Kind: KindEnum, Enum: []string{
			"quantum_dot", "carbon_dot", "metal_nanocluster",
			"upconversion_nanoparticle", "polymer_dot",
			"silica_nanoparticle", "mof", "other",
		}}},
		{"core_material", FieldSpec{Kind: KindString}},
		{"shell_material", FieldSpec{Kind: KindString}},
		{"dopants", FieldSpec{Kind: KindList}},
		{"core_size_nm", FieldSpec{Kind: KindNumber}},
		{"hydrodynamic_diameter_nm", FieldSpec{Kind: KindNumber}},
		{"morphology", FieldSpec{Kind: KindEnum, Enum: []string{
			"sphere", "rod", "sheet", "cube", "wire", "flower", "irregular",
		}}},
	})

	synthesis := stage(StageSynthesis, types.ShapePerSampleArray, []fieldDef{
		{"synthesis_method", FieldSpec{Kind: KindEnum, Enum: []string{
			"hydrothermal", "solvothermal", "microwave_assisted",
			"hot_injection", "coprecipitation", "pyrolysis", "sol_gel",
			"electrochemical", "other",
		}}},
		{"precursors", FieldSpec{Kind: KindList}},
		{"solvent", FieldSpec{Kind: KindString}},
		{"reaction_temp_c", FieldSpec{Kind: KindNumber}},
		{"reaction_time_h", FieldSpec{Kind: KindNumber}},
		{"reaction_ph", FieldSpec{Kind: KindNumber, Min: f64(0), Max: f64(14)}},
		{"purification_method", FieldSpec{Kind: KindString}},
	})

	optical := stage(StageOptical, types.ShapePerSampleArray, []fieldDef{
		{"excitation_peak_nm", FieldSpec{Kind: KindNumber}},
		{"absorption_peak_nm", FieldSpec{Kind: KindNumber}},
		{"emission_peak_nm", FieldSpec{Kind: KindNumber}},
		{"quantum_yield_percent", FieldSpec{
			Kind:      KindNumber,
			Normalize: NormFractionToPercent,
			Min:       f64(0),
			Max:       f64(100),
		}},
		{"fluorescence_lifetime_ns", FieldSpec{Kind: KindNumber}},
		{"stokes_shift_nm", FieldSpec{Kind: KindNumber}},
		{"emission_color", FieldSpec{Kind: KindEnum, Enum: []string{
			"blue", "green", "yellow", "orange", "red", "nir",
		}}},
	})

	surface := stage(StageSurface, types.ShapePerSampleArray, []fieldDef{
		{"surface_ligand", FieldSpec{Kind: KindString}},
		{"zeta_potential_mv", FieldSpec{Kind: KindNumber}},
		{"functional_groups", FieldSpec{Kind: KindList}},
		{"photostability_percent_retained", FieldSpec{
			Kind: KindNumber, Min: f64(0), Max: f64(100),
		}},
		{"storage_stability_days", FieldSpec{Kind: KindNumber}},
		{"ph_stability_range", FieldSpec{Kind: KindString}},
	})

	biological := stage(StageBiological, types.ShapePerSampleArray, []fieldDef{
		{"application", FieldSpec{Kind: KindEnum, Enum: []string{
			"ion_sensing", "biomolecule_sensing", "cell_imaging",
			"in_vivo_imaging", "drug_delivery", "photodynamic_therapy",
			"other",
		}}},
		{"target_analyte", FieldSpec{Kind: KindString}},
		{"detection_limit", FieldSpec{Kind: KindNumber}},
		{"detection_limit_unit", FieldSpec{Kind: KindString}},
		{"linear_range", FieldSpec{Kind: KindString}},
		{"cell_line", FieldSpec{Kind: KindString}},
		{"cell_viability_percent", FieldSpec{
			Kind: KindNumber, Min: f64(0), Max: f64(100),
		}},
		{"incubation_time_h", FieldSpec{Kind: KindNumber}},
	})

	figures := stage(StageFigures, types.ShapePerSampleArray, []fieldDef{
		{"absorption_peak_nm", FieldSpec{Kind: KindNumber}},
		{"emission_peak_nm", FieldSpec{Kind: KindNumber}},
		{"quantum_yield_percent", FieldSpec{
			Kind:      KindNumber,
			Normalize: NormFractionToPercent,
			Min:       f64(0),
			Max:       f64(100),
		}},
		{"detection_limit", FieldSpec{Kind: KindNumber}},
	})
	figures.Multimodal = true

	for _, s := range []*StageSchema{metadata, composition, synthesis, optical, surface, biological, figures} {
		registry[s.Name] = s
	}
}

// Get returns the schema for the named stage or an UnknownStageError.
func Get(name string) (*StageSchema, error) {
	s, ok := registry[name]
	if !ok {
		return nil, &UnknownStageError{Stage: name}
	}
	return s, nil
}

// Stages returns all stage schemas in pipeline order.
func Stages() []*StageSchema {
	out := make([]*StageSchema, 0, len(pipelineOrder))
	for _, name := range pipelineOrder {
		out = append(out, registry[name])
	}
	return out
}

// StageNames returns the stage names in pipeline order.
func StageNames() []string {
	out := make([]string, len(pipelineOrder))
	copy(out, pipelineOrder)
	return out
}
