package merge

import (
	"reflect"
	"testing"

	"github.com/meshintel/nfp-etl/internal/schema"
	"github.com/meshintel/nfp-etl/pkg/types"
)

func record(stage string, fields map[string]any) types.CoercedRecord {
	return types.CoercedRecord{
		Stage:       stage,
		RawSampleID: "S1",
		Fields:      fields,
	}
}

// --- filling empty slots ---

func TestApplySetsEmptyFields(t *testing.T) {
	s := types.NewCanonicalSample("S1")
	out := Apply(s, record(schema.StageComposition, map[string]any{
		"core_material": "CdSe",
		"core_size_nm":  5.0,
	}), types.PolicyLastWins)

	if out.Set != 2 {
		t.Errorf("Set = %d, want 2", out.Set)
	}
	if s.Fields["core_material"] != "CdSe" {
		t.Errorf("core_material = %v", s.Fields["core_material"])
	}
	if s.Provenance["core_material"] != schema.StageComposition {
		t.Errorf("provenance = %q", s.Provenance["core_material"])
	}
}

func TestApplyNullNeverOverwrites(t *testing.T) {
	s := types.NewCanonicalSample("S1")
	Apply(s, record(schema.StageOptical, map[string]any{"emission_peak_nm": 520.0}), types.PolicyLastWins)
	out := Apply(s, record(schema.StageFigures, map[string]any{"emission_peak_nm": nil}), types.PolicyLastWins)

	if s.Fields["emission_peak_nm"] != 520.0 {
		t.Errorf("null overwrote: %v", s.Fields["emission_peak_nm"])
	}
	if out.Set != 0 || len(out.Overwrites) != 0 || len(out.Conflicts) != 0 {
		t.Errorf("null value produced outcome %+v", out)
	}
}

func TestApplyDisjointStagesOrderInsensitive(t *testing.T) {
	optical := record(schema.StageOptical, map[string]any{"emission_peak_nm": 520.0})
	surface := record(schema.StageSurface, map[string]any{"surface_ligand": "PEG"})

	a := types.NewCanonicalSample("S1")
	Apply(a, optical, types.PolicyLastWins)
	Apply(a, surface, types.PolicyLastWins)

	b := types.NewCanonicalSample("S1")
	Apply(b, surface, types.PolicyLastWins)
	Apply(b, optical, types.PolicyLastWins)

	if !reflect.DeepEqual(a.Fields, b.Fields) {
		t.Errorf("disjoint merge depends on order: %v vs %v", a.Fields, b.Fields)
	}
}

// --- agreement ---

func TestApplyEqualValueNoConflict(t *testing.T) {
	s := types.NewCanonicalSample("S1")
	Apply(s, record(schema.StageOptical, map[string]any{"emission_peak_nm": 520.0}), types.PolicyLastWins)
	out := Apply(s, record(schema.StageFigures, map[string]any{"emission_peak_nm": 520.0}), types.PolicyLastWins)

	if len(out.Overwrites) != 0 || len(out.Conflicts) != 0 {
		t.Errorf("agreement produced outcome %+v", out)
	}
	// Under last-wins the later stage takes the provenance credit.
	if s.Provenance["emission_peak_nm"] != schema.StageFigures {
		t.Errorf("provenance = %q, want figures", s.Provenance["emission_peak_nm"])
	}
}

func TestApplyEqualValueFirstWinsKeepsProvenance(t *testing.T) {
	s := types.NewCanonicalSample("S1")
	Apply(s, record(schema.StageOptical, map[string]any{"emission_peak_nm": 520.0}), types.PolicyFirstWins)
	Apply(s, record(schema.StageFigures, map[string]any{"emission_peak_nm": 520.0}), types.PolicyFirstWins)

	if s.Provenance["emission_peak_nm"] != schema.StageOptical {
		t.Errorf("provenance = %q, want optical", s.Provenance["emission_peak_nm"])
	}
}

// --- conflicting values per policy ---

func TestApplyConflictPolicies(t *testing.T) {
	tests := []struct {
		name           string
		policy         types.ConflictPolicy
		wantValue      any
		wantOverwrites int
		wantConflicts  int
	}{
		{"last wins", types.PolicyLastWins, 525.0, 1, 0},
		{"first wins", types.PolicyFirstWins, 520.0, 0, 0},
		{"flag", types.PolicyFlag, 520.0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := types.NewCanonicalSample("S1")
			Apply(s, record(schema.StageOptical, map[string]any{"emission_peak_nm": 520.0}), tt.policy)
			out := Apply(s, record(schema.StageFigures, map[string]any{"emission_peak_nm": 525.0}), tt.policy)

			if s.Fields["emission_peak_nm"] != tt.wantValue {
				t.Errorf("value = %v, want %v", s.Fields["emission_peak_nm"], tt.wantValue)
			}
			if len(out.Overwrites) != tt.wantOverwrites {
				t.Errorf("overwrites = %d, want %d", len(out.Overwrites), tt.wantOverwrites)
			}
			if len(out.Conflicts) != tt.wantConflicts {
				t.Errorf("conflicts = %d, want %d", len(out.Conflicts), tt.wantConflicts)
			}
		})
	}
}

func TestOverwriteAudit(t *testing.T) {
	s := types.NewCanonicalSample("S1")
	Apply(s, record(schema.StageOptical, map[string]any{"emission_peak_nm": 520.0}), types.PolicyLastWins)
	out := Apply(s, record(schema.StageFigures, map[string]any{"emission_peak_nm": 525.0}), types.PolicyLastWins)

	if len(out.Overwrites) != 1 {
		t.Fatalf("got %d overwrites, want 1", len(out.Overwrites))
	}
	ow := out.Overwrites[0]
	if ow.SampleID != "S1" || ow.Field != "emission_peak_nm" {
		t.Errorf("overwrite target = %s.%s", ow.SampleID, ow.Field)
	}
	if ow.Old != 520.0 || ow.New != 525.0 {
		t.Errorf("overwrite values = %v -> %v", ow.Old, ow.New)
	}
	if ow.OldStage != schema.StageOptical || ow.NewStage != schema.StageFigures {
		t.Errorf("overwrite stages = %s -> %s", ow.OldStage, ow.NewStage)
	}
	if s.Provenance["emission_peak_nm"] != schema.StageFigures {
		t.Errorf("provenance after overwrite = %q", s.Provenance["emission_peak_nm"])
	}
}

func TestFlagDiagnosticNamesBothStages(t *testing.T) {
	s := types.NewCanonicalSample("S1")
	Apply(s, record(schema.StageOptical, map[string]any{"quantum_yield_percent": 65.0}), types.PolicyFlag)
	out := Apply(s, record(schema.StageFigures, map[string]any{"quantum_yield_percent": 60.0}), types.PolicyFlag)

	if len(out.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(out.Conflicts))
	}
	d := out.Conflicts[0]
	if d.Stage != schema.StageFigures || d.Field != "quantum_yield_percent" {
		t.Errorf("diagnostic = %+v", d)
	}
	// The kept value must survive the flagged conflict.
	if s.Fields["quantum_yield_percent"] != 65.0 {
		t.Errorf("kept value = %v, want 65", s.Fields["quantum_yield_percent"])
	}
}

// --- figure provenance ---

func TestApplyRecordsFigureSource(t *testing.T) {
	s := types.NewCanonicalSample("S1")
	rec := types.CoercedRecord{
		Stage:       schema.StageFigures,
		RawSampleID: "S1",
		Fields:      map[string]any{"emission_peak_nm": 520.0},
		Sources:     map[string]string{"emission_peak_nm": "Fig. 2a emission spectrum"},
	}
	Apply(s, rec, types.PolicyLastWins)

	if got := s.FigureProvenance["emission_peak_nm"]; got != "Fig. 2a emission spectrum" {
		t.Errorf("figure provenance = %q", got)
	}
}

func TestListValuesCompareByContent(t *testing.T) {
	s := types.NewCanonicalSample("S1")
	Apply(s, record(schema.StageComposition, map[string]any{"dopants": []string{"N", "S"}}), types.PolicyFlag)
	out := Apply(s, record(schema.StageSynthesis, map[string]any{"dopants": []string{"N", "S"}}), types.PolicyFlag)

	if len(out.Conflicts) != 0 {
		t.Errorf("equal lists flagged as conflict: %+v", out.Conflicts)
	}
}
