package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/meshintel/nfp-etl/internal/schema"
	"github.com/meshintel/nfp-etl/pkg/types"
)

func sampleResult(t *testing.T) *types.PaperResult {
	t.Helper()
	runner := mapRunner{
		schema.StageComposition: `{"samples": [
			{"sample_id": "QD-1", "material_class": "quantum_dot", "core_material": "CdSe", "dopants": ["Mn"]}
		]}`,
		schema.StageMetadata: `{"title": "A probe", "publication_year": 2023}`,
		schema.StageOptical:  `{"samples": [{"sample_id": "QD-1", "emission_peak_nm": 520, "quantum_yield_percent": 0.65}]}`,
		schema.StageFigures:  `{"samples": [{"sample_id": "QD-1", "detection_limit": {"value": 0.1, "source": "Fig. 4b"}}]}`,
	}
	result, err := Run(context.Background(), "paper1", runner, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleResult(t)

	data, err := EncodeResult(original)
	if err != nil {
		t.Fatalf("EncodeResult failed: %v", err)
	}
	if bytes.ContainsRune(data, '\n') {
		t.Error("encoded result contains newlines")
	}

	decoded, err := DecodeResult(data)
	if err != nil {
		t.Fatalf("DecodeResult failed: %v", err)
	}

	if decoded.PaperID != original.PaperID {
		t.Errorf("PaperID = %q", decoded.PaperID)
	}
	if !reflect.DeepEqual(decoded.Metadata, original.Metadata) {
		t.Errorf("Metadata = %#v, want %#v", decoded.Metadata, original.Metadata)
	}
	if len(decoded.Samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(decoded.Samples))
	}

	got, want := decoded.Sample("QD-1"), original.Sample("QD-1")
	for field, wantV := range want.Fields {
		if wantV == nil {
			continue
		}
		if !reflect.DeepEqual(got.Fields[field], wantV) {
			t.Errorf("field %s = %#v, want %#v", field, got.Fields[field], wantV)
		}
	}
	if !reflect.DeepEqual(got.Provenance, want.Provenance) {
		t.Errorf("Provenance = %#v, want %#v", got.Provenance, want.Provenance)
	}
	if !reflect.DeepEqual(got.FigureProvenance, want.FigureProvenance) {
		t.Errorf("FigureProvenance = %#v, want %#v", got.FigureProvenance, want.FigureProvenance)
	}
}

func TestRoundTripRestoresValueTypes(t *testing.T) {
	original := sampleResult(t)
	data, err := EncodeResult(original)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeResult(data)
	if err != nil {
		t.Fatal(err)
	}

	// JSON widens ints to float64 and lists to []any; decoding restores
	// the canonical types the registry declares.
	if y := decoded.Metadata["publication_year"]; y != 2023 {
		t.Errorf("publication_year = %v (%T), want int", y, y)
	}
	dopants := decoded.Sample("QD-1").Fields["dopants"]
	if !reflect.DeepEqual(dopants, []string{"Mn"}) {
		t.Errorf("dopants = %#v (%T), want []string", dopants, dopants)
	}
}

func TestRoundTripStableAcrossPasses(t *testing.T) {
	original := sampleResult(t)
	first, err := EncodeResult(original)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeResult(first)
	if err != nil {
		t.Fatal(err)
	}
	second, err := EncodeResult(decoded)
	if err != nil {
		t.Fatal(err)
	}
	redecoded, err := DecodeResult(second)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(decoded.Sample("QD-1").Fields, redecoded.Sample("QD-1").Fields) {
		t.Errorf("second pass drifted: %#v vs %#v",
			decoded.Sample("QD-1").Fields, redecoded.Sample("QD-1").Fields)
	}
}

func TestEncodeOmitsNullFields(t *testing.T) {
	result := sampleResult(t)
	data, err := EncodeResult(result)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeResult(data)
	if err != nil {
		t.Fatal(err)
	}
	for field, v := range decoded.Sample("QD-1").Fields {
		if v == nil {
			t.Errorf("null field %s persisted", field)
		}
	}
}

func TestWriteReadResult(t *testing.T) {
	dir := t.TempDir()
	original := sampleResult(t)

	path, err := WriteResult(dir, original)
	if err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}
	if filepath.Base(path) != "paper1.json" {
		t.Errorf("path = %q, want <dir>/paper1.json", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("result file missing: %v", err)
	}

	loaded, err := ReadResult(path)
	if err != nil {
		t.Fatalf("ReadResult failed: %v", err)
	}
	if loaded.PaperID != "paper1" || len(loaded.Samples) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
}
