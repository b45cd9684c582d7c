package rawparse

import (
	"errors"
	"strings"
	"testing"

	"github.com/meshintel/nfp-etl/internal/schema"
)

func mustSchema(t *testing.T, name string) *schema.StageSchema {
	t.Helper()
	sc, err := schema.Get(name)
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

// --- happy paths ---

func TestParseSamplesArray(t *testing.T) {
	sc := mustSchema(t, schema.StageComposition)
	text := `{"samples": [
		{"sample_id": "CD-1", "core_material": "carbon"},
		{"sample_id": "CD-2", "core_material": "carbon", "core_size_nm": 3.2}
	]}`

	records, err := Parse(sc, text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].RawSampleID != "CD-1" {
		t.Errorf("records[0].RawSampleID = %q, want %q", records[0].RawSampleID, "CD-1")
	}
	if _, ok := records[0].Fields["sample_id"]; ok {
		t.Error("sample_id should be lifted out of Fields")
	}
	if records[1].Fields["core_size_nm"] != 3.2 {
		t.Errorf("core_size_nm = %v, want 3.2", records[1].Fields["core_size_nm"])
	}
}

func TestParseSingleObject(t *testing.T) {
	sc := mustSchema(t, schema.StageMetadata)
	records, err := Parse(sc, `{"title": "A probe", "publication_year": 2023}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].RawSampleID != "" {
		t.Errorf("RawSampleID = %q, want empty", records[0].RawSampleID)
	}
	if records[0].Fields["title"] != "A probe" {
		t.Errorf("title = %v", records[0].Fields["title"])
	}
}

// --- shape drift ---

func TestParseShapeDrift(t *testing.T) {
	tests := []struct {
		name    string
		stage   string
		text    string
		wantN   int
		wantIDs []string
	}{
		{
			name:    "array stage, flat object",
			stage:   schema.StageOptical,
			text:    `{"sample_id": "QD-1", "emission_peak_nm": 520}`,
			wantN:   1,
			wantIDs: []string{"QD-1"},
		},
		{
			name:    "array stage, bare top-level array",
			stage:   schema.StageOptical,
			text:    `[{"sample_id": "A"}, {"sample_id": "B"}]`,
			wantN:   2,
			wantIDs: []string{"A", "B"},
		},
		{
			name:    "single stage, samples wrapper",
			stage:   schema.StageMetadata,
			text:    `{"samples": [{"title": "x"}]}`,
			wantN:   1,
			wantIDs: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse(mustSchema(t, tt.stage), tt.text)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(records) != tt.wantN {
				t.Fatalf("got %d records, want %d", len(records), tt.wantN)
			}
			for i, want := range tt.wantIDs {
				if records[i].RawSampleID != want {
					t.Errorf("records[%d].RawSampleID = %q, want %q", i, records[i].RawSampleID, want)
				}
			}
		})
	}
}

// --- fence and prose tolerance ---

func TestParseTolerantWrapping(t *testing.T) {
	sc := mustSchema(t, schema.StageMetadata)
	tests := []struct {
		name string
		text string
	}{
		{"json code fence", "```json\n{\"title\": \"x\"}\n```"},
		{"bare code fence", "```\n{\"title\": \"x\"}\n```"},
		{"leading prose", "Here is the extracted data:\n\n{\"title\": \"x\"}"},
		{"trailing prose", "{\"title\": \"x\"}\n\nLet me know if you need anything else."},
		{"prose and fence", "Sure! Here you go:\n```json\n{\"title\": \"x\"}\n```\nDone."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse(sc, tt.text)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(records) != 1 || records[0].Fields["title"] != "x" {
				t.Errorf("got %+v, want one record with title=x", records)
			}
		})
	}
}

// --- malformed output ---

func TestParseMalformed(t *testing.T) {
	sc := mustSchema(t, schema.StageComposition)
	tests := []struct {
		name string
		text string
	}{
		{"no json at all", "The paper does not describe any samples."},
		{"unbalanced braces", `{"samples": [{"sample_id": "A"`},
		{"samples not an array", `{"samples": {"sample_id": "A"}}`},
		{"array element not an object", `{"samples": ["A", "B"]}`},
		{"top-level scalar", `"just a string"`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(sc, tt.text)
			if err == nil {
				t.Fatal("expected error")
			}
			var malformedErr *MalformedOutputError
			if !errors.As(err, &malformedErr) {
				t.Fatalf("expected MalformedOutputError, got %T: %v", err, err)
			}
			if malformedErr.Stage != schema.StageComposition {
				t.Errorf("Stage = %q, want %q", malformedErr.Stage, schema.StageComposition)
			}
		})
	}
}

func TestMalformedSnippetBounded(t *testing.T) {
	sc := mustSchema(t, schema.StageComposition)
	long := strings.Repeat("no json here ", 100)
	_, err := Parse(sc, long)
	var malformedErr *MalformedOutputError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("expected MalformedOutputError, got %v", err)
	}
	if len(malformedErr.Text) > 250 {
		t.Errorf("snippet length %d, want bounded", len(malformedErr.Text))
	}
}

func TestParseTrimsSampleID(t *testing.T) {
	sc := mustSchema(t, schema.StageOptical)
	records, err := Parse(sc, `{"samples": [{"sample_id": "  QD-1  "}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if records[0].RawSampleID != "QD-1" {
		t.Errorf("RawSampleID = %q, want trimmed %q", records[0].RawSampleID, "QD-1")
	}
}
