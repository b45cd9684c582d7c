package llm

import (
	"strings"
	"testing"

	"github.com/meshintel/nfp-etl/internal/schema"
)

func buildPrompt(t *testing.T, stage string) string {
	t.Helper()
	sc, err := schema.Get(stage)
	if err != nil {
		t.Fatal(err)
	}
	prompt, err := BuildPrompt(sc, "PAPER TEXT HERE")
	if err != nil {
		t.Fatal(err)
	}
	return prompt
}

func TestBuildPromptListsRegistryFields(t *testing.T) {
	prompt := buildPrompt(t, schema.StageOptical)

	sc, _ := schema.Get(schema.StageOptical)
	for _, name := range sc.FieldOrder {
		if !strings.Contains(prompt, name) {
			t.Errorf("prompt missing field %s", name)
		}
	}
	if !strings.Contains(prompt, "PAPER TEXT HERE") {
		t.Error("prompt missing paper text")
	}
}

func TestBuildPromptEnumDomains(t *testing.T) {
	prompt := buildPrompt(t, schema.StageComposition)
	// Enum fields list their full closed value set.
	for _, v := range []string{"quantum_dot", "carbon_dot", "upconversion_nanoparticle"} {
		if !strings.Contains(prompt, v) {
			t.Errorf("prompt missing enum value %s", v)
		}
	}
}

func TestBuildPromptShapeInstructions(t *testing.T) {
	perSample := buildPrompt(t, schema.StageOptical)
	if !strings.Contains(perSample, `"samples"`) {
		t.Error("per-sample prompt missing samples wrapper instruction")
	}
	if !strings.Contains(perSample, "sample_id") {
		t.Error("per-sample prompt missing sample_id instruction")
	}

	single := buildPrompt(t, schema.StageMetadata)
	if strings.Contains(single, `"samples"`) {
		t.Error("single-shape prompt asks for a samples wrapper")
	}
}

func TestBuildPromptMultimodalInstructions(t *testing.T) {
	figures := buildPrompt(t, schema.StageFigures)
	if !strings.Contains(figures, `"source"`) {
		t.Error("figures prompt missing value-holder instruction")
	}

	optical := buildPrompt(t, schema.StageOptical)
	if strings.Contains(optical, "attached figures") {
		t.Error("text-only prompt mentions figures")
	}
}
