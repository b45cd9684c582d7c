// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/meshintel/nfp-etl/internal/schema"
	"github.com/meshintel/nfp-etl/pkg/types"
)

// stagePromptTmpl renders one stage's extraction prompt. The field table is
// generated from the schema registry, so prompt and validation can never
// drift apart.
var stagePromptTmpl = template.Must(template.New("stage").Parse(`You are a materials-science data extraction system. Extract the {{.StageTitle}} fields below from the following paper about nanomaterial fluorescent probes.

Rules:
- Report only values stated in the paper{{if .Multimodal}} or readable from the attached figures{{end}}. Use null for anything not reported. Never infer or estimate.
- Numeric fields: report the number only, without units.
- Enum fields: use exactly one of the listed values, or null.
{{- if .PerSample}}
- The paper may describe several distinct probe samples. Report each one separately and label it with "sample_id", using the sample name exactly as the paper writes it (e.g. "CdSe/ZnS-5nm", "CD-1"). Use the same sample_id spelling you used for the material composition fields.
{{- end}}
{{- if .Multimodal}}
- For each value read from a figure, report an object {"value": <number>, "source": "<figure and panel, e.g. Fig. 2a emission spectrum>"}.
{{- end}}

Fields:
{{.FieldTable}}
{{if .PerSample}}Respond with a JSON object of the form {"samples": [{...}, ...]} containing one element per sample, each element holding "sample_id" plus the fields above. If the paper describes exactly one sample you may respond with a single flat JSON object instead.{{else}}Respond with a single flat JSON object holding the fields above.{{end}} Do not include any text outside the JSON.

Paper text:

{{.PaperText}}
`))

// BuildPrompt renders the extraction prompt for one stage.
func BuildPrompt(sc *schema.StageSchema, paperText string) (string, error) {
	data := struct {
		StageTitle string
		PerSample  bool
		Multimodal bool
		FieldTable string
		PaperText  string
	}{
		StageTitle: strings.ReplaceAll(sc.Name, "_", " "),
		PerSample:  sc.Shape == types.ShapePerSampleArray,
		Multimodal: sc.Multimodal,
		FieldTable: fieldTable(sc),
		PaperText:  paperText,
	}

	var buf bytes.Buffer
	if err := stagePromptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fieldTable lists the stage's fields with their kinds and enum domains.
func fieldTable(sc *schema.StageSchema) string {
	var b strings.Builder
	for _, name := range sc.FieldOrder {
		spec := sc.Fields[name]
		switch spec.Kind {
		case schema.KindEnum:
			fmt.Fprintf(&b, "- %s: one of %s\n", name, strings.Join(spec.Enum, ", "))
		case schema.KindList:
			fmt.Fprintf(&b, "- %s: list of strings\n", name)
		default:
			fmt.Fprintf(&b, "- %s: %s%s\n", name, spec.Kind, fieldHint(spec))
		}
	}
	return b.String()
}

func fieldHint(spec schema.FieldSpec) string {
	if spec.Normalize == schema.NormFractionToPercent {
		return " (as a percentage; if the paper gives a fraction between 0 and 1, report it as given)"
	}
	return ""
}
