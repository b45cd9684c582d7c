// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/meshintel/nfp-etl/internal/schema"
	"github.com/meshintel/nfp-etl/pkg/types"
)

// encodedResult is the persisted per-paper layout: newline-free JSON whose
// top-level "samples" array holds each sample's fields plus sample_id, with
// field keys and enum spellings exactly as the registry declares them.
type encodedResult struct {
	PaperID     string                `json:"paper_id"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
	Samples     []map[string]any      `json:"samples"`
	Provenance  []sampleProvenance    `json:"sample_provenance,omitempty"`
	Unresolved  []types.CoercedRecord `json:"unresolved,omitempty"`
	Diagnostics []types.Diagnostic    `json:"diagnostics,omitempty"`
}

// sampleProvenance carries per-sample provenance parallel to the samples
// array, keeping the sample elements themselves flat for downstream tools.
type sampleProvenance struct {
	SampleID string            `json:"sample_id"`
	Fields   map[string]string `json:"fields,omitempty"`
	Figures  map[string]string `json:"figures,omitempty"`
}

// EncodeResult serializes a PaperResult to the persisted layout.
func EncodeResult(r *types.PaperResult) ([]byte, error) {
	enc := encodedResult{
		PaperID:     r.PaperID,
		Metadata:    r.Metadata,
		Samples:     make([]map[string]any, 0, len(r.Samples)),
		Unresolved:  r.Unresolved,
		Diagnostics: r.Diagnostics,
	}
	for _, s := range r.Samples {
		el := make(map[string]any, len(s.Fields)+1)
		for k, v := range s.Fields {
			if v != nil {
				el[k] = v
			}
		}
		el[schema.SampleIDField] = s.ID
		enc.Samples = append(enc.Samples, el)

		if len(s.Provenance) > 0 || len(s.FigureProvenance) > 0 {
			enc.Provenance = append(enc.Provenance, sampleProvenance{
				SampleID: s.ID,
				Fields:   s.Provenance,
				Figures:  s.FigureProvenance,
			})
		}
	}
	return json.Marshal(enc)
}

// DecodeResult parses the persisted layout back into a PaperResult,
// restoring canonical value types (integer fields come back as int, lists
// as []string) from the registry's field kinds.
func DecodeResult(data []byte) (*types.PaperResult, error) {
	var enc encodedResult
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("parsing result: %w", err)
	}

	r := &types.PaperResult{
		PaperID:     enc.PaperID,
		Unresolved:  enc.Unresolved,
		Diagnostics: enc.Diagnostics,
	}
	if len(enc.Metadata) > 0 {
		r.Metadata = make(map[string]any, len(enc.Metadata))
		for k, v := range enc.Metadata {
			r.Metadata[k] = restoreValue(k, v)
		}
	}

	prov := make(map[string]sampleProvenance, len(enc.Provenance))
	for _, p := range enc.Provenance {
		prov[p.SampleID] = p
	}

	for _, el := range enc.Samples {
		id, _ := el[schema.SampleIDField].(string)
		s := types.NewCanonicalSample(id)
		for k, v := range el {
			if k == schema.SampleIDField {
				continue
			}
			s.Fields[k] = restoreValue(k, v)
		}
		if p, ok := prov[id]; ok {
			if p.Fields != nil {
				s.Provenance = p.Fields
			}
			s.FigureProvenance = p.Figures
		}
		r.Samples = append(r.Samples, s)
	}
	return r, nil
}

// WriteResult persists an encoded result to dir/<paperID>.json.
func WriteResult(dir string, r *types.PaperResult) (string, error) {
	data, err := EncodeResult(r)
	if err != nil {
		return "", fmt.Errorf("encoding result %s: %w", r.PaperID, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, r.PaperID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing result %s: %w", path, err)
	}
	return path, nil
}

// ReadResult loads a persisted result file.
func ReadResult(path string) (*types.PaperResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result %s: %w", path, err)
	}
	return DecodeResult(data)
}

var (
	kindsOnce  sync.Once
	fieldKinds map[string]schema.FieldKind
)

// restoreValue undoes JSON's number widening using the registry's declared
// kinds. Fields the registry does not know pass through untouched.
func restoreValue(field string, v any) any {
	kindsOnce.Do(func() {
		fieldKinds = make(map[string]schema.FieldKind)
		for _, sc := range schema.Stages() {
			for name, spec := range sc.Fields {
				fieldKinds[name] = spec.Kind
			}
		}
	})

	switch fieldKinds[field] {
	case schema.KindInteger:
		if f, ok := v.(float64); ok && f == float64(int(f)) {
			return int(f)
		}
	case schema.KindList:
		if arr, ok := v.([]any); ok {
			out := make([]string, 0, len(arr))
			for _, el := range arr {
				if s, ok := el.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return v
}
