// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package coerce turns untyped stage records into canonical, schema-valid
// values. Invalid fields become null plus a recorded error; absent fields
// become null with no error, so "not reported" and "reported but invalid"
// stay distinguishable downstream.
package coerce

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/meshintel/nfp-etl/internal/schema"
	"github.com/meshintel/nfp-etl/pkg/types"
)

//go:embed aliases.yaml
var defaultAliases []byte

// aliasFile is the on-disk layout of an alias table.
type aliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// Coercer applies a stage schema and a field-name alias table to raw
// records. The zero value is not usable; construct with New.
type Coercer struct {
	// aliases maps a loosely-normalized spelling to its canonical field name.
	aliases map[string]string
}

// New returns a Coercer seeded with the embedded default alias table.
func New() (*Coercer, error) {
	c := &Coercer{aliases: make(map[string]string)}
	if err := c.mergeAliases(defaultAliases); err != nil {
		return nil, fmt.Errorf("parsing embedded aliases: %w", err)
	}
	return c, nil
}

// LoadAliases merges an additional alias table from a YAML file. Later
// entries win on collision.
func (c *Coercer) LoadAliases(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading aliases %s: %w", path, err)
	}
	if err := c.mergeAliases(data); err != nil {
		return fmt.Errorf("parsing aliases %s: %w", path, err)
	}
	return nil
}

func (c *Coercer) mergeAliases(data []byte) error {
	var af aliasFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return err
	}
	for canonical, spellings := range af.Aliases {
		for _, s := range spellings {
			c.aliases[looseKey(s)] = canonical
		}
	}
	return nil
}

// Coerce validates one raw record against its stage schema. Every declared
// field appears in the result: canonical value when valid, nil otherwise.
func (c *Coercer) Coerce(rec types.RawStageRecord, sc *schema.StageSchema) types.CoercedRecord {
	out := types.CoercedRecord{
		Stage:       rec.Stage,
		RawSampleID: strings.TrimSpace(rec.RawSampleID),
		Fields:      make(map[string]any, len(sc.FieldOrder)),
	}

	byField := c.resolveKeys(rec.Fields, sc)

	for _, name := range sc.FieldOrder {
		raw, present := byField[name]
		if !present {
			out.Fields[name] = nil
			continue
		}

		value, source := unwrap(raw)
		if source != "" {
			if out.Sources == nil {
				out.Sources = make(map[string]string)
			}
			out.Sources[name] = source
		}

		if value == nil {
			out.Fields[name] = nil
			continue
		}

		canonical, err := coerceValue(value, sc.Fields[name])
		if err != nil {
			out.Fields[name] = nil
			out.Errors = append(out.Errors, types.CoercionError{
				Field:  name,
				Reason: err.Error(),
			})
			continue
		}
		out.Fields[name] = canonical
	}

	return out
}

// resolveKeys maps raw field names onto declared field names: exact match,
// then alias table, then a punctuation-insensitive fold. Undeclared raw
// fields are ignored.
func (c *Coercer) resolveKeys(raw map[string]any, sc *schema.StageSchema) map[string]any {
	loose := make(map[string]string, len(sc.FieldOrder))
	for _, name := range sc.FieldOrder {
		loose[looseKey(name)] = name
	}

	// Exact spellings bind first so an alias never shadows the real key.
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if sc.HasField(k) {
			out[k] = v
		}
	}
	for k, v := range raw {
		if sc.HasField(k) {
			continue
		}
		lk := looseKey(k)
		name := ""
		if canonical, ok := c.aliases[lk]; ok && sc.HasField(canonical) {
			name = canonical
		} else if canonical, ok := loose[lk]; ok {
			name = canonical
		}
		if name == "" {
			continue
		}
		if _, dup := out[name]; !dup {
			out[name] = v
		}
	}
	return out
}

// unwrap peels a value-holder object ({"value": ..., "source": "Fig. 2a"})
// down to its inner value, returning the source description when present.
// The figures stage emits these; other stages pass values straight through.
func unwrap(v any) (any, string) {
	m, ok := v.(map[string]any)
	if !ok {
		return v, ""
	}
	inner, ok := m["value"]
	if !ok {
		return v, ""
	}
	source := ""
	for _, key := range []string{"source", "_src"} {
		if s, ok := m[key].(string); ok && s != "" {
			source = s
			break
		}
	}
	return inner, source
}

func coerceValue(v any, spec schema.FieldSpec) (any, error) {
	switch spec.Kind {
	case schema.KindString:
		return coerceString(v)
	case schema.KindNumber:
		return coerceNumber(v, spec)
	case schema.KindInteger:
		return coerceInteger(v)
	case schema.KindEnum:
		return coerceEnum(v, spec.Enum)
	case schema.KindList:
		return coerceList(v)
	case schema.KindObject:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return nil, fmt.Errorf("unsupported field kind %q", spec.Kind)
}

func coerceString(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return s, nil
}

// numberToken matches the first numeric literal inside a string, tolerating
// surrounding unit symbols the model left attached ("520 nm", "~65%").
var numberToken = regexp.MustCompile(`[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`)

func coerceNumber(v any, spec schema.FieldSpec) (any, error) {
	n, percentMarked, err := parseNumber(v)
	if err != nil {
		return nil, err
	}

	// A value written with an explicit percent sign is already a
	// percentage; only unmarked fractions get rescaled.
	if spec.Normalize == schema.NormFractionToPercent && !percentMarked && n > 0 && n <= 1 {
		n *= 100
	}

	if spec.Min != nil && n < *spec.Min {
		return nil, fmt.Errorf("value %v below minimum %v", n, *spec.Min)
	}
	if spec.Max != nil && n > *spec.Max {
		return nil, fmt.Errorf("value %v above maximum %v", n, *spec.Max)
	}
	return n, nil
}

func parseNumber(v any) (float64, bool, error) {
	switch n := v.(type) {
	case float64:
		return n, false, nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false, fmt.Errorf("empty numeric string")
		}
		tok := numberToken.FindString(s)
		if tok == "" {
			return 0, false, fmt.Errorf("no number in %q", s)
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, false, fmt.Errorf("parsing %q: %w", tok, err)
		}
		return f, strings.Contains(s, "%"), nil
	default:
		return 0, false, fmt.Errorf("expected number, got %T", v)
	}
}

func coerceInteger(v any) (any, error) {
	n, _, err := parseNumber(v)
	if err != nil {
		return nil, err
	}
	i := int(n)
	if float64(i) != n {
		return nil, fmt.Errorf("value %v is not an integer", n)
	}
	return i, nil
}

// coerceEnum matches case-insensitively against the closed value set and
// returns the canonical spelling. No closest-match guessing.
func coerceEnum(v any, allowed []string) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected enum string, got %T", v)
	}
	s = strings.TrimSpace(s)
	for _, a := range allowed {
		if strings.EqualFold(s, a) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("value %q not in enum set %v", s, allowed)
}

func coerceList(v any) (any, error) {
	switch list := v.(type) {
	case []any:
		out := make([]string, 0, len(list))
		for i, el := range list {
			switch e := el.(type) {
			case string:
				if s := strings.TrimSpace(e); s != "" {
					out = append(out, s)
				}
			case float64:
				out = append(out, strconv.FormatFloat(e, 'g', -1, 64))
			default:
				return nil, fmt.Errorf("list element %d: expected string, got %T", i, el)
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	case string:
		// Delimited shorthand: "citrate; PEG" or "N, S".
		parts := splitList(list)
		if len(parts) == 0 {
			return nil, nil
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// looseKey lowercases and strips everything but letters and digits, so
// "Emission-Peak (nm)" and "emission_peak_nm" fold together.
func looseKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
