// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rawparse turns the raw text returned by a stage invocation into
// zero or more untyped records. Models wrap JSON in code fences or prose
// often enough that tolerating it is mandatory; anything beyond that fails
// with a MalformedOutputError.
package rawparse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meshintel/nfp-etl/internal/schema"
	"github.com/meshintel/nfp-etl/pkg/types"
)

// samplesKey is the wrapper key array-shaped stages use.
const samplesKey = "samples"

// MalformedOutputError reports stage output that could not be parsed as the
// declared shape. It is fatal for the stage's contribution, not the paper.
type MalformedOutputError struct {
	Stage  string
	Text   string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("stage %s: malformed output: %s", e.Stage, e.Reason)
}

// Parse extracts records from one stage invocation's raw output text.
//
// Shape tolerance is symmetric: a single-shaped stage that wraps its output
// in a "samples" array yields one record per element, and an array-shaped
// stage that emits a flat object (single-sample paper, wrapper skipped)
// yields a one-element result.
func Parse(sc *schema.StageSchema, text string) ([]types.RawStageRecord, error) {
	payload, ok := extractJSON(text)
	if !ok {
		return nil, malformed(sc.Name, text, "no JSON object found")
	}

	var parsed any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, malformed(sc.Name, text, fmt.Sprintf("invalid JSON: %v", err))
	}

	switch v := parsed.(type) {
	case map[string]any:
		if wrapped, present := v[samplesKey]; present {
			arr, ok := wrapped.([]any)
			if !ok {
				return nil, malformed(sc.Name, text, `"samples" is not an array`)
			}
			return elementRecords(sc, text, arr)
		}
		// Flat object: one record, regardless of declared shape.
		return []types.RawStageRecord{objectRecord(sc.Name, v)}, nil
	case []any:
		// Bare top-level array, wrapper key skipped entirely.
		return elementRecords(sc, text, v)
	default:
		return nil, malformed(sc.Name, text, "top-level JSON is not an object or array")
	}
}

func elementRecords(sc *schema.StageSchema, text string, arr []any) ([]types.RawStageRecord, error) {
	records := make([]types.RawStageRecord, 0, len(arr))
	for i, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, malformed(sc.Name, text, fmt.Sprintf("samples[%d] is not an object", i))
		}
		records = append(records, objectRecord(sc.Name, obj))
	}
	return records, nil
}

func objectRecord(stage string, obj map[string]any) types.RawStageRecord {
	rec := types.RawStageRecord{
		Stage:  stage,
		Fields: make(map[string]any, len(obj)),
	}
	for k, v := range obj {
		if k == schema.SampleIDField {
			if s, ok := v.(string); ok {
				rec.RawSampleID = strings.TrimSpace(s)
			}
			continue
		}
		rec.Fields[k] = v
	}
	return rec
}

// extractJSON strips code-fence markup and surrounding prose, returning the
// outermost JSON object or array.
func extractJSON(text string) (string, bool) {
	text = stripFences(text)

	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	start, closer := objStart, byte('}')
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start, closer = arrStart, ']'
	}
	if start < 0 {
		return "", false
	}

	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// stripFences removes the first ``` fenced block's markers if present,
// keeping the fenced content. A language tag after the opening fence
// ("json") is dropped.
func stripFences(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	rest := text[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line if it is a bare word.
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{}[]") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func malformed(stage, text, reason string) *MalformedOutputError {
	return &MalformedOutputError{Stage: stage, Text: snippet(text), Reason: reason}
}

// snippet bounds the offending text carried in errors.
func snippet(text string) string {
	const max = 240
	text = strings.TrimSpace(text)
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
