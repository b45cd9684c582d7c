// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package identity maintains the authoritative per-paper set of sample
// identifiers and maps later-stage records onto it. Canonical identities
// are created only from the composition stage; later stages can resolve
// against the set but never extend it.
package identity

import (
	"fmt"
	"strings"

	"github.com/meshintel/nfp-etl/pkg/types"
)

// DuplicateSampleIDError reports two identical identifiers inside the
// composition stage's own output. The paper describes that many distinct
// samples, so a collision means the identity set itself cannot be trusted.
// Fatal for the paper.
type DuplicateSampleIDError struct {
	ID string
}

func (e *DuplicateSampleIDError) Error() string {
	return fmt.Sprintf("duplicate sample_id %q in composition output", e.ID)
}

// Resolver holds one paper's canonical sample set. Not safe for concurrent
// use; each paper's pipeline is single-threaded by design.
type Resolver struct {
	samples []*types.CanonicalSample
	exact   map[string]*types.CanonicalSample
	folded  map[string]*types.CanonicalSample
	loose   map[string]*types.CanonicalSample
}

// NewResolver returns an empty resolver. Seed must run before Resolve.
func NewResolver() *Resolver {
	return &Resolver{
		exact:  make(map[string]*types.CanonicalSample),
		folded: make(map[string]*types.CanonicalSample),
		loose:  make(map[string]*types.CanonicalSample),
	}
}

// Seed creates one canonical identity per composition record, in record
// order. Records with an empty identifier are skipped and returned so the
// caller can report them. Identical identifiers fail with
// DuplicateSampleIDError.
func (r *Resolver) Seed(records []types.CoercedRecord) (skipped []types.CoercedRecord, err error) {
	for _, rec := range records {
		id := CanonicalID(rec.RawSampleID)
		if id == "" {
			skipped = append(skipped, rec)
			continue
		}
		if _, exists := r.exact[id]; exists {
			return nil, &DuplicateSampleIDError{ID: id}
		}

		s := types.NewCanonicalSample(id)
		r.samples = append(r.samples, s)
		r.exact[id] = s
		// First seed wins the folded/loose slots so near-identical ids
		// ("S1" vs "s1") still resolve deterministically.
		fold := strings.ToLower(id)
		if _, ok := r.folded[fold]; !ok {
			r.folded[fold] = s
		}
		ls := looseID(id)
		if _, ok := r.loose[ls]; !ok {
			r.loose[ls] = s
		}
	}
	return skipped, nil
}

// Resolve maps a later-stage identifier to a canonical sample, trying exact,
// case-insensitive, then punctuation/whitespace-normalized match. When no
// match exists and the paper has exactly one sample, the record attaches to
// it: single-sample papers routinely omit or mis-type the identifier in
// later stages.
func (r *Resolver) Resolve(rawID string) (*types.CanonicalSample, bool) {
	id := CanonicalID(rawID)
	if id != "" {
		if s, ok := r.exact[id]; ok {
			return s, true
		}
		if s, ok := r.folded[strings.ToLower(id)]; ok {
			return s, true
		}
		if s, ok := r.loose[looseID(id)]; ok {
			return s, true
		}
	}
	if len(r.samples) == 1 {
		return r.samples[0], true
	}
	return nil, false
}

// Samples returns the canonical samples in order of first appearance.
func (r *Resolver) Samples() []*types.CanonicalSample {
	return r.samples
}

// CanonicalID normalizes an identifier per the naming convention: trim,
// collapse internal whitespace, preserve case and punctuation.
func CanonicalID(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// looseID lowercases and strips everything but letters and digits.
func looseID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
