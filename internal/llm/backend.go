// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is the model-invocation collaborator: it renders per-stage
// prompts from the schema registry and calls a Generative AI API. The
// reconciliation core never imports it; it only sees the raw text a
// Session produces.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/meshintel/nfp-etl/internal/schema"
)

// Image is one figure attachment for a multimodal stage invocation.
type Image struct {
	// MediaType is the MIME type (e.g. "image/png").
	MediaType string

	// Data is the raw image bytes.
	Data []byte
}

// Request is one stage invocation.
type Request struct {
	Stage  string
	Prompt string
	Images []Image
}

// Backend abstracts the Generative AI API so tests can supply a mock. It
// returns the model's raw response text; parsing and validation happen in
// the reconciliation core.
type Backend interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// retryBaseDelay controls the backoff between failed API attempts. Tests
// override this to avoid real sleeps.
var retryBaseDelay = 2 * time.Second

// Session runs a paper's stage invocations against a backend. It
// implements the pipeline's StageRunner contract.
type Session struct {
	// Backend performs the API call.
	Backend Backend

	// PaperText is the (already truncated) paper text embedded in every
	// stage prompt.
	PaperText string

	// Images are figure attachments sent with multimodal stages.
	Images []Image

	// MaxRetries is the number of retry attempts per stage (default 3).
	MaxRetries int
}

// RunStage renders the stage's prompt and invokes the backend, retrying
// transient failures with exponential backoff.
func (s *Session) RunStage(ctx context.Context, stage string) (string, error) {
	sc, err := schema.Get(stage)
	if err != nil {
		return "", err
	}

	prompt, err := BuildPrompt(sc, s.PaperText)
	if err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", stage, err)
	}

	req := Request{Stage: stage, Prompt: prompt}
	if sc.Multimodal {
		req.Images = s.Images
	}

	attempts := s.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}

	var text string
	err = retry.Do(
		func() error {
			var invokeErr error
			text, invokeErr = s.Backend.Invoke(ctx, req)
			return invokeErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(retryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", stage, err)
	}
	return text, nil
}
