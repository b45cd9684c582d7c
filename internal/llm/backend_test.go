package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/meshintel/nfp-etl/internal/schema"
)

func TestMain(m *testing.M) {
	// Override backoff to avoid real sleeps in retry tests.
	retryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// --- mock backend ---

type mockBackend struct {
	response string
	err      error
	calls    int
	lastReq  Request
}

func (m *mockBackend) Invoke(_ context.Context, req Request) (string, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

// failNTimesBackend fails the first N calls, then succeeds.
type failNTimesBackend struct {
	failures  int
	callCount int
	response  string
}

func (f *failNTimesBackend) Invoke(_ context.Context, _ Request) (string, error) {
	f.callCount++
	if f.callCount <= f.failures {
		return "", fmt.Errorf("transient error (call %d)", f.callCount)
	}
	return f.response, nil
}

// --- RunStage ---

func TestSessionRunStage(t *testing.T) {
	backend := &mockBackend{response: `{"samples": []}`}
	session := &Session{Backend: backend, PaperText: "paper body"}

	got, err := session.RunStage(context.Background(), schema.StageOptical)
	if err != nil {
		t.Fatalf("RunStage failed: %v", err)
	}
	if got != `{"samples": []}` {
		t.Errorf("got %q", got)
	}
	if backend.calls != 1 {
		t.Errorf("calls = %d, want 1", backend.calls)
	}
	if backend.lastReq.Stage != schema.StageOptical {
		t.Errorf("request stage = %q", backend.lastReq.Stage)
	}
	if !strings.Contains(backend.lastReq.Prompt, "paper body") {
		t.Error("prompt missing paper text")
	}
}

func TestSessionUnknownStage(t *testing.T) {
	session := &Session{Backend: &mockBackend{}}
	_, err := session.RunStage(context.Background(), "thermal")
	if err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestSessionRetriesTransientFailures(t *testing.T) {
	backend := &failNTimesBackend{failures: 2, response: "{}"}
	session := &Session{Backend: backend, MaxRetries: 3}

	got, err := session.RunStage(context.Background(), schema.StageMetadata)
	if err != nil {
		t.Fatalf("RunStage failed after retries: %v", err)
	}
	if got != "{}" {
		t.Errorf("got %q", got)
	}
	if backend.callCount != 3 {
		t.Errorf("callCount = %d, want 3", backend.callCount)
	}
}

func TestSessionExhaustsRetries(t *testing.T) {
	backend := &failNTimesBackend{failures: 10}
	session := &Session{Backend: backend, MaxRetries: 3}

	_, err := session.RunStage(context.Background(), schema.StageMetadata)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if backend.callCount != 3 {
		t.Errorf("callCount = %d, want 3", backend.callCount)
	}
	if !strings.Contains(err.Error(), "stage metadata") {
		t.Errorf("error does not name the stage: %v", err)
	}
}

// --- multimodal routing ---

func TestSessionAttachesImagesOnlyForMultimodalStages(t *testing.T) {
	images := []Image{{MediaType: "image/png", Data: []byte("png-bytes")}}
	backend := &mockBackend{response: "{}"}
	session := &Session{Backend: backend, Images: images}

	if _, err := session.RunStage(context.Background(), schema.StageFigures); err != nil {
		t.Fatal(err)
	}
	if len(backend.lastReq.Images) != 1 {
		t.Errorf("figures stage got %d images, want 1", len(backend.lastReq.Images))
	}

	if _, err := session.RunStage(context.Background(), schema.StageOptical); err != nil {
		t.Fatal(err)
	}
	if len(backend.lastReq.Images) != 0 {
		t.Errorf("text-only stage got %d images, want 0", len(backend.lastReq.Images))
	}
}
