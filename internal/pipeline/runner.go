// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirRunner replays pre-captured raw stage outputs from disk: one
// <stage>.json (or <stage>.txt) per stage under Dir. Stages without a
// captured file are skipped. Useful for offline reprocessing and for
// re-merging after a registry or alias-table change without new API calls.
type DirRunner struct {
	Dir string
}

// RunStage reads the captured output for the stage, or ErrStageSkipped.
func (d DirRunner) RunStage(_ context.Context, stage string) (string, error) {
	for _, ext := range []string{".json", ".txt"} {
		path := filepath.Join(d.Dir, stage+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("reading captured output %s: %w", path, err)
		}
	}
	return "", ErrStageSkipped
}
