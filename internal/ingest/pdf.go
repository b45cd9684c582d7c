// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest extracts plain text from source PDFs for prompting. It is
// a collaborator of the pipeline, not part of the reconciliation core: the
// core only ever sees raw stage output text.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/meshintel/nfp-etl/internal/llm"
)

// Text extracts the plain text of a PDF, pages separated by form feeds.
func Text(path string) (string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i > 1 {
			buf.WriteString("\f")
		}
		buf.WriteString(text)
	}

	if strings.TrimSpace(buf.String()) == "" {
		return "", fmt.Errorf("no text extracted from %s", path)
	}
	return buf.String(), nil
}

// Truncate bounds paper text for prompting. Overlong papers keep their head
// and tail halves; results and conclusions live at the end as often as the
// abstract lives at the front.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	half := maxChars / 2
	return text[:half] + "\n\n...[TRUNCATED]...\n\n" + text[len(text)-half:]
}

// imageExts are the figure formats attached to multimodal stages.
var imageExts = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Figures loads pre-extracted figure images for one paper from
// figuresDir/<paperID>/, sorted by filename. A missing directory means no
// figures; the figures stage then runs text-only.
func Figures(figuresDir, paperID string) ([]llm.Image, error) {
	dir := filepath.Join(figuresDir, paperID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading figures directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageExts[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var images []llm.Image
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading figure %s: %w", name, err)
		}
		images = append(images, llm.Image{
			MediaType: imageExts[strings.ToLower(filepath.Ext(name))],
			Data:      data,
		})
	}
	return images, nil
}
