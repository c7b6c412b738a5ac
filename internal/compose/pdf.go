package compose

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// MergePages concatenates per-page recognizer-produced PDFs into one
// document. Pages are passed through byte-for-byte, no re-rendering.
func MergePages(pages [][]byte) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to merge")
	}

	readers := make([]io.ReadSeeker, len(pages))
	for i, p := range pages {
		readers[i] = bytes.NewReader(p)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, nil); err != nil {
		return nil, fmt.Errorf("merge page pdfs: %w", err)
	}
	return out.Bytes(), nil
}
