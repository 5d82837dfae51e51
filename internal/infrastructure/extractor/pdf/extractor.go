package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/ports"
)

// Extractor pulls the text layer out of PDF documents. Scanned PDFs with no
// text layer come back empty, which the coordinator reports as an
// unprocessable document.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, storageKey string) (string, error) {
	reader, err := e.storage.Open(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}

	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "parse pdf",
			fmt.Errorf("document %s: %w", storageKey, err))
	}

	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract pdf text",
			fmt.Errorf("document %s: %w", storageKey, err))
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
