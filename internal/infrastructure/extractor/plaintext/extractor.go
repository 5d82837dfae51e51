package plaintext

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/ports"
)

// Extractor reads UTF-8 text documents (plain text and markdown) verbatim.
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

	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract plain text",
			fmt.Errorf("document %s is not valid UTF-8", storageKey))
	}
	return string(raw), nil
}
