package extractor

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

// FormatExtractor turns one stored document format into plain text.
type FormatExtractor interface {
	Extract(ctx context.Context, storageKey string) (string, error)
}

// Registry dispatches text extraction by the media type recorded at upload.
type Registry struct {
	formats map[string]FormatExtractor
}

func NewRegistry() *Registry {
	return &Registry{formats: make(map[string]FormatExtractor)}
}

func (r *Registry) Register(mediaType string, ext FormatExtractor) {
	r.formats[strings.ToLower(mediaType)] = ext
}

func (r *Registry) Extract(ctx context.Context, storageKey, contentType string) (string, error) {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if mediaType != "" {
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			mediaType = parsed
		}
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}

	ext, ok := r.formats[mediaType]
	if !ok {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract text",
			fmt.Errorf("no extractor registered for %q", mediaType))
	}
	return ext.Extract(ctx, storageKey)
}
