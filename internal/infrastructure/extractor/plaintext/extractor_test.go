package plaintext

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

type storageStub struct {
	objects map[string][]byte
}

func (s *storageStub) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.objects[key] = raw
	return nil
}

func (s *storageStub) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func TestExtractReturnsTextVerbatim(t *testing.T) {
	storage := &storageStub{objects: map[string][]byte{
		"doc.txt": []byte("line one\n\nline two  "),
	}}
	ext := NewExtractor(storage)

	text, err := ext.Extract(context.Background(), "doc.txt")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "line one\n\nline two  " {
		t.Fatalf("extracted text altered: %q", text)
	}
}

func TestExtractRejectsBinaryContent(t *testing.T) {
	storage := &storageStub{objects: map[string][]byte{
		"blob.bin": {0xff, 0xfe, 0x00, 0x01},
	}}
	ext := NewExtractor(storage)

	_, err := ext.Extract(context.Background(), "blob.bin")
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestExtractMissingObject(t *testing.T) {
	ext := NewExtractor(&storageStub{objects: map[string][]byte{}})

	if _, err := ext.Extract(context.Background(), "gone.txt"); err == nil {
		t.Fatalf("expected error for missing object")
	}
}
