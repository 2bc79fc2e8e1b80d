package core

import (
	"context"
)

// ExtractedText represents the result of text extraction, with metadata.
type ExtractedText struct {
	Text     string
	Metadata map[string]string
}

// DocumentExtractor defines the interface for extracting text from various document types.
type DocumentExtractor interface {
	// ExtractText parses the document bytes. The `contentType` hint helps the
	// extractor choose the right parsing strategy.
	ExtractText(ctx context.Context, data []byte, contentType string) (*ExtractedText, error)
}
