package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/docloader/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// ExtractText uses docconv to extract text from the document based on content type.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (*core.ExtractedText, error) {
	type result struct {
		res *docconv.Response
		err error
	}
	done := make(chan result, 1)

	// docconv shells out for several formats and takes no context.
	go func() {
		res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
		done <- result{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("docconv: extraction failed for content type '%s': %w", contentType, r.err)
		}
		return &core.ExtractedText{
			Text:     strings.TrimSpace(r.res.Body),
			Metadata: r.res.Meta,
		}, nil
	}
}
