package loader

import (
	"maps"

	"github.com/markdave123-py/docloader/internal/models"
)

// DocumentHandle refers to a parsed document. It is handed to downstream
// consumers as-is and never changes.
type DocumentHandle struct {
	requestID string
	info      models.DocumentInfo
}

func newDocumentHandle(requestID string, info models.DocumentInfo) *DocumentHandle {
	info.Metadata = maps.Clone(info.Metadata)
	return &DocumentHandle{requestID: requestID, info: info}
}

func (h *DocumentHandle) RequestID() string   { return h.requestID }
func (h *DocumentHandle) Fingerprint() string { return h.info.Fingerprint }
func (h *DocumentHandle) NumPages() int       { return h.info.NumPages }
func (h *DocumentHandle) ContentType() string { return h.info.ContentType }
func (h *DocumentHandle) Size() int64         { return h.info.Size }
func (h *DocumentHandle) Text() string        { return h.info.Text }

// Metadata returns a copy of the document metadata.
func (h *DocumentHandle) Metadata() map[string]string {
	return maps.Clone(h.info.Metadata)
}
