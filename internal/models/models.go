package models

import (
	"time"
)

// SourceKind names the variant of a Source.
type SourceKind string

const (
	SourceLocator    SourceKind = "locator"
	SourceBytes      SourceKind = "bytes"
	SourceDescriptor SourceKind = "descriptor"
)

// Source describes where the document bytes are. Exactly one of
// TextLocator, RawBytes or StructuredDescriptor.
type Source interface {
	Kind() SourceKind
}

// TextLocator is a reference (path, file://, http(s)://, s3://) the worker fetches itself.
type TextLocator string

// RawBytes is the document itself. The caller hands the buffer over and must not
// mutate it after loading.
type RawBytes []byte

// StructuredDescriptor is an option mapping; "url" or "data" locate or embed the
// document, "password", "disableRange", "rangeChunkSize" and "verbosity" tune the load.
type StructuredDescriptor map[string]any

func (TextLocator) Kind() SourceKind          { return SourceLocator }
func (RawBytes) Kind() SourceKind             { return SourceBytes }
func (StructuredDescriptor) Kind() SourceKind { return SourceDescriptor }

// Verbosity levels understood by the worker.
const (
	VerbosityErrors   = 0
	VerbosityWarnings = 1
	VerbosityInfos    = 5
)

// Options tunes a single load.
//
// Password:       password for encrypted documents.
// DisableRange:   turn off chunked range requests when fetching a locator.
// RangeChunkSize: bytes per range request.
// Verbosity:      worker log level for this request.
// Extra:          unrecognized descriptor keys, forwarded untouched.
type Options struct {
	Password       string         `json:"password,omitempty"`
	DisableRange   bool           `json:"disableRange,omitempty"`
	RangeChunkSize int            `json:"rangeChunkSize"`
	Verbosity      int            `json:"verbosity"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// DefaultOptions returns the option set descriptors are merged against.
func DefaultOptions() Options {
	return Options{
		RangeChunkSize: 1 << 16,
		Verbosity:      VerbosityWarnings,
	}
}

// LoadRequest is the worker-ready form of a Source. It is never modified after
// it has been built.
type LoadRequest struct {
	ID      string
	Kind    SourceKind
	Locator string
	Data    []byte
	Options Options
}

// RequestFrame is what travels to the worker.
type RequestFrame struct {
	ID        uint64  `json:"id"`
	RequestID string  `json:"requestId"`
	Locator   string  `json:"locator,omitempty"`
	Data      []byte  `json:"data,omitempty"`
	Options   Options `json:"options"`
}

// ResponseFrame is what comes back. Exactly one of Document and Error is set.
type ResponseFrame struct {
	ID       uint64        `json:"id"`
	Document *DocumentInfo `json:"document,omitempty"`
	Error    *FrameError   `json:"error,omitempty"`
}

// Reasons a worker reports a failed parse.
const (
	ReasonInvalid     = "invalid"
	ReasonPassword    = "password"
	ReasonMissing     = "missing"
	ReasonFetch       = "fetch"
	ReasonUnsupported = "unsupported"
)

// FrameError is a worker-side failure.
type FrameError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// DocumentInfo is the parsed-document descriptor produced by the worker.
type DocumentInfo struct {
	Fingerprint string            `json:"fingerprint"`
	NumPages    int               `json:"numPages"`
	ContentType string            `json:"contentType"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Text        string            `json:"text,omitempty"`
}

// LoadRecord is one load attempt as kept in the load history.
type LoadRecord struct {
	ID          string    `db:"id" json:"id"`
	SourceKind  string    `db:"source_kind" json:"source_kind"`
	Locator     string    `db:"locator" json:"locator,omitempty"`
	Status      string    `db:"status" json:"status"` // loaded | failed
	Fingerprint string    `db:"fingerprint" json:"fingerprint,omitempty"`
	NumPages    int       `db:"num_pages" json:"num_pages"`
	ContentType string    `db:"content_type" json:"content_type,omitempty"`
	Size        int64     `db:"size" json:"size"`
	Error       string    `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

const (
	StatusLoaded = "loaded"
	StatusFailed = "failed"
)
