package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appMiddleware "github.com/markdave123-py/docloader/internal/api/middlewares"
	"github.com/markdave123-py/docloader/internal/core"
	"github.com/markdave123-py/docloader/internal/loader"
	"github.com/markdave123-py/docloader/internal/models"
)

const (
	maxUploadSize = 64 << 20
	loadTimeout   = 2 * time.Minute
)

type DocumentHandler struct {
	dbclient core.DbClient
	loader   *loader.Loader
}

func NewDocumentHandler(dbclient core.DbClient, l *loader.Loader) *DocumentHandler {
	return &DocumentHandler{dbclient: dbclient, loader: l}
}

// loadResponse is the history record plus what the worker extracted.
type loadResponse struct {
	*models.LoadRecord
	Metadata map[string]string `json:"metadata,omitempty"`
	Text     string            `json:"text,omitempty"`
}

type errorResponse struct {
	ID     string `json:"id,omitempty"`
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// LoadDocument accepts either a JSON descriptor ({"url": ...} or {"data": "<base64>"},
// plus load options) or a multipart upload with a "file" part and an optional
// "password" field, loads it through the worker and records the outcome.
func (h *DocumentHandler) LoadDocument(w http.ResponseWriter, r *http.Request) {
	src, err := sourceFromRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	req, err := loader.Normalize(src)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := checkRemoteLocator(req.Locator); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if user, ok := appMiddleware.UserID(r.Context()); ok {
		log.Printf("load %s (%s) requested by %s", req.ID, req.Kind, user)
	}

	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()

	doc, loadErr := h.loader.Submit(ctx, req).Await(ctx)

	rec := &models.LoadRecord{
		ID:         req.ID,
		SourceKind: string(req.Kind),
		Locator:    req.Locator,
		CreatedAt:  time.Now().UTC(),
	}
	if loadErr != nil {
		rec.Status = models.StatusFailed
		rec.Error = loadErr.Error()
	} else {
		rec.Status = models.StatusLoaded
		rec.Fingerprint = doc.Fingerprint()
		rec.NumPages = doc.NumPages()
		rec.ContentType = doc.ContentType()
		rec.Size = doc.Size()
	}

	// History writes get their own deadline.
	storeCtx, storeCancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
	defer storeCancel()
	if err := h.dbclient.RecordLoad(storeCtx, rec); err != nil {
		log.Printf("DB insert failed for load %s: %v", rec.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{ID: rec.ID, Error: fmt.Sprintf("failed to record load: %v", err)})
		return
	}

	if loadErr != nil {
		log.Printf("load %s failed: %v", rec.ID, loadErr)
		writeJSON(w, statusFor(loadErr), errorResponse{ID: rec.ID, Error: loadErr.Error(), Reason: reasonOf(loadErr)})
		return
	}

	writeJSON(w, http.StatusOK, loadResponse{LoadRecord: rec, Metadata: doc.Metadata(), Text: doc.Text()})
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid limit %q", v)})
			return
		}
		limit = n
	}

	records, err := h.dbclient.ListLoadRecords(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.dbclient.GetLoadRecord(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{ID: id, Error: err.Error()})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{ID: id, Error: "load record not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func sourceFromRequest(w http.ResponseWriter, r *http.Request) (models.Source, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return sourceFromUpload(r)
	}

	var desc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		return nil, fmt.Errorf("invalid body: %w", err)
	}
	if s, ok := desc["data"].(string); ok {
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("data is not valid base64: %w", err)
		}
		desc["data"] = data
	}
	return models.StructuredDescriptor(desc), nil
}

func sourceFromUpload(r *http.Request) (models.Source, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("invalid file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	if pw := r.FormValue("password"); pw != "" {
		return models.StructuredDescriptor{"data": data, "password": pw}, nil
	}
	return models.RawBytes(data), nil
}

// remoteSchemes are the locator schemes API callers may ask the worker to fetch.
var remoteSchemes = map[string]bool{"http": true, "https": true, "s3": true}

// checkRemoteLocator refuses paths and file:// locators, which would read the
// service's own filesystem.
func checkRemoteLocator(loc string) error {
	if loc == "" {
		return nil
	}
	u, err := url.Parse(loc)
	if err != nil || !remoteSchemes[u.Scheme] || u.Host == "" {
		return fmt.Errorf("url must be an http(s):// or s3:// locator, got %q", loc)
	}
	return nil
}

// statusFor maps load failures onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, loader.ErrInvalidSource):
		return http.StatusBadRequest
	case errors.Is(err, loader.ErrWorkerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, loader.ErrWorkerTerminated):
		return http.StatusBadGateway
	case errors.Is(err, loader.ErrParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func reasonOf(err error) string {
	var pe *loader.ParseError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
