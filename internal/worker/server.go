package worker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docloader/internal/core"
	"github.com/markdave123-py/docloader/internal/models"
)

// Server answers load requests read from a stream. Requests are parsed
// concurrently and answered as they finish, so responses can overtake each other.
//
// fetcher:      resolves locators to bytes.
// extractor:    parses the bytes (docconv in production).
// concurrency:  how many requests are in flight at once.
type Server struct {
	fetcher     *Fetcher
	extractor   core.DocumentExtractor
	concurrency int
	logger      *slog.Logger
}

func NewServer(fetcher *Fetcher, extractor core.DocumentExtractor, concurrency int, logger *slog.Logger) *Server {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{fetcher: fetcher, extractor: extractor, concurrency: concurrency, logger: logger}
}

// Serve reads request frames from r until EOF and writes a response frame to w
// for each. It returns once every request read has been answered.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	out := &frameWriter{enc: json.NewEncoder(w)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var readErr error
	for gctx.Err() == nil {
		var req models.RequestFrame
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = fmt.Errorf("read request: %w", err)
			}
			break
		}
		g.Go(func() error {
			return out.write(s.handle(gctx, req))
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return readErr
}

type frameWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (fw *frameWriter) write(resp models.ResponseFrame) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.enc.Encode(resp); err != nil {
		return fmt.Errorf("write response %d: %w", resp.ID, err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, req models.RequestFrame) models.ResponseFrame {
	log := s.requestLogger(req)
	start := time.Now()

	info, err := s.load(ctx, req)
	if err != nil {
		fe := frameError(err)
		log.Warn("load failed", "reason", fe.Reason, "err", fe.Message)
		return models.ResponseFrame{ID: req.ID, Error: fe}
	}

	log.Info("document parsed",
		"content_type", info.ContentType,
		"pages", info.NumPages,
		"bytes", info.Size,
		"took", time.Since(start))
	return models.ResponseFrame{ID: req.ID, Document: info}
}

func (s *Server) load(ctx context.Context, req models.RequestFrame) (*models.DocumentInfo, error) {
	data := req.Data
	if len(data) == 0 {
		if req.Locator == "" {
			return nil, docErrorf(models.ReasonInvalid, "request has neither data nor locator")
		}
		fetched, err := s.fetcher.Fetch(ctx, req.Locator, req.Options)
		if err != nil {
			return nil, err
		}
		data = fetched
	}
	if len(data) == 0 {
		return nil, docErrorf(models.ReasonInvalid, "document is empty")
	}

	contentType := detectContentType(req.Locator, data)
	if contentType == "application/pdf" && isEncryptedPDF(data) && req.Options.Password == "" {
		return nil, docErrorf(models.ReasonPassword, "document is encrypted and no password was given")
	}

	extracted, err := s.extractor.ExtractText(ctx, data, contentType)
	if err != nil {
		return nil, docErrorf(models.ReasonInvalid, "%v", err)
	}

	sum := sha256.Sum256(data)
	info := &models.DocumentInfo{
		Fingerprint: hex.EncodeToString(sum[:]),
		ContentType: contentType,
		Size:        int64(len(data)),
		Metadata:    extracted.Metadata,
		Text:        extracted.Text,
	}
	if n, err := strconv.Atoi(extracted.Metadata["Pages"]); err == nil {
		info.NumPages = n
	}
	return info, nil
}

// requestLogger scopes the logger to one request and applies its verbosity.
func (s *Server) requestLogger(req models.RequestFrame) *slog.Logger {
	level := slog.LevelWarn
	switch v := req.Options.Verbosity; {
	case v <= models.VerbosityErrors:
		level = slog.LevelError
	case v >= models.VerbosityInfos:
		level = slog.LevelDebug
	}
	h := &minLevelHandler{Handler: s.logger.Handler(), min: level}
	return slog.New(h).With("id", req.ID, "request", req.RequestID)
}

// detectContentType prefers the locator's extension and falls back to sniffing.
func detectContentType(locator string, data []byte) string {
	if locator != "" {
		name := locator
		if u, err := url.Parse(locator); err == nil && u.Path != "" {
			name = u.Path
		}
		if ct := docconv.MimeTypeByExtension(name); ct != "" && ct != "application/octet-stream" {
			return ct
		}
	}
	ct := http.DetectContentType(data)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

// isEncryptedPDF looks for an /Encrypt entry in the trailer region.
func isEncryptedPDF(data []byte) bool {
	tail := data
	if len(tail) > 4096 {
		tail = tail[len(tail)-4096:]
	}
	return bytes.Contains(tail, []byte("/Encrypt"))
}

// minLevelHandler drops records below min.
type minLevelHandler struct {
	slog.Handler
	min slog.Level
}

func (h *minLevelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.min && h.Handler.Enabled(ctx, l)
}

func (h *minLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &minLevelHandler{Handler: h.Handler.WithAttrs(attrs), min: h.min}
}

func (h *minLevelHandler) WithGroup(name string) slog.Handler {
	return &minLevelHandler{Handler: h.Handler.WithGroup(name), min: h.min}
}
