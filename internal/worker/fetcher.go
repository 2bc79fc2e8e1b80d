package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docloader/internal/core"
	"github.com/markdave123-py/docloader/internal/models"
)

// DefaultMaxSize caps how much a single locator may pull in.
const DefaultMaxSize = 256 << 20

// Fetcher resolves locators to document bytes.
//
// client:     HTTP client for http(s) locators.
// objects:    object storage for s3:// locators; nil disables them.
// parallel:   concurrent range requests per document.
// maxSize:    upper bound on a fetched document.
// allowLocal: whether bare paths and file:// locators may be read.
type Fetcher struct {
	client     *http.Client
	objects    core.ObjectClient
	parallel   int
	maxSize    int64
	allowLocal bool
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithLocalFiles lets the fetcher read the local filesystem. Off by default.
func WithLocalFiles(allow bool) FetcherOption {
	return func(f *Fetcher) { f.allowLocal = allow }
}

func NewFetcher(client *http.Client, objects core.ObjectClient, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{client: client, objects: objects, parallel: 4, maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch reads the document named by locator: a local path, file://, http(s):// or s3://.
func (f *Fetcher) Fetch(ctx context.Context, locator string, opts models.Options) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" {
		return f.readFile(locator)
	}

	switch u.Scheme {
	case "file":
		return f.readFile(u.Path)
	case "http", "https":
		return f.fetchHTTP(ctx, locator, opts)
	case "s3":
		return f.fetchObject(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), opts)
	default:
		return nil, docErrorf(models.ReasonUnsupported, "unsupported locator scheme %q", u.Scheme)
	}
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	if !f.allowLocal {
		return nil, docErrorf(models.ReasonUnsupported, "local file locators are disabled on this worker")
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, docErrorf(models.ReasonMissing, "file %s does not exist", path)
	}
	if err != nil {
		return nil, docErrorf(models.ReasonFetch, "stat %s: %v", path, err)
	}
	if info.Size() > f.maxSize {
		return nil, docErrorf(models.ReasonFetch, "file too large: %d bytes (max %d)", info.Size(), f.maxSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, docErrorf(models.ReasonFetch, "read %s: %v", path, err)
	}
	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, locator string, opts models.Options) ([]byte, error) {
	headers := httpHeaders(opts.Extra)

	if rangesEnabled(opts) {
		if size, ok := f.probeRanges(ctx, locator, headers); ok && size > int64(opts.RangeChunkSize) {
			return f.fetchRanges(ctx, size, int64(opts.RangeChunkSize), func(ctx context.Context, off, n int64) ([]byte, error) {
				return f.get(ctx, locator, headers, fmt.Sprintf("bytes=%d-%d", off, off+n-1))
			})
		}
	}
	return f.get(ctx, locator, headers, "")
}

// probeRanges reports the document size when the server accepts byte ranges.
func (f *Fetcher) probeRanges(ctx context.Context, locator string, headers http.Header) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, locator, nil)
	if err != nil {
		return 0, false
	}
	addHeaders(req, headers)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, false
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.Header.Get("Accept-Ranges") != "bytes" || resp.ContentLength <= 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

// get performs a GET, optionally for a byte range.
func (f *Fetcher) get(ctx context.Context, locator string, headers http.Header, byteRange string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, docErrorf(models.ReasonFetch, "build request: %v", err)
	}
	addHeaders(req, headers)
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, docErrorf(models.ReasonFetch, "GET %s: %v", locator, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, docErrorf(models.ReasonMissing, "GET %s: %s", locator, resp.Status)
	case byteRange != "" && resp.StatusCode != http.StatusPartialContent:
		return nil, docErrorf(models.ReasonFetch, "GET %s (%s): %s", locator, byteRange, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, docErrorf(models.ReasonFetch, "GET %s: %s", locator, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, docErrorf(models.ReasonFetch, "read body: %v", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, docErrorf(models.ReasonFetch, "document exceeds %d bytes", f.maxSize)
	}
	return body, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, bucket, key string, opts models.Options) ([]byte, error) {
	if f.objects == nil {
		return nil, docErrorf(models.ReasonUnsupported, "s3 locators are not enabled on this worker")
	}
	if bucket == "" || key == "" {
		return nil, docErrorf(models.ReasonFetch, "s3 locator needs a bucket and a key")
	}

	size, err := f.objects.ObjectSize(ctx, bucket, key)
	if err != nil {
		return nil, objectError(bucket, key, err)
	}
	if size > f.maxSize {
		return nil, docErrorf(models.ReasonFetch, "object too large: %d bytes (max %d)", size, f.maxSize)
	}

	if rangesEnabled(opts) && size > int64(opts.RangeChunkSize) {
		return f.fetchRanges(ctx, size, int64(opts.RangeChunkSize), func(ctx context.Context, off, n int64) ([]byte, error) {
			b, err := f.objects.GetRange(ctx, bucket, key, off, n)
			if err != nil {
				return nil, objectError(bucket, key, err)
			}
			return b, nil
		})
	}

	data, err := f.objects.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, objectError(bucket, key, err)
	}
	return data, nil
}

// fetchRanges reads size bytes in chunk-sized pieces, a few at a time.
func (f *Fetcher) fetchRanges(ctx context.Context, size, chunk int64, read func(ctx context.Context, off, n int64) ([]byte, error)) ([]byte, error) {
	if size > f.maxSize {
		return nil, docErrorf(models.ReasonFetch, "document exceeds %d bytes", f.maxSize)
	}
	buf := make([]byte, size)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallel)

	for off := int64(0); off < size; off += chunk {
		n := min(chunk, size-off)
		g.Go(func() error {
			b, err := read(gctx, off, n)
			if err != nil {
				return err
			}
			if int64(len(b)) != n {
				return docErrorf(models.ReasonFetch, "short range read at %d: got %d of %d bytes", off, len(b), n)
			}
			copy(buf[off:], b)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buf, nil
}

func rangesEnabled(opts models.Options) bool {
	return !opts.DisableRange && opts.RangeChunkSize > 0
}

func objectError(bucket, key string, err error) error {
	if errors.Is(err, core.ErrObjectNotFound) {
		return docErrorf(models.ReasonMissing, "s3://%s/%s does not exist", bucket, key)
	}
	return docErrorf(models.ReasonFetch, "s3://%s/%s: %v", bucket, key, err)
}

// httpHeaders reads the "httpHeaders" descriptor option.
func httpHeaders(extra map[string]any) http.Header {
	h := http.Header{}
	switch m := extra["httpHeaders"].(type) {
	case map[string]string:
		for k, v := range m {
			h.Set(k, v)
		}
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				h.Set(k, s)
			}
		}
	}
	return h
}

func addHeaders(req *http.Request, h http.Header) {
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}
