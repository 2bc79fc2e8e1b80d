// Package worker is the parsing side of the loader: it reads load requests off
// a stream, fetches and parses the documents, and writes the results back.
// It runs either as the docworker process or in-process behind a pipe.
package worker

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/markdave123-py/docloader/internal/config"
	"github.com/markdave123-py/docloader/internal/core"
	objectclient "github.com/markdave123-py/docloader/internal/core/object-client"
)

// NewFromConfig wires a Server with docconv, an HTTP client and, when AWS is
// reachable, S3 support. Local files are readable only when
// WORKER_ALLOW_LOCAL_FILES is set.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Server {
	var objects core.ObjectClient
	if s3c, err := objectclient.NewS3Client(ctx, cfg); err != nil {
		logger.Warn("s3 locators disabled", "err", err)
	} else {
		objects = s3c
	}

	fetcher := NewFetcher(&http.Client{Timeout: 2 * time.Minute}, objects, WithLocalFiles(cfg.WorkerAllowLocalFiles))
	extractor := NewDocconvExtractor(cfg.UseReadability)
	return NewServer(fetcher, extractor, cfg.WorkerConcurrency, logger)
}
