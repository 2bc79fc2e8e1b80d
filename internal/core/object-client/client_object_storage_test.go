package objectclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docloader/internal/core"
)

const objectBody = "%PDF-1.7 0123456789abcdef"

// fakeS3 serves one object at /docs/report.pdf with path-style addressing.
func fakeS3(t *testing.T) *S3Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/docs/report.pdf" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method != http.MethodHead {
				fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		switch r.Method {
		case http.MethodHead:
			w.Header().Set("Content-Length", fmt.Sprint(len(objectBody)))
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			var start, end int
			if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(objectBody)))
			w.WriteHeader(http.StatusPartialContent)
			fmt.Fprint(w, objectBody[start:end+1])
		}
	}))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-2",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
	})
	return NewS3ClientFromAPI(client, "us-east-2")
}

func TestS3Client_ObjectSize(t *testing.T) {
	c := fakeS3(t)
	n, err := c.ObjectSize(context.Background(), "docs", "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(len(objectBody)), n)
}

func TestS3Client_GetRange(t *testing.T) {
	c := fakeS3(t)
	b, err := c.GetRange(context.Background(), "docs", "report.pdf", 9, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(b))
}

func TestS3Client_MissingObject(t *testing.T) {
	c := fakeS3(t)
	_, err := c.GetRange(context.Background(), "docs", "nope.pdf", 0, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrObjectNotFound), "got %v", err)
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(&types.NoSuchKey{}), core.ErrObjectNotFound)
	assert.ErrorIs(t, notFound(&types.NotFound{}), core.ErrObjectNotFound)

	other := errors.New("throttled")
	assert.Equal(t, other, notFound(other))
	assert.False(t, strings.Contains(notFound(other).Error(), "not found"))
}
