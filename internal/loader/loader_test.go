package loader

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docloader/internal/models"
)

// echoWorker answers every request with a document whose fingerprint is the
// locator (or the data, for byte sources).
func echoWorker(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)
	for {
		var req models.RequestFrame
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fp := req.Locator
		if len(req.Data) > 0 {
			fp = string(req.Data)
		}
		resp := models.ResponseFrame{ID: req.ID, Document: &models.DocumentInfo{
			Fingerprint: fp,
			Size:        int64(len(req.Data)),
			Metadata:    map[string]string{"password": req.Options.Password},
		}}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
}

func TestLoad_InvalidSourceNeverReachesWorker(t *testing.T) {
	sp := &countingSpawner{ch: newFakeChannel()}
	l := NewLoader(NewDispatcher(configured(t), WithSpawner(sp.spawn)))

	_, err := await(t, l.Load(context.Background(), models.StructuredDescriptor{}))
	require.ErrorIs(t, err, ErrInvalidSource)
	assert.Zero(t, sp.calls.Load())
}

func TestLoad_UnconfiguredWorker(t *testing.T) {
	sp := &countingSpawner{ch: newFakeChannel()}
	l := NewLoader(NewDispatcher(&WorkerConfiguration{}, WithSpawner(sp.spawn)))

	_, err := await(t, l.Load(context.Background(), models.TextLocator("doc.pdf")))
	require.ErrorIs(t, err, ErrWorkerUnavailable)
	assert.Zero(t, sp.calls.Load())
}

func TestLoad_ThroughPipeChannel(t *testing.T) {
	spawn := func(ctx context.Context, identity string) (Channel, error) {
		return PipeChannel(echoWorker), nil
	}
	d := NewDispatcher(configured(t), WithSpawner(spawn))
	l := NewLoader(d)
	t.Cleanup(func() { _ = d.Close() })

	sources := []models.Source{
		models.TextLocator("a.pdf"),
		models.RawBytes("raw-bytes"),
		models.StructuredDescriptor{"url": "c.pdf", "password": "pw"},
	}
	want := []string{"a.pdf", "raw-bytes", "c.pdf"}

	futures := make([]*Future[*DocumentHandle], len(sources))
	for i, src := range sources {
		futures[i] = l.Load(context.Background(), src)
	}
	for i, fut := range futures {
		h, err := await(t, fut)
		require.NoError(t, err)
		assert.Equal(t, want[i], h.Fingerprint())
	}

	h, err := await(t, futures[2])
	require.NoError(t, err)
	assert.Equal(t, "pw", h.Metadata()["password"])
}

func TestLoad_PipeWorkerCrashRejectsPending(t *testing.T) {
	crash := errors.New("worker blew up")
	var once sync.Once
	received := make(chan struct{})

	// Reads two requests, then dies without answering.
	crashing := func(ctx context.Context, r io.Reader, w io.Writer) error {
		dec := json.NewDecoder(r)
		for i := 0; i < 2; i++ {
			var req models.RequestFrame
			if err := dec.Decode(&req); err != nil {
				return err
			}
		}
		once.Do(func() { close(received) })
		return crash
	}
	sp := &countingSpawner{ch: PipeChannel(crashing)}
	l := NewLoader(NewDispatcher(configured(t), WithSpawner(sp.spawn)))

	fut1 := l.Load(context.Background(), models.TextLocator("1.pdf"))
	fut2 := l.Load(context.Background(), models.TextLocator("2.pdf"))
	<-received

	for _, fut := range []*Future[*DocumentHandle]{fut1, fut2} {
		_, err := await(t, fut)
		require.ErrorIs(t, err, ErrWorkerTerminated)
		assert.ErrorIs(t, err, crash)
	}
	assert.Equal(t, int32(1), sp.calls.Load())
}

// shellWorker writes script to a temp dir and returns a configuration whose
// identity runs it with sh.
func shellWorker(t *testing.T, script string) *WorkerConfiguration {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell workers need a POSIX sh")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found")
	}
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o600))

	cfg := &WorkerConfiguration{}
	require.NoError(t, cfg.Configure(sh+" "+path))
	return cfg
}

func shortKillGrace(t *testing.T) {
	old := killGrace
	killGrace = 100 * time.Millisecond
	t.Cleanup(func() { killGrace = old })
}

func TestSpawnProcess_AnswersRequests(t *testing.T) {
	cfg := shellWorker(t, `while IFS= read -r line; do
	id=${line#'{"id":'}
	id=${id%%,*}
	printf '{"id":%s,"document":{"fingerprint":"fp-%s","numPages":1}}\n' "$id" "$id"
done
`)
	d := NewDispatcher(cfg, WithSpawner(SpawnProcess))
	t.Cleanup(func() { _ = d.Close() })

	h1, err := await(t, d.Dispatch(context.Background(), mustNormalize(t, models.TextLocator("https://example.com/x1.pdf"))))
	require.NoError(t, err)
	assert.Equal(t, "fp-1", h1.Fingerprint())
	assert.Equal(t, 1, h1.NumPages())

	h2, err := await(t, d.Dispatch(context.Background(), mustNormalize(t, models.TextLocator("https://example.com/x2.pdf"))))
	require.NoError(t, err)
	assert.Equal(t, "fp-2", h2.Fingerprint())
	assert.Zero(t, d.Pending())
}

func TestSpawnProcess_ExitRejectsPending(t *testing.T) {
	cfg := shellWorker(t, "read -r a\nread -r b\nexit 3\n")
	d := NewDispatcher(cfg, WithSpawner(SpawnProcess))
	t.Cleanup(func() { _ = d.Close() })

	fut1 := d.Dispatch(context.Background(), mustNormalize(t, models.TextLocator("https://example.com/1.pdf")))
	fut2 := d.Dispatch(context.Background(), mustNormalize(t, models.TextLocator("https://example.com/2.pdf")))

	for _, fut := range []*Future[*DocumentHandle]{fut1, fut2} {
		_, err := await(t, fut)
		require.ErrorIs(t, err, ErrWorkerTerminated)
		var exitErr *exec.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 3, exitErr.ExitCode())
	}
	assert.Zero(t, d.Pending())
}

func TestSpawnProcess_CloseKillsStuckWorker(t *testing.T) {
	shortKillGrace(t)
	// Ignores its input, so closing stdin alone never stops it.
	cfg := shellWorker(t, "exec sleep 30\n")
	d := NewDispatcher(cfg, WithSpawner(SpawnProcess))

	fut := d.Dispatch(context.Background(), mustNormalize(t, models.TextLocator("https://example.com/a.pdf")))
	require.NoError(t, d.Close())

	_, err := await(t, fut)
	assert.ErrorIs(t, err, ErrWorkerTerminated)
}

func TestSpawnProcess_GarbageOutputTerminates(t *testing.T) {
	shortKillGrace(t)
	cfg := shellWorker(t, "read -r line\necho 'not json'\nexec sleep 30\n")
	d := NewDispatcher(cfg, WithSpawner(SpawnProcess))
	t.Cleanup(func() { _ = d.Close() })

	_, err := await(t, d.Dispatch(context.Background(), mustNormalize(t, models.TextLocator("https://example.com/a.pdf"))))
	require.ErrorIs(t, err, ErrWorkerTerminated)
	assert.Contains(t, err.Error(), "read response")

	_, err = await(t, d.Dispatch(context.Background(), mustNormalize(t, models.TextLocator("https://example.com/b.pdf"))))
	assert.ErrorIs(t, err, ErrWorkerTerminated)
}

func TestDefaultSpawner_InProcess(t *testing.T) {
	RegisterInProcessWorker("echo-test", echoWorker)

	ch, err := DefaultSpawner(context.Background(), InProcessPrefix+"echo-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	require.NoError(t, ch.Send(context.Background(), models.RequestFrame{ID: 9, Locator: "x.pdf"}))
	resp := <-ch.Responses()
	assert.Equal(t, uint64(9), resp.ID)
	require.NotNil(t, resp.Document)
	assert.Equal(t, "x.pdf", resp.Document.Fingerprint)

	_, err = DefaultSpawner(context.Background(), InProcessPrefix+"missing")
	assert.Error(t, err)
}

func TestGetDocument_InvalidSource(t *testing.T) {
	task := GetDocument(models.TextLocator(""))
	_, err := await(t, task.Promise)
	assert.ErrorIs(t, err, ErrInvalidSource)
}
