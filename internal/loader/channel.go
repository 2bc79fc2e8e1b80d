package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/docloader/internal/models"
)

// Channel is the message link to one worker.
type Channel interface {
	// Send writes one request frame. Safe for concurrent use.
	Send(ctx context.Context, frame models.RequestFrame) error
	// Responses yields response frames and is closed when the channel terminates.
	Responses() <-chan models.ResponseFrame
	// Err reports why the channel terminated; valid once Responses is closed.
	Err() error
	// Close shuts the link down. In-flight responses may still arrive.
	Close() error
}

// Spawner establishes a channel to the worker named by identity.
type Spawner func(ctx context.Context, identity string) (Channel, error)

// ServeFunc runs a worker over a pair of streams until r is exhausted.
type ServeFunc func(ctx context.Context, r io.Reader, w io.Writer) error

// InProcessPrefix selects a worker registered with RegisterInProcessWorker.
const InProcessPrefix = "inproc:"

var errWorkerExited = errors.New("worker exited")

// killGrace is how long a worker process gets to drain after its input closes.
var killGrace = 5 * time.Second

var inproc = struct {
	mu      sync.RWMutex
	workers map[string]ServeFunc
}{workers: make(map[string]ServeFunc)}

// RegisterInProcessWorker makes serve reachable as "inproc:<name>".
func RegisterInProcessWorker(name string, serve ServeFunc) {
	inproc.mu.Lock()
	defer inproc.mu.Unlock()
	inproc.workers[name] = serve
}

// DefaultSpawner starts registered in-process workers for "inproc:" identities
// and executables for everything else.
func DefaultSpawner(ctx context.Context, identity string) (Channel, error) {
	if name, ok := strings.CutPrefix(identity, InProcessPrefix); ok {
		inproc.mu.RLock()
		serve, found := inproc.workers[name]
		inproc.mu.RUnlock()
		if !found {
			return nil, fmt.Errorf("no in-process worker registered as %q", name)
		}
		return PipeChannel(serve), nil
	}
	return SpawnProcess(ctx, identity)
}

// SpawnProcess starts the executable named by identity (arguments separated by
// spaces) and talks to it over stdin/stdout. The worker's stderr is inherited.
func SpawnProcess(ctx context.Context, identity string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := strings.Fields(identity)
	if len(args) == 0 {
		return nil, errEmptyIdentity
	}

	// Not CommandContext: the worker outlives the call that happened to spawn it.
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %q: %w", args[0], err)
	}

	exited := make(chan struct{})
	wait := func() error {
		defer close(exited)
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("worker process %d: %w", cmd.Process.Pid, err)
		}
		return errWorkerExited
	}
	shutdown := func() {
		select {
		case <-exited:
		case <-time.After(killGrace):
			_ = cmd.Process.Kill()
		}
	}

	return newStreamChannel(stdout, stdin, wait, shutdown), nil
}

// PipeChannel runs serve on its own goroutine and connects to it with in-memory pipes.
func PipeChannel(serve ServeFunc) Channel {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		err := serve(context.Background(), reqR, respW)
		// Unblock any writer still waiting on a worker that stopped reading.
		_ = reqR.Close()
		_ = respW.Close()
		errc <- err
	}()

	wait := func() error {
		if err := <-errc; err != nil {
			return fmt.Errorf("in-process worker: %w", err)
		}
		return errWorkerExited
	}
	return newStreamChannel(respR, reqW, wait, nil)
}

// streamChannel frames JSON values over a reader/writer pair.
type streamChannel struct {
	mu  sync.Mutex
	w   io.WriteCloser
	enc *json.Encoder

	responses chan models.ResponseFrame
	err       error

	wait      func() error
	shutdown  func()
	closeOnce sync.Once
}

func newStreamChannel(r io.Reader, w io.WriteCloser, wait func() error, shutdown func()) *streamChannel {
	c := &streamChannel{
		w:         w,
		enc:       json.NewEncoder(w),
		responses: make(chan models.ResponseFrame, 16),
		wait:      wait,
		shutdown:  shutdown,
	}
	go c.readLoop(r)
	return c
}

func (c *streamChannel) Send(ctx context.Context, frame models.RequestFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.enc.Encode(frame); err != nil {
		return fmt.Errorf("write request %d: %w", frame.ID, err)
	}
	return nil
}

func (c *streamChannel) Responses() <-chan models.ResponseFrame { return c.responses }

func (c *streamChannel) Err() error { return c.err }

func (c *streamChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.w.Close()
		if c.shutdown != nil {
			go c.shutdown()
		}
	})
	return err
}

func (c *streamChannel) readLoop(r io.Reader) {
	dec := json.NewDecoder(r)

	var cause error
	for {
		var frame models.ResponseFrame
		if err := dec.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) {
				cause = fmt.Errorf("read response: %w", err)
				// The stream cannot be resynchronised; stop the worker.
				_ = c.Close()
				if rc, ok := r.(io.Closer); ok {
					_ = rc.Close()
				}
			}
			break
		}
		c.responses <- frame
	}

	if err := c.wait(); cause == nil {
		cause = err
	}
	c.err = cause
	close(c.responses)
}
