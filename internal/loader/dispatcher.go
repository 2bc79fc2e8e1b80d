package loader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/markdave123-py/docloader/internal/models"
)

var errDispatcherClosed = errors.New("dispatcher closed")

// pendingOperation links a correlation id to the future waiting for it.
type pendingOperation struct {
	requestID string
	future    *Future[*DocumentHandle]
	stop      func() bool // detaches the cancellation hook
}

// Dispatcher owns the worker channel. It spawns the worker on first use,
// correlates responses to requests and never restarts a worker that went away.
type Dispatcher struct {
	cfg    *WorkerConfiguration
	spawn  Spawner
	logger *slog.Logger

	nextID atomic.Uint64

	mu         sync.Mutex
	ch         Channel
	terminated error
	pending    map[uint64]*pendingOperation
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSpawner replaces DefaultSpawner.
func WithSpawner(s Spawner) DispatcherOption {
	return func(d *Dispatcher) { d.spawn = s }
}

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher returns a dispatcher targeting whatever worker cfg names at
// the time of the first dispatch.
func NewDispatcher(cfg *WorkerConfiguration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg,
		spawn:   DefaultSpawner,
		logger:  slog.Default(),
		pending: make(map[uint64]*pendingOperation),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends req to the worker and returns a future for its result.
// It never blocks on the worker. If ctx ends first the future rejects with
// ctx.Err() and a late response is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.LoadRequest) *Future[*DocumentHandle] {
	identity, ok := d.cfg.Current()
	if !ok {
		return Rejected[*DocumentHandle](&WorkerUnavailableError{})
	}
	if err := ctx.Err(); err != nil {
		return Rejected[*DocumentHandle](err)
	}

	ch, err := d.channel(ctx, identity)
	if err != nil {
		return Rejected[*DocumentHandle](err)
	}

	id := d.nextID.Add(1)
	op := &pendingOperation{requestID: req.ID, future: newFuture[*DocumentHandle]()}

	d.mu.Lock()
	if d.terminated != nil {
		err := d.terminated
		d.mu.Unlock()
		return Rejected[*DocumentHandle](err)
	}
	d.pending[id] = op
	op.stop = context.AfterFunc(ctx, func() {
		if d.take(id) != nil {
			op.future.reject(ctx.Err())
		}
	})
	d.mu.Unlock()

	frame := models.RequestFrame{
		ID:        id,
		RequestID: req.ID,
		Locator:   req.Locator,
		Data:      req.Data,
		Options:   req.Options,
	}
	go func() {
		if err := ch.Send(ctx, frame); err != nil {
			if op := d.take(id); op != nil {
				d.logger.Warn("send to worker failed", "id", id, "request", req.ID, "err", err)
				op.future.reject(d.sendError(ctx, err))
			}
		}
	}()

	d.logger.Debug("dispatched load", "id", id, "request", req.ID, "worker", identity)
	return op.future
}

// channel returns the live channel, spawning it on first use. Concurrent first
// calls share one spawn.
func (d *Dispatcher) channel(ctx context.Context, identity string) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.terminated != nil {
		return nil, d.terminated
	}
	if d.ch != nil {
		return d.ch, nil
	}

	ch, err := d.spawn(ctx, identity)
	if err != nil {
		return nil, &WorkerUnavailableError{Cause: err}
	}
	d.ch = ch
	go d.readLoop(ch)

	d.logger.Info("worker started", "worker", identity)
	return ch, nil
}

func (d *Dispatcher) readLoop(ch Channel) {
	for resp := range ch.Responses() {
		d.deliver(resp)
	}
	d.terminate(&WorkerTerminatedError{Cause: ch.Err()})
}

func (d *Dispatcher) deliver(resp models.ResponseFrame) {
	op := d.take(resp.ID)
	if op == nil {
		d.logger.Debug("discarding response with no pending operation", "id", resp.ID)
		return
	}

	switch {
	case resp.Error != nil:
		op.future.reject(&ParseError{Reason: resp.Error.Reason, Message: resp.Error.Message})
	case resp.Document == nil:
		op.future.reject(&ParseError{Reason: models.ReasonInvalid, Message: "worker returned neither document nor error"})
	default:
		op.future.resolve(newDocumentHandle(op.requestID, *resp.Document))
	}
}

// take removes and returns the pending operation for id, or nil.
func (d *Dispatcher) take(id uint64) *pendingOperation {
	d.mu.Lock()
	defer d.mu.Unlock()

	op, ok := d.pending[id]
	if !ok {
		return nil
	}
	delete(d.pending, id)
	if op.stop != nil {
		op.stop()
	}
	return op
}

// terminate rejects everything outstanding and refuses further dispatches.
func (d *Dispatcher) terminate(err error) {
	d.mu.Lock()
	if d.terminated == nil {
		d.terminated = err
	}
	pending := d.pending
	d.pending = make(map[uint64]*pendingOperation)
	d.mu.Unlock()

	if len(pending) > 0 {
		d.logger.Error("worker channel terminated", "pending", len(pending), "err", err)
	}
	for _, op := range pending {
		if op.stop != nil {
			op.stop()
		}
		op.future.reject(err)
	}
}

func (d *Dispatcher) sendError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &WorkerTerminatedError{Cause: err}
}

// Pending reports how many operations are awaiting a response.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close shuts the worker channel down. Operations still outstanding once the
// channel drains are rejected with WorkerTerminatedError.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	ch := d.ch
	if ch == nil && d.terminated == nil {
		d.terminated = &WorkerTerminatedError{Cause: errDispatcherClosed}
	}
	d.mu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Close()
}
