package loader

import (
	"context"
	"sync"

	"github.com/markdave123-py/docloader/internal/models"
)

// Loader turns sources into documents by way of the worker.
type Loader struct {
	dispatcher *Dispatcher
}

// NewLoader returns a loader that hands requests to d.
func NewLoader(d *Dispatcher) *Loader {
	return &Loader{dispatcher: d}
}

// Load normalizes src and dispatches it. An invalid source yields an
// already-rejected future and the worker is never contacted.
func (l *Loader) Load(ctx context.Context, src models.Source) *Future[*DocumentHandle] {
	req, err := Normalize(src)
	if err != nil {
		return Rejected[*DocumentHandle](err)
	}
	return l.Submit(ctx, req)
}

// Submit dispatches a request that has already been through Normalize.
func (l *Loader) Submit(ctx context.Context, req models.LoadRequest) *Future[*DocumentHandle] {
	return l.dispatcher.Dispatch(ctx, req)
}

// Dispatcher exposes the underlying dispatcher, mainly for shutdown.
func (l *Loader) Dispatcher() *Dispatcher { return l.dispatcher }

// LoadingTask is what GetDocument returns.
type LoadingTask struct {
	Promise *Future[*DocumentHandle]
}

var (
	defaultOnce   sync.Once
	defaultLoader *Loader
)

// DefaultLoader is the process-wide loader bound to GlobalWorkerOptions.
func DefaultLoader() *Loader {
	defaultOnce.Do(func() {
		defaultLoader = NewLoader(NewDispatcher(GlobalWorkerOptions))
	})
	return defaultLoader
}

// GetDocument loads src with the process-wide loader. Configure must have been
// called first or the promise rejects with WorkerUnavailableError.
func GetDocument(src models.Source) *LoadingTask {
	return &LoadingTask{Promise: DefaultLoader().Load(context.Background(), src)}
}
