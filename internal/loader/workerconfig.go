package loader

import (
	"errors"
	"strings"
	"sync"
)

// WorkerConfiguration names the background worker. It starts unset, may be set
// once (repeating the same value is fine), and is read-only afterwards.
type WorkerConfiguration struct {
	mu       sync.RWMutex
	identity string
}

// GlobalWorkerOptions is the process-wide worker configuration used by GetDocument.
var GlobalWorkerOptions = &WorkerConfiguration{}

var errEmptyIdentity = errors.New("worker identity is empty")

// Configure sets the worker identity.
func (c *WorkerConfiguration) Configure(identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return errEmptyIdentity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == "" {
		c.identity = identity
		return nil
	}
	if c.identity != identity {
		return &ReconfigurationError{Current: c.identity, Requested: identity}
	}
	return nil
}

// Current returns the configured identity, or ok=false while unset.
func (c *WorkerConfiguration) Current() (identity string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity, c.identity != ""
}

// Configure sets the process-wide worker identity.
func Configure(identity string) error {
	return GlobalWorkerOptions.Configure(identity)
}

// CurrentWorker returns the process-wide worker identity.
func CurrentWorker() (string, bool) {
	return GlobalWorkerOptions.Current()
}
