// Package sync implements the two drain engines: replaying the mutation
// outbox against the backend with identifier reconciliation, and uploading
// the photo outbox with reference back-fill.
package sync

import (
	"errors"
	"sync"

	"github.com/mlukins/cellar/internal/client/remote"
	"github.com/mlukins/cellar/internal/client/repositories/outbox"
	"github.com/mlukins/cellar/internal/client/repositories/photos"
	"github.com/mlukins/cellar/internal/client/repositories/store"
	"github.com/mlukins/cellar/internal/logging"
)

// ErrExhausted marks an entry that hit the retry ceiling and is parked until
// a human intervenes.
var ErrExhausted = errors.New("retry attempts exhausted")

// Engine owns both drains. At most one pass per outbox runs at a time; a
// trigger arriving mid-pass is coalesced into one follow-up pass instead of
// a concurrent one.
type Engine struct {
	store    store.Repository
	outbox   outbox.Repository
	photos   photos.Repository
	client   remote.Client
	binaries remote.BinaryStore
	log      logging.Logger

	mutations coalescer
	uploads   coalescer
}

func NewEngine(st store.Repository, ob outbox.Repository, ph photos.Repository,
	client remote.Client, binaries remote.BinaryStore, log logging.Logger) *Engine {
	return &Engine{
		store:    st,
		outbox:   ob,
		photos:   ph,
		client:   client,
		binaries: binaries,
		log:      log.With("component", "sync"),
	}
}

// coalescer serializes drain passes. begin reports whether the caller may
// run; a denied caller leaves a rerun request behind. finish reports whether
// the runner must do one more pass to honor requests that arrived mid-pass.
type coalescer struct {
	mu      sync.Mutex
	running bool
	rerun   bool
}

func (c *coalescer) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.rerun = true
		return false
	}
	c.running = true
	return true
}

func (c *coalescer) finish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rerun {
		c.rerun = false
		return true
	}
	c.running = false
	return false
}
