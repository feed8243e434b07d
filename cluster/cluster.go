// Package cluster implements an in-process task-scheduling runtime: a pool
// of named workers that accept task submissions and hand back futures.
//
// Tasks may declare dependencies on other futures and an affinity hint that
// pins them to a specific worker. Dependencies are awaited before the task
// takes a worker slot, so tasks never block while holding one. Without a
// hint, placement is round-robin over the workers in creation order.
//
// Submitted tasks are detached from the caller's context and always run to
// completion: cancelling it only ends waits in Result and Who. There are
// no retries.
package cluster

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nozzle/datasets/internal/parallel"
)

// Config configures a cluster client.
type Config struct {
	// NumWorkers is the number of workers.
	// 0 = auto-detect based on CPU cores.
	NumWorkers int

	// ThreadsPerWorker bounds the tasks a worker runs concurrently.
	// Default: 1
	ThreadsPerWorker int

	// MemoryLimit is the device memory budget per worker in bytes. Tasks
	// reserve their output size while they run and release it when they
	// return, so the limit bounds the working set of concurrently running
	// tasks, not the blocks kept resident on the worker afterwards.
	// 0 = unlimited.
	MemoryLimit int64

	// Logger receives task lifecycle events at Debug level.
	// Default: a stderr logger at Warn level.
	Logger *logrus.Logger
}

// DefaultConfig returns the default cluster configuration.
func DefaultConfig() Config {
	return Config{
		NumWorkers:       0,
		ThreadsPerWorker: 1,
		MemoryLimit:      0,
	}
}

// TaskFunc is the body of a task. deps holds the resolved values of the
// futures passed with WithDeps, in the same order.
type TaskFunc func(ctx context.Context, w *Worker, deps []any) (any, error)

// Client submits tasks to the workers of a cluster.
type Client struct {
	log     *logrus.Logger
	workers []*Worker
	byName  map[string]*Worker

	mu     sync.Mutex
	next   int
	closed bool
	wg     sync.WaitGroup
}

// New starts a cluster with the given configuration.
func New(cfg Config) *Client {
	n := cfg.NumWorkers
	if n <= 0 {
		n = parallel.NumWorkers()
	}

	log := cfg.Logger
	if log == nil {
		log = newLogger(os.Stderr, logrus.WarnLevel)
	}

	c := &Client{
		log:     log,
		workers: make([]*Worker, n),
		byName:  make(map[string]*Worker, n),
	}
	for i := range n {
		w := newWorker(fmt.Sprintf("worker-%d", i), cfg.ThreadsPerWorker, cfg.MemoryLimit, log)
		c.workers[i] = w
		c.byName[w.name] = w
	}

	log.WithFields(logrus.Fields{
		"workers":      n,
		"memory_limit": cfg.MemoryLimit,
	}).Debug("cluster started")
	return c
}

var (
	defaultClient *Client
	defaultOnce   sync.Once
)

// Default returns the process-wide client, creating it with DefaultConfig
// on first use.
func Default() *Client {
	defaultOnce.Do(func() {
		defaultClient = New(DefaultConfig())
	})
	return defaultClient
}

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	return log
}

// Logger returns the client's logger.
func (c *Client) Logger() *logrus.Logger {
	return c.log
}

// Workers returns the worker names in creation order.
func (c *Client) Workers() []string {
	names := make([]string, len(c.workers))
	for i, w := range c.workers {
		names[i] = w.name
	}
	return names
}

// Worker returns the named worker, or nil.
func (c *Client) Worker(name string) *Worker {
	return c.byName[name]
}

type submitOptions struct {
	workers []string
	deps    []*Future
	key     string
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitOptions)

// WithWorkers pins the task to the first named worker.
func WithWorkers(names ...string) SubmitOption {
	return func(o *submitOptions) { o.workers = names }
}

// WithDeps makes the task wait for deps and receive their values.
func WithDeps(deps ...*Future) SubmitOption {
	return func(o *submitOptions) { o.deps = deps }
}

// WithKey sets the task key prefix. Default: "task".
func WithKey(prefix string) SubmitOption {
	return func(o *submitOptions) { o.key = prefix }
}

// Submit schedules fn and returns its future without blocking.
// A failing dependency fails the task with the dependency's error.
func (c *Client) Submit(ctx context.Context, fn TaskFunc, opts ...SubmitOption) *Future {
	o := submitOptions{key: "task"}
	for _, opt := range opts {
		opt(&o)
	}
	key := o.key + "-" + uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return failedFuture(key, "", ErrClosed)
	}
	w, err := c.place(o.workers)
	if err != nil {
		c.mu.Unlock()
		return failedFuture(key, "", err)
	}
	c.wg.Add(1)
	c.mu.Unlock()

	f := newFuture(key, w.name)
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer c.wg.Done()
		defer close(f.done)

		vals := make([]any, len(o.deps))
		for i, d := range o.deps {
			v, err := d.Result(ctx)
			if err != nil {
				f.err = err
				return
			}
			vals[i] = v
		}

		if err := w.acquire(ctx); err != nil {
			f.err = err
			return
		}
		defer w.release()

		f.val, f.err = w.run(ctx, key, fn, vals)
	}()

	return f
}

// place picks the worker for a submission. Callers hold c.mu.
func (c *Client) place(hint []string) (*Worker, error) {
	if len(hint) > 0 {
		w, ok := c.byName[hint[0]]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownWorker, "%q", hint[0])
		}
		return w, nil
	}

	w := c.workers[c.next%len(c.workers)]
	c.next++
	return w, nil
}

// Who waits for futures and returns the worker holding each result.
func (c *Client) Who(ctx context.Context, futures ...*Future) ([]string, error) {
	names := make([]string, len(futures))
	for i, f := range futures {
		if _, err := f.Result(ctx); err != nil {
			return nil, err
		}
		names[i] = f.Worker()
	}
	return names, nil
}

// Close stops accepting submissions and waits for in-flight tasks.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}
