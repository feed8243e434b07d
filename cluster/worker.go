package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Worker is one member of the cluster. It runs at most ThreadsPerWorker
// tasks at a time and owns a device memory budget.
type Worker struct {
	name     string
	slots    chan struct{}
	memLimit int64

	mu   sync.Mutex
	used int64

	log *logrus.Entry
}

func newWorker(name string, threads int, memLimit int64, log *logrus.Logger) *Worker {
	if threads < 1 {
		threads = 1
	}
	return &Worker{
		name:     name,
		slots:    make(chan struct{}, threads),
		memLimit: memLimit,
		log:      log.WithField("worker", name),
	}
}

// Name returns the worker's name.
func (w *Worker) Name() string {
	return w.name
}

// Reserve claims n bytes of device memory for the calling task. The
// returned release func gives the bytes back and must be called once.
func (w *Worker) Reserve(n int64) (release func(), err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.memLimit > 0 && w.used+n > w.memLimit {
		return nil, errors.Wrapf(ErrAllocation, "worker %s: requested %d bytes with %d of %d in use",
			w.name, n, w.used, w.memLimit)
	}
	w.used += n

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			w.used -= n
			w.mu.Unlock()
		})
	}, nil
}

// MemoryInUse returns the bytes currently reserved on the worker.
func (w *Worker) MemoryInUse() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.used
}

func (w *Worker) acquire(ctx context.Context) error {
	select {
	case w.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) release() {
	<-w.slots
}

// run executes fn, turning errors and panics into a TaskError.
func (w *Worker) run(ctx context.Context, key string, fn TaskFunc, deps []any) (val any, err error) {
	log := w.log.WithField("task", key)
	log.Debug("task started")

	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = &TaskError{Key: key, Worker: w.name, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			log.WithError(err).Debug("task failed")
			return
		}
		log.Debug("task finished")
	}()

	val, err = fn(ctx, w, deps)
	if err != nil {
		return nil, &TaskError{Key: key, Worker: w.name, Err: err}
	}
	return val, nil
}
