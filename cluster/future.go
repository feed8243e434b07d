package cluster

import "context"

// Future is the pending result of a submitted task. Its placement is fixed
// at submission time.
type Future struct {
	key    string
	worker string
	done   chan struct{}
	val    any
	err    error
}

func newFuture(key, worker string) *Future {
	return &Future{key: key, worker: worker, done: make(chan struct{})}
}

// failedFuture returns an already resolved future carrying err.
func failedFuture(key, worker string, err error) *Future {
	f := newFuture(key, worker)
	f.err = err
	close(f.done)
	return f
}

// Key returns the unique task key.
func (f *Future) Key() string { return f.key }

// Worker returns the name of the worker the task was placed on.
func (f *Future) Worker() string { return f.worker }

// Done is closed once the task has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the task finishes or ctx is done.
func (f *Future) Result(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
