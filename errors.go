package datasets

import (
	"github.com/pkg/errors"

	"github.com/nozzle/datasets/cluster"
	"github.com/nozzle/datasets/darray"
)

var (
	// ErrConfiguration is returned for invalid options, including an
	// unusable random state. It is always returned before any task is
	// submitted.
	ErrConfiguration = errors.New("datasets: invalid configuration")

	// ErrColocation is returned when the X and y blocks of a partition
	// end up on different workers before a shuffle.
	ErrColocation = errors.New("datasets: partition not co-located")

	// ErrAllocation matches worker memory exhaustion during generation.
	ErrAllocation = cluster.ErrAllocation

	// ErrShapeMismatch matches chunkings that do not add up.
	ErrShapeMismatch = darray.ErrShapeMismatch

	// ErrWorkerTask matches any failure raised inside a worker task.
	ErrWorkerTask = cluster.ErrTaskFailed
)
