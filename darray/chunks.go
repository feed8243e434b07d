package darray

import (
	"slices"

	"github.com/pkg/errors"
)

// RegularChunks splits total into chunks of size, the last one holding the
// remainder.
func RegularChunks(total, size int) []int {
	if total <= 0 {
		return nil
	}
	if size <= 0 || size >= total {
		return []int{total}
	}
	chunks := make([]int, 0, (total+size-1)/size)
	for left := total; left > 0; left -= size {
		chunks = append(chunks, min(size, left))
	}
	return chunks
}

// FoldedChunks splits total into n chunks of total/n, folding any remainder
// into the final chunk so no chunk is smaller than the others. n is capped
// at total.
func FoldedChunks(total, n int) []int {
	if total <= 0 {
		return nil
	}
	n = min(n, total)
	if n <= 1 {
		return []int{total}
	}
	chunks := make([]int, n)
	for i := range chunks {
		chunks[i] = total / n
	}
	chunks[n-1] += total % n
	return chunks
}

func checkChunks(chunks []int, total int, axis string) error {
	sum := 0
	for _, c := range chunks {
		if c <= 0 {
			return errors.Wrapf(ErrShapeMismatch, "%s chunk of size %d", axis, c)
		}
		sum += c
	}
	if sum != total {
		return errors.Wrapf(ErrShapeMismatch, "%s chunks sum to %d, want %d", axis, sum, total)
	}
	return nil
}

// starts returns the offset of every chunk, plus the total as last element.
func starts(chunks []int) []int {
	off := make([]int, len(chunks)+1)
	for i, c := range chunks {
		off[i+1] = off[i] + c
	}
	return off
}

// overlapping returns the indices of the chunks intersecting [lo, hi).
func overlapping(off []int, lo, hi int) []int {
	var idx []int
	for i := 0; i < len(off)-1; i++ {
		if off[i] < hi && off[i+1] > lo {
			idx = append(idx, i)
		}
	}
	return idx
}

// chunkOf returns the chunk holding position p.
func chunkOf(off []int, p int) int {
	i, found := slices.BinarySearch(off, p)
	if found {
		return i
	}
	return i - 1
}
