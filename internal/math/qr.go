// Package math provides dense linear algebra kernels shared by the local
// and distributed generators.
package math

import (
	"gonum.org/v1/gonum/lapack/lapack64"
	"gonum.org/v1/gonum/mat"
)

// ThinQR returns the economic QR decomposition of the m x n matrix a with
// m >= n: Q is m x n with orthonormal columns and R is n x n upper
// triangular. a is not modified.
func ThinQR(a mat.Matrix) (q, r *mat.Dense) {
	_, n := a.Dims()
	q = mat.DenseCopyOf(a)
	raw := q.RawMatrix()
	tau := make([]float64, n)

	// Workspace query first, then the factorization proper.
	work := make([]float64, 1)
	lapack64.Geqrf(raw, tau, work, -1)
	work = make([]float64, max(int(work[0]), n, 1))
	lapack64.Geqrf(raw, tau, work, len(work))

	r = mat.NewDense(n, n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			r.Set(i, j, raw.Data[i*raw.Stride+j])
		}
	}

	lapack64.Orgqr(raw, tau, work, -1)
	if need := int(work[0]); need > len(work) {
		work = make([]float64, need)
	}
	lapack64.Orgqr(raw, tau, work, len(work))
	return q, r
}
