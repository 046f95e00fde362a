package ssm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Lyap solves the continuous Lyapunov equation
//
//	A X + X A^T + Q = 0
//
// for the n by n matrix X by assembling the Kronecker operator
// (I (x) A + A (x) I) and performing one dense LU solve. The equation is only
// ever posed at reduced order in this package's callers (Gramians of reduced
// systems, PORK realizations), where the direct solve is exact and cheap.
func Lyap(a, q mat.Matrix) (*mat.Dense, error) {
	n, nc := a.Dims()
	if n != nc {
		return nil, fmt.Errorf("ssm: Lyap needs a square A, got %d by %d", n, nc)
	}
	if qr, qc := q.Dims(); qr != n || qc != n {
		return nil, fmt.Errorf("ssm: Lyap right-hand side has shape %d by %d, want %d by %d", qr, qc, n, n)
	}

	// Row (r,c) of the flattened equation reads
	//   sum_k A[r,k] X[k,c] + sum_k X[r,k] A[c,k] = -Q[r,c]
	// with X flattened row-major as x[k*n+c].
	nn := n * n
	op := mat.NewDense(nn, nn, nil)
	rhs := mat.NewVecDense(nn, nil)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			row := r*n + c
			for k := 0; k < n; k++ {
				op.Set(row, k*n+c, op.At(row, k*n+c)+a.At(r, k))
				op.Set(row, r*n+k, op.At(row, r*n+k)+a.At(c, k))
			}
			rhs.SetVec(row, -q.At(r, c))
		}
	}

	var lu mat.LU
	lu.Factorize(op)
	var sol mat.VecDense
	if err := lu.SolveVecTo(&sol, false, rhs); err != nil {
		return nil, fmt.Errorf("ssm: Lyapunov operator singular (eigenvalue pair summing to zero): %w", err)
	}

	x := mat.NewDense(n, n, nil)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			x.Set(r, c, sol.AtVec(r*n+c))
		}
	}
	// Symmetrize against roundoff; the exact solution is symmetric whenever
	// Q is.
	if mat.EqualApprox(q, q.T(), 1e-12) {
		var xt mat.Dense
		xt.CloneFrom(x.T())
		x.Add(x, &xt)
		x.Scale(0.5, x)
	}
	return x, nil
}

// LyapChol solves A X + X A^T + B B^T = 0 and returns the Cholesky
// factorization of the (positive definite) solution. A must have all
// eigenvalues in one half plane so that X is definite.
func LyapChol(a, b mat.Matrix) (*mat.Cholesky, error) {
	var q mat.Dense
	q.Mul(b, b.T())
	x, err := Lyap(a, &q)
	if err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, x.At(i, j))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("ssm: Lyapunov solution is not positive definite")
	}
	return &chol, nil
}
