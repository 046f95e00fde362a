package gonumext

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ComplexLU is an LU factorization of a complex matrix M = Mr + i*Mi,
// realized as one real LU of the augmented 2n by 2n system
//
//	[ Mr  -Mi ] [ Xr ]   [ Br ]
//	[ Mi   Mr ] [ Xi ] = [ Bi ]
//
// so that all downstream arithmetic stays real. One factorization serves the
// matrix, its elementwise conjugate and their transposes, which is what the
// shift cache in the krylov package relies on for conjugate shift pairs.
type ComplexLU struct {
	n  int
	lu mat.LU
}

// NewComplexLU factors Mr + i*Mi. Both blocks must be n by n; mi may be nil
// for a purely real matrix.
func NewComplexLU(mr, mi mat.Matrix) (*ComplexLU, error) {
	n, nc := mr.Dims()
	if n != nc {
		return nil, fmt.Errorf("gonumext: complex LU of non-square %d by %d matrix", n, nc)
	}
	if mi == nil {
		mi = mat.NewDense(n, n, nil)
	} else if mr2, mc2 := mi.Dims(); mr2 != n || mc2 != n {
		return nil, fmt.Errorf("gonumext: real and imaginary blocks differ in shape")
	}

	var negMi, top, bottom, aug mat.Dense
	negMi.Scale(-1, mi)
	top.Augment(mr, &negMi)
	bottom.Augment(mi, mr)
	aug.Stack(&top, &bottom)

	c := &ComplexLU{n: n}
	c.lu.Factorize(&aug)
	return c, nil
}

// Solve solves (Mr + i*Mi) X = Br + i*Bi and returns the real and imaginary
// parts of X. bi may be nil for a real right-hand side. The concrete pointer
// type keeps nil checks honest for callers that thread an optional imaginary
// block through.
func (c *ComplexLU) Solve(br, bi *mat.Dense) (xr, xi *mat.Dense, err error) {
	return c.solve(br, bi, false, false)
}

// SolveConj solves the elementwise-conjugate system (Mr - i*Mi) X = Br + i*Bi
// reusing the factors of Mr + i*Mi.
func (c *ComplexLU) SolveConj(br, bi *mat.Dense) (xr, xi *mat.Dense, err error) {
	return c.solve(br, bi, false, true)
}

// SolveTrans solves (Mr + i*Mi)^T X = Br + i*Bi.
func (c *ComplexLU) SolveTrans(br, bi *mat.Dense) (xr, xi *mat.Dense, err error) {
	return c.solve(br, bi, true, true)
}

// SolveConjTrans solves the conjugate-transpose system (Mr - i*Mi)^T X = Br + i*Bi.
func (c *ComplexLU) SolveConjTrans(br, bi *mat.Dense) (xr, xi *mat.Dense, err error) {
	return c.solve(br, bi, true, false)
}

func (c *ComplexLU) solve(br, bi *mat.Dense, trans, conj bool) (*mat.Dense, *mat.Dense, error) {
	rb, k := br.Dims()
	if rb != c.n {
		return nil, nil, fmt.Errorf("gonumext: right-hand side has %d rows, want %d", rb, c.n)
	}
	var negBi mat.Dense
	if bi == nil {
		bi = mat.NewDense(c.n, k, nil)
	} else if rbi, kbi := bi.Dims(); rbi != c.n || kbi != k {
		return nil, nil, fmt.Errorf("gonumext: imaginary right-hand side shape mismatch")
	}
	// A conjugated system is solved by conjugating the right-hand side and
	// the solution. The transposed augmented matrix corresponds to the
	// conjugate transpose of M, hence the conj flag flips meaning under
	// trans (see the solve wrappers above).
	if conj {
		negBi.Scale(-1, bi)
		bi = &negBi
	}

	var rhs, sol mat.Dense
	rhs.Stack(br, bi)
	if err := c.lu.SolveTo(&sol, trans, &rhs); err != nil {
		return nil, nil, fmt.Errorf("gonumext: singular complex system: %w", err)
	}

	xr := mat.NewDense(c.n, k, nil)
	xi := mat.NewDense(c.n, k, nil)
	xr.Copy(sol.Slice(0, c.n, 0, k))
	xi.Copy(sol.Slice(c.n, 2*c.n, 0, k))
	if conj {
		xi.Scale(-1, xi)
	}
	return xr, xi, nil
}
