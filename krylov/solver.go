package krylov

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/gonumext"
)

// shiftSolver factors (A - sE) once per distinct shift value and serves
// solves for the shift and its conjugate partner from the same factors. The
// cache lives for one Arnoldi call, or for the lifetime of an
// IncrementalBasis, which is what makes the model-function growth cheap.
type shiftSolver struct {
	e, a mat.Matrix
	n    int

	realLU map[complex128]*mat.LU
	cplxLU map[complex128]*gonumext.ComplexLU

	// Factorization of E for shifts at infinity: Cholesky when E is
	// symmetric positive definite, pivoted LU otherwise.
	eChol *mat.Cholesky
	eLU   *mat.LU
}

func newShiftSolver(e, a mat.Matrix) *shiftSolver {
	n, _ := a.Dims()
	return &shiftSolver{
		e: e, a: a, n: n,
		realLU: make(map[complex128]*mat.LU),
		cplxLU: make(map[complex128]*gonumext.ComplexLU),
	}
}

// solve computes X with (A - sE) X = Br + i*Bi, returning real and imaginary
// parts. With trans set, the transposed system (A - sE)^T X = B is solved
// from the same factors (used for the output-side basis in Hermite
// interpolation). bi may be nil; the pointer type matters, a real shift block
// arrives with no imaginary part at all. For s at infinity, E X = B is
// solved instead (Markov parameters).
func (ss *shiftSolver) solve(s complex128, br, bi *mat.Dense, trans bool) (xr, xi *mat.Dense, err error) {
	if IsInfShift(s) {
		return ss.solveInf(br, bi, trans)
	}
	if imag(s) == 0 {
		return ss.solveReal(real(s), br, bi, trans)
	}
	key := shiftKey(s)
	clu, ok := ss.cplxLU[key]
	if !ok {
		// A - key*E = (A - Re(key) E) - i Im(key) E.
		var mr, mi mat.Dense
		mr.Scale(real(key), ss.e)
		mr.Sub(ss.a, &mr)
		mi.Scale(-imag(key), ss.e)
		clu, err = gonumext.NewComplexLU(&mr, &mi)
		if err != nil {
			return nil, nil, fmt.Errorf("krylov: factoring A - (%v)E: %w", key, err)
		}
		ss.cplxLU[key] = clu
	}
	conj := s != key
	switch {
	case !trans && !conj:
		xr, xi, err = clu.Solve(br, bi)
	case !trans && conj:
		xr, xi, err = clu.SolveConj(br, bi)
	case trans && !conj:
		xr, xi, err = clu.SolveTrans(br, bi)
	default:
		xr, xi, err = clu.SolveConjTrans(br, bi)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("krylov: A - (%v)E is singular: %w", s, err)
	}
	return xr, xi, nil
}

func (ss *shiftSolver) solveReal(s float64, br, bi *mat.Dense, trans bool) (*mat.Dense, *mat.Dense, error) {
	key := complex(s, 0)
	lu, ok := ss.realLU[key]
	if !ok {
		var m mat.Dense
		m.Scale(s, ss.e)
		m.Sub(ss.a, &m)
		lu = &mat.LU{}
		lu.Factorize(&m)
		ss.realLU[key] = lu
	}
	xr := &mat.Dense{}
	if err := lu.SolveTo(xr, trans, br); err != nil {
		return nil, nil, fmt.Errorf("krylov: A - (%g)E is singular: %w", s, err)
	}
	var xi *mat.Dense
	if bi != nil {
		xi = &mat.Dense{}
		if err := lu.SolveTo(xi, trans, bi); err != nil {
			return nil, nil, fmt.Errorf("krylov: A - (%g)E is singular: %w", s, err)
		}
	} else {
		r, c := xr.Dims()
		xi = mat.NewDense(r, c, nil)
	}
	return xr, xi, nil
}

func (ss *shiftSolver) solveInf(br, bi *mat.Dense, trans bool) (*mat.Dense, *mat.Dense, error) {
	if ss.eChol == nil && ss.eLU == nil {
		if sym, ok := symmetrize(ss.e); ok {
			var chol mat.Cholesky
			if chol.Factorize(sym) {
				ss.eChol = &chol
			}
		}
		if ss.eChol == nil {
			lu := &mat.LU{}
			lu.Factorize(ss.e)
			ss.eLU = lu
		}
	}
	solveOne := func(b mat.Matrix) (*mat.Dense, error) {
		x := &mat.Dense{}
		var err error
		if ss.eChol != nil {
			err = ss.eChol.SolveTo(x, b)
		} else {
			err = ss.eLU.SolveTo(x, trans, b)
		}
		if err != nil {
			return nil, fmt.Errorf("krylov: E is singular, cannot match Markov parameters: %w", err)
		}
		return x, nil
	}
	xr, err := solveOne(br)
	if err != nil {
		return nil, nil, err
	}
	var xi *mat.Dense
	if bi != nil {
		if xi, err = solveOne(bi); err != nil {
			return nil, nil, err
		}
	} else {
		r, c := xr.Dims()
		xi = mat.NewDense(r, c, nil)
	}
	return xr, xi, nil
}

// symmetrize returns E as a SymDense if it is numerically symmetric.
func symmetrize(e mat.Matrix) (*mat.SymDense, bool) {
	n, c := e.Dims()
	if n != c || !mat.EqualApprox(e, e.T(), 1e-12) {
		return nil, false
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, e.At(i, j))
		}
	}
	return sym, true
}
