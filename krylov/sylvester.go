package krylov

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/ssm"
)

// GetSylvester reconstructs the Sylvester equation certifying the projection
// V: it returns (R, B_, S) with
//
//	A V - E V S - B R = 0,   B_ = B - E V Er^-1 Br
//
// from the already-known reduced matrices, without redoing the Arnoldi
// construction. The eigenvalues of S are the interpolation points of the
// projection. With dual set, V is interpreted as the output-side basis W and
// the dual equation A^T W - E^T W S_W - C^T L = 0 is reconstructed, returning
// (L, C_, S_W) with C_ of the shape of C.
//
// The intermediate solves are known to cost digits: residuals around 1e-4
// relative are expected and are not an error.
func GetSylvester(sys, sysr *ssm.LinearSystem, v *mat.Dense, dual bool) (r, res, s *mat.Dense, err error) {
	if dual {
		return getSylvesterDual(sys, sysr, v)
	}
	return getSylvester(sys.A, sys.E, sys.B, sysr.A, sysr.E, sysr.B, v)
}

func getSylvesterDual(sys, sysr *ssm.LinearSystem, w *mat.Dense) (l, cres, s *mat.Dense, err error) {
	var at, et, ct, art, ert, crt mat.Dense
	at.CloneFrom(sys.A.T())
	et.CloneFrom(sys.E.T())
	ct.CloneFrom(sys.C.T())
	art.CloneFrom(sysr.A.T())
	ert.CloneFrom(sysr.E.T())
	crt.CloneFrom(sysr.C.T())
	l, cresT, s, err := getSylvester(&at, &et, &ct, &art, &ert, &crt, w)
	if err != nil {
		return nil, nil, nil, err
	}
	cres = &mat.Dense{}
	cres.CloneFrom(cresT.T())
	return l, cres, s, nil
}

func getSylvester(a, e, b, ar, er, br *mat.Dense, v *mat.Dense) (r, bres, s *mat.Dense, err error) {
	n, q := v.Dims()
	if na, _ := a.Dims(); na != n {
		return nil, nil, nil, fmt.Errorf("krylov: V has %d rows for order-%d system", n, na)
	}
	if nr, _ := ar.Dims(); nr != q {
		return nil, nil, nil, fmt.Errorf("krylov: V has %d columns for order-%d reduced system", q, nr)
	}

	var lu mat.LU
	lu.Factorize(er)
	var erInvAr, erInvBr mat.Dense
	if err := lu.SolveTo(&erInvAr, false, ar); err != nil {
		return nil, nil, nil, fmt.Errorf("krylov: reduced descriptor matrix is singular, projection is defective: %w", err)
	}
	if err := lu.SolveTo(&erInvBr, false, br); err != nil {
		return nil, nil, nil, fmt.Errorf("krylov: reduced descriptor matrix is singular, projection is defective: %w", err)
	}

	var ev mat.Dense
	ev.Mul(e, v)

	// B_ = B - E V (Er^-1 Br)
	bres = &mat.Dense{}
	bres.Mul(&ev, &erInvBr)
	bres.Sub(b, bres)

	// M = A V - E V (Er^-1 Ar)
	var m mat.Dense
	m.Mul(&ev, &erInvAr)
	var av mat.Dense
	av.Mul(a, v)
	m.Sub(&av, &m)

	// R solves B_ R = M in the least-squares sense.
	r = &mat.Dense{}
	if err := r.Solve(bres, &m); err != nil {
		return nil, nil, nil, fmt.Errorf("krylov: rank-deficient residual factor in Sylvester reconstruction: %w", err)
	}

	// S = Er^-1 Ar - (Er^-1 Br) R
	s = &mat.Dense{}
	s.Mul(&erInvBr, r)
	s.Sub(&erInvAr, s)
	return r, bres, s, nil
}
