package krylov

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/ssm"
)

// PorkV builds the input-side pseudo-optimal reduced realization from
// Sylvester data (V, Sv, Rv) with A V - E V Sv - B Rv = 0:
//
//	P:  Sv P + P Sv^T = Rv^T Rv   (Cholesky-factored Lyapunov solve)
//	Br = -P^-1 Rv^T
//	Ar = Sv + Br Rv
//	Cr = C V
//	Er = I
//
// The result interpolates at the eigenvalues of Sv and carries a computable
// H2 error bound. Sv must have all eigenvalues in the open right half plane
// (mirror images of stable poles) for P to be positive definite.
func PorkV(v, sv, rv *mat.Dense, c mat.Matrix) (*ssm.LinearSystem, error) {
	q, err := checkPorkDims(v, sv, rv)
	if err != nil {
		return nil, err
	}

	chol, err := ssm.LyapChol(negative(sv), transposeDense(rv))
	if err != nil {
		return nil, fmt.Errorf("krylov: PorkV Lyapunov solve: %w", err)
	}
	// Br = -P^-1 Rv^T
	br := &mat.Dense{}
	if err := chol.SolveTo(br, transposeDense(rv)); err != nil {
		return nil, fmt.Errorf("krylov: PorkV Gramian solve: %w", err)
	}
	br.Scale(-1, br)

	ar := mat.NewDense(q, q, nil)
	ar.Mul(br, rv)
	ar.Add(sv, ar)

	cr := &mat.Dense{}
	cr.Mul(c, v)

	return ssm.New(nil, ar, br, cr, nil)
}

// PorkW builds the output-side (dual) pseudo-optimal realization from
// Sylvester data (W, Sw, Lw) with A^T W - E^T W Sw - C^T Lw = 0. It is the
// transpose of the input-side construction applied to the dual data, hence
// the transposed shift matrix in Ar:
//
//	P:  Sw P + P Sw^T = Lw^T Lw
//	Cr = -Lw P^-1
//	Ar = Sw^T + Lw^T Cr
//	Br = W^T B
//	Er = I
func PorkW(w, sw, lw *mat.Dense, b mat.Matrix) (*ssm.LinearSystem, error) {
	q, err := checkPorkDims(w, sw, lw)
	if err != nil {
		return nil, err
	}

	chol, err := ssm.LyapChol(negative(sw), transposeDense(lw))
	if err != nil {
		return nil, fmt.Errorf("krylov: PorkW Lyapunov solve: %w", err)
	}
	// Cr = -Lw P^-1 = -(P^-1 Lw^T)^T by symmetry of P.
	var pinvLt mat.Dense
	if err := chol.SolveTo(&pinvLt, transposeDense(lw)); err != nil {
		return nil, fmt.Errorf("krylov: PorkW Gramian solve: %w", err)
	}
	cr := &mat.Dense{}
	cr.CloneFrom(pinvLt.T())
	cr.Scale(-1, cr)

	ar := mat.NewDense(q, q, nil)
	ar.Mul(transposeDense(lw), cr)
	ar.Add(transposeDense(sw), ar)

	br := &mat.Dense{}
	br.Mul(w.T(), b)

	return ssm.New(nil, ar, br, cr, nil)
}

func checkPorkDims(v, s, r *mat.Dense) (int, error) {
	_, q := v.Dims()
	sr, sc := s.Dims()
	if sr != q || sc != q {
		return 0, fmt.Errorf("krylov: shift matrix has shape %d by %d for a %d-column basis", sr, sc, q)
	}
	if _, rc := r.Dims(); rc != q {
		return 0, fmt.Errorf("krylov: Sylvester data has %d columns for a %d-column basis", rc, q)
	}
	return q, nil
}

func negative(m *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.Scale(-1, m)
	return out
}

func transposeDense(m *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.CloneFrom(m.T())
	return out
}
