// Package mor implements the model order reduction drivers: rational Krylov
// moment matching (RK), the iterative rational Krylov algorithm (IRKA) and
// its model-function acceleration (ModelFctMor/Cirka).
package mor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/krylov"
	"github.com/frankldm/sssMOR/ssm"
)

// RKRequest selects the interpolation data for one RK reduction. Which
// fields are populated selects the variant: input shifts only is one-sided
// Galerkin (W = V); distinct input and output shift sets build V and W
// independently; equal shift sets select the Hermite construction that
// matches value and derivative at every shift.
type RKRequest struct {
	InputShifts  []complex128
	OutputShifts []complex128
	// Tangential directions, one column per shift, conjugate-paired with
	// them. Nil selects block Krylov.
	Rt, Lt *mat.CDense
}

// RKOptions carries tuning knobs shared by all reductions.
type RKOptions struct {
	// InnerProduct overrides the orthonormalization inner product.
	InnerProduct mat.Matrix
	Reorth       krylov.ReorthMode
	// CplxPairTol decides near-real shifts during canonicalization.
	// Zero means krylov.DefaultPairTol.
	CplxPairTol float64
}

// Reduction is the result of an RK call: the reduced system together with
// the projection matrices and the Sylvester shadow data of the Arnoldi
// construction (nil when not tracked, see krylov.Basis).
type Reduction struct {
	Sysr         *ssm.LinearSystem
	V, W         *mat.Dense
	Rsylv, Lsylv *mat.Dense
}

// RK reduces sys by rational interpolation at the requested shifts:
// Ar = W^T A V, Er = W^T E V, Br = W^T B, Cr = C V, Dr = D.
func RK(sys *ssm.LinearSystem, req RKRequest, opts RKOptions) (*Reduction, error) {
	if sys == nil {
		return nil, errors.New("mor: nil system")
	}
	if len(req.InputShifts) == 0 {
		return nil, errors.New("mor: no input shifts given")
	}
	tol := opts.CplxPairTol
	if tol <= 0 {
		tol = krylov.DefaultPairTol
	}

	s0in, perm, err := krylov.CplxPairPerm(req.InputShifts, tol)
	if err != nil {
		return nil, fmt.Errorf("mor: input shifts: %w", err)
	}
	rt := req.Rt
	if rt != nil {
		rt = krylov.PermuteCols(rt, perm)
	}

	switch {
	case len(req.OutputShifts) == 0:
		return rkOneSided(sys, s0in, rt, opts)
	case sameShiftSet(s0in, req.OutputShifts, tol):
		lt := req.Lt
		if lt != nil {
			lt = krylov.PermuteCols(lt, perm)
		}
		return rkHermite(sys, s0in, rt, lt, opts)
	default:
		s0out, permOut, err := krylov.CplxPairPerm(req.OutputShifts, tol)
		if err != nil {
			return nil, fmt.Errorf("mor: output shifts: %w", err)
		}
		lt := req.Lt
		if lt != nil {
			lt = krylov.PermuteCols(lt, permOut)
		}
		return rkTwoSided(sys, s0in, s0out, rt, lt, opts)
	}
}

func rkOneSided(sys *ssm.LinearSystem, s0 []complex128, rt *mat.CDense, opts RKOptions) (*Reduction, error) {
	basis, err := krylov.Arnoldi(krylov.Request{
		E: sys.E, A: sys.A, B: sys.B,
		Shifts: s0, Rt: rt,
		InnerProduct: opts.InnerProduct, Reorth: opts.Reorth,
	})
	if err != nil {
		return nil, err
	}
	sysr, err := Project(sys, basis.V, basis.V)
	if err != nil {
		return nil, err
	}
	return &Reduction{Sysr: sysr, V: basis.V, W: basis.V, Rsylv: basis.Rsylv}, nil
}

func rkHermite(sys *ssm.LinearSystem, s0 []complex128, rt, lt *mat.CDense, opts RKOptions) (*Reduction, error) {
	basis, err := krylov.Arnoldi(krylov.Request{
		E: sys.E, A: sys.A, B: sys.B, C: sys.C,
		Shifts: s0, Rt: rt, Lt: lt, Hermite: true,
		InnerProduct: opts.InnerProduct, Reorth: opts.Reorth,
	})
	if err != nil {
		return nil, err
	}
	sysr, err := Project(sys, basis.V, basis.W)
	if err != nil {
		return nil, err
	}
	return &Reduction{Sysr: sysr, V: basis.V, W: basis.W, Rsylv: basis.Rsylv, Lsylv: basis.Lsylv}, nil
}

func rkTwoSided(sys *ssm.LinearSystem, s0in, s0out []complex128, rt, lt *mat.CDense, opts RKOptions) (*Reduction, error) {
	vb, err := krylov.Arnoldi(krylov.Request{
		E: sys.E, A: sys.A, B: sys.B,
		Shifts: s0in, Rt: rt,
		InnerProduct: opts.InnerProduct, Reorth: opts.Reorth,
	})
	if err != nil {
		return nil, err
	}
	// The output-side basis is the input-side basis of the transposed
	// system.
	var at, et, ct mat.Dense
	at.CloneFrom(sys.A.T())
	et.CloneFrom(sys.E.T())
	ct.CloneFrom(sys.C.T())
	wb, err := krylov.Arnoldi(krylov.Request{
		E: &et, A: &at, B: &ct,
		Shifts: s0out, Rt: lt,
		InnerProduct: opts.InnerProduct, Reorth: opts.Reorth,
	})
	if err != nil {
		return nil, err
	}
	_, qv := vb.V.Dims()
	_, qw := wb.V.Dims()
	if qv != qw {
		return nil, errors.New("mor: input and output shift sets imply different reduced orders")
	}
	sysr, err := Project(sys, vb.V, wb.V)
	if err != nil {
		return nil, err
	}
	return &Reduction{Sysr: sysr, V: vb.V, W: wb.V, Rsylv: vb.Rsylv, Lsylv: wb.Rsylv}, nil
}

// Project computes the Petrov-Galerkin projection of sys onto span(V) along
// span(W): a new reduced LinearSystem, leaving sys untouched.
func Project(sys *ssm.LinearSystem, v, w *mat.Dense) (*ssm.LinearSystem, error) {
	var wa, ar, we, er, br, cr mat.Dense
	wa.Mul(w.T(), sys.A)
	ar.Mul(&wa, v)
	we.Mul(w.T(), sys.E)
	er.Mul(&we, v)
	br.Mul(w.T(), sys.B)
	cr.Mul(sys.C, v)
	return ssm.New(&er, &ar, &br, &cr, sys.D)
}

// sameShiftSet reports whether the canonical form of out equals s0in (already
// canonical) elementwise within tol.
func sameShiftSet(s0in, out []complex128, tol float64) bool {
	if len(out) != len(s0in) {
		return false
	}
	s0out, err := krylov.CplxPair(out, tol)
	if err != nil {
		return false
	}
	for i := range s0in {
		if s0in[i] != s0out[i] {
			return false
		}
	}
	return true
}
