package krylov

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/gonumext"
)

// ReorthMode selects the re-orthogonalization applied after the direct basis
// construction.
type ReorthMode int

const (
	// ReorthGS repeats one full modified Gram-Schmidt sweep over the basis.
	// It preserves the Sylvester shadow coefficients and is the default.
	ReorthGS ReorthMode = iota
	// ReorthNone skips re-orthogonalization.
	ReorthNone
	// ReorthQR replaces the basis by the thin Q factor of its QR
	// factorization. The basis changes, so the Sylvester shadow matrices
	// are invalidated and returned nil.
	ReorthQR
)

// Request describes one Arnoldi basis construction. The shape of the
// optional fields selects the variant: Rt/Lt nil means block Krylov, Hermite
// selects the combined two-sided construction (requires C).
type Request struct {
	// E, A, B as in E x' = A x + B u. E may be nil for the identity.
	E, A, B mat.Matrix
	// C is required for the Hermite (two-sided) construction.
	C mat.Matrix
	// Shifts in canonical conjugate-paired order (see CplxPair).
	Shifts []complex128
	// Rt holds one input direction per shift (m by len(Shifts)),
	// conjugate-paired with the shifts. Nil selects block Krylov.
	Rt *mat.CDense
	// Lt holds one output direction per shift (p by len(Shifts)). Only
	// read when Hermite is set.
	Lt *mat.CDense
	// InnerProduct is the weight of the orthonormalization inner product.
	// Nil resolves to the E-weighted product when E is symmetric positive
	// definite and well conditioned, the Euclidean product otherwise.
	InnerProduct mat.Matrix
	// Hermite requests the combined construction of V and W from the same
	// shifts and factorizations.
	Hermite bool
	Reorth  ReorthMode
}

// Basis is the result of an Arnoldi construction. V (and W when Hermite) has
// orthonormal columns under the configured inner product. Rsylv and Lsylv
// carry the Sylvester shadow coefficients; they are nil when the shift set
// contains infinite shifts or when ReorthQR destroyed their consistency.
type Basis struct {
	V, W         *mat.Dense
	Rsylv, Lsylv *mat.Dense
}

// Arnoldi builds an orthonormal rational Krylov basis for the given shifts
// and directions, factoring (A - sE) once per distinct shift value and
// reusing the factors for conjugate partners. Complex shifts never reach the
// returned basis: the solve at the pair representative contributes its real
// part in the representative's slot and its imaginary part in the partner's
// slot.
func Arnoldi(req Request) (*Basis, error) {
	n, err := validateRequest(&req)
	if err != nil {
		return nil, err
	}
	e := req.E
	if e == nil {
		e = gonumext.Identity(n)
	}
	ip := req.InnerProduct
	if ip == nil {
		ip = resolveInnerProduct(e)
	}

	sol := newShiftSolver(e, req.A)

	vb := newSideBuilder(sol, false, mat.DenseCopyOf(req.B), e, req.A, ip)
	if err := vb.addShifts(req.Shifts, req.Rt); err != nil {
		return nil, err
	}
	if err := vb.finish(req.Reorth); err != nil {
		return nil, err
	}
	basis := &Basis{V: vb.matrix(), Rsylv: vb.shadowMatrix()}

	if req.Hermite {
		var ct, et, at mat.Dense
		ct.CloneFrom(req.C.T())
		et.CloneFrom(e.T())
		at.CloneFrom(req.A.T())
		wb := newSideBuilder(sol, true, &ct, &et, &at, ip)
		if err := wb.addShifts(req.Shifts, req.Lt); err != nil {
			return nil, err
		}
		if err := wb.finish(req.Reorth); err != nil {
			return nil, err
		}
		basis.W = wb.matrix()
		basis.Lsylv = wb.shadowMatrix()
	}
	return basis, nil
}

func validateRequest(req *Request) (int, error) {
	if req.A == nil || req.B == nil {
		return 0, errors.New("krylov: A and B are required")
	}
	n, nc := req.A.Dims()
	if n != nc {
		return 0, fmt.Errorf("krylov: A must be square, got %d by %d", n, nc)
	}
	if req.E != nil {
		if er, ec := req.E.Dims(); er != n || ec != n {
			return 0, fmt.Errorf("krylov: E has shape %d by %d, want %d by %d", er, ec, n, n)
		}
	}
	nb, m := req.B.Dims()
	if nb != n {
		return 0, fmt.Errorf("krylov: B has %d rows, want %d", nb, n)
	}
	if len(req.Shifts) == 0 {
		return 0, errors.New("krylov: empty shift vector")
	}
	if req.Rt != nil {
		rr, rc := req.Rt.Dims()
		if rc != len(req.Shifts) {
			return 0, fmt.Errorf("krylov: Rt has %d columns for %d shifts", rc, len(req.Shifts))
		}
		if rr != m {
			return 0, fmt.Errorf("krylov: Rt has %d rows for %d inputs", rr, m)
		}
	}
	if req.Hermite {
		if req.C == nil {
			return 0, errors.New("krylov: Hermite construction requires C")
		}
		p, cc := req.C.Dims()
		if cc != n {
			return 0, fmt.Errorf("krylov: C has %d columns, want %d", cc, n)
		}
		if req.Lt != nil {
			lr, lc := req.Lt.Dims()
			if lc != len(req.Shifts) {
				return 0, fmt.Errorf("krylov: Lt has %d columns for %d shifts", lc, len(req.Shifts))
			}
			if lr != p {
				return 0, fmt.Errorf("krylov: Lt has %d rows for %d outputs", lr, p)
			}
		}
		if (req.Rt == nil) != (req.Lt == nil) {
			return 0, errors.New("krylov: Hermite construction needs both Rt and Lt or neither")
		}
	}
	return n, nil
}

// resolveInnerProduct picks the E-weighted inner product when E qualifies.
func resolveInnerProduct(e mat.Matrix) mat.Matrix {
	n, _ := e.Dims()
	if mat.Equal(e, gonumext.Identity(n)) {
		return nil
	}
	sym, ok := symmetrize(e)
	if !ok {
		return nil
	}
	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return nil
	}
	if mat.Cond(e, 1) > 1e6 {
		return nil
	}
	return e
}

// sideBuilder accumulates one basis (the input side, or with trans set the
// output side) column by column, together with the Sylvester shadow
// coefficients receiving the identical column operations.
type sideBuilder struct {
	sol   *shiftSolver
	trans bool
	// f is the starting block: B for the input side, C^T for the output
	// side.
	f    *mat.Dense
	fdim int
	// eMul/aMul advance repeated-shift moment chains: E (finite shifts)
	// and A (Markov chain), transposed on the output side.
	eMul, aMul mat.Matrix
	ip         mat.Matrix
	n          int

	cols   []*mat.VecDense
	shadow []*mat.VecDense
	split  []int

	lastRaw map[complex128]*rawBlock
	hasInf  bool
	qrDone  bool
}

// rawBlock keeps the pre-orthogonalization solution of the latest column
// block per shift value, so that higher moments chain on the exact Krylov
// vector rather than on a Gram-Schmidt combination.
type rawBlock struct {
	re, im *mat.Dense
}

func newSideBuilder(sol *shiftSolver, trans bool, f *mat.Dense, eMul, aMul mat.Matrix, ip mat.Matrix) *sideBuilder {
	n, fdim := f.Dims()
	return &sideBuilder{
		sol: sol, trans: trans, f: f, fdim: fdim,
		eMul: eMul, aMul: aMul, ip: ip, n: n,
		lastRaw: make(map[complex128]*rawBlock),
	}
}

type pendingBlock struct {
	v, sh *mat.Dense
}

func (b *sideBuilder) addShifts(s0 []complex128, dir *mat.CDense) error {
	if dir != nil {
		if _, dc := dir.Dims(); dc != len(s0) {
			return fmt.Errorf("krylov: %d direction columns for %d shifts", dc, len(s0))
		}
	}
	b.split = b.split[:0]
	pending := make(map[int]*pendingBlock)
	done := make([]bool, len(s0))

	for j := 0; j < len(s0); j++ {
		if pb, ok := pending[j]; ok {
			// Imaginary part of a conjugate pair, placed in the
			// partner's slot.
			if err := b.appendBlock(pb.v, pb.sh, true); err != nil {
				return err
			}
			delete(pending, j)
			done[j] = true
			continue
		}
		s := s0[j]
		if imag(s) < 0 {
			return fmt.Errorf("krylov: shift %v appears before its conjugate partner; canonical pairing required", s)
		}

		rhsRe, rhsIm, shRe, shIm, err := b.startBlock(s, j, dir)
		if err != nil {
			return err
		}
		xre, xim, err := b.sol.solve(s, rhsRe, rhsIm, b.trans)
		if err != nil {
			return err
		}
		b.lastRaw[shiftKey(s)] = &rawBlock{re: xre, im: xim}
		if IsInfShift(s) {
			b.hasInf = true
		}

		if imag(s) == 0 {
			if err := b.appendBlock(xre, shRe, false); err != nil {
				return err
			}
			done[j] = true
			continue
		}

		// Complex pair: real part here, imaginary part scheduled for the
		// partner slot.
		jp := -1
		for k := j + 1; k < len(s0); k++ {
			if !done[k] && pending[k] == nil && s0[k] == cmplx.Conj(s) {
				jp = k
				break
			}
		}
		if jp < 0 {
			return fmt.Errorf("krylov: shift %v has no conjugate partner in the shift vector", s)
		}
		if dir != nil {
			for i := 0; i < b.fdim; i++ {
				d := dir.At(i, j)
				if cmplx.Abs(dir.At(i, jp)-cmplx.Conj(d)) > DefaultPairTol*math.Max(1, cmplx.Abs(d)) {
					return fmt.Errorf("krylov: direction column %d is not the conjugate of column %d for shift %v", jp, j, s)
				}
			}
		}
		if err := b.appendBlock(xre, shRe, false); err != nil {
			return err
		}
		done[j] = true
		pending[jp] = &pendingBlock{v: xim, sh: shIm}
	}
	if len(pending) != 0 {
		return errors.New("krylov: unconsumed conjugate partner slots")
	}

	// Second orthogonalization pass over the columns that came from
	// splitting complex solutions into real and imaginary parts.
	for _, idx := range b.split {
		if err := b.resweep(idx); err != nil {
			return err
		}
	}
	return nil
}

// startBlock prepares the right-hand side block and the Sylvester shadow
// contribution for the shift at index j. Repeated shifts chain on the
// previous raw solution and contribute zero shadow columns.
func (b *sideBuilder) startBlock(s complex128, j int, dir *mat.CDense) (rhsRe, rhsIm, shRe, shIm *mat.Dense, err error) {
	w := 1
	if dir == nil {
		w = b.fdim
	}
	if prev, ok := b.lastRaw[shiftKey(s)]; ok {
		mul := b.eMul
		if IsInfShift(s) {
			mul = b.aMul
		}
		rhsRe = &mat.Dense{}
		rhsRe.Mul(mul, prev.re)
		rhsIm = &mat.Dense{}
		rhsIm.Mul(mul, prev.im)
		shRe = mat.NewDense(b.fdim, w, nil)
		shIm = mat.NewDense(b.fdim, w, nil)
		return rhsRe, rhsIm, shRe, shIm, nil
	}
	if dir == nil {
		shRe = gonumext.Identity(b.fdim)
		shIm = mat.NewDense(b.fdim, b.fdim, nil)
		rhsRe = mat.DenseCopyOf(b.f)
		rhsIm = nil
		if imag(s) != 0 {
			rhsIm = mat.NewDense(b.n, b.fdim, nil)
		}
		return rhsRe, rhsIm, shRe, shIm, nil
	}
	dr := mat.NewDense(b.fdim, 1, nil)
	di := mat.NewDense(b.fdim, 1, nil)
	var imNorm float64
	for i := 0; i < b.fdim; i++ {
		v := dir.At(i, j)
		dr.Set(i, 0, real(v))
		di.Set(i, 0, imag(v))
		imNorm += imag(v) * imag(v)
	}
	if imag(s) == 0 && imNorm > 0 {
		return nil, nil, nil, nil, fmt.Errorf("krylov: complex direction for real shift %v", s)
	}
	rhsRe = &mat.Dense{}
	rhsRe.Mul(b.f, dr)
	if imag(s) != 0 || imNorm > 0 {
		rhsIm = &mat.Dense{}
		rhsIm.Mul(b.f, di)
	}
	return rhsRe, rhsIm, dr, di, nil
}

// appendBlock orthonormalizes the columns of block v (with shadow sh) against
// the existing basis, one modified Gram-Schmidt pass per column, and appends
// them.
func (b *sideBuilder) appendBlock(v, sh *mat.Dense, fromSplit bool) error {
	_, w := v.Dims()
	for k := 0; k < w; k++ {
		vc := mat.VecDenseCopyOf(v.ColView(k))
		sc := mat.VecDenseCopyOf(sh.ColView(k))
		for i, vi := range b.cols {
			h := b.ipDot(vi, vc)
			vc.AddScaledVec(vc, -h, vi)
			sc.AddScaledVec(sc, -h, b.shadow[i])
		}
		nrm := math.Sqrt(b.ipDot(vc, vc))
		if nrm < 1e-14 {
			return fmt.Errorf("krylov: linearly dependent Krylov direction at column %d", len(b.cols))
		}
		vc.ScaleVec(1/nrm, vc)
		sc.ScaleVec(1/nrm, sc)
		if fromSplit {
			b.split = append(b.split, len(b.cols))
		}
		b.cols = append(b.cols, vc)
		b.shadow = append(b.shadow, sc)
	}
	return nil
}

// resweep repeats the Gram-Schmidt pass for column idx against all earlier
// columns and renormalizes. Only earlier columns are touched, so the update
// stays triangular and the shadow coefficients stay consistent.
func (b *sideBuilder) resweep(idx int) error {
	vc := b.cols[idx]
	sc := b.shadow[idx]
	for i := 0; i < idx; i++ {
		h := b.ipDot(b.cols[i], vc)
		vc.AddScaledVec(vc, -h, b.cols[i])
		sc.AddScaledVec(sc, -h, b.shadow[i])
	}
	nrm := math.Sqrt(b.ipDot(vc, vc))
	if nrm < 1e-14 {
		return fmt.Errorf("krylov: column %d lost to cancellation during re-orthogonalization", idx)
	}
	vc.ScaleVec(1/nrm, vc)
	sc.ScaleVec(1/nrm, sc)
	return nil
}

func (b *sideBuilder) finish(mode ReorthMode) error {
	switch mode {
	case ReorthNone:
		return nil
	case ReorthGS:
		for idx := range b.cols {
			if err := b.resweep(idx); err != nil {
				return err
			}
		}
		return nil
	case ReorthQR:
		var qr mat.QR
		qr.Factorize(b.matrix())
		var q mat.Dense
		qr.QTo(&q)
		for i := range b.cols {
			b.cols[i] = mat.VecDenseCopyOf(q.ColView(i))
		}
		b.qrDone = true
		return nil
	default:
		return fmt.Errorf("krylov: unknown re-orthogonalization mode %d", mode)
	}
}

func (b *sideBuilder) ipDot(x, y *mat.VecDense) float64 {
	if b.ip == nil {
		return mat.Dot(x, y)
	}
	var tmp mat.VecDense
	tmp.MulVec(b.ip, y)
	return mat.Dot(x, &tmp)
}

func (b *sideBuilder) matrix() *mat.Dense {
	v := mat.NewDense(b.n, len(b.cols), nil)
	for i, c := range b.cols {
		v.SetCol(i, c.RawVector().Data)
	}
	return v
}

func (b *sideBuilder) shadowMatrix() *mat.Dense {
	if b.hasInf || b.qrDone {
		return nil
	}
	sh := mat.NewDense(b.fdim, len(b.shadow), nil)
	for i, c := range b.shadow {
		sh.SetCol(i, c.RawVector().Data)
	}
	return sh
}
