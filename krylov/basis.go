package krylov

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/gonumext"
	"github.com/frankldm/sssMOR/ssm"
)

// IncrementalBasis grows a rational Krylov basis (and, in Hermite mode, the
// matching output-side basis) shift batch by shift batch, keeping the
// factorization cache and all previously orthonormalized columns across
// batches. It is the accumulation state of the model-function loop: shifts
// are only ever appended, never discarded, and an instance must not be
// shared between concurrent reductions.
type IncrementalBasis struct {
	sys     *ssm.LinearSystem
	hermite bool
	sol     *shiftSolver
	vb, wb  *sideBuilder
	shifts  []complex128
	tol     float64
}

// NewIncrementalBasis prepares an empty basis for sys. With hermite set the
// output-side basis W is grown alongside V from the same factorizations.
func NewIncrementalBasis(sys *ssm.LinearSystem, hermite bool, pairTol float64) *IncrementalBasis {
	if pairTol <= 0 {
		pairTol = DefaultPairTol
	}
	n := sys.Order()
	e := sys.E
	if e == nil {
		e = gonumext.Identity(n)
	}
	ip := resolveInnerProduct(e)
	sol := newShiftSolver(e, sys.A)
	ib := &IncrementalBasis{
		sys:     sys,
		hermite: hermite,
		sol:     sol,
		vb:      newSideBuilder(sol, false, mat.DenseCopyOf(sys.B), e, sys.A, ip),
		tol:     pairTol,
	}
	if hermite {
		var ct, et, at mat.Dense
		ct.CloneFrom(sys.C.T())
		et.CloneFrom(e.T())
		at.CloneFrom(sys.A.T())
		ib.wb = newSideBuilder(sol, true, &ct, &et, &at, ip)
	}
	return ib
}

// AddShifts canonicalizes the batch and appends the implied new columns,
// reusing cached factorizations for shift values seen before. Repeated
// values, and values within the pairing tolerance of an earlier one, extend
// the moment chain at that shift. Directions rt and lt (one
// column per batch shift) are optional; they are permuted along with the
// canonicalization. lt is only read in Hermite mode.
func (ib *IncrementalBasis) AddShifts(batch []complex128, rt, lt *mat.CDense) error {
	s0, perm, err := CplxPairPerm(batch, ib.tol)
	if err != nil {
		return err
	}
	s0 = ib.snapShifts(s0)
	if rt != nil {
		rt = PermuteCols(rt, perm)
	}
	if lt != nil {
		lt = PermuteCols(lt, perm)
	}
	if err := ib.vb.addShifts(s0, rt); err != nil {
		return err
	}
	if err := ib.vb.finish(ReorthGS); err != nil {
		return err
	}
	if ib.hermite {
		if err := ib.wb.addShifts(s0, lt); err != nil {
			return err
		}
		if err := ib.wb.finish(ReorthGS); err != nil {
			return err
		}
	}
	ib.shifts = append(ib.shifts, s0...)
	return nil
}

// snapShifts maps batch values lying within the pairing tolerance of an
// already-factored shift onto that exact value. A snapped value extends the
// moment chain at the cached factorization; left unsnapped, it would factor a
// nearly identical pencil and contribute a column that orthogonalizes to
// nothing against the existing basis. Iterated growth produces such
// near-duplicates routinely once the outer loop starts converging.
func (ib *IncrementalBasis) snapShifts(s0 []complex128) []complex128 {
	var keys []complex128
	seen := make(map[complex128]bool)
	add := func(k complex128) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, s := range ib.shifts {
		if !IsInfShift(s) {
			add(shiftKey(s))
		}
	}
	out := make([]complex128, len(s0))
	for i, s := range s0 {
		if IsInfShift(s) {
			out[i] = s
			continue
		}
		k := shiftKey(s)
		for _, c := range keys {
			if cmplx.Abs(c-k) <= ib.tol*math.Max(1, cmplx.Abs(c)) {
				k = c
				break
			}
		}
		add(k)
		if imag(s) < 0 {
			out[i] = cmplx.Conj(k)
		} else {
			out[i] = k
		}
	}
	return out
}

// Order returns the current number of basis columns.
func (ib *IncrementalBasis) Order() int { return len(ib.vb.cols) }

// Shifts returns a copy of the accumulated shift set.
func (ib *IncrementalBasis) Shifts() []complex128 {
	return append([]complex128(nil), ib.shifts...)
}

// V returns the accumulated input-side basis.
func (ib *IncrementalBasis) V() *mat.Dense { return ib.vb.matrix() }

// W returns the accumulated output-side basis, or V in Galerkin mode.
func (ib *IncrementalBasis) W() *mat.Dense {
	if !ib.hermite {
		return ib.vb.matrix()
	}
	return ib.wb.matrix()
}

// PermuteCols returns d with columns reordered so that column i of the
// result is column perm[i] of d.
func PermuteCols(d *mat.CDense, perm []int) *mat.CDense {
	r, c := d.Dims()
	if len(perm) != c {
		panic(fmt.Sprintf("krylov: permutation length %d for %d columns", len(perm), c))
	}
	out := mat.NewCDense(r, c, nil)
	for i, src := range perm {
		for row := 0; row < r; row++ {
			out.Set(row, i, d.At(row, src))
		}
	}
	return out
}
