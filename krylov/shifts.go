// Package krylov implements the rational Krylov machinery behind the
// reduction algorithms: shift canonicalization, shift-keyed factorization
// caching, the Arnoldi basis builder, incremental basis growth for model
// functions, and the Sylvester/PORK utilities that certify a projection.
package krylov

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/cmplxs"
)

// DefaultPairTol is the tolerance used to decide whether a shift is real and
// whether two shifts are conjugate partners when the caller does not supply
// one.
const DefaultPairTol = 1e-6

// ExpandShifts expands the (value, multiplicity) encoding of a shift set
// into the plain vector form, repeating each value according to its
// multiplicity, and returns the canonically paired result.
func ExpandShifts(values []complex128, multiplicity []int, tol float64) ([]complex128, error) {
	if len(values) != len(multiplicity) {
		return nil, fmt.Errorf("krylov: %d shift values but %d multiplicities", len(values), len(multiplicity))
	}
	var s []complex128
	for i, v := range values {
		if multiplicity[i] < 1 {
			return nil, fmt.Errorf("krylov: multiplicity %d for shift %v", multiplicity[i], v)
		}
		for k := 0; k < multiplicity[i]; k++ {
			s = append(s, v)
		}
	}
	return CplxPair(s, tol)
}

// CplxPair sorts a shift vector into canonical conjugate-paired order:
// complex pairs first, ordered by real part then by imaginary magnitude,
// each pair with the nonnegative-imaginary member leading; real shifts
// follow in ascending order, infinite shifts last. Shifts whose imaginary
// part is below tol (relative) are treated as real. An error is returned
// when a complex shift has no conjugate partner within tol.
func CplxPair(s []complex128, tol float64) ([]complex128, error) {
	out, _, err := CplxPairPerm(s, tol)
	return out, err
}

// CplxPairPerm is CplxPair returning additionally the permutation applied:
// perm[i] is the index in s of the i-th canonical shift. Callers that carry
// tangential directions use it to reorder direction columns consistently.
func CplxPairPerm(s []complex128, tol float64) ([]complex128, []int, error) {
	if tol <= 0 {
		tol = DefaultPairTol
	}
	if len(s) == 0 {
		return nil, nil, errors.New("krylov: empty shift vector")
	}

	type indexed struct {
		v complex128
		i int
	}
	var pos, neg, re, inf []indexed
	for i, v := range s {
		switch {
		case math.IsInf(real(v), 0):
			inf = append(inf, indexed{complex(math.Inf(1), 0), i})
		case math.Abs(imag(v)) <= tol*math.Max(1, cmplx.Abs(v)):
			re = append(re, indexed{complex(real(v), 0), i})
		case imag(v) > 0:
			pos = append(pos, indexed{v, i})
		default:
			neg = append(neg, indexed{v, i})
		}
	}
	if len(pos) != len(neg) {
		return nil, nil, fmt.Errorf("krylov: %d shifts with positive and %d with negative imaginary part cannot be conjugate paired", len(pos), len(neg))
	}

	byRe := func(asc []indexed) func(a, b int) bool {
		return func(a, b int) bool {
			if real(asc[a].v) != real(asc[b].v) {
				return real(asc[a].v) < real(asc[b].v)
			}
			return math.Abs(imag(asc[a].v)) < math.Abs(imag(asc[b].v))
		}
	}
	sort.SliceStable(pos, byRe(pos))
	sort.SliceStable(neg, byRe(neg))
	sort.SliceStable(re, byRe(re))

	out := make([]complex128, 0, len(s))
	perm := make([]int, 0, len(s))
	for k := range pos {
		p, q := pos[k], neg[k]
		if cmplx.Abs(cmplx.Conj(p.v)-q.v) > tol*math.Max(1, cmplx.Abs(p.v)) {
			return nil, nil, fmt.Errorf("krylov: shift %v has no conjugate partner (closest candidate %v)", p.v, q.v)
		}
		// Force the pair to be an exact conjugate pair so that downstream
		// repeated-shift detection can compare values exactly.
		out = append(out, p.v, cmplx.Conj(p.v))
		perm = append(perm, p.i, q.i)
	}
	for _, r := range re {
		out = append(out, r.v)
		perm = append(perm, r.i)
	}
	for _, v := range inf {
		out = append(out, v.v)
		perm = append(perm, v.i)
	}
	return out, perm, nil
}

// IsInfShift reports whether s encodes the expansion point at infinity
// (Markov parameter matching).
func IsInfShift(s complex128) bool { return math.IsInf(real(s), 0) }

// shiftKey returns the canonical cache key of a shift: the member of its
// conjugate pair with nonnegative imaginary part.
func shiftKey(s complex128) complex128 {
	if imag(s) < 0 {
		return cmplx.Conj(s)
	}
	return s
}

// ShiftDistance measures how far two shift sets are apart, tolerant of
// ordering: both are sorted by (real, imaginary) part and compared in the
// Euclidean norm, relative to the norm of b (absolute when that is zero).
func ShiftDistance(a, b []complex128) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	as := sortedCopy(a)
	bs := sortedCopy(b)
	diff := cmplxs.Distance(as, bs, 2)
	ref := cmplxs.Norm(bs, 2)
	if ref == 0 {
		return diff
	}
	return diff / ref
}

func sortedCopy(s []complex128) []complex128 {
	c := append([]complex128(nil), s...)
	sort.Slice(c, func(i, j int) bool {
		if real(c[i]) != real(c[j]) {
			return real(c[i]) < real(c[j])
		}
		return imag(c[i]) < imag(c[j])
	})
	return c
}
