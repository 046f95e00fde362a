// Package ssm provides the linear state-space data model used by the model
// order reduction code, together with the small dense analysis helpers the
// reduction layer needs (transfer function evaluation, pencil eigenvalues,
// H2 norms, Lyapunov solves).
package ssm

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/gonumext"
)

// LinearSystem represents the (possibly descriptor) system
//
//	E x'(t) = A x(t) + B u(t)
//	  y(t)  = C x(t) + D u(t)
//
// with n states, m inputs and p outputs. Instances are value objects: the
// reduction code never mutates the matrices of an existing system,
// projections always produce new instances. Callers must follow the same
// rule.
type LinearSystem struct {
	// Descriptor matrix, n by n. Identity for standard state-space systems.
	E *mat.Dense
	// State dynamics, n by n.
	A *mat.Dense
	// Input matrix, n by m.
	B *mat.Dense
	// Observation matrix, p by n.
	C *mat.Dense
	// Feedthrough, p by m. Zero in most reduction workloads.
	D *mat.Dense

	descriptor bool
}

// New creates a LinearSystem after checking that all dimensions are mutually
// consistent. E may be nil, meaning the identity (a standard, non-descriptor
// system); D may be nil, meaning zero feedthrough. The matrices are cloned,
// so the caller keeps ownership of its inputs.
func New(E, A, B, C, D mat.Matrix) (*LinearSystem, error) {
	if A == nil || B == nil || C == nil {
		return nil, errors.New("ssm: A, B and C are required")
	}
	n, nc := A.Dims()
	if n != nc {
		return nil, fmt.Errorf("ssm: A must be square, got %d by %d", n, nc)
	}
	nb, m := B.Dims()
	if nb != n {
		return nil, fmt.Errorf("ssm: B has %d rows, want %d", nb, n)
	}
	p, ncC := C.Dims()
	if ncC != n {
		return nil, fmt.Errorf("ssm: C has %d columns, want %d", ncC, n)
	}

	sys := &LinearSystem{}
	sys.A = mat.DenseCopyOf(A)
	sys.B = mat.DenseCopyOf(B)
	sys.C = mat.DenseCopyOf(C)

	if E != nil {
		ne, nce := E.Dims()
		if ne != n || nce != n {
			return nil, fmt.Errorf("ssm: E has shape %d by %d, want %d by %d", ne, nce, n, n)
		}
		sys.E = mat.DenseCopyOf(E)
		sys.descriptor = !mat.Equal(sys.E, gonumext.Identity(n))
	} else {
		sys.E = gonumext.Identity(n)
	}

	if D != nil {
		pd, md := D.Dims()
		if pd != p || md != m {
			return nil, fmt.Errorf("ssm: D has shape %d by %d, want %d by %d", pd, md, p, m)
		}
		sys.D = mat.DenseCopyOf(D)
	} else {
		sys.D = mat.NewDense(p, m, nil)
	}
	return sys, nil
}

// NewRCLadder returns the SISO system of an RC transmission-line ladder with
// n sections, section resistance r and capacitance c: a stable tridiagonal
// benchmark commonly used to exercise reduction algorithms. The input drives
// the first node, the output observes the last.
func NewRCLadder(n int, r, c float64) *LinearSystem {
	g := 1 / (r * c)
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, -2*g)
		if i > 0 {
			a.Set(i, i-1, g)
		}
		if i < n-1 {
			a.Set(i, i+1, g)
		}
	}
	b := mat.NewDense(n, 1, nil)
	b.Set(0, 0, g)
	cm := mat.NewDense(1, n, nil)
	cm.Set(0, n-1, 1)
	sys, err := New(nil, a, b, cm, nil)
	if err != nil {
		panic(err)
	}
	return sys
}

// Order returns the number of states n.
func (sys *LinearSystem) Order() int {
	n, _ := sys.A.Dims()
	return n
}

// Inputs returns the number of inputs m.
func (sys *LinearSystem) Inputs() int {
	_, m := sys.B.Dims()
	return m
}

// Outputs returns the number of outputs p.
func (sys *LinearSystem) Outputs() int {
	p, _ := sys.C.Dims()
	return p
}

// IsDescriptor reports whether E differs from the identity.
func (sys *LinearSystem) IsDescriptor() bool { return sys.descriptor }

// IsSISO reports whether the system has a single input and a single output.
func (sys *LinearSystem) IsSISO() bool { return sys.Inputs() == 1 && sys.Outputs() == 1 }

// IsMIMO reports whether the system has several inputs or outputs.
func (sys *LinearSystem) IsMIMO() bool { return !sys.IsSISO() }

// TransferFunctionAt evaluates H(s) = C (sE - A)^-1 B + D.
func (sys *LinearSystem) TransferFunctionAt(s complex128) (*mat.CDense, error) {
	xr, xi, err := sys.resolventTimesB(s)
	if err != nil {
		return nil, err
	}
	return sys.observe(xr, xi), nil
}

// TransferFunctionDerivAt evaluates the derivative
// H'(s) = -C (sE - A)^-1 E (sE - A)^-1 B.
func (sys *LinearSystem) TransferFunctionDerivAt(s complex128) (*mat.CDense, error) {
	clu, err := sys.resolventLU(s)
	if err != nil {
		return nil, err
	}
	xr, xi, err := clu.Solve(sys.B, nil)
	if err != nil {
		return nil, fmt.Errorf("ssm: sE - A singular at s = %v: %w", s, err)
	}
	var er, ei mat.Dense
	er.Mul(sys.E, xr)
	ei.Mul(sys.E, xi)
	xr, xi, err = clu.Solve(&er, &ei)
	if err != nil {
		return nil, fmt.Errorf("ssm: sE - A singular at s = %v: %w", s, err)
	}
	xr.Scale(-1, xr)
	xi.Scale(-1, xi)
	h := sys.observe(xr, xi)
	// Drop the feedthrough added by observe: the derivative has none.
	p, m := h.Dims()
	for i := 0; i < p; i++ {
		for j := 0; j < m; j++ {
			h.Set(i, j, h.At(i, j)-complex(sys.D.At(i, j), 0))
		}
	}
	return h, nil
}

func (sys *LinearSystem) resolventLU(s complex128) (*gonumext.ComplexLU, error) {
	var mr, mi mat.Dense
	mr.Scale(real(s), sys.E)
	mr.Sub(&mr, sys.A)
	mi.Scale(imag(s), sys.E)
	return gonumext.NewComplexLU(&mr, &mi)
}

func (sys *LinearSystem) resolventTimesB(s complex128) (*mat.Dense, *mat.Dense, error) {
	clu, err := sys.resolventLU(s)
	if err != nil {
		return nil, nil, err
	}
	xr, xi, err := clu.Solve(sys.B, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("ssm: sE - A singular at s = %v: %w", s, err)
	}
	return xr, xi, nil
}

func (sys *LinearSystem) observe(xr, xi *mat.Dense) *mat.CDense {
	var hr, hi mat.Dense
	hr.Mul(sys.C, xr)
	hr.Add(&hr, sys.D)
	hi.Mul(sys.C, xi)
	p, m := hr.Dims()
	h := mat.NewCDense(p, m, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < m; j++ {
			h.Set(i, j, complex(hr.At(i, j), hi.At(i, j)))
		}
	}
	return h
}

// Poles returns the eigenvalues of the pencil (A, E). E must be invertible;
// for the standard case E = I the eigenvalues of A are returned directly.
func (sys *LinearSystem) Poles() ([]complex128, error) {
	n := sys.Order()
	var x mat.Dense
	if sys.descriptor {
		var lu mat.LU
		lu.Factorize(sys.E)
		if err := lu.SolveTo(&x, false, sys.A); err != nil {
			return nil, fmt.Errorf("ssm: singular E in pole computation: %w", err)
		}
	} else {
		x.CloneFrom(sys.A)
	}
	var eig mat.Eigen
	if ok := eig.Factorize(&x, mat.EigenNone); !ok {
		return nil, errors.New("ssm: eigenvalue computation failed")
	}
	poles := make([]complex128, n)
	eig.Values(poles)
	return poles, nil
}

// IsStable reports whether all poles lie strictly in the open left half
// plane. An error from the pole computation counts as not stable.
func (sys *LinearSystem) IsStable() bool {
	poles, err := sys.Poles()
	if err != nil {
		return false
	}
	for _, p := range poles {
		if real(p) >= 0 || math.IsNaN(real(p)) {
			return false
		}
	}
	return true
}
