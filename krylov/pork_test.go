package krylov

import (
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/ssm"
)

func transferError(t *testing.T, a, b *ssm.LinearSystem, s complex128) float64 {
	t.Helper()
	ha, err := a.TransferFunctionAt(s)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := b.TransferFunctionAt(s)
	if err != nil {
		t.Fatal(err)
	}
	var worst float64
	r, c := ha.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if d := cmplx.Abs(ha.At(i, j) - hb.At(i, j)); d > worst {
				worst = d
			}
		}
	}
	return worst
}

func TestPorkV(t *testing.T) {
	shifts := []complex128{1, 2, 3}
	sys, sysr, basis := sylvesterFixture(t, shifts)
	rv, _, sv, err := GetSylvester(sys, sysr, basis.V, false)
	if err != nil {
		t.Fatal(err)
	}

	pork, err := PorkV(basis.V, sv, rv, sys.C)
	if err != nil {
		t.Fatal(err)
	}
	if pork.IsDescriptor() {
		t.Error("pseudo-optimal realization must have E = I")
	}
	if !pork.IsStable() {
		t.Error("pseudo-optimal realization must be stable for right-half-plane shifts")
	}

	// Ar = Sv + Br Rv by construction.
	var want mat.Dense
	want.Mul(pork.B, rv)
	want.Add(sv, &want)
	if !mat.EqualApprox(pork.A, &want, 1e-10) {
		t.Error("Ar does not satisfy Ar = Sv + Br Rv")
	}

	// The realization interpolates the full model at the shifts.
	for _, s := range shifts {
		if d := transferError(t, sys, pork, s); d > 1e-4 {
			t.Errorf("interpolation defect %v at shift %v", d, s)
		}
	}
}

func TestPorkW(t *testing.T) {
	shifts := []complex128{1, 2, 3}
	e, a, b, c := testMatrices()
	sys, err := ssm.New(e, a, b, c, nil)
	if err != nil {
		t.Fatal(err)
	}
	var at, et, ct mat.Dense
	at.CloneFrom(a.T())
	et.CloneFrom(e.T())
	ct.CloneFrom(c.T())
	basis, err := Arnoldi(Request{E: &et, A: &at, B: &ct, Shifts: shifts})
	if err != nil {
		t.Fatal(err)
	}
	sysr := projectOneSided(t, sys, basis.V)
	lw, _, sw, err := GetSylvester(sys, sysr, basis.V, true)
	if err != nil {
		t.Fatal(err)
	}

	pork, err := PorkW(basis.V, sw, lw, sys.B)
	if err != nil {
		t.Fatal(err)
	}
	if pork.IsDescriptor() {
		t.Error("pseudo-optimal realization must have E = I")
	}
	if !pork.IsStable() {
		t.Error("output-side pseudo-optimal realization must be stable")
	}

	// Ar = Sw^T + Lw^T Cr by construction.
	var want mat.Dense
	want.Mul(lw.T(), pork.C)
	want.Add(sw.T(), &want)
	if !mat.EqualApprox(pork.A, &want, 1e-10) {
		t.Error("Ar does not satisfy Ar = Sw^T + Lw^T Cr")
	}

	for _, s := range shifts {
		if d := transferError(t, sys, pork, s); d > 1e-4 {
			t.Errorf("interpolation defect %v at shift %v", d, s)
		}
	}
}

func TestPorkDimensionChecks(t *testing.T) {
	v := mat.NewDense(8, 3, nil)
	s := mat.NewDense(2, 2, nil)
	r := mat.NewDense(2, 3, nil)
	c := mat.NewDense(1, 8, nil)
	if _, err := PorkV(v, s, r, c); err == nil {
		t.Error("expected a dimension error for a misshapen shift matrix")
	}
}
