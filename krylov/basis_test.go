package krylov

import (
	"testing"

	"github.com/frankldm/sssMOR/ssm"
)

func TestIncrementalBasisGrows(t *testing.T) {
	e, a, b, c := testMatrices()
	sys, err := ssm.New(e, a, b, c, nil)
	if err != nil {
		t.Fatal(err)
	}

	ib := NewIncrementalBasis(sys, true, 0)
	if err := ib.AddShifts([]complex128{1}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if ib.Order() != 2 { // block width 2
		t.Fatalf("order %d after one block shift", ib.Order())
	}
	if d := orthoError(ib.V(), nil); d > 1e-8 {
		t.Errorf("V orthonormality defect %v", d)
	}

	// A second batch, including a repeated shift value that extends the
	// moment chain through the cached factorization.
	if err := ib.AddShifts([]complex128{1, 4}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if ib.Order() != 6 {
		t.Fatalf("order %d after growth, want 6", ib.Order())
	}
	if d := orthoError(ib.V(), nil); d > 1e-8 {
		t.Errorf("V orthonormality defect after growth %v", d)
	}
	if d := orthoError(ib.W(), nil); d > 1e-8 {
		t.Errorf("W orthonormality defect after growth %v", d)
	}
	if got := len(ib.Shifts()); got != 3 {
		t.Errorf("accumulated %d shifts, want 3", got)
	}
}

func TestIncrementalBasisSnapsNearDuplicates(t *testing.T) {
	e, a, b, c := testMatrices()
	sys, err := ssm.New(e, a, b, c, nil)
	if err != nil {
		t.Fatal(err)
	}
	ib := NewIncrementalBasis(sys, false, 0)
	if err := ib.AddShifts([]complex128{1, 2}, nil, nil); err != nil {
		t.Fatal(err)
	}
	// Proposals from a converging outer loop differ from the previous batch
	// in the last digits only; they must extend the moment chains at the
	// cached factorizations instead of failing as dependent directions.
	if err := ib.AddShifts([]complex128{1 + 1e-9, 2 - 1e-9}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if ib.Order() != 8 {
		t.Errorf("order %d after growth, want 8", ib.Order())
	}
	if d := orthoError(ib.V(), nil); d > 1e-8 {
		t.Errorf("orthonormality defect %v after snapped growth", d)
	}
	for _, s := range ib.Shifts() {
		if s != 1 && s != 2 {
			t.Errorf("shift %v was not snapped to its cached value", s)
		}
	}
}

func TestIncrementalBasisGalerkinSharesV(t *testing.T) {
	e, a, b, c := testMatrices()
	sys, err := ssm.New(e, a, b, c, nil)
	if err != nil {
		t.Fatal(err)
	}
	ib := NewIncrementalBasis(sys, false, 0)
	if err := ib.AddShifts([]complex128{2, 5}, nil, nil); err != nil {
		t.Fatal(err)
	}
	v, w := ib.V(), ib.W()
	vr, vc := v.Dims()
	wr, wc := w.Dims()
	if vr != wr || vc != wc {
		t.Fatal("Galerkin mode must return W with the shape of V")
	}
	for i := 0; i < vr; i++ {
		for j := 0; j < vc; j++ {
			if v.At(i, j) != w.At(i, j) {
				t.Fatal("Galerkin mode must return W = V")
			}
		}
	}
}
