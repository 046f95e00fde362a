package mor

import (
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/ssm"
)

// diagSISO is a stable SISO system with poles -1..-n whose transfer function
// sum 1/(s+k) is easy to evaluate by hand.
func diagSISO(t *testing.T, n int) *ssm.LinearSystem {
	t.Helper()
	a := mat.NewDense(n, n, nil)
	b := mat.NewDense(n, 1, nil)
	c := mat.NewDense(1, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, -float64(i+1))
		b.Set(i, 0, 1)
		c.Set(0, i, 1)
	}
	sys, err := ssm.New(nil, a, b, c, nil)
	if err != nil {
		t.Fatal(err)
	}
	return sys
}

func transferAt(t *testing.T, sys *ssm.LinearSystem, s complex128) complex128 {
	t.Helper()
	h, err := sys.TransferFunctionAt(s)
	if err != nil {
		t.Fatal(err)
	}
	return h.At(0, 0)
}

func TestRKMatchesValueAtShift(t *testing.T) {
	sys := diagSISO(t, 6)
	red, err := RK(sys, RKRequest{InputShifts: []complex128{0}}, RKOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if red.Sysr.Order() != 1 {
		t.Fatalf("reduced order %d, want 1", red.Sysr.Order())
	}
	got := transferAt(t, red.Sysr, 0)
	want := transferAt(t, sys, 0)
	if cmplx.Abs(got-want) > 1e-8 {
		t.Errorf("H_r(0) = %v, want %v", got, want)
	}
}

func TestRKMatchesHigherMoments(t *testing.T) {
	sys := diagSISO(t, 6)
	// Repeated shift: match H(0) and H'(0).
	red, err := RK(sys, RKRequest{InputShifts: []complex128{0, 0}}, RKOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cmplx.Abs(transferAt(t, red.Sysr, 0)-transferAt(t, sys, 0)) > 1e-8 {
		t.Error("repeated shift does not match the value")
	}
	dr, err := red.Sysr.TransferFunctionDerivAt(0)
	if err != nil {
		t.Fatal(err)
	}
	df, err := sys.TransferFunctionDerivAt(0)
	if err != nil {
		t.Fatal(err)
	}
	if cmplx.Abs(dr.At(0, 0)-df.At(0, 0)) > 1e-8 {
		t.Errorf("H_r'(0) = %v, want %v", dr.At(0, 0), df.At(0, 0))
	}
}

func TestRKHermiteMatchesValueAndDerivative(t *testing.T) {
	sys := diagSISO(t, 6)
	s0 := []complex128{1, 2}
	red, err := RK(sys, RKRequest{InputShifts: s0, OutputShifts: s0}, RKOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range s0 {
		if d := cmplx.Abs(transferAt(t, red.Sysr, s) - transferAt(t, sys, s)); d > 1e-8 {
			t.Errorf("value defect %v at shift %v", d, s)
		}
		dr, err := red.Sysr.TransferFunctionDerivAt(s)
		if err != nil {
			t.Fatal(err)
		}
		df, err := sys.TransferFunctionDerivAt(s)
		if err != nil {
			t.Fatal(err)
		}
		if d := cmplx.Abs(dr.At(0, 0) - df.At(0, 0)); d > 1e-8 {
			t.Errorf("derivative defect %v at shift %v", d, s)
		}
	}
}

func TestRKBlockOrderMIMO(t *testing.T) {
	// Two inputs, block Krylov: every shift contributes m columns.
	n := 8
	a := mat.NewDense(n, n, nil)
	b := mat.NewDense(n, 2, nil)
	c := mat.NewDense(2, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, -float64(i+1))
		b.Set(i, 0, 1)
		b.Set(i, 1, float64(i%2))
		c.Set(0, i, 1)
		c.Set(1, i, float64((i+1)%2))
	}
	sys, err := ssm.New(nil, a, b, c, nil)
	if err != nil {
		t.Fatal(err)
	}
	red, err := RK(sys, RKRequest{InputShifts: []complex128{1, 2}}, RKOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := red.Sysr.Order(); got != 4 {
		t.Errorf("block reduction order %d, want 4 (2 shifts, 2 inputs)", got)
	}
}

func TestRKFullOrderRoundTrip(t *testing.T) {
	sys := diagSISO(t, 4)
	// q = n: the projection is a change of basis, the transfer function is
	// unchanged.
	red, err := RK(sys, RKRequest{InputShifts: []complex128{1, 2, 3, 4}}, RKOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if red.Sysr.Order() != sys.Order() {
		t.Fatalf("round trip changed the order to %d", red.Sysr.Order())
	}
	for _, s := range []complex128{0, complex(0, 1), complex(2, 3)} {
		if d := cmplx.Abs(transferAt(t, red.Sysr, s) - transferAt(t, sys, s)); d > 1e-8 {
			t.Errorf("round-trip transfer defect %v at %v", d, s)
		}
	}
}

func TestRKTwoSidedDistinctShiftSets(t *testing.T) {
	sys := diagSISO(t, 6)
	red, err := RK(sys, RKRequest{
		InputShifts:  []complex128{1, 2},
		OutputShifts: []complex128{3, 4},
	}, RKOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if red.Sysr.Order() != 2 {
		t.Fatalf("reduced order %d, want 2", red.Sysr.Order())
	}
	// Input shifts interpolate through V, output shifts through W.
	for _, s := range []complex128{1, 2, 3, 4} {
		if d := cmplx.Abs(transferAt(t, red.Sysr, s) - transferAt(t, sys, s)); d > 1e-6 {
			t.Errorf("interpolation defect %v at %v", d, s)
		}
	}
}

func TestRKRejectsBadInput(t *testing.T) {
	sys := diagSISO(t, 4)
	if _, err := RK(nil, RKRequest{InputShifts: []complex128{1}}, RKOptions{}); err == nil {
		t.Error("nil system must fail")
	}
	if _, err := RK(sys, RKRequest{}, RKOptions{}); err == nil {
		t.Error("empty shift vector must fail")
	}
	if _, err := RK(sys, RKRequest{InputShifts: []complex128{complex(1, 2)}}, RKOptions{}); err == nil {
		t.Error("unpaired complex shift must fail")
	}
}
