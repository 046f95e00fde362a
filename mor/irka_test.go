package mor

import (
	"testing"

	"github.com/frankldm/sssMOR/krylov"
	"github.com/frankldm/sssMOR/ssm"
)

func TestIRKAConvergesOnRCLadder(t *testing.T) {
	sys := ssm.NewRCLadder(30, 1, 1)
	s0 := []complex128{0.5, 1, 1.5, 2}

	res, err := IRKA(sys, s0, IRKAOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Fatalf("IRKA did not converge: %s", res.Warning)
	}
	if res.Sysr.Order() != len(s0) {
		t.Errorf("reduced order %d, want %d", res.Sysr.Order(), len(s0))
	}
	if !res.Sysr.IsStable() {
		t.Error("converged reduced model of a symmetric RC ladder must be stable")
	}
	// Fixed-point shifts are mirror images of stable poles.
	for _, s := range res.Shifts {
		if real(s) <= 0 {
			t.Errorf("fixed-point shift %v not in the open right half plane", s)
		}
	}
	if len(res.Trajectory) != res.Iterations+1 {
		t.Errorf("trajectory length %d for %d iterations", len(res.Trajectory), res.Iterations)
	}
}

func TestIRKAFixedPointProperty(t *testing.T) {
	sys := ssm.NewRCLadder(30, 1, 1)
	s0 := []complex128{0.5, 1, 1.5, 2}

	res, err := IRKA(sys, s0, IRKAOptions{StopCrit: StopS0, Epsilon: 1e-6, MaxIter: 200})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Fatalf("IRKA did not converge: %s", res.Warning)
	}

	// One more Hermite reduction at the returned shifts must reproduce them
	// as mirrored eigenvalues.
	red, err := RK(sys, RKRequest{InputShifts: res.Shifts, OutputShifts: res.Shifts}, RKOptions{})
	if err != nil {
		t.Fatal(err)
	}
	mirrored, err := mirroredShifts(red.Sysr, IRKAOptions{}.withDefaults())
	if err != nil {
		t.Fatal(err)
	}
	if d := krylov.ShiftDistance(mirrored, res.Shifts); d > 1e-4 {
		t.Errorf("fixed-point defect %v", d)
	}
}

func TestIRKABudgetExhaustionIsAWarning(t *testing.T) {
	sys := ssm.NewRCLadder(30, 1, 1)
	s0 := []complex128{100, 200}

	res, err := IRKA(sys, s0, IRKAOptions{MaxIter: 1, Epsilon: 1e-14})
	if err != nil {
		t.Fatal(err)
	}
	if res.Converged {
		t.Error("one iteration from far-off shifts must not converge")
	}
	if res.Warning == "" {
		t.Error("budget exhaustion must set a warning")
	}
	if res.Sysr == nil || res.Iterations != 1 {
		t.Error("the last iterate must still be returned")
	}
}

func TestIRKARejectsNilSystem(t *testing.T) {
	if _, err := IRKA(nil, []complex128{1}, IRKAOptions{}); err == nil {
		t.Error("nil system must fail")
	}
}

func TestShiftChange(t *testing.T) {
	if d := shiftChange([]complex128{1, 2}, []complex128{1, 2}); d != 0 {
		t.Errorf("no change reported as %v", d)
	}
	if d := shiftChange([]complex128{2}, []complex128{1}); d != 1 {
		t.Errorf("relative change = %v, want 1", d)
	}
}
