package mor

import (
	"testing"

	"github.com/frankldm/sssMOR/krylov"
	"github.com/frankldm/sssMOR/ssm"
)

func TestCirkaMatchesDirectIRKA(t *testing.T) {
	sys := ssm.NewRCLadder(40, 1, 1)
	s0 := []complex128{0.5, 2}

	direct, err := IRKA(sys, s0, IRKAOptions{Epsilon: 1e-6, MaxIter: 200})
	if err != nil {
		t.Fatal(err)
	}
	if !direct.Converged {
		t.Fatalf("direct IRKA did not converge: %s", direct.Warning)
	}

	accel, err := Cirka(sys, s0, CirkaOptions{
		IRKA: IRKAOptions{Epsilon: 1e-6, MaxIter: 200},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !accel.Converged {
		t.Fatalf("Cirka did not converge: %s", accel.Warning)
	}
	if accel.ModelOrder >= sys.Order() {
		t.Errorf("model function reached order %d of a %d-state system", accel.ModelOrder, sys.Order())
	}
	if d := krylov.ShiftDistance(accel.Shifts, direct.Shifts); d > 1e-3 {
		t.Errorf("Cirka and IRKA disagree on the fixed point by %v", d)
	}
	if d := accel.Sysr.H2Distance(direct.Sysr); d > 1e-3*direct.Sysr.H2Norm() {
		t.Errorf("Cirka and IRKA reduced models differ by %v in H2", d)
	}
}

func TestModelFctMorSmallSystemReducesDirectly(t *testing.T) {
	sys := diagSISO(t, 4)
	calls := 0
	reduce := func(model *ssm.LinearSystem, s0 []complex128) (*ssm.LinearSystem, []complex128, error) {
		calls++
		if model.Order() != sys.Order() {
			t.Errorf("expected a direct reduction of the full order-%d system, got order %d", sys.Order(), model.Order())
		}
		res, err := RK(model, RKRequest{InputShifts: s0, OutputShifts: s0}, RKOptions{})
		if err != nil {
			return nil, nil, err
		}
		return res.Sysr, s0, nil
	}

	// QM0 defaults to len(s0)+2 = 4 = order: the surrogate would not be
	// cheaper, so the loop must reduce the truth directly, once.
	res, err := ModelFctMor(sys, reduce, []complex128{1, 2}, ModelFctOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("inner reduction ran %d times, want 1", calls)
	}
	if !res.Converged || res.OuterIterations != 0 {
		t.Error("direct reduction must be reported as converged with zero outer iterations")
	}
	if res.ModelOrder != sys.Order() {
		t.Errorf("model order %d, want the full order %d", res.ModelOrder, sys.Order())
	}
}

func TestModelFctMorRunsInnerLoopOnSurrogate(t *testing.T) {
	sys := ssm.NewRCLadder(50, 1, 1)
	var modelOrders []int
	reduce := func(model *ssm.LinearSystem, s0 []complex128) (*ssm.LinearSystem, []complex128, error) {
		modelOrders = append(modelOrders, model.Order())
		res, err := IRKA(model, s0, IRKAOptions{Epsilon: 1e-6, MaxIter: 100})
		if err != nil {
			return nil, nil, err
		}
		return res.Sysr, res.Shifts, nil
	}

	res, err := ModelFctMor(sys, reduce, []complex128{0.5, 2}, ModelFctOptions{Tol: 1e-6, MaxIter: 20})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Fatalf("model-function loop did not converge: %s", res.Warning)
	}
	for _, q := range modelOrders {
		if q >= sys.Order() {
			t.Errorf("inner reduction ran on order %d, never cheaper than the truth", q)
		}
	}
	if res.ModelOrder >= sys.Order() {
		t.Errorf("final model order %d not below the true order %d", res.ModelOrder, sys.Order())
	}
}

func TestModelFctMorRejectsNilArguments(t *testing.T) {
	sys := diagSISO(t, 4)
	if _, err := ModelFctMor(nil, nil, []complex128{1}, ModelFctOptions{}); err == nil {
		t.Error("nil system must fail")
	}
	if _, err := ModelFctMor(sys, nil, []complex128{1}, ModelFctOptions{}); err == nil {
		t.Error("nil inner reduction must fail")
	}
}
