package mor

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/frankldm/sssMOR/krylov"
	"github.com/frankldm/sssMOR/ssm"
)

// ReduceFunc is the inner shift-search reduction of the model-function loop:
// given a (cheap) system and a shift vector, it returns a reduced system and
// the shift proposal it converged to.
type ReduceFunc func(sys *ssm.LinearSystem, s0 []complex128) (sysr *ssm.LinearSystem, s0new []complex128, err error)

// ModelFctOptions configures the model-function outer loop.
type ModelFctOptions struct {
	// QM0 is the initial model-function order; shifts beyond the caller's
	// s0 are filled with zeros. Zero means len(s0)+2.
	QM0 int
	// MaxIter is the outer iteration budget. Zero means 8.
	MaxIter int
	// Tol is the stopping tolerance for the shift-set distance between
	// consecutive outer iterations. Zero means 1e-3.
	Tol         float64
	CplxPairTol float64
	Logger      logr.Logger
}

func (o ModelFctOptions) withDefaults(q0 int) ModelFctOptions {
	if o.QM0 <= 0 {
		o.QM0 = q0 + 2
	}
	if o.QM0 < q0 {
		o.QM0 = q0
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 8
	}
	if o.Tol <= 0 {
		o.Tol = 1e-3
	}
	if o.CplxPairTol <= 0 {
		o.CplxPairTol = krylov.DefaultPairTol
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	return o
}

// ModelFctResult is the outcome of a model-function accelerated reduction.
type ModelFctResult struct {
	Sysr   *ssm.LinearSystem
	Shifts []complex128
	// ModelOrder is the order the model function had grown to.
	ModelOrder      int
	OuterIterations int
	Converged       bool
	Warning         string
}

// ModelFctMor wraps an inner shift-search reduction with the model-function
// outer loop: the inner reduction runs on a cheap Krylov surrogate built from
// the union of all shifts seen so far, which only grows until the shift
// proposals settle. The one reduction of the full system happens when the
// surrogate is first seeded (and once more only if the surrogate would reach
// full order).
func ModelFctMor(sys *ssm.LinearSystem, reduce ReduceFunc, s0 []complex128, opts ModelFctOptions) (*ModelFctResult, error) {
	if sys == nil {
		return nil, errors.New("mor: nil system")
	}
	if reduce == nil {
		return nil, errors.New("mor: nil inner reduction")
	}
	s0, err := krylov.CplxPair(s0, opts.CplxPairTol)
	if err != nil {
		return nil, fmt.Errorf("mor: initial shifts: %w", err)
	}
	opts = opts.withDefaults(len(s0))
	log := opts.Logger

	if opts.QM0 >= sys.Order() {
		// The surrogate would not be cheaper than the truth; reduce
		// directly.
		sysr, s0new, err := reduce(sys, s0)
		if err != nil {
			return nil, err
		}
		return &ModelFctResult{
			Sysr: sysr, Shifts: s0new,
			ModelOrder: sys.Order(), OuterIterations: 0, Converged: true,
		}, nil
	}

	// Seed the model function: the caller's shifts plus zero shifts up to
	// the initial order. This is the one-time expensive cost on the full
	// system.
	s0m := clone(s0)
	for len(s0m) < opts.QM0 {
		s0m = append(s0m, 0)
	}
	ib := krylov.NewIncrementalBasis(sys, true, opts.CplxPairTol)
	if err := ib.AddShifts(s0m, nil, nil); err != nil {
		return nil, fmt.Errorf("mor: seeding model function: %w", err)
	}

	res := &ModelFctResult{}
	s0cur := s0
	for k := 1; k <= opts.MaxIter; k++ {
		model, err := Project(sys, ib.V(), ib.W())
		if err != nil {
			return nil, fmt.Errorf("mor: model function update: %w", err)
		}
		sysr, s0new, err := reduce(model, s0cur)
		if err != nil {
			return nil, fmt.Errorf("mor: inner reduction on model function of order %d: %w", ib.Order(), err)
		}

		dist := krylov.ShiftDistance(s0new, s0cur)
		log.V(1).Info("model function iteration", "k", k, "modelOrder", ib.Order(), "shiftDistance", dist)

		res.Sysr = sysr
		res.Shifts = s0new
		res.ModelOrder = ib.Order()
		res.OuterIterations = k

		if dist <= opts.Tol {
			res.Converged = true
			log.Info("model function converged", "iterations", k, "modelOrder", ib.Order())
			return res, nil
		}

		if ib.Order()+len(s0new) >= sys.Order() {
			// Growing further would meet the true order; fall back to
			// one direct reduction of the truth and stop regardless of
			// the convergence test.
			sysr, s0fin, err := reduce(sys, s0new)
			if err != nil {
				return nil, fmt.Errorf("mor: final direct reduction: %w", err)
			}
			res.Sysr = sysr
			res.Shifts = s0fin
			res.ModelOrder = sys.Order()
			res.Warning = "model function reached full order; reduced the full system directly"
			log.Info(res.Warning)
			return res, nil
		}

		if err := ib.AddShifts(s0new, nil, nil); err != nil {
			return nil, fmt.Errorf("mor: growing model function: %w", err)
		}
		s0cur = s0new
	}

	res.Warning = fmt.Sprintf("model function loop has not converged after %d outer iterations", opts.MaxIter)
	log.Info(res.Warning)
	return res, nil
}

// CirkaOptions configures Cirka: the model-function loop with IRKA bound as
// the inner reduction.
type CirkaOptions struct {
	IRKA     IRKAOptions
	ModelFct ModelFctOptions
}

// Cirka is the confined IRKA: IRKA accelerated by the model-function outer
// loop. Compared with plain ModelFctMor it defaults to a tighter tolerance
// (1e-6) and a larger outer budget (20).
func Cirka(sys *ssm.LinearSystem, s0 []complex128, opts CirkaOptions) (*ModelFctResult, error) {
	if opts.ModelFct.MaxIter <= 0 {
		opts.ModelFct.MaxIter = 20
	}
	if opts.ModelFct.Tol <= 0 {
		opts.ModelFct.Tol = 1e-6
	}
	irkaOpts := opts.IRKA
	reduce := func(model *ssm.LinearSystem, s0 []complex128) (*ssm.LinearSystem, []complex128, error) {
		res, err := IRKA(model, s0, irkaOpts)
		if err != nil {
			return nil, nil, err
		}
		return res.Sysr, res.Shifts, nil
	}
	return ModelFctMor(sys, reduce, s0, opts.ModelFct)
}
