package mor

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/krylov"
	"github.com/frankldm/sssMOR/ssm"
)

// StopCrit selects the IRKA stopping criterion.
type StopCrit int

const (
	// StopCombAny stops when either the shift criterion or the reduced
	// system criterion holds. Default.
	StopCombAny StopCrit = iota
	// StopS0 stops on the relative L1 change of the shift vector,
	// normalized by the reduced order.
	StopS0
	// StopSysr stops on the relative H2 distance between consecutive
	// reduced systems; it only evaluates when both iterates are stable.
	StopSysr
	// StopCombAll requires both criteria.
	StopCombAll
)

// IRKAOptions configures the fixed-point iteration. The zero value selects
// all defaults.
type IRKAOptions struct {
	// MaxIter is the iteration budget. Zero means 50.
	MaxIter int
	// Epsilon is the stopping tolerance. Zero means 1e-3.
	Epsilon  float64
	StopCrit StopCrit
	// Stabilize forces every updated shift into the closed right half
	// plane (the mirror image of a stable pole), guarding against
	// unstable intermediate reduced models.
	Stabilize bool
	// CplxPairTol decides near-real eigenvalues during conjugate
	// re-pairing. Zero means 1e-6.
	CplxPairTol float64
	// Logger receives per-iteration traces. The zero value discards.
	Logger logr.Logger

	RK RKOptions
}

func (o IRKAOptions) withDefaults() IRKAOptions {
	if o.MaxIter <= 0 {
		o.MaxIter = 50
	}
	if o.Epsilon <= 0 {
		o.Epsilon = 1e-3
	}
	if o.CplxPairTol <= 0 {
		o.CplxPairTol = krylov.DefaultPairTol
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	o.RK.CplxPairTol = o.CplxPairTol
	return o
}

// IRKAResult carries the outcome of an IRKA run. Shifts is the vector that
// produced Sysr, i.e. the fixed point when Converged is set, not the mirrored
// eigenvalues computed after it. Non-convergence is not an error: the last
// iterate is returned with Converged unset and Warning describing the budget
// exhaustion.
type IRKAResult struct {
	Sysr *ssm.LinearSystem
	V, W *mat.Dense
	// Shifts is the pre-update shift vector of the final iteration.
	Shifts []complex128
	// Trajectory records the shift vector of every iteration, starting
	// with the canonicalized initial shifts and ending with the last
	// update.
	Trajectory [][]complex128
	Converged  bool
	Iterations int
	Warning    string
}

// IRKA searches for locally H2-optimal interpolation points by iterating
// Hermite RK reductions with the shifts set to the mirrored eigenvalues of
// the reduced pencil, until the fixed point is reached or the budget is
// exhausted.
func IRKA(sys *ssm.LinearSystem, s0 []complex128, opts IRKAOptions) (*IRKAResult, error) {
	if sys == nil {
		return nil, errors.New("mor: nil system")
	}
	opts = opts.withDefaults()
	log := opts.Logger

	s0, err := krylov.CplxPair(s0, opts.CplxPairTol)
	if err != nil {
		return nil, fmt.Errorf("mor: initial shifts: %w", err)
	}

	res := &IRKAResult{Trajectory: [][]complex128{clone(s0)}}
	var sysrOld *ssm.LinearSystem

	for k := 1; k <= opts.MaxIter; k++ {
		red, err := RK(sys, RKRequest{InputShifts: s0, OutputShifts: s0}, opts.RK)
		if err != nil {
			return nil, fmt.Errorf("mor: IRKA iteration %d: %w", k, err)
		}

		s0new, err := mirroredShifts(red.Sysr, opts)
		if err != nil {
			return nil, fmt.Errorf("mor: IRKA iteration %d: %w", k, err)
		}

		critS0 := shiftChange(s0new, s0)
		critSysr := math.Inf(1)
		if opts.StopCrit != StopS0 && sysrOld != nil {
			if d := red.Sysr.H2Distance(sysrOld); !math.IsInf(d, 0) {
				if nrm := red.Sysr.H2Norm(); nrm > 0 && !math.IsInf(nrm, 0) {
					critSysr = d / nrm
				}
			}
		}
		log.V(1).Info("irka iteration", "k", k, "critS0", critS0, "critSysr", critSysr)

		res.Sysr = red.Sysr
		res.V = red.V
		res.W = red.W
		res.Shifts = clone(s0)
		res.Iterations = k
		res.Trajectory = append(res.Trajectory, clone(s0new))

		if stopSatisfied(opts.StopCrit, critS0 <= opts.Epsilon, critSysr <= opts.Epsilon) {
			res.Converged = true
			log.Info("irka converged", "iterations", k, "order", len(s0))
			return res, nil
		}
		sysrOld = red.Sysr
		s0 = s0new
	}

	res.Warning = fmt.Sprintf("IRKA has not converged after %d steps", opts.MaxIter)
	log.Info(res.Warning)
	return res, nil
}

// mirroredShifts computes the next shift vector: the negated eigenvalues of
// the reduced pencil, NaN replaced by zero, canonically re-paired and, under
// Stabilize, forced into the closed right half plane.
func mirroredShifts(sysr *ssm.LinearSystem, opts IRKAOptions) ([]complex128, error) {
	poles, err := sysr.Poles()
	if err != nil {
		return nil, err
	}
	s0 := make([]complex128, len(poles))
	for i, p := range poles {
		if math.IsNaN(real(p)) || math.IsNaN(imag(p)) {
			p = 0
		}
		s0[i] = -p
	}
	if opts.Stabilize {
		for i, s := range s0 {
			if real(s) < 0 {
				s0[i] = -s
			}
		}
	}
	return krylov.CplxPair(s0, opts.CplxPairTol)
}

// shiftChange is the elementwise relative L1 change between consecutive
// shift vectors, normalized by the reduced order.
func shiftChange(s0new, s0old []complex128) float64 {
	if len(s0new) != len(s0old) {
		return math.Inf(1)
	}
	var sum float64
	for i := range s0new {
		d := cmplx.Abs(s0new[i] - s0old[i])
		if ref := cmplx.Abs(s0old[i]); ref > 0 {
			d /= ref
		}
		sum += d
	}
	return sum / float64(len(s0new))
}

func stopSatisfied(crit StopCrit, s0OK, sysrOK bool) bool {
	switch crit {
	case StopS0:
		return s0OK
	case StopSysr:
		return sysrOK
	case StopCombAll:
		return s0OK && sysrOK
	default:
		return s0OK || sysrOK
	}
}

func clone(s []complex128) []complex128 {
	return append([]complex128(nil), s...)
}
