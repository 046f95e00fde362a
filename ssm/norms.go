package ssm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/frankldm/sssMOR/gonumext"
)

// H2Norm computes the H2 norm of the system via the controllability Gramian:
//
//	||G||_2^2 = trace(C P C^T),  A P E^T + E P A^T + B B^T = 0.
//
// The norm is +Inf for unstable systems and for systems with nonzero
// feedthrough.
func (sys *LinearSystem) H2Norm() float64 {
	a, b, err := sys.standardForm()
	if err != nil || !sys.IsStable() {
		return math.Inf(1)
	}
	if hasNonzero(sys.D) {
		return math.Inf(1)
	}
	return gramianNorm(a, b, sys.C)
}

// H2Distance computes the H2 norm of the difference system sys - other. Both
// systems must share input and output dimensions. The distance is +Inf when
// either system is unstable or the feedthroughs differ.
func (sys *LinearSystem) H2Distance(other *LinearSystem) float64 {
	if sys.Inputs() != other.Inputs() || sys.Outputs() != other.Outputs() {
		return math.Inf(1)
	}
	if !sys.IsStable() || !other.IsStable() {
		return math.Inf(1)
	}
	var dd mat.Dense
	dd.Sub(sys.D, other.D)
	if hasNonzero(&dd) {
		return math.Inf(1)
	}

	a1, b1, err := sys.standardForm()
	if err != nil {
		return math.Inf(1)
	}
	a2, b2, err := other.standardForm()
	if err != nil {
		return math.Inf(1)
	}

	n1 := sys.Order()
	n2 := other.Order()
	m := sys.Inputs()
	p := sys.Outputs()

	a := mat.NewDense(n1+n2, n1+n2, nil)
	a.Slice(0, n1, 0, n1).(*mat.Dense).Copy(a1)
	a.Slice(n1, n1+n2, n1, n1+n2).(*mat.Dense).Copy(a2)

	b := mat.NewDense(n1+n2, m, nil)
	b.Slice(0, n1, 0, m).(*mat.Dense).Copy(b1)
	b.Slice(n1, n1+n2, 0, m).(*mat.Dense).Copy(b2)

	c := mat.NewDense(p, n1+n2, nil)
	c.Slice(0, p, 0, n1).(*mat.Dense).Copy(sys.C)
	var negC2 mat.Dense
	negC2.Scale(-1, other.C)
	c.Slice(0, p, n1, n1+n2).(*mat.Dense).Copy(&negC2)

	return gramianNorm(a, b, c)
}

// standardForm returns (E^-1 A, E^-1 B), eliminating the descriptor matrix.
func (sys *LinearSystem) standardForm() (*mat.Dense, *mat.Dense, error) {
	if !sys.descriptor {
		return sys.A, sys.B, nil
	}
	var lu mat.LU
	lu.Factorize(sys.E)
	var a, b mat.Dense
	if err := lu.SolveTo(&a, false, sys.A); err != nil {
		return nil, nil, err
	}
	if err := lu.SolveTo(&b, false, sys.B); err != nil {
		return nil, nil, err
	}
	return &a, &b, nil
}

func gramianNorm(a, b mat.Matrix, c mat.Matrix) float64 {
	var q mat.Dense
	q.Mul(b, b.T())
	p, err := Lyap(a, &q)
	if err != nil || gonumext.HasNaNOrInf(p) {
		return math.Inf(1)
	}
	var cp, cpc mat.Dense
	cp.Mul(c, p)
	cpc.Mul(&cp, c.T())
	tr := mat.Trace(&cpc)
	if tr < 0 {
		tr = 0
	}
	return math.Sqrt(tr)
}

func hasNonzero(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return true
			}
		}
	}
	return false
}
