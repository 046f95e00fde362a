// Package gonumext collects small extensions to gonum's mat package that the
// reduction code needs in several places.
package gonumext

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Identity returns the dense n by n identity matrix.
func Identity(n int) *mat.Dense {
	id := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		id.Set(i, i, 1)
	}
	return id
}

// HasNaNOrInf checks if there are any NaN or Inf entries in matrix.
func HasNaNOrInf(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}
