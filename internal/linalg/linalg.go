// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package linalg holds the fixed-size vector and matrix helpers used by the
// fusion filters. Dimensions are part of the types, so shape mismatches do
// not compile; the remaining preconditions panic.
package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// N is the Kalman state dimension.
const N = 6

// Vec6 is a 6-element column vector.
type Vec6 [N]float64

// Mat6 is a row-major 6x6 matrix.
type Mat6 [N][N]float64

// Identity6 returns the 6x6 identity.
func Identity6() Mat6 {
	var m Mat6
	for i := 0; i < N; i++ {
		m[i][i] = 1
	}
	return m
}

// Diag6 returns a diagonal matrix with the given entries.
func Diag6(d Vec6) Mat6 {
	var m Mat6
	for i := 0; i < N; i++ {
		m[i][i] = d[i]
	}
	return m
}

// MulVec returns m·v.
func (m Mat6) MulVec(v Vec6) Vec6 {
	var out Vec6
	for i := 0; i < N; i++ {
		var sum float64
		for j := 0; j < N; j++ {
			sum += m[i][j] * v[j]
		}
		out[i] = sum
	}
	return out
}

// Mul returns m·o.
func (m Mat6) Mul(o Mat6) Mat6 {
	var out Mat6
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			var sum float64
			for k := 0; k < N; k++ {
				sum += m[i][k] * o[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// T returns the transpose of m.
func (m Mat6) T() Mat6 {
	var out Mat6
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

// Add returns m+o.
func (m Mat6) Add(o Mat6) Mat6 {
	var out Mat6
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			out[i][j] = m[i][j] + o[i][j]
		}
	}
	return out
}

// Sub returns m-o.
func (m Mat6) Sub(o Mat6) Mat6 {
	var out Mat6
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			out[i][j] = m[i][j] - o[i][j]
		}
	}
	return out
}

// Add returns v+o.
func (v Vec6) Add(o Vec6) Vec6 {
	var out Vec6
	for i := 0; i < N; i++ {
		out[i] = v[i] + o[i]
	}
	return out
}

// Sub returns v-o.
func (v Vec6) Sub(o Vec6) Vec6 {
	var out Vec6
	for i := 0; i < N; i++ {
		out[i] = v[i] - o[i]
	}
	return out
}

// InverseDiagonal inverts m by taking the reciprocal of each diagonal entry
// and ignoring everything off the diagonal. The result is only the true
// inverse when m is diagonal. A zero diagonal entry panics.
func InverseDiagonal(m Mat6) Mat6 {
	var out Mat6
	for i := 0; i < N; i++ {
		if m[i][i] == 0 {
			panic(fmt.Sprintf("linalg: zero diagonal entry at %d", i))
		}
		out[i][i] = 1 / m[i][i]
	}
	return out
}

// Inverse computes the full inverse of m with gonum's LU-based solver.
func Inverse(m Mat6) (Mat6, error) {
	var inv mat.Dense
	if err := inv.Inverse(m.Dense()); err != nil {
		return Mat6{}, fmt.Errorf("linalg: inverse: %w", err)
	}
	return FromMatrix(&inv), nil
}

// Dense copies m into a gonum matrix.
func (m Mat6) Dense() *mat.Dense {
	data := make([]float64, 0, N*N)
	for i := 0; i < N; i++ {
		data = append(data, m[i][:]...)
	}
	return mat.NewDense(N, N, data)
}

// FromMatrix copies a 6x6 gonum matrix into a Mat6. Any other shape panics.
func FromMatrix(a mat.Matrix) Mat6 {
	r, c := a.Dims()
	if r != N || c != N {
		panic(fmt.Sprintf("linalg: expected %dx%d matrix, got %dx%d", N, N, r, c))
	}
	var out Mat6
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			out[i][j] = a.At(i, j)
		}
	}
	return out
}

// IsFinite reports whether every entry of v is a finite number.
func (v Vec6) IsFinite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
