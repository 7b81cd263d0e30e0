// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pca computes principal components from the SVD of the Gram matrix AᵗA/n.
// Rows are used as given, callers center them if needed.
package pca

import (
	"math"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

type Model struct {
	Eigenvectors *mat.Dense // d×k, one component per column
	StdDev       []float64
}

func Fit(rows [][]float64, k int) (*Model, error) {
	n := len(rows)
	if n == 0 {
		return nil, errors.New("no rows to fit")
	}
	d := len(rows[0])
	if k < 1 || k > d {
		return nil, errors.NotValidf("k = %d for %d columns", k, d)
	}
	a := mat.NewDense(n, d, nil)
	for i, row := range rows {
		if len(row) != d {
			return nil, errors.Errorf("row %d has %d columns, expected %d", i, len(row), d)
		}
		a.SetRow(i, row)
	}
	var gram mat.SymDense
	gram.SymOuterK(1/float64(n), a.T())

	var svd mat.SVD
	if ok := svd.Factorize(&gram, mat.SVDThin); !ok {
		return nil, errors.New("failed to factorize gram matrix")
	}
	var v mat.Dense
	svd.VTo(&v)
	values := svd.Values(nil)

	m := &Model{
		Eigenvectors: mat.NewDense(d, k, nil),
		StdDev:       make([]float64, k),
	}
	m.Eigenvectors.Copy(v.Slice(0, d, 0, k))
	for i := 0; i < k; i++ {
		m.StdDev[i] = math.Sqrt(values[i])
	}
	return m, nil
}

// Project returns the coordinates of row in the component basis.
func (m *Model) Project(row []float64) []float64 {
	var coord mat.VecDense
	coord.MulVec(m.Eigenvectors.T(), mat.NewVecDense(len(row), row))
	return coord.RawVector().Data
}
