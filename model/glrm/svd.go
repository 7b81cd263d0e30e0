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

package glrm

import (
	"math"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

// RecoverSVD returns the singular values and right singular vectors (d×k) of XY without
// forming the product:
//
//	X'X/n = LL', R = L'√n
//	Y' = ZS
//	RS' = UΣV'
//
// so that XY = (QU)Σ(ZV)'.
func RecoverSVD(x *mat.Dense, y *Archetypes, maxCholesky int) ([]float64, *mat.Dense, error) {
	n, k := x.Dims()
	if k != y.Rank() {
		return nil, nil, errors.Errorf("X has %d columns, Y has rank %d", k, y.Rank())
	}
	d := y.NumFeatures()
	if d < k {
		return nil, nil, errors.Errorf("Y has %d features, fewer than rank %d", d, k)
	}

	var gram mat.SymDense
	gram.SymOuterK(1/float64(n), x.T())
	factor, err := RegularizedCholesky(&gram, maxCholesky)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	var r mat.Dense
	r.Scale(math.Sqrt(float64(n)), factor.Lower().T())

	var qr mat.QR
	qr.Factorize(y.Y(true))
	var q, s mat.Dense
	qr.QTo(&q)
	qr.RTo(&s)
	z := q.Slice(0, d, 0, k)
	s1 := s.Slice(0, k, 0, k)

	var m mat.Dense
	m.Mul(&r, s1.T())
	var svd mat.SVD
	if ok := svd.Factorize(&m, mat.SVDThin); !ok {
		return nil, nil, errors.New("failed to factorize RS'")
	}
	var v mat.Dense
	svd.VTo(&v)
	eigenvectors := mat.NewDense(d, k, nil)
	eigenvectors.Mul(z, &v)
	return svd.Values(nil), eigenvectors, nil
}
