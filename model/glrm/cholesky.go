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
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNonSPD is returned if a Gram matrix stays indefinite after diagonal loading.
var ErrNonSPD = errors.New("matrix is not symmetric positive definite")

const (
	DefaultMaxCholesky = 10
	initialLoading     = 1e-5
)

// CholeskyFactor is a Cholesky factorization of a possibly loaded Gram matrix.
type CholeskyFactor struct {
	mat.Cholesky
	Loading  float64 // diagonal loading added to the input, 0 if none
	Attempts int     // number of loaded factorizations tried
}

// RegularizedCholesky factorizes gram. If gram is not positive definite, loadings of
// 1e-5, 1e-4, ... are added to its diagonal, one per attempt, up to maxAttempts.
func RegularizedCholesky(gram mat.Symmetric, maxAttempts int) (*CholeskyFactor, error) {
	factor := new(CholeskyFactor)
	if factor.Factorize(gram) {
		return factor, nil
	}
	n := gram.SymmetricDim()
	loaded := mat.NewSymDense(n, nil)
	loading := initialLoading
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		loaded.CopySym(gram)
		for i := 0; i < n; i++ {
			loaded.SetSym(i, i, gram.At(i, i)+loading)
		}
		factor.Attempts = attempt
		if factor.Factorize(loaded) {
			factor.Loading = loading
			return factor, nil
		}
		loading *= 10
	}
	return nil, errors.Annotatef(ErrNonSPD, "%d diagonal loadings tried", maxAttempts)
}

// Lower returns the lower triangular factor L.
func (f *CholeskyFactor) Lower() *mat.TriDense {
	var l mat.TriDense
	f.Cholesky.LTo(&l)
	return &l
}
