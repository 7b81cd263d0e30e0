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
	"sort"
	"strings"

	"github.com/gorse-io/glrm/base"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
)

type RegularizerType string

const (
	RegularizerNone          RegularizerType = "None"
	RegularizerQuadratic     RegularizerType = "Quadratic"
	RegularizerL2            RegularizerType = "L2"
	RegularizerL1            RegularizerType = "L1"
	RegularizerNonNegative   RegularizerType = "NonNegative"
	RegularizerOneSparse     RegularizerType = "OneSparse"
	RegularizerUnitOneSparse RegularizerType = "UnitOneSparse"
	RegularizerSimplex       RegularizerType = "Simplex"
)

var regularizerTypes = []RegularizerType{
	RegularizerNone, RegularizerQuadratic, RegularizerL2, RegularizerL1,
	RegularizerNonNegative, RegularizerOneSparse, RegularizerUnitOneSparse, RegularizerSimplex,
}

func ParseRegularizer(s string) (RegularizerType, error) {
	for _, t := range regularizerTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", errors.NotValidf("regularizer %s", s)
}

const simplexTolerance = 1e-6

// Regularizer is a penalty on a row of X or Y with its proximal operator.
type Regularizer struct {
	Type       RegularizerType
	regularize func(u []float64) float64
	prox       func(u []float64, t float64, rng base.RandomGenerator)
}

func NewRegularizer(t RegularizerType) (*Regularizer, error) {
	r := &Regularizer{Type: t}
	switch t {
	case RegularizerNone:
		r.regularize = func([]float64) float64 { return 0 }
		r.prox = func([]float64, float64, base.RandomGenerator) {}
	case RegularizerQuadratic:
		r.regularize = func(u []float64) float64 { return floats.Dot(u, u) }
		r.prox = func(u []float64, t float64, _ base.RandomGenerator) {
			floats.Scale(1/(1+2*t), u)
		}
	case RegularizerL2:
		r.regularize = func(u []float64) float64 { return floats.Norm(u, 2) }
		r.prox = func(u []float64, t float64, _ base.RandomGenerator) {
			norm := floats.Norm(u, 2)
			if norm == 0 {
				return
			}
			floats.Scale(math.Max(1-t/norm, 0), u)
		}
	case RegularizerL1:
		r.regularize = func(u []float64) float64 { return floats.Norm(u, 1) }
		r.prox = func(u []float64, t float64, _ base.RandomGenerator) {
			for i, v := range u {
				u[i] = sign(v) * math.Max(math.Abs(v)-t, 0)
			}
		}
	case RegularizerNonNegative:
		r.regularize = func(u []float64) float64 {
			for _, v := range u {
				if v < 0 {
					return math.Inf(1)
				}
			}
			return 0
		}
		r.prox = func(u []float64, _ float64, _ base.RandomGenerator) {
			for i, v := range u {
				u[i] = math.Max(v, 0)
			}
		}
	case RegularizerOneSparse:
		r.regularize = func(u []float64) float64 {
			card := 0
			for _, v := range u {
				if v < 0 {
					return math.Inf(1)
				} else if v > 0 {
					card++
				}
			}
			if card == 1 {
				return 0
			}
			return math.Inf(1)
		}
		r.prox = func(u []float64, _ float64, rng base.RandomGenerator) {
			idx := maxIndex(u, rng)
			v := u[idx]
			if v <= 0 {
				v = 1e-6
			}
			for i := range u {
				u[i] = 0
			}
			u[idx] = v
		}
	case RegularizerUnitOneSparse:
		r.regularize = func(u []float64) float64 {
			ones, zeros := 0, 0
			for _, v := range u {
				if v == 1 {
					ones++
				} else if v == 0 {
					zeros++
				}
			}
			if ones == 1 && zeros == len(u)-1 {
				return 0
			}
			return math.Inf(1)
		}
		r.prox = func(u []float64, _ float64, rng base.RandomGenerator) {
			idx := maxIndex(u, rng)
			for i := range u {
				u[i] = 0
			}
			u[idx] = 1
		}
	case RegularizerSimplex:
		r.regularize = func(u []float64) float64 {
			var sum float64
			for _, v := range u {
				if v < 0 {
					return math.Inf(1)
				}
				sum += v
			}
			if math.Abs(sum-1) <= simplexTolerance {
				return 0
			}
			return math.Inf(1)
		}
		r.prox = func(u []float64, _ float64, _ base.RandomGenerator) {
			projectSimplex(u)
		}
	default:
		return nil, errors.NotValidf("regularizer %s", t)
	}
	return r, nil
}

// Regularize returns r(u). Constraint families return +Inf outside the feasible set.
func (r *Regularizer) Regularize(u []float64) float64 {
	return r.regularize(u)
}

// Prox applies the proximal operator with threshold t to u in place.
func (r *Regularizer) Prox(u []float64, t float64, rng base.RandomGenerator) []float64 {
	r.prox(u, t, rng)
	return u
}

// Project maps u onto the feasible set in place. Penalty families leave u unchanged.
func (r *Regularizer) Project(u []float64, rng base.RandomGenerator) []float64 {
	return r.Prox(u, 0, rng)
}

// Smooth reports whether the regularizer admits the closed-form least-squares solution.
func (r *Regularizer) Smooth() bool {
	return r.Type == RegularizerNone || r.Type == RegularizerQuadratic
}

// penalty returns gamma·reg, which is zero whenever gamma is zero.
func penalty(gamma, reg float64) float64 {
	if gamma == 0 {
		return 0
	}
	return gamma * reg
}

// maxIndex returns the index of the largest entry, breaking ties at random.
func maxIndex(u []float64, rng base.RandomGenerator) int {
	idx, ties := 0, 1
	for i := 1; i < len(u); i++ {
		switch {
		case u[i] > u[idx]:
			idx, ties = i, 1
		case u[i] == u[idx]:
			ties++
			if rng.Rand != nil && rng.Intn(ties) == 0 {
				idx = i
			}
		}
	}
	return idx
}

// projectSimplex computes the Euclidean projection onto the probability simplex.
func projectSimplex(u []float64) {
	sorted := make([]float64, len(u))
	copy(sorted, u)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	var cumsum, theta float64
	for j, v := range sorted {
		cumsum += v
		if t := (cumsum - 1) / float64(j+1); v-t > 0 {
			theta = t
		}
	}
	for i, v := range u {
		u[i] = math.Max(v-theta, 0)
	}
}
