// Copyright 2020 gorse Project Authors
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

package base

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type RandomGenerator struct {
	*rand.Rand
}

func NewRandomGenerator(seed int64) RandomGenerator {
	return RandomGenerator{rand.New(rand.NewSource(seed))}
}

// NewPartitionGenerator returns the generator of the partition starting at row start.
// Every partition draws from its own stream, so the draws do not depend on which
// worker processes the partition.
func NewPartitionGenerator(seed int64, start int) RandomGenerator {
	return NewRandomGenerator(seed + int64(start))
}

func (rng RandomGenerator) NormalVector64(size int, mean, stdDev float64) []float64 {
	ret := make([]float64, size)
	for i := 0; i < len(ret); i++ {
		ret[i] = rng.NormFloat64()*stdDev + mean
	}
	return ret
}

// NormalDense draws a row×col matrix of normal variates in row-major order.
func (rng RandomGenerator) NormalDense(row, col int, mean, stdDev float64) *mat.Dense {
	return mat.NewDense(row, col, rng.NormalVector64(row*col, mean, stdDev))
}

// WeightedChoice samples an index with probability proportional to weights. Returns -1
// if all weights are zero.
func (rng RandomGenerator) WeightedChoice(weights []float64) int {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return -1
	}
	r := rng.Float64() * sum
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return -1
}
