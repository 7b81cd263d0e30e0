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

package kmeans

import (
	"context"
	"fmt"
	"math"

	"github.com/gorse-io/glrm/base"
	"github.com/gorse-io/glrm/base/log"
	"github.com/gorse-io/glrm/common/parallel"
	"github.com/gorse-io/glrm/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Model holds cluster centers. Missing (NaN) coordinates of rows are ignored.
type Model struct {
	Centers [][]float64
}

// Assign returns the index of the nearest center.
func (m *Model) Assign(row []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range m.Centers {
		if dist := distance(row, center); dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best
}

// Fit clusters rows into k clusters. Centers are seeded by k-means++ and refined by
// Lloyd iterations until assignments stop changing or MaxIterations is reached.
func Fit(ctx context.Context, rows [][]float64, k int, params model.Params, jobs int) (*Model, error) {
	n := len(rows)
	if k < 1 || k > n {
		return nil, errors.NotValidf("k = %d for %d rows", k, n)
	}
	maxIterations := params.GetInt(model.MaxIterations, 10)
	rng := base.NewRandomGenerator(params.GetInt64(model.RandomState, 0))

	m := &Model{Centers: make([][]float64, 0, k)}
	// k-means++ seeding
	first := rows[rng.Intn(n)]
	m.Centers = append(m.Centers, clone(first))
	dists := make([]float64, n)
	for i := range dists {
		dists[i] = distance(rows[i], first)
	}
	for len(m.Centers) < k {
		idx := rng.WeightedChoice(dists)
		if idx < 0 {
			// every row coincides with a center
			idx = rng.Intn(n)
		}
		center := clone(rows[idx])
		m.Centers = append(m.Centers, center)
		for i := range dists {
			dists[i] = math.Min(dists[i], distance(rows[i], center))
		}
	}

	// Lloyd iterations
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	next := make([]int, n)
	for iter := 0; iter < maxIterations; iter++ {
		if err := parallel.For(ctx, n, jobs, func(i int) {
			next[i] = m.Assign(rows[i])
		}); err != nil {
			return nil, errors.Trace(err)
		}
		changed := 0
		for i := range next {
			if next[i] != assign[i] {
				changed++
			}
		}
		assign, next = next, assign
		if changed == 0 {
			break
		}
		m.update(rows, assign)
		log.Logger().Debug(fmt.Sprintf("fit kmeans %v/%v", iter+1, maxIterations),
			zap.Int("changed", changed))
	}
	return m, nil
}

// update moves every center to the mean of its rows. Empty clusters keep their center.
func (m *Model) update(rows [][]float64, assign []int) {
	d := len(m.Centers[0])
	sums := make([][]float64, len(m.Centers))
	counts := make([][]int, len(m.Centers))
	for c := range sums {
		sums[c] = make([]float64, d)
		counts[c] = make([]int, d)
	}
	for i, row := range rows {
		c := assign[i]
		for j, v := range row {
			if !math.IsNaN(v) {
				sums[c][j] += v
				counts[c][j]++
			}
		}
	}
	for c, center := range m.Centers {
		for j := range center {
			if counts[c][j] > 0 {
				center[j] = sums[c][j] / float64(counts[c][j])
			}
		}
	}
}

// distance returns the squared Euclidean distance over coordinates present in both.
func distance(a, b []float64) float64 {
	var sum float64
	for j := range a {
		if math.IsNaN(a[j]) || math.IsNaN(b[j]) {
			continue
		}
		d := a[j] - b[j]
		sum += d * d
	}
	return sum
}

func clone(row []float64) []float64 {
	c := make([]float64, len(row))
	copy(c, row)
	return c
}
