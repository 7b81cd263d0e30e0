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
	"math"
	"testing"

	"github.com/gorse-io/glrm/base"
	"github.com/gorse-io/glrm/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns n rows around each center.
func blobs(centers [][]float64, n int, seed int64) [][]float64 {
	rng := base.NewRandomGenerator(seed)
	var rows [][]float64
	for _, center := range centers {
		for i := 0; i < n; i++ {
			row := make([]float64, len(center))
			for j := range row {
				row[j] = center[j] + 0.1*rng.NormFloat64()
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func TestFit(t *testing.T) {
	centers := [][]float64{{0, 0}, {10, 10}, {-10, 10}}
	rows := blobs(centers, 20, 0)
	m, err := Fit(context.Background(), rows, 3, model.Params{model.RandomState: int64(1)}, 2)
	require.NoError(t, err)
	require.Len(t, m.Centers, 3)

	// every true center is matched by exactly one fitted center
	matched := make(map[int]bool)
	for _, center := range centers {
		c := m.Assign(center)
		assert.InDeltaSlice(t, center, m.Centers[c], 0.2)
		matched[c] = true
	}
	assert.Len(t, matched, 3)

	// rows of a blob share a cluster
	for b := range centers {
		c := m.Assign(rows[b*20])
		for i := b * 20; i < (b+1)*20; i++ {
			assert.Equal(t, c, m.Assign(rows[i]))
		}
	}
}

func TestFitDeterministic(t *testing.T) {
	rows := blobs([][]float64{{0, 0, 0}, {5, 5, 5}}, 30, 1)
	params := model.Params{model.RandomState: int64(3), model.MaxIterations: 5}
	m1, err := Fit(context.Background(), rows, 2, params, 1)
	require.NoError(t, err)
	m2, err := Fit(context.Background(), rows, 2, params, 4)
	require.NoError(t, err)
	assert.Equal(t, m1.Centers, m2.Centers)
}

func TestFitMissing(t *testing.T) {
	rows := [][]float64{
		{0, 0},
		{0, math.NaN()},
		{10, 10},
		{math.NaN(), 10},
	}
	m, err := Fit(context.Background(), rows, 2, model.Params{}, 1)
	require.NoError(t, err)
	assert.Equal(t, m.Assign(rows[0]), m.Assign(rows[1]))
	assert.Equal(t, m.Assign(rows[2]), m.Assign(rows[3]))
	assert.NotEqual(t, m.Assign(rows[0]), m.Assign(rows[2]))
	for _, center := range m.Centers {
		for _, v := range center {
			assert.False(t, math.IsNaN(v))
		}
	}
}

func TestFitDuplicates(t *testing.T) {
	rows := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	m, err := Fit(context.Background(), rows, 2, model.Params{}, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 1}, {1, 1}}, m.Centers)
}

func TestFitInvalid(t *testing.T) {
	_, err := Fit(context.Background(), [][]float64{{1}}, 2, model.Params{}, 1)
	assert.Error(t, err)
	_, err = Fit(context.Background(), [][]float64{{1}}, 0, model.Params{}, 1)
	assert.Error(t, err)
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 25.0, distance([]float64{0, 0}, []float64{3, 4}))
	assert.Equal(t, 9.0, distance([]float64{0, math.NaN()}, []float64{3, 4}))
}
