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
	"context"
	"math"
	"testing"

	"github.com/gorse-io/glrm/dataset"
	"github.com/gorse-io/glrm/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestModelReconstruct(t *testing.T) {
	frame, err := dataset.NewFrame(
		dataset.NewNumericColumn("x", []float64{1, 3}),
		dataset.NewCategoricalColumn("c", []string{"a", "b"}))
	require.NoError(t, err)
	info, err := dataset.NewDataInfo(frame, dataset.TransformStandardize)
	require.NoError(t, err)
	m := &Model{
		Info:          info,
		X:             mat.NewDense(2, 1, []float64{1, -1}),
		Archetypes:    NewArchetypes(mat.NewDense(1, 3, []float64{1, -1, 0.5}), false, info.CatOffsets, info.NumLevels),
		LossType:      LossQuadratic,
		MultiLossType: MultiLossCategorical,
	}
	reconstructed, err := m.Reconstruct(frame)
	require.NoError(t, err)
	require.Equal(t, 2, reconstructed.NumColumns())

	// columns keep the order of the frame
	x := reconstructed.Columns[0]
	assert.Equal(t, "x", x.Name)
	assert.Equal(t, dataset.Numeric, x.Type)
	assert.InDelta(t, 2+0.5*math.Sqrt2, x.Values[0], 1e-12)
	assert.InDelta(t, 2-0.5*math.Sqrt2, x.Values[1], 1e-12)
	c := reconstructed.Columns[1]
	assert.Equal(t, "c", c.Name)
	assert.Equal(t, dataset.Categorical, c.Type)
	assert.Equal(t, []float64{0, 1}, c.Values)
	assert.Same(t, frame.Columns[1].Levels, c.Levels)

	// shapes must match the model
	short, err := dataset.NewFrame(
		dataset.NewNumericColumn("x", []float64{1}),
		dataset.NewCategoricalColumn("c", []string{"a"}))
	require.NoError(t, err)
	_, err = m.Reconstruct(short)
	assert.Error(t, err)
	narrow, err := dataset.NewFrame(dataset.NewNumericColumn("x", []float64{1, 3}))
	require.NoError(t, err)
	_, err = m.Reconstruct(narrow)
	assert.Error(t, err)
}

func TestFitReconstruct(t *testing.T) {
	frame := mixedFrame(t, 60, 0)
	m, err := NewGLRM(model.Params{
		model.K:             3,
		model.Init:          string(InitSVD),
		model.MaxIterations: 200,
		model.Transform:     string(dataset.TransformStandardize),
	}).Fit(context.Background(), frame, nil)
	require.NoError(t, err)
	reconstructed, err := m.Reconstruct(frame)
	require.NoError(t, err)
	assert.Equal(t, frame.NumRows(), reconstructed.NumRows())
	for j, column := range reconstructed.Columns {
		assert.Equal(t, frame.Columns[j].Name, column.Name)
		assert.Equal(t, frame.Columns[j].Type, column.Type)
		for _, v := range column.Values {
			assert.False(t, math.IsNaN(v))
		}
	}
	// missing entries are imputed
	for _, v := range reconstructed.Columns[1].Values {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 3.0)
	}
}
