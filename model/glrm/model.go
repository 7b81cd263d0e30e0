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

	"github.com/gorse-io/glrm/dataset"
	"github.com/gorse-io/glrm/model"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

// Model is a fitted factorization A ≈ XY.
type Model struct {
	Params     model.Params
	Info       *dataset.DataInfo
	LoadingKey string      // key of X in a model store
	X          *mat.Dense  // n×k
	Archetypes *Archetypes // k×d

	Objective   float64
	Iterations  int
	StepSize    float64
	AvgChange   float64
	NumObserved int
	History     []Iteration

	// Set if singular values are recovered
	SingularValues []float64
	Eigenvectors   *mat.Dense // d×k

	LossType      LossType
	LossPeriod    float64
	MultiLossType MultiLossType
}

// Reconstruct returns the imputed training frame XY in the original scale. Numeric
// columns are mapped back by the transform and categorical columns take the best level.
func (m *Model) Reconstruct(frame *dataset.Frame) (*dataset.Frame, error) {
	n, _ := m.X.Dims()
	if frame.NumRows() != n {
		return nil, errors.Errorf("frame has %d rows, model has %d", frame.NumRows(), n)
	}
	if frame.NumColumns() != m.Info.NumColumns() {
		return nil, errors.Errorf("frame has %d columns, model has %d", frame.NumColumns(), m.Info.NumColumns())
	}
	loss, err := NewLoss(m.LossType, m.LossPeriod)
	if err != nil {
		return nil, errors.Trace(err)
	}
	multiLoss, err := NewMultiLoss(m.MultiLossType)
	if err != nil {
		return nil, errors.Trace(err)
	}

	columns := make([]*dataset.Column, frame.NumColumns())
	for j := 0; j < m.Info.NumCats; j++ {
		src := frame.Columns[m.Info.Permutation[j]]
		values := make([]float64, n)
		if levels := m.Info.NumLevels[j]; levels > 0 {
			xy := make([]float64, levels)
			for i := 0; i < n; i++ {
				m.Archetypes.LmulCatBlock(m.X.RawRowView(i), j, xy)
				values[i] = float64(multiLoss.Impute(xy))
			}
		} else {
			for i := range values {
				values[i] = math.NaN()
			}
		}
		columns[m.Info.Permutation[j]] = &dataset.Column{
			Name:   src.Name,
			Type:   dataset.Categorical,
			Levels: src.Levels,
			Values: values,
		}
	}
	for j := 0; j < m.Info.NumNums; j++ {
		src := frame.Columns[m.Info.Permutation[m.Info.NumCats+j]]
		values := make([]float64, n)
		for i := 0; i < n; i++ {
			u := loss.Impute(m.Archetypes.LmulNumCol(m.X.RawRowView(i), j))
			values[i] = u/m.Info.NormMul[j] + m.Info.NormSub[j]
		}
		columns[m.Info.Permutation[m.Info.NumCats+j]] = dataset.NewNumericColumn(src.Name, values)
	}
	return dataset.NewFrame(columns...)
}
