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
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/gorse-io/glrm/base"
	"github.com/gorse-io/glrm/dataset"
	"github.com/gorse-io/glrm/model"
	"github.com/gorse-io/glrm/model/kmeans"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// lowRankFrame returns an n×d numeric frame XY + noise where X is n×k and Y is k×d.
func lowRankFrame(t *testing.T, n, d, k int, noise float64, seed int64) *dataset.Frame {
	rng := base.NewRandomGenerator(seed)
	x := rng.NormalDense(n, k, 0, 1)
	y := rng.NormalDense(k, d, 0, 1)
	var a mat.Dense
	a.Mul(x, y)
	columns := make([]*dataset.Column, d)
	for j := range columns {
		values := make([]float64, n)
		for i := range values {
			values[i] = a.At(i, j) + noise*rng.NormFloat64()
		}
		columns[j] = dataset.NewNumericColumn(fmt.Sprintf("c%d", j), values)
	}
	frame, err := dataset.NewFrame(columns...)
	require.NoError(t, err)
	return frame
}

// mixedFrame returns a frame with a categorical column between two numeric columns and
// a few missing values.
func mixedFrame(t *testing.T, n int, seed int64) *dataset.Frame {
	rng := base.NewRandomGenerator(seed)
	colors := []string{"red", "green", "blue"}
	color := make([]string, n)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		level := i % len(colors)
		color[i] = colors[level]
		x[i] = float64(level) + 0.1*rng.NormFloat64()
		y[i] = 2*float64(level) - 1 + 0.1*rng.NormFloat64()
	}
	color[3] = "NA"
	x[5] = math.NaN()
	y[7] = math.NaN()
	frame, err := dataset.NewFrame(
		dataset.NewNumericColumn("x", x),
		dataset.NewCategoricalColumn("color", color),
		dataset.NewNumericColumn("y", y))
	require.NoError(t, err)
	return frame
}

// newTestProblem validates params against frame and adapts the frame.
func newTestProblem(t *testing.T, frame *dataset.Frame, params model.Params, config *FitConfig) (*GLRM, *problem) {
	glrm := NewGLRM(params)
	info, err := dataset.NewDataInfo(frame, glrm.transform)
	require.NoError(t, err)
	require.NoError(t, glrm.validate(frame, info, config))
	return glrm, glrm.newProblem(frame, info, config)
}

// checkHistory verifies that the committed objective never increases.
func checkHistory(t *testing.T, m *Model) {
	committed := math.Inf(1)
	for i, it := range m.History {
		assert.Equal(t, i+1, it.Iteration)
		if it.Accepted {
			assert.Less(t, it.Objective, committed)
			committed = it.Objective
		} else if !math.IsInf(committed, 1) {
			assert.GreaterOrEqual(t, it.Objective, committed)
		}
	}
	if !math.IsInf(committed, 1) {
		assert.Equal(t, committed, m.Objective)
	}
	assert.Equal(t, len(m.History), m.Iterations)
}

func TestParseInit(t *testing.T) {
	init, err := ParseInit("plusplus")
	assert.NoError(t, err)
	assert.Equal(t, InitPlusPlus, init)
	_, err = ParseInit("Furthest")
	assert.Error(t, err)
}

func TestFitLowRank(t *testing.T) {
	const (
		n, d, k       = 100, 5, 2
		noise         = 0.01
		maxIterations = 1000
	)
	frame := lowRankFrame(t, n, d, k, noise, 0)
	for _, init := range []InitType{InitSVD, InitRandom} {
		t.Run(string(init), func(t *testing.T) {
			m, err := NewGLRM(model.Params{
				model.K:             k,
				model.Init:          string(init),
				model.MaxIterations: maxIterations,
				model.RandomState:   int64(3),
			}).Fit(context.Background(), frame, NewFitConfig())
			require.NoError(t, err)

			rows, cols := m.X.Dims()
			assert.Equal(t, n, rows)
			assert.Equal(t, k, cols)
			assert.Equal(t, k, m.Archetypes.Rank())
			assert.Equal(t, d, m.Archetypes.NumFeatures())
			assert.Equal(t, n*d, m.NumObserved)
			assert.True(t, strings.HasPrefix(m.LoadingKey, "GLRMLoading_"))
			checkHistory(t, m)

			// stopped by the tolerance test
			assert.Less(t, m.Iterations, maxIterations)
			assert.Less(t, math.Abs(m.AvgChange), 1e-6)
			assert.Greater(t, m.StepSize, 1e-4)

			// ‖XY - A‖ is within the noise
			var xy mat.Dense
			xy.Mul(m.X, m.Archetypes.Y(false))
			var residual float64
			for i := 0; i < n; i++ {
				for j := 0; j < d; j++ {
					r := xy.At(i, j) - frame.Columns[j].Values[i]
					residual += r * r
				}
			}
			assert.Less(t, math.Sqrt(residual), 2*noise*math.Sqrt(n*d))
		})
	}
}

func TestFitRandomInit(t *testing.T) {
	frame := lowRankFrame(t, 60, 6, 2, 0.05, 1)
	var observed []Iteration
	config := NewFitConfig().SetChunkSize(16).SetJobs(2).SetObserver(func(it Iteration) {
		observed = append(observed, it)
	})
	m, err := NewGLRM(model.Params{
		model.K:             2,
		model.Loss:          string(LossHuber),
		model.Init:          string(InitRandom),
		model.MaxIterations: 50,
		model.RandomState:   int64(7),
	}).Fit(context.Background(), frame, config)
	require.NoError(t, err)
	assert.Equal(t, observed, m.History)
	assert.NotEmpty(t, m.History)
	checkHistory(t, m)
	assert.Equal(t, LossHuber, m.LossType)
}

func TestFitDeterministic(t *testing.T) {
	fit := func(frame *dataset.Frame, params model.Params, jobs int) *Model {
		m, err := NewGLRM(params).Fit(context.Background(), frame, NewFitConfig().SetJobs(jobs).SetChunkSize(7))
		require.NoError(t, err)
		return m
	}
	objectives := func(m *Model) []float64 {
		values := make([]float64, len(m.History))
		for i, it := range m.History {
			values[i] = it.Objective
		}
		return values
	}

	for _, init := range []InitType{InitRandom, InitPlusPlus, InitSVD} {
		t.Run(string(init), func(t *testing.T) {
			frame := mixedFrame(t, 50, 3)
			params := model.Params{
				model.K:               2,
				model.Loss:            string(LossHuber),
				model.Init:            string(init),
				model.GammaX:          0.1,
				model.GammaY:          0.1,
				model.RegularizationX: string(RegularizerL1),
				model.RegularizationY: string(RegularizerQuadratic),
				model.MaxIterations:   30,
				model.RandomState:     int64(11),
			}
			m1 := fit(frame, params, 1)
			m4 := fit(frame, params, 4)
			assert.Equal(t, m1.X.RawMatrix().Data, m4.X.RawMatrix().Data)
			assert.Equal(t, m1.Archetypes.Y(false).RawMatrix().Data, m4.Archetypes.Y(false).RawMatrix().Data)
			assert.Equal(t, m1.Objective, m4.Objective)
			assert.Equal(t, m1.Iterations, m4.Iterations)
			assert.Equal(t, objectives(m1), objectives(m4))
		})
	}
}

func TestFitInitStrategies(t *testing.T) {
	frame := mixedFrame(t, 40, 5)
	for _, init := range []InitType{InitRandom, InitSVD, InitPlusPlus, InitUser} {
		t.Run(string(init), func(t *testing.T) {
			config := NewFitConfig().SetChunkSize(8)
			if init == InitUser {
				// frame column order: x, color, y
				config.SetUserPoints([][]float64{{0, 2, -1}, {2, 0, 3}})
			}
			m, err := NewGLRM(model.Params{
				model.K:             2,
				model.Init:          string(init),
				model.MaxIterations: 10,
				model.Transform:     string(dataset.TransformStandardize),
			}).Fit(context.Background(), frame, config)
			require.NoError(t, err)
			rows, cols := m.X.Dims()
			assert.Equal(t, 40, rows)
			assert.Equal(t, 2, cols)
			// 3 levels and 2 numeric columns
			assert.Equal(t, 5, m.Archetypes.NumFeatures())
			assert.Equal(t, 40*3-3, m.NumObserved)
			checkHistory(t, m)
		})
	}
}

func TestInitializeUser(t *testing.T) {
	frame := mixedFrame(t, 10, 5)
	config := NewFitConfig().SetUserPoints([][]float64{{0.5, 2, -1}, {2, 0, 3}})
	glrm, p := newTestProblem(t, frame, model.Params{
		model.K:    2,
		model.Init: string(InitUser),
	}, config)
	// missing values disable the closed form, so X stays random
	_, y, err := p.initialize(context.Background(), glrm, config)
	require.NoError(t, err)
	// levels are sorted: blue, green, red
	assert.Equal(t, []float64{0, 0, 1, 0.5, -1}, y.Y(false).RawRowView(0))
	assert.Equal(t, []float64{1, 0, 0, 2, 3}, y.Y(false).RawRowView(1))
}

func TestInitializeClosedForm(t *testing.T) {
	frame := lowRankFrame(t, 30, 5, 2, 0.1, 2)
	config := NewFitConfig().SetChunkSize(8)
	glrm, p := newTestProblem(t, frame, model.Params{
		model.K:    2,
		model.Init: string(InitRandom),
	}, config)
	require.True(t, glrm.hasClosedForm())
	x, y, err := p.initialize(context.Background(), glrm, config)
	require.NoError(t, err)

	// X solves the normal equations, so the gradient of every row vanishes
	buf := p.newRowBuffer()
	grad := make([]float64, p.k)
	for i := 0; i < p.n; i++ {
		for k := range grad {
			grad[k] = 0
		}
		p.visitGradient(i, x.RawRowView(i), y, buf, func(c int, g float64) {
			y.addColumnTo(grad, g, c)
		})
		assert.InDeltaSlice(t, []float64{0, 0}, grad, 1e-8)
	}
}

func TestInitializePlusPlusIndicators(t *testing.T) {
	frame := lowRankFrame(t, 30, 4, 2, 0.1, 4)
	config := NewFitConfig()
	// L1 on X rules out the closed form
	glrm, p := newTestProblem(t, frame, model.Params{
		model.K:               3,
		model.Init:            string(InitPlusPlus),
		model.GammaX:          0.5,
		model.RegularizationX: string(RegularizerL1),
	}, config)
	require.False(t, glrm.hasClosedForm())
	x, _, err := p.initialize(context.Background(), glrm, config)
	require.NoError(t, err)
	for i := 0; i < p.n; i++ {
		row := x.RawRowView(i)
		ones := 0
		for _, v := range row {
			if v == 1 {
				ones++
			} else {
				assert.Zero(t, v)
			}
		}
		assert.Equal(t, 1, ones)
	}
}

func TestInitializePlusPlusMissing(t *testing.T) {
	frame := lowRankFrame(t, 40, 3, 2, 0.1, 5)
	for i := 0; i < frame.NumRows(); i += 2 {
		frame.Columns[i%3].Values[i] = math.NaN()
	}
	config := NewFitConfig()
	glrm, p := newTestProblem(t, frame, model.Params{
		model.K:    2,
		model.Init: string(InitPlusPlus),
	}, config)
	_, y, err := p.initialize(context.Background(), glrm, config)
	require.NoError(t, err)

	// missing values are filled by column means before clustering
	means := p.info.NumericMeans(frame)
	rows := make([][]float64, p.n)
	for i := range rows {
		rows[i] = make([]float64, p.ncolY)
		p.info.Expand(frame, i, rows[i], true, means)
		assert.Equal(t, rows[i], p.expand(i, nil, means))
	}
	clusters, err := kmeans.Fit(context.Background(), rows, 2, model.Params{
		model.MaxIterations: glrm.maxIterations,
		model.RandomState:   p.seed,
	}, p.jobs)
	require.NoError(t, err)
	for r, center := range clusters.Centers {
		assert.Equal(t, center, y.Y(false).RawRowView(r))
	}
}

func TestFitDegenerateInit(t *testing.T) {
	columns := make([]*dataset.Column, 3)
	for j := range columns {
		columns[j] = dataset.NewNumericColumn(fmt.Sprintf("c%d", j), make([]float64, 10))
	}
	frame, err := dataset.NewFrame(columns...)
	require.NoError(t, err)
	m, err := NewGLRM(model.Params{
		model.K:    1,
		model.Init: string(InitPlusPlus),
	}).Fit(context.Background(), frame, nil)
	require.NoError(t, err)
	// all centers vanish, Y falls back to a random matrix
	assert.Greater(t, frobenius2(m.Archetypes.Y(false)), 0.0)
	assert.Zero(t, m.Objective)
}

func TestFitRecoverSVD(t *testing.T) {
	frame := lowRankFrame(t, 50, 6, 3, 0.01, 5)
	m, err := NewGLRM(model.Params{
		model.K:             3,
		model.Init:          string(InitSVD),
		model.MaxIterations: 20,
		model.RecoverSVD:    true,
	}).Fit(context.Background(), frame, nil)
	require.NoError(t, err)
	require.Len(t, m.SingularValues, 3)
	assert.GreaterOrEqual(t, m.SingularValues[0], m.SingularValues[1])
	assert.GreaterOrEqual(t, m.SingularValues[1], m.SingularValues[2])
	rows, cols := m.Eigenvectors.Dims()
	assert.Equal(t, 6, rows)
	assert.Equal(t, 3, cols)
}

func TestFitCancelled(t *testing.T) {
	frame := lowRankFrame(t, 40, 4, 2, 0.1, 6)
	params := model.Params{
		model.K:             2,
		model.Init:          string(InitRandom),
		model.Loss:          string(LossAbsolute),
		model.MaxIterations: 1000,
	}

	// cancelled before the first iteration
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGLRM(params).Fit(ctx, frame, nil)
	assert.True(t, errors.Is(err, context.Canceled))

	// cancelled after the third iteration
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	count := 0
	config := NewFitConfig().SetObserver(func(Iteration) {
		count++
		if count == 3 {
			cancel()
		}
	})
	m, err := NewGLRM(params).Fit(ctx, frame, config)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, m)
	assert.Equal(t, 3, count)
}

func TestFitInvalid(t *testing.T) {
	frame := lowRankFrame(t, 5, 2, 1, 0, 0)
	_, err := NewGLRM(model.Params{
		model.K:               10,
		model.GammaX:          -1.0,
		model.MaxIterations:   0,
		model.InitStepSize:    0.0,
		model.Period:          0,
		model.Loss:            "Hamming",
		model.RegularizationY: "L0",
		model.Init:            string(InitUser),
	}).Fit(context.Background(), frame, nil)
	var v *ValidationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, []string{
		"gamma_x",
		"max_iterations",
		"init_step_size",
		"min_step_size",
		"period",
		"loss",
		"regularization_y",
		"k",
		"user_points",
	}, v.Fields())
	assert.Contains(t, err.Error(), "invalid glrm parameters")
}
