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

	"github.com/gorse-io/glrm/base"
	"github.com/gorse-io/glrm/base/log"
	"github.com/gorse-io/glrm/common/parallel"
	"github.com/gorse-io/glrm/model"
	"github.com/gorse-io/glrm/model/kmeans"
	"github.com/gorse-io/glrm/model/pca"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// initialize returns X₀ (n×k) and Y₀.
func (p *problem) initialize(ctx context.Context, glrm *GLRM, config *FitConfig) (*mat.Dense, *Archetypes, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "GLRM.Initialize")
	defer span.End()
	span.SetAttributes(attribute.String("init", string(glrm.initType)))

	rng := base.NewRandomGenerator(p.seed)
	closedForm := glrm.hasClosedForm() && p.naCount == 0
	x, err := p.randomX(ctx)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	var y *mat.Dense // k×d
	switch glrm.initType {
	case InitUser:
		y = p.userArchetypes(config.UserPoints)
	case InitRandom:
		y = rng.NormalDense(p.k, p.ncolY, 0, 1)
	case InitSVD:
		means := p.info.NumericMeans(p.frame)
		rows := make([][]float64, p.n)
		for i := range rows {
			rows[i] = p.expand(i, nil, means)
		}
		m, err := pca.Fit(rows, p.k)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		y = mat.DenseCopyOf(m.Eigenvectors.T())
	case InitPlusPlus:
		means := p.info.NumericMeans(p.frame)
		rows := make([][]float64, p.n)
		for i := range rows {
			rows[i] = p.expand(i, nil, means)
		}
		m, err := kmeans.Fit(ctx, rows, p.k, model.Params{
			model.MaxIterations: glrm.maxIterations,
			model.RandomState:   p.seed,
		}, p.jobs)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		y = mat.NewDense(p.k, p.ncolY, nil)
		for r, center := range m.Centers {
			y.SetRow(r, center)
		}
		// score only if clusters are well defined and X has no closed form
		if frob := frobenius2(y); frob != 0 && !math.IsNaN(frob) && p.naCount == 0 && !closedForm {
			log.Logger().Info("initialize X to indicators of cluster assignments")
			if err = p.indicatorX(ctx, m, rows, x); err != nil {
				return nil, nil, errors.Trace(err)
			}
		}
	default:
		return nil, nil, errors.NotSupportedf("init %s", glrm.initType)
	}

	if frob := frobenius2(y); frob == 0 || math.IsNaN(frob) {
		log.Logger().Warn("initialization failed, set initial Y to standard normal random matrix",
			zap.String("init", string(glrm.initType)),
			zap.Float64("frobenius", frob))
		y = rng.NormalDense(p.k, p.ncolY, 0, 1)
	}
	for r := 0; r < p.k; r++ {
		p.regY.Project(y.RawRowView(r), rng)
	}
	archetypes := p.newArchetypes(mat.DenseCopyOf(y.T()), true)

	if closedForm {
		if err = p.closedFormX(ctx, archetypes, x); err != nil {
			return nil, nil, errors.Trace(err)
		}
	}
	return x, archetypes, nil
}

// randomX draws standard normal rows projected by the X regularizer. Each partition
// draws from a generator seeded by its first row.
func (p *problem) randomX(ctx context.Context) (*mat.Dense, error) {
	x := mat.NewDense(p.n, p.k, nil)
	err := parallel.For(ctx, len(p.chunks), p.jobs, func(jobId int) {
		chunk := p.chunks[jobId]
		rng := base.NewPartitionGenerator(p.seed, chunk.Start)
		for i := chunk.Start; i < chunk.End(); i++ {
			row := x.RawRowView(i)
			for k := range row {
				row[k] = rng.NormFloat64()
			}
			p.regX.Project(row, rng)
		}
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return x, nil
}

// indicatorX sets every row of x to the indicator of its cluster.
func (p *problem) indicatorX(ctx context.Context, m *kmeans.Model, rows [][]float64, x *mat.Dense) error {
	return parallel.For(ctx, len(p.chunks), p.jobs, func(jobId int) {
		chunk := p.chunks[jobId]
		rng := base.NewPartitionGenerator(p.seed, chunk.Start)
		for i := chunk.Start; i < chunk.End(); i++ {
			row := x.RawRowView(i)
			for k := range row {
				row[k] = 0
			}
			row[m.Assign(rows[i])] = 1
			p.regX.Project(row, rng)
		}
	})
}

// userArchetypes permutes user points into adapted column order and expands
// categorical levels into indicators.
func (p *problem) userArchetypes(points [][]float64) *mat.Dense {
	y := mat.NewDense(p.k, p.ncolY, nil)
	catWidth := p.info.CatOffsets[p.ncats]
	for r, point := range points {
		permuted := p.info.Permute(point)
		row := y.RawRowView(r)
		for j := 0; j < p.ncats; j++ {
			row[p.info.CatOffsets[j]+int(permuted[j])] = 1
		}
		copy(row[catWidth:], permuted[p.ncats:])
	}
	return y
}

// closedFormX solves X(YYᵗ + γI) = AYᵗ row by row. X is left unchanged if the system
// is not positive definite.
func (p *problem) closedFormX(ctx context.Context, y *Archetypes, x *mat.Dense) error {
	log.Logger().Info("initialize X = AY'(YY' + gamma I)^(-1)")
	yt := y.Y(true)
	var gram mat.SymDense
	gram.SymOuterK(1, yt.T())
	if p.gammaY > 0 {
		for i := 0; i < p.k; i++ {
			gram.SetSym(i, i, gram.At(i, i)+p.gammaY)
		}
	}
	factor, err := RegularizedCholesky(&gram, p.maxCholesky)
	if errors.Is(err, ErrNonSPD) {
		log.Logger().Warn("initialization failed: (YY' + gamma I) is not positive definite, keep random X",
			zap.Error(err))
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	return parallel.Parallel(ctx, len(p.chunks), p.jobs, func(_, jobId int) error {
		chunk := p.chunks[jobId]
		a := mat.NewVecDense(p.ncolY, nil)
		var b, sol mat.VecDense
		for i := chunk.Start; i < chunk.End(); i++ {
			p.expand(i, a.RawVector().Data, nil)
			b.MulVec(yt.T(), a)
			if err := factor.SolveVecTo(&sol, &b); err != nil {
				// an ill-conditioned system still yields a solution
				var cond mat.Condition
				if !errors.As(err, &cond) {
					return errors.Trace(err)
				}
			}
			x.SetRow(i, sol.RawVector().Data)
		}
		return nil
	})
}

func frobenius2(m *mat.Dense) float64 {
	norm := mat.Norm(m, 2)
	return norm * norm
}
