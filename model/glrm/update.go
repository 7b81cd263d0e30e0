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

	"github.com/gorse-io/glrm/base"
	"github.com/gorse-io/glrm/common/parallel"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type xStats struct {
	reg  float64 // regularization of the new X
	loss float64 // loss of the new X against the old Y
}

// updateX takes one proximal gradient step on every row of xOld holding y fixed and
// writes the result into xNew. Rows of xOld are never modified.
func (p *problem) updateX(ctx context.Context, xOld, xNew *mat.Dense, y *Archetypes, alpha float64) (xStats, error) {
	stats, err := parallel.MapReduce(ctx, len(p.chunks), p.jobs, func(jobId int) (xStats, error) {
		chunk := p.chunks[jobId]
		rng := base.NewPartitionGenerator(p.seed, chunk.Start)
		buf := p.newRowBuffer()
		grad := make([]float64, p.k)
		var stats xStats
		for i := chunk.Start; i < chunk.End(); i++ {
			w := p.rowWeight(i)
			x := xOld.RawRowView(i)
			for k := range grad {
				grad[k] = 0
			}
			p.visitGradient(i, x, y, buf, func(c int, g float64) {
				y.addColumnTo(grad, w*g, c)
			})
			// u = x - alpha * grad
			u := xNew.RawRowView(i)
			copy(u, x)
			floats.AddScaled(u, -alpha, grad)
			p.regX.Prox(u, alpha*p.gammaX, rng)
			stats.reg += p.regX.Regularize(u)
			stats.loss += w * p.rowLoss(i, u, y, buf)
		}
		return stats, nil
	}, func(acc, partial xStats) xStats {
		return xStats{reg: acc.reg + partial.reg, loss: acc.loss + partial.loss}
	})
	if err != nil {
		return xStats{}, errors.Trace(err)
	}
	return stats, nil
}

// updateY takes one proximal gradient step on every column of yOld holding x fixed.
// Gradients are accumulated per partition, summed in partition order and applied once.
func (p *problem) updateY(ctx context.Context, x *mat.Dense, yOld *Archetypes, alpha float64) (*Archetypes, float64, error) {
	acc, err := p.gradientY(ctx, x, yOld)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	rng := base.NewRandomGenerator(p.seed)
	yNew := mat.NewDense(p.ncolY, p.k, nil)
	var reg float64
	for c := 0; c < p.ncolY; c++ {
		// u = y_c - alpha * grad_c
		u := yNew.RawRowView(c)
		yOld.Column(c, u)
		floats.AddScaled(u, -alpha, acc.RawRowView(c))
		p.regY.Prox(u, alpha*p.gammaY, rng)
		reg += p.regY.Regularize(u)
	}
	return p.newArchetypes(yNew, true), reg, nil
}

// gradientY returns the d×k gradient of the loss with respect to Yᵗ.
func (p *problem) gradientY(ctx context.Context, x *mat.Dense, y *Archetypes) (*mat.Dense, error) {
	acc, err := parallel.MapReduce(ctx, len(p.chunks), p.jobs, func(jobId int) (*mat.Dense, error) {
		chunk := p.chunks[jobId]
		buf := p.newRowBuffer()
		partial := mat.NewDense(p.ncolY, p.k, nil)
		for i := chunk.Start; i < chunk.End(); i++ {
			w := p.rowWeight(i)
			xi := x.RawRowView(i)
			p.visitGradient(i, xi, y, buf, func(c int, g float64) {
				floats.AddScaled(partial.RawRowView(c), w*g, xi)
			})
		}
		return partial, nil
	}, func(acc, partial *mat.Dense) *mat.Dense {
		acc.Add(acc, partial)
		return acc
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if acc == nil {
		acc = mat.NewDense(p.ncolY, p.k, nil)
	}
	return acc, nil
}
