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

	"github.com/gorse-io/glrm/common/parallel"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

// objective returns the weighted loss of (x, y) over observed entries and, if withRegX is
// set, the regularization of the rows of x.
func (p *problem) objective(ctx context.Context, x *mat.Dense, y *Archetypes, withRegX bool) (loss, reg float64, err error) {
	type partial struct {
		loss float64
		reg  float64
	}
	sum, err := parallel.MapReduce(ctx, len(p.chunks), p.jobs, func(jobId int) (partial, error) {
		chunk := p.chunks[jobId]
		buf := p.newRowBuffer()
		var result partial
		for i := chunk.Start; i < chunk.End(); i++ {
			xi := x.RawRowView(i)
			result.loss += p.rowWeight(i) * p.rowLoss(i, xi, y, buf)
			if withRegX {
				result.reg += p.regX.Regularize(xi)
			}
		}
		return result, nil
	}, func(acc, b partial) partial {
		return partial{loss: acc.loss + b.loss, reg: acc.reg + b.reg}
	})
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	return sum.loss, sum.reg, nil
}

// regularizeY returns the regularization of y summed over its columns.
func (p *problem) regularizeY(y *Archetypes) float64 {
	var reg float64
	u := make([]float64, p.k)
	for c := 0; c < y.NumFeatures(); c++ {
		reg += p.regY.Regularize(y.Column(c, u))
	}
	return reg
}
