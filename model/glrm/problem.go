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
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// problem is a training frame adapted for factorization with the resolved loss and
// regularizers.
type problem struct {
	frame  *dataset.Frame
	info   *dataset.DataInfo
	n      int
	k      int
	ncolA  int // adapted columns
	ncolY  int // expanded columns
	ncats  int
	nnums  int
	data   []float64 // n×ncolA row-major: level index or transformed value, NaN if missing
	chunks []dataset.Chunk
	jobs   int
	seed   int64

	nObserved int
	naCount   int
	maxLevels int

	loss        *Loss
	multiLoss   *MultiLoss
	regX        *Regularizer
	regY        *Regularizer
	gammaX      float64
	gammaY      float64
	maxCholesky int
}

func (glrm *GLRM) newProblem(frame *dataset.Frame, info *dataset.DataInfo, config *FitConfig) *problem {
	p := &problem{
		frame:       frame,
		info:        info,
		n:           frame.NumRows(),
		k:           glrm.k,
		ncolA:       info.NumColumns(),
		ncolY:       info.NumExpanded(),
		ncats:       info.NumCats,
		nnums:       info.NumNums,
		chunks:      frame.Chunks(config.ChunkSize),
		jobs:        max(config.Jobs, 1),
		seed:        glrm.GetRandomState(),
		maxLevels:   lo.Max(info.NumLevels),
		loss:        glrm.loss,
		multiLoss:   glrm.multiLoss,
		regX:        glrm.regX,
		regY:        glrm.regY,
		gammaX:      glrm.gammaX,
		gammaY:      glrm.gammaY,
		maxCholesky: glrm.maxCholesky,
	}
	p.data = make([]float64, p.n*p.ncolA)
	for i := 0; i < p.n; i++ {
		row := p.row(i)
		for j := 0; j < p.ncats; j++ {
			row[j] = frame.Columns[info.Permutation[j]].Values[i]
		}
		for j := 0; j < p.nnums; j++ {
			row[p.ncats+j] = info.Numeric(frame, i, j)
		}
	}
	p.naCount = lo.CountBy(p.data, math.IsNaN)
	p.nObserved = len(p.data) - p.naCount
	return p
}

// row returns the adapted values of row i.
func (p *problem) row(i int) []float64 {
	return p.data[i*p.ncolA : (i+1)*p.ncolA]
}

func (p *problem) rowWeight(i int) float64 {
	return p.frame.Weight(i)
}

// expand writes row i as one-hot categorical blocks followed by numeric values. Missing
// numeric values are replaced by means if given.
func (p *problem) expand(i int, dst []float64, means []float64) []float64 {
	if dst == nil {
		dst = make([]float64, p.ncolY)
	}
	p.info.Expand(p.frame, i, dst, means != nil, means)
	return dst
}

func (p *problem) newArchetypes(y *mat.Dense, transposed bool) *Archetypes {
	return NewArchetypes(y, transposed, p.info.CatOffsets, p.info.NumLevels)
}

// rowBuffer holds per-worker scratch space of the kernels.
type rowBuffer struct {
	xy   []float64
	grad []float64
}

func (p *problem) newRowBuffer() *rowBuffer {
	return &rowBuffer{
		xy:   make([]float64, p.maxLevels),
		grad: make([]float64, p.maxLevels),
	}
}

// visitGradient calls fn for every column c of Y with the loss gradient g of row i at x.
// Missing entries and zero gradients are skipped.
func (p *problem) visitGradient(i int, x []float64, y *Archetypes, buf *rowBuffer, fn func(c int, g float64)) {
	row := p.row(i)
	for j := 0; j < p.ncats; j++ {
		a := row[j]
		if math.IsNaN(a) {
			continue
		}
		levels := p.info.NumLevels[j]
		xy := y.LmulCatBlock(x, j, buf.xy[:levels])
		grad := p.multiLoss.Grad(xy, int(a), buf.grad[:levels])
		for level, g := range grad {
			if g != 0 {
				fn(y.CatCidx(j, level), g)
			}
		}
	}
	for j := 0; j < p.nnums; j++ {
		a := row[p.ncats+j]
		if math.IsNaN(a) {
			continue
		}
		if g := p.loss.Grad(y.LmulNumCol(x, j), a); g != 0 {
			fn(y.NumCidx(j), g)
		}
	}
}

// rowLoss returns the unweighted loss of row i at x.
func (p *problem) rowLoss(i int, x []float64, y *Archetypes, buf *rowBuffer) float64 {
	row := p.row(i)
	var loss float64
	for j := 0; j < p.ncats; j++ {
		a := row[j]
		if math.IsNaN(a) {
			continue
		}
		xy := y.LmulCatBlock(x, j, buf.xy[:p.info.NumLevels[j]])
		loss += p.multiLoss.Loss(xy, int(a))
	}
	for j := 0; j < p.nnums; j++ {
		a := row[p.ncats+j]
		if math.IsNaN(a) {
			continue
		}
		loss += p.loss.Loss(y.LmulNumCol(x, j), a)
	}
	return loss
}
