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
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Archetypes is the k×d archetype matrix Y. Columns are laid out as one contiguous
// block per categorical column followed by one column per numeric column. The matrix
// is stored either as Y or as Yᵗ, which is invisible to callers.
type Archetypes struct {
	y          *mat.Dense
	transposed bool
	catOffsets []int
	numLevels  []int
}

// NewArchetypes wraps y. If transposed is set, y is d×k.
func NewArchetypes(y *mat.Dense, transposed bool, catOffsets, numLevels []int) *Archetypes {
	if len(catOffsets) != len(numLevels)+1 {
		panic(fmt.Sprintf("glrm: %d category offsets for %d categorical columns", len(catOffsets), len(numLevels)))
	}
	return &Archetypes{y: y, transposed: transposed, catOffsets: catOffsets, numLevels: numLevels}
}

// Rank returns k.
func (a *Archetypes) Rank() int {
	r, c := a.y.Dims()
	if a.transposed {
		return c
	}
	return r
}

// NumFeatures returns the expanded width d.
func (a *Archetypes) NumFeatures() int {
	r, c := a.y.Dims()
	if a.transposed {
		return r
	}
	return c
}

func (a *Archetypes) NumCats() int {
	return len(a.numLevels)
}

func (a *Archetypes) NumLevels(j int) int {
	return a.numLevels[j]
}

// NumCidx returns the column of numeric column j.
func (a *Archetypes) NumCidx(j int) int {
	return a.catOffsets[len(a.catOffsets)-1] + j
}

// CatCidx returns the column of a level of categorical column j.
func (a *Archetypes) CatCidx(j, level int) int {
	if a.numLevels[j] == 0 {
		panic(fmt.Sprintf("glrm: categorical column %d has no levels", j))
	}
	if level < 0 || level >= a.numLevels[j] {
		panic(fmt.Sprintf("glrm: level %d out of range [0, %d)", level, a.numLevels[j]))
	}
	return a.catOffsets[j] + level
}

// At returns Y[k, c].
func (a *Archetypes) At(k, c int) float64 {
	if a.transposed {
		return a.y.At(c, k)
	}
	return a.y.At(k, c)
}

// Num returns Y[k, c] of numeric column j.
func (a *Archetypes) Num(j, k int) float64 {
	return a.At(k, a.NumCidx(j))
}

// Cat returns Y[k, c] of a level of categorical column j.
func (a *Archetypes) Cat(j, level, k int) float64 {
	return a.At(k, a.CatCidx(j, level))
}

// Column copies column c of Y into dst (length k).
func (a *Archetypes) Column(c int, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, a.Rank())
	}
	if a.transposed {
		return mat.Row(dst, c, a.y)
	}
	return mat.Col(dst, c, a.y)
}

// NumCol returns column of numeric column j.
func (a *Archetypes) NumCol(j int) []float64 {
	return a.Column(a.NumCidx(j), nil)
}

// LmulNumCol returns xᵗ·y_j for numeric column j.
func (a *Archetypes) LmulNumCol(x []float64, j int) float64 {
	a.checkRank(x)
	c := a.NumCidx(j)
	var prod float64
	if a.transposed {
		row := a.y.RawRowView(c)
		for k := range x {
			prod += x[k] * row[k]
		}
	} else {
		for k := range x {
			prod += x[k] * a.y.At(k, c)
		}
	}
	return prod
}

// CatBlock returns the k×levels block of categorical column j.
func (a *Archetypes) CatBlock(j int) *mat.Dense {
	levels := a.numLevels[j]
	if levels == 0 {
		panic(fmt.Sprintf("glrm: categorical column %d has no levels", j))
	}
	block := mat.NewDense(a.Rank(), levels, nil)
	for level := 0; level < levels; level++ {
		c := a.CatCidx(j, level)
		for k := 0; k < a.Rank(); k++ {
			block.Set(k, level, a.At(k, c))
		}
	}
	return block
}

// LmulCatBlock writes xᵗ·Y_j for categorical column j into dst (length levels).
func (a *Archetypes) LmulCatBlock(x []float64, j int, dst []float64) []float64 {
	a.checkRank(x)
	levels := a.numLevels[j]
	if levels == 0 {
		panic(fmt.Sprintf("glrm: categorical column %d has no levels", j))
	}
	if dst == nil {
		dst = make([]float64, levels)
	}
	for level := 0; level < levels; level++ {
		c := a.catOffsets[j] + level
		var prod float64
		if a.transposed {
			row := a.y.RawRowView(c)
			for k := range x {
				prod += x[k] * row[k]
			}
		} else {
			for k := range x {
				prod += x[k] * a.y.At(k, c)
			}
		}
		dst[level] = prod
	}
	return dst
}

// addColumnTo adds alpha times column c of Y to dst.
func (a *Archetypes) addColumnTo(dst []float64, alpha float64, c int) {
	if a.transposed {
		floats.AddScaled(dst, alpha, a.y.RawRowView(c))
		return
	}
	for k := range dst {
		dst[k] += alpha * a.y.At(k, c)
	}
}

// Y returns a copy of Y (k×d), or of Yᵗ (d×k) if transpose is set.
func (a *Archetypes) Y(transpose bool) *mat.Dense {
	var m mat.Dense
	if transpose != a.transposed {
		m.CloneFrom(a.y.T())
	} else {
		m.CloneFrom(a.y)
	}
	return &m
}

// Transposed returns a view with the opposite storage orientation.
func (a *Archetypes) Transposed() *Archetypes {
	return &Archetypes{y: a.Y(!a.transposed), transposed: !a.transposed, catOffsets: a.catOffsets, numLevels: a.numLevels}
}

func (a *Archetypes) checkRank(x []float64) {
	if len(x) != a.Rank() {
		panic(fmt.Sprintf("glrm: vector of length %d, expected %d", len(x), a.Rank()))
	}
}
