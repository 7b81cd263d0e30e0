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

package dataset

import (
	"math"
	"sort"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

type ColumnType int

const (
	Numeric ColumnType = iota
	Categorical
)

func (t ColumnType) String() string {
	if t == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Column holds the values of a column. Missing values are NaN. Values of a categorical
// column are level indices into Levels.
type Column struct {
	Name   string
	Type   ColumnType
	Levels *FreqDict
	Values []float64
}

func NewNumericColumn(name string, values []float64) *Column {
	return &Column{Name: name, Type: Numeric, Values: values}
}

// NewCategoricalColumn creates a categorical column. Levels are sorted lexicographically.
// Empty strings and "NA" are missing.
func NewCategoricalColumn(name string, values []string) *Column {
	distinct := lo.Uniq(lo.Filter(values, func(v string, _ int) bool {
		return !IsMissing(v)
	}))
	sort.Strings(distinct)
	levels := NewFreqDict()
	for _, level := range distinct {
		levels.NotCount(level)
	}
	column := &Column{Name: name, Type: Categorical, Levels: levels, Values: make([]float64, len(values))}
	for i, v := range values {
		if IsMissing(v) {
			column.Values[i] = math.NaN()
		} else {
			column.Values[i] = float64(levels.Id(v))
		}
	}
	return column
}

// IsMissing reports whether a raw field denotes a missing value.
func IsMissing(s string) bool {
	return s == "" || s == "NA"
}

func (c *Column) IsCategorical() bool {
	return c.Type == Categorical
}

// NumLevels returns the number of levels of a categorical column and 0 otherwise.
func (c *Column) NumLevels() int {
	if c.Levels == nil {
		return 0
	}
	return c.Levels.Count()
}

func (c *Column) CountMissing() int {
	return lo.CountBy(c.Values, math.IsNaN)
}

// Frame is a column-oriented table with an optional per-row weight.
type Frame struct {
	Columns []*Column
	Weights []float64
	nRows   int
}

func NewFrame(columns ...*Column) (*Frame, error) {
	frame := &Frame{Columns: columns}
	for i, column := range columns {
		if i == 0 {
			frame.nRows = len(column.Values)
		} else if len(column.Values) != frame.nRows {
			return nil, errors.Errorf("column %s has %d rows, expected %d", column.Name, len(column.Values), frame.nRows)
		}
	}
	return frame, nil
}

// SetWeights attaches per-row weights to the frame.
func (f *Frame) SetWeights(weights []float64) error {
	if len(weights) != f.nRows {
		return errors.Errorf("weights have %d rows, expected %d", len(weights), f.nRows)
	}
	f.Weights = weights
	return nil
}

func (f *Frame) NumRows() int {
	return f.nRows
}

func (f *Frame) NumColumns() int {
	return len(f.Columns)
}

// Weight returns the weight of row i. Rows are weighted 1 without a weight column.
func (f *Frame) Weight(i int) float64 {
	if f.Weights == nil {
		return 1
	}
	return f.Weights[i]
}

// CountMissing returns the number of missing cells.
func (f *Frame) CountMissing() int {
	return lo.SumBy(f.Columns, func(c *Column) int {
		return c.CountMissing()
	})
}

// Chunk is a contiguous range of rows processed as one partition.
type Chunk struct {
	Start int
	Len   int
}

func (c Chunk) End() int {
	return c.Start + c.Len
}

// Chunks splits rows into partitions of at most size rows.
func (f *Frame) Chunks(size int) []Chunk {
	return SplitRows(f.nRows, size)
}

// SplitRows splits [0, n) into chunks of at most size rows.
func SplitRows(n, size int) []Chunk {
	if size <= 0 {
		size = n
	}
	var chunks []Chunk
	for start := 0; start < n; start += size {
		chunks = append(chunks, Chunk{Start: start, Len: min(size, n-start)})
	}
	return chunks
}
