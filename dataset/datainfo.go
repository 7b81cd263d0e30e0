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
	"fmt"
	"math"
	"strings"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type TransformType string

const (
	TransformNone        TransformType = "NONE"
	TransformStandardize TransformType = "STANDARDIZE"
	TransformNormalize   TransformType = "NORMALIZE"
	TransformDemean      TransformType = "DEMEAN"
	TransformDescale     TransformType = "DESCALE"
)

func ParseTransform(s string) (TransformType, error) {
	t := TransformType(strings.ToUpper(s))
	switch t {
	case TransformNone, TransformStandardize, TransformNormalize, TransformDemean, TransformDescale:
		return t, nil
	case "":
		return TransformNone, nil
	}
	return "", errors.NotValidf("transform %s", s)
}

// DataInfo describes how a frame is adapted for factorization: categorical columns are
// moved in front of numeric columns, categorical columns are expanded into one-hot blocks
// and numeric columns are shifted and scaled.
type DataInfo struct {
	Transform   TransformType
	Permutation []int // adapted column -> frame column
	NumCats     int
	NumNums     int
	CatOffsets  []int // start of each categorical block, CatOffsets[NumCats] is the total width
	NumLevels   []int
	NormSub     []float64
	NormMul     []float64
	Names       []string // names of expanded columns
}

func NewDataInfo(frame *Frame, transform TransformType) (*DataInfo, error) {
	if transform == "" {
		transform = TransformNone
	}
	if _, err := ParseTransform(string(transform)); err != nil {
		return nil, errors.Trace(err)
	}
	info := &DataInfo{Transform: transform}
	for j, column := range frame.Columns {
		if column.IsCategorical() {
			info.Permutation = append(info.Permutation, j)
		}
	}
	info.NumCats = len(info.Permutation)
	for j, column := range frame.Columns {
		if !column.IsCategorical() {
			info.Permutation = append(info.Permutation, j)
		}
	}
	info.NumNums = len(info.Permutation) - info.NumCats

	info.CatOffsets = make([]int, info.NumCats+1)
	info.NumLevels = make([]int, info.NumCats)
	for i := 0; i < info.NumCats; i++ {
		column := frame.Columns[info.Permutation[i]]
		info.NumLevels[i] = column.NumLevels()
		info.CatOffsets[i+1] = info.CatOffsets[i] + info.NumLevels[i]
		for _, level := range column.Levels.Strings() {
			info.Names = append(info.Names, fmt.Sprintf("%s.%s", column.Name, level))
		}
	}

	info.NormSub = make([]float64, info.NumNums)
	info.NormMul = make([]float64, info.NumNums)
	for i := 0; i < info.NumNums; i++ {
		column := frame.Columns[info.Permutation[info.NumCats+i]]
		info.Names = append(info.Names, column.Name)
		info.NormSub[i], info.NormMul[i] = normalization(column.Values, transform)
	}
	return info, nil
}

func normalization(values []float64, transform TransformType) (sub, mul float64) {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 || transform == TransformNone {
		return 0, 1
	}
	mean, sd := stat.MeanStdDev(present, nil)
	if len(present) < 2 {
		sd = 0
	}
	switch transform {
	case TransformStandardize:
		sub, mul = mean, inverse(sd)
	case TransformNormalize:
		sub, mul = mean, inverse(floats.Max(present)-floats.Min(present))
	case TransformDemean:
		sub, mul = mean, 1
	case TransformDescale:
		sub, mul = 0, inverse(sd)
	default:
		sub, mul = 0, 1
	}
	return
}

// inverse of a scale, constant columns are left unscaled.
func inverse(scale float64) float64 {
	if scale == 0 || math.IsNaN(scale) {
		return 1
	}
	return 1 / scale
}

// NumColumns returns the number of adapted (not expanded) columns.
func (info *DataInfo) NumColumns() int {
	return info.NumCats + info.NumNums
}

// NumExpanded returns the number of expanded columns.
func (info *DataInfo) NumExpanded() int {
	return info.CatOffsets[info.NumCats] + info.NumNums
}

// Level returns the level of categorical column j at row i, or -1 if missing.
func (info *DataInfo) Level(frame *Frame, i, j int) int {
	v := frame.Columns[info.Permutation[j]].Values[i]
	if math.IsNaN(v) {
		return -1
	}
	return int(v)
}

// Numeric returns the transformed value of numeric column j (0-based among numeric
// columns) at row i. Missing values are NaN.
func (info *DataInfo) Numeric(frame *Frame, i, j int) float64 {
	v := frame.Columns[info.Permutation[info.NumCats+j]].Values[i]
	return (v - info.NormSub[j]) * info.NormMul[j]
}

// Expand writes the expanded row i into dst. Missing categorical values expand to all
// zeros. Missing numeric values are written as NaN unless impute is set, in which case
// they are replaced by the column mean (0 after centering, the raw mean otherwise).
func (info *DataInfo) Expand(frame *Frame, i int, dst []float64, impute bool, means []float64) {
	for j := 0; j < info.CatOffsets[info.NumCats]; j++ {
		dst[j] = 0
	}
	for j := 0; j < info.NumCats; j++ {
		if level := info.Level(frame, i, j); level >= 0 {
			dst[info.CatOffsets[j]+level] = 1
		}
	}
	offset := info.CatOffsets[info.NumCats]
	for j := 0; j < info.NumNums; j++ {
		v := info.Numeric(frame, i, j)
		if math.IsNaN(v) && impute {
			v = 0
			if means != nil {
				v = means[j]
			}
		}
		dst[offset+j] = v
	}
}

// NumericMeans returns the means of transformed numeric columns over present values.
func (info *DataInfo) NumericMeans(frame *Frame) []float64 {
	means := make([]float64, info.NumNums)
	for j := range means {
		var sum float64
		var count int
		for i := 0; i < frame.NumRows(); i++ {
			if v := info.Numeric(frame, i, j); !math.IsNaN(v) {
				sum += v
				count++
			}
		}
		if count > 0 {
			means[j] = sum / float64(count)
		}
	}
	return means
}

// Permute reorders a row given in frame column order into adapted column order.
func (info *DataInfo) Permute(row []float64) []float64 {
	permuted := make([]float64, len(info.Permutation))
	for j, p := range info.Permutation {
		permuted[j] = row[p]
	}
	return permuted
}
