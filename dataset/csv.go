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
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gorse-io/glrm/base"
	"github.com/gorse-io/glrm/base/encoding"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// LoadCSV reads a frame from CSV. A column is numeric if every present field parses as
// a float and categorical otherwise. Columns named in weightColumn are used as row
// weights instead of data.
func LoadCSV(r io.Reader, sep string, header bool, weightColumn string) (*Frame, error) {
	var (
		names  []string
		fields [][]string
		err    error
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	readErr := base.ReadLines(sc, sep, func(i int, line []string) bool {
		if i == 0 && header {
			names = lo.Map(line, func(s string, _ int) string { return strings.TrimSpace(s) })
			return true
		}
		if names == nil {
			names = lo.Times(len(line), func(j int) string { return fmt.Sprintf("C%d", j+1) })
		}
		if len(line) != len(names) {
			err = errors.Errorf("line %d has %d fields, expected %d", i+1, len(line), len(names))
			return false
		}
		if fields == nil {
			fields = make([][]string, len(names))
		}
		for j, field := range line {
			fields[j] = append(fields[j], strings.TrimSpace(field))
		}
		return true
	})
	if readErr != nil {
		return nil, errors.Trace(readErr)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	if fields == nil {
		fields = make([][]string, len(names))
	}

	var (
		columns []*Column
		weights []float64
	)
	for j, name := range names {
		values, numeric := parseNumeric(fields[j])
		if name == weightColumn && weightColumn != "" {
			if !numeric {
				return nil, errors.Errorf("weight column %s is not numeric", name)
			}
			weights = values
			continue
		}
		if numeric {
			columns = append(columns, NewNumericColumn(name, values))
		} else {
			columns = append(columns, NewCategoricalColumn(name, fields[j]))
		}
	}
	if weightColumn != "" && weights == nil {
		return nil, errors.NotFoundf("weight column %s", weightColumn)
	}
	frame, err := NewFrame(columns...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if weights != nil {
		if err = frame.SetWeights(weights); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return frame, nil
}

func parseNumeric(fields []string) ([]float64, bool) {
	values := make([]float64, len(fields))
	for i, field := range fields {
		if IsMissing(field) {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// WriteCSV writes a frame with a header line. Missing values are written as "NA".
func WriteCSV(w io.Writer, frame *Frame) error {
	bw := bufio.NewWriter(w)
	header := lo.Map(frame.Columns, func(c *Column, _ int) string { return base.Escape(c.Name) })
	if _, err := bw.WriteString(strings.Join(header, ",") + "\n"); err != nil {
		return errors.Trace(err)
	}
	line := make([]string, frame.NumColumns())
	for i := 0; i < frame.NumRows(); i++ {
		for j, column := range frame.Columns {
			v := column.Values[i]
			switch {
			case math.IsNaN(v):
				line[j] = "NA"
			case column.IsCategorical():
				level, _ := column.Levels.String(int(v))
				line[j] = base.Escape(level)
			default:
				line[j] = encoding.FormatFloat64(v)
			}
		}
		if _, err := bw.WriteString(strings.Join(line, ",") + "\n"); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}

// LoadPoints reads points in the column layout of frame. Categorical fields are mapped
// to level indices of the frame and numeric fields are parsed as floats. With a header,
// fields are matched to frame columns by name and columns absent from frame are ignored.
func LoadPoints(r io.Reader, sep string, header bool, frame *Frame) ([][]float64, error) {
	var (
		indices []int // frame column of each field, -1 if ignored
		points  [][]float64
		err     error
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	readErr := base.ReadLines(sc, sep, func(i int, line []string) bool {
		if i == 0 && header {
			names := lo.Map(line, func(s string, _ int) string { return strings.TrimSpace(s) })
			indices = lo.Map(names, func(name string, _ int) int {
				_, j, _ := lo.FindIndexOf(frame.Columns, func(c *Column) bool { return c.Name == name })
				return j
			})
			for _, column := range frame.Columns {
				if !lo.Contains(names, column.Name) {
					err = errors.NotFoundf("column %s", column.Name)
					return false
				}
			}
			return true
		}
		if indices == nil {
			indices = lo.Range(frame.NumColumns())
		}
		if len(line) != len(indices) {
			err = errors.Errorf("line %d has %d fields, expected %d", i+1, len(line), len(indices))
			return false
		}
		point := make([]float64, frame.NumColumns())
		for k, field := range line {
			j := indices[k]
			if j < 0 {
				continue
			}
			field = strings.TrimSpace(field)
			column := frame.Columns[j]
			switch {
			case IsMissing(field):
				point[j] = math.NaN()
			case column.IsCategorical():
				level, ok := column.Levels.Lookup(field)
				if !ok {
					err = errors.NotFoundf("level %s of column %s", field, column.Name)
					return false
				}
				point[j] = float64(level)
			default:
				v, parseErr := strconv.ParseFloat(field, 64)
				if parseErr != nil {
					err = errors.Annotatef(parseErr, "line %d column %s", i+1, column.Name)
					return false
				}
				point[j] = v
			}
		}
		points = append(points, point)
		return true
	})
	if readErr != nil {
		return nil, errors.Trace(readErr)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return points, nil
}
