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
	"math"
	"strings"

	"github.com/gorse-io/glrm/base/log"
	"github.com/gorse-io/glrm/dataset"
	"go.uber.org/zap"
)

const (
	maxIterationsLimit = 1e6
	wideThreshold      = 5000
)

// FieldError is a problem with one parameter.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every problem found before fitting.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	messages := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		messages[i] = err.String()
	}
	return fmt.Sprintf("invalid glrm parameters: %s", strings.Join(messages, "; "))
}

func (e *ValidationError) Add(field, format string, args ...interface{}) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Fields returns the names of the invalid parameters.
func (e *ValidationError) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		fields[i] = err.Field
	}
	return fields
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// validate checks hyper-parameters, the training frame and the fit config. The resolved
// loss and regularizers are stored in glrm when valid.
func (glrm *GLRM) validate(frame *dataset.Frame, info *dataset.DataInfo, config *FitConfig) error {
	v := new(ValidationError)
	if glrm.gammaX < 0 {
		v.Add("gamma_x", "must be non-negative, got %v", glrm.gammaX)
	}
	if glrm.gammaY < 0 {
		v.Add("gamma_y", "must be non-negative, got %v", glrm.gammaY)
	}
	if glrm.maxIterations < 1 || glrm.maxIterations > maxIterationsLimit {
		v.Add("max_iterations", "must be between 1 and 1e6 inclusive, got %d", glrm.maxIterations)
	}
	if glrm.initStepSize <= 0 {
		v.Add("init_step_size", "must be positive, got %v", glrm.initStepSize)
	}
	if glrm.minStepSize < 0 || glrm.minStepSize > glrm.initStepSize {
		v.Add("min_step_size", "must be in [0, %v], got %v", glrm.initStepSize, glrm.minStepSize)
	}
	if glrm.period <= 0 {
		v.Add("period", "must be positive, got %d", glrm.period)
	}
	var err error
	if glrm.lossType, err = ParseLoss(glrm.lossName); err != nil {
		v.Add("loss", "%v", err)
	} else if glrm.loss, err = NewLoss(glrm.lossType, glrm.lossPeriod); err != nil {
		v.Add("period", "%v", err)
	}
	if glrm.multiLossType, err = ParseMultiLoss(glrm.multiLossName); err != nil {
		v.Add("multi_loss", "%v", err)
	} else {
		glrm.multiLoss, _ = NewMultiLoss(glrm.multiLossType)
	}
	if t, err := ParseRegularizer(glrm.regXName); err != nil {
		v.Add("regularization_x", "%v", err)
	} else {
		glrm.regX, _ = NewRegularizer(t)
	}
	if t, err := ParseRegularizer(glrm.regYName); err != nil {
		v.Add("regularization_y", "%v", err)
	} else {
		glrm.regY, _ = NewRegularizer(t)
	}
	if glrm.initType, err = ParseInit(glrm.initName); err != nil {
		v.Add("init", "%v", err)
	}
	if _, err = dataset.ParseTransform(string(glrm.transform)); err != nil {
		v.Add("transform", "%v", err)
	}

	if frame.NumColumns() < 2 {
		v.Add("training_frame", "must have at least 2 columns")
	}
	if frame.NumRows() == 0 {
		v.Add("training_frame", "must have at least 1 row")
	}
	if info != nil {
		nExpanded := info.NumExpanded()
		if nExpanded > wideThreshold {
			log.Logger().Warn("wide training frame, fitting may be slow", zap.Int("expanded_columns", nExpanded))
		}
		if glrm.k < 1 || glrm.k > min(nExpanded, frame.NumRows()) {
			v.Add("k", "must be between 1 and %d inclusive, got %d", min(nExpanded, frame.NumRows()), glrm.k)
		}
	}
	for i, w := range frame.Weights {
		if w < 0 || math.IsNaN(w) {
			v.Add("weights", "row %d has invalid weight %v", i, w)
			break
		}
	}

	if config.UserPoints != nil {
		if glrm.initType != InitUser {
			v.Add("user_points", "require init = %s", InitUser)
		}
		if validateUserPoints(v, config.UserPoints, glrm.k, frame.NumColumns()) && info != nil {
			validateUserLevels(v, config.UserPoints, info)
		}
	} else if glrm.initType == InitUser {
		v.Add("user_points", "required by init = %s", InitUser)
	}
	return v.orNil()
}

// validateUserPoints returns true if the shape and values of points are valid.
func validateUserPoints(v *ValidationError, points [][]float64, k, ncol int) bool {
	if len(points) != k {
		v.Add("user_points", "must have k = %d rows, got %d", k, len(points))
		return false
	}
	allZero := true
	for i, row := range points {
		if len(row) != ncol {
			v.Add("user_points", "row %d must have %d columns, got %d", i, ncol, len(row))
			return false
		}
		for _, val := range row {
			if math.IsNaN(val) {
				v.Add("user_points", "must not contain missing values")
				return false
			}
			if val != 0 {
				allZero = false
			}
		}
	}
	if allZero {
		v.Add("user_points", "must not be all zeros")
		return false
	}
	return true
}

// validateUserLevels checks that categorical entries of user points are level indices.
func validateUserLevels(v *ValidationError, points [][]float64, info *dataset.DataInfo) {
	for i, row := range points {
		for j := 0; j < info.NumCats; j++ {
			level := row[info.Permutation[j]]
			if level != math.Trunc(level) || level < 0 || int(level) >= info.NumLevels[j] {
				v.Add("user_points", "row %d has invalid level %v in column %d", i, level, info.Permutation[j])
				return
			}
		}
	}
}
