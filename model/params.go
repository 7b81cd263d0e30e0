// Copyright 2020 gorse Project Authors
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

package model

import (
	"encoding/json"
	"reflect"

	"github.com/gorse-io/glrm/base/log"
	"go.uber.org/zap"
)

/* ParamName */

type ParamName string

const (
	K               ParamName = "K"               // rank of the factorization
	GammaX          ParamName = "GammaX"          // regularization weight on X
	GammaY          ParamName = "GammaY"          // regularization weight on Y
	RegularizationX ParamName = "RegularizationX" // regularizer on rows of X
	RegularizationY ParamName = "RegularizationY" // regularizer on rows of Y
	Loss            ParamName = "Loss"            // loss of numeric columns
	MultiLoss       ParamName = "MultiLoss"       // loss of categorical columns
	LossPeriod      ParamName = "LossPeriod"      // period of the periodic loss
	Init            ParamName = "Init"            // initialization strategy
	MaxIterations   ParamName = "MaxIterations"   // maximum number of outer iterations
	InitStepSize    ParamName = "InitStepSize"    // initial step size
	MinStepSize     ParamName = "MinStepSize"     // minimum step size
	Period          ParamName = "Period"          // iterations between convergence checks
	RandomState     ParamName = "RandomState"     // random state (seed)
	Transform       ParamName = "Transform"       // transformation of numeric columns
	RecoverSVD      ParamName = "RecoverSVD"      // recover singular values after fitting
	LoadingKey      ParamName = "LoadingKey"      // key of the persisted loading matrix
	MaxCholesky     ParamName = "MaxCholesky"     // attempts of the regularized Cholesky
)

type Params map[ParamName]interface{}

func (parameters Params) Copy() Params {
	newParams := make(Params)
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		case int64:
			return int(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int64"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

func (parameters Params) GetBool(name ParamName, _default bool) bool {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case bool:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "bool"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

func (parameters Params) GetFloat64(name ParamName, _default float64) float64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float64:
			return val
		case float32:
			return float64(val)
		case int:
			return float64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "float64"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

func (parameters Params) GetString(name ParamName, _default string) string {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case string:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "string"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

func (parameters Params) ToString() string {
	b, err := json.Marshal(parameters)
	if err != nil {
		log.Logger().Error("failed to marshal params", zap.Error(err))
		return ""
	}
	return string(b)
}
