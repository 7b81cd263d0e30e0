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
	"strings"

	"github.com/juju/errors"
)

type LossType string

const (
	LossQuadratic LossType = "Quadratic"
	LossAbsolute  LossType = "Absolute"
	LossHuber     LossType = "Huber"
	LossPoisson   LossType = "Poisson"
	LossHinge     LossType = "Hinge"
	LossLogistic  LossType = "Logistic"
	LossPeriodic  LossType = "Periodic"
)

var lossTypes = []LossType{LossQuadratic, LossAbsolute, LossHuber, LossPoisson, LossHinge, LossLogistic, LossPeriodic}

func ParseLoss(s string) (LossType, error) {
	for _, t := range lossTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", errors.NotValidf("loss %s", s)
}

type MultiLossType string

const (
	MultiLossCategorical MultiLossType = "Categorical"
	MultiLossOrdinal     MultiLossType = "Ordinal"
)

func ParseMultiLoss(s string) (MultiLossType, error) {
	for _, t := range []MultiLossType{MultiLossCategorical, MultiLossOrdinal} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", errors.NotValidf("multi-loss %s", s)
}

// Loss is the loss of a numeric entry between prediction u and observation a.
type Loss struct {
	Type LossType
	loss func(u, a float64) float64
	grad func(u, a float64) float64
}

// NewLoss resolves the loss functions. The period is only used by the periodic loss.
func NewLoss(t LossType, period float64) (*Loss, error) {
	l := &Loss{Type: t}
	switch t {
	case LossQuadratic:
		l.loss = func(u, a float64) float64 { return (u - a) * (u - a) }
		l.grad = func(u, a float64) float64 { return 2 * (u - a) }
	case LossAbsolute:
		l.loss = func(u, a float64) float64 { return math.Abs(u - a) }
		l.grad = func(u, a float64) float64 { return sign(u - a) }
	case LossHuber:
		l.loss = func(u, a float64) float64 {
			d := u - a
			if math.Abs(d) <= 1 {
				return 0.5 * d * d
			}
			return math.Abs(d) - 0.5
		}
		l.grad = func(u, a float64) float64 {
			d := u - a
			if math.Abs(d) <= 1 {
				return d
			}
			return sign(d)
		}
	case LossPoisson:
		l.loss = func(u, a float64) float64 {
			// a·log(a) vanishes at a = 0
			var alog float64
			if a != 0 {
				alog = a * math.Log(a)
			}
			return math.Exp(u) - a*u + alog - a
		}
		l.grad = func(u, a float64) float64 { return math.Exp(u) - a }
	case LossHinge:
		l.loss = func(u, a float64) float64 { return math.Max(1-(2*a-1)*u, 0) }
		l.grad = func(u, a float64) float64 {
			s := 2*a - 1
			if s*u < 1 {
				return -s
			}
			return 0
		}
	case LossLogistic:
		l.loss = func(u, a float64) float64 { return math.Log1p(math.Exp(-(2*a - 1) * u)) }
		l.grad = func(u, a float64) float64 {
			s := 2*a - 1
			return -s / (1 + math.Exp(s*u))
		}
	case LossPeriodic:
		if period <= 0 {
			return nil, errors.NotValidf("period %v", period)
		}
		f := 2 * math.Pi / period
		l.loss = func(u, a float64) float64 { return 1 - math.Cos((a-u)*f) }
		l.grad = func(u, a float64) float64 { return -f * math.Sin((a-u)*f) }
	default:
		return nil, errors.NotValidf("loss %s", t)
	}
	return l, nil
}

func (l *Loss) Loss(u, a float64) float64 {
	return l.loss(u, a)
}

// Grad returns ∂L/∂u.
func (l *Loss) Grad(u, a float64) float64 {
	return l.grad(u, a)
}

// Impute returns the observation that best matches prediction u.
func (l *Loss) Impute(u float64) float64 {
	switch l.Type {
	case LossPoisson:
		return math.Exp(u)
	case LossHinge, LossLogistic:
		if u > 0 {
			return 1
		}
		return 0
	}
	return u
}

// MultiLoss is the loss of a categorical entry between the block product u (one value
// per level) and the observed level a.
type MultiLoss struct {
	Type MultiLossType
	loss func(u []float64, a int) float64
	grad func(u []float64, a int, dst []float64)
}

func NewMultiLoss(t MultiLossType) (*MultiLoss, error) {
	l := &MultiLoss{Type: t}
	switch t {
	case MultiLossCategorical:
		l.loss = func(u []float64, a int) float64 {
			var sum float64
			for level, v := range u {
				if level == a {
					sum += math.Max(1-v, 0)
				} else {
					sum += math.Max(1+v, 0)
				}
			}
			return sum
		}
		l.grad = func(u []float64, a int, dst []float64) {
			for level, v := range u {
				switch {
				case level == a && v < 1:
					dst[level] = -1
				case level != a && v > -1:
					dst[level] = 1
				default:
					dst[level] = 0
				}
			}
		}
	case MultiLossOrdinal:
		l.loss = func(u []float64, a int) float64 {
			var sum float64
			for level := 0; level < len(u)-1; level++ {
				if level < a {
					sum += math.Max(1-u[level], 0)
				} else {
					sum += math.Max(1+u[level], 0)
				}
			}
			return sum
		}
		l.grad = func(u []float64, a int, dst []float64) {
			for level := range u {
				switch {
				case level == len(u)-1:
					dst[level] = 0
				case level < a && u[level] < 1:
					dst[level] = -1
				case level >= a && u[level] > -1:
					dst[level] = 1
				default:
					dst[level] = 0
				}
			}
		}
	default:
		return nil, errors.NotValidf("multi-loss %s", t)
	}
	return l, nil
}

func (l *MultiLoss) Loss(u []float64, a int) float64 {
	return l.loss(u, a)
}

// Grad writes the gradient over levels into dst.
func (l *MultiLoss) Grad(u []float64, a int, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(u))
	}
	l.grad(u, a, dst)
	return dst
}

// Impute returns the level that best matches the block product u.
func (l *MultiLoss) Impute(u []float64) int {
	if l.Type == MultiLossOrdinal {
		level := 0
		for level < len(u)-1 && u[level] > 0 {
			level++
		}
		return level
	}
	best := 0
	for level, v := range u {
		if v > u[best] {
			best = level
		}
	}
	return best
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
