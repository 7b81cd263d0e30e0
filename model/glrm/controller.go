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
	"math"

	"github.com/juju/errors"
)

const (
	tolerance  = 1e-6
	growFactor = 1.05
	minShrink  = 1.5
)

// controller owns the step size and decides whether a candidate is committed.
type controller struct {
	step       float64
	run        int // consecutive accepted steps if positive, rejected steps if negative
	iterations int
	objective  float64 // objective of the committed model
	avgChange  float64
}

func newController(step, objective float64) *controller {
	return &controller{
		step:      step,
		objective: objective,
		avgChange: 2 * tolerance, // run at least one iteration
	}
}

// done reports whether the loop should stop. Cancellation is returned as an error.
func (c *controller) done(ctx context.Context, maxIterations int, minStep float64, period int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, errors.Trace(err)
	}
	if c.iterations >= maxIterations {
		return true, nil
	}
	if c.step <= minStep {
		return true, nil
	}
	if period <= 0 {
		period = 1
	}
	if c.iterations%period == 0 && c.iterations > 10 && c.run >= 3 && math.Abs(c.avgChange) < tolerance {
		return true, nil
	}
	return false, nil
}

// update records the objective of a candidate and returns true if it is accepted.
func (c *controller) update(objective float64, nObserved int) bool {
	c.avgChange = (c.objective - objective) / float64(max(nObserved, 1))
	c.iterations++
	if c.avgChange > 0 {
		c.objective = objective
		c.step *= growFactor
		c.run = max(1, c.run+1)
		return true
	}
	c.step /= math.Max(minShrink, float64(-c.run))
	c.run = min(0, c.run-1)
	return false
}
