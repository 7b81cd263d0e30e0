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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
)

const LabelResult = "result"

var (
	ObjectiveGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "glrm",
		Subsystem: "fit",
		Name:      "objective",
	})
	StepSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "glrm",
		Subsystem: "fit",
		Name:      "step_size",
	})
	IterationSecondsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "glrm",
		Subsystem: "fit",
		Name:      "iteration_seconds",
	})
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glrm",
		Subsystem: "fit",
		Name:      "steps_total",
	}, []string{LabelResult})
)

// observe exports an iteration. objective is the objective of the committed model.
func observe(iteration Iteration, objective float64) {
	ObjectiveGauge.Set(objective)
	StepSizeGauge.Set(iteration.StepSize)
	IterationSecondsGauge.Set(iteration.Elapsed.Seconds())
	StepsTotal.WithLabelValues(lo.If(iteration.Accepted, "accepted").Else("rejected")).Inc()
}
