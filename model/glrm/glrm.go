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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorse-io/glrm/base/log"
	"github.com/gorse-io/glrm/base/progress"
	"github.com/gorse-io/glrm/dataset"
	"github.com/gorse-io/glrm/model"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const tracerName = "github.com/gorse-io/glrm/model/glrm"

type InitType string

const (
	InitRandom   InitType = "Random"
	InitSVD      InitType = "SVD"
	InitPlusPlus InitType = "PlusPlus"
	InitUser     InitType = "User"
)

func ParseInit(s string) (InitType, error) {
	for _, t := range []InitType{InitRandom, InitSVD, InitPlusPlus, InitUser} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", errors.NotValidf("init %s", s)
}

type FitConfig struct {
	Jobs       int
	ChunkSize  int         // rows per partition
	UserPoints [][]float64 // initial archetypes in frame column order, k rows
	Observer   func(Iteration)
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:      1,
		ChunkSize: 1024,
	}
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) SetChunkSize(size int) *FitConfig {
	config.ChunkSize = size
	return config
}

func (config *FitConfig) SetUserPoints(points [][]float64) *FitConfig {
	config.UserPoints = points
	return config
}

func (config *FitConfig) SetObserver(observer func(Iteration)) *FitConfig {
	config.Observer = observer
	return config
}

// Iteration is one entry of the optimization trace.
type Iteration struct {
	Iteration int
	Objective float64 // candidate objective
	StepSize  float64 // step size after the iteration
	AvgChange float64
	Accepted  bool
	Elapsed   time.Duration
}

type GLRM struct {
	model.BaseModel
	// Hyper parameters
	k             int
	gammaX        float64
	gammaY        float64
	regXName      string
	regYName      string
	lossName      string
	multiLossName string
	lossPeriod    float64
	initName      string
	maxIterations int
	initStepSize  float64
	minStepSize   float64
	period        int
	transform     dataset.TransformType
	recoverSVD    bool
	loadingKey    string
	maxCholesky   int
	// Resolved by validate
	lossType      LossType
	multiLossType MultiLossType
	initType      InitType
	loss          *Loss
	multiLoss     *MultiLoss
	regX          *Regularizer
	regY          *Regularizer
}

func NewGLRM(params model.Params) *GLRM {
	glrm := new(GLRM)
	glrm.SetParams(params)
	return glrm
}

// SetParams sets hyper-parameters of the GLRM model.
func (glrm *GLRM) SetParams(params model.Params) {
	glrm.BaseModel.SetParams(params)
	glrm.k = glrm.Params.GetInt(model.K, 1)
	glrm.gammaX = glrm.Params.GetFloat64(model.GammaX, 0)
	glrm.gammaY = glrm.Params.GetFloat64(model.GammaY, 0)
	glrm.regXName = glrm.Params.GetString(model.RegularizationX, string(RegularizerNone))
	glrm.regYName = glrm.Params.GetString(model.RegularizationY, string(RegularizerNone))
	glrm.lossName = glrm.Params.GetString(model.Loss, string(LossQuadratic))
	glrm.multiLossName = glrm.Params.GetString(model.MultiLoss, string(MultiLossCategorical))
	glrm.lossPeriod = glrm.Params.GetFloat64(model.LossPeriod, 1)
	glrm.initName = glrm.Params.GetString(model.Init, string(InitPlusPlus))
	glrm.maxIterations = glrm.Params.GetInt(model.MaxIterations, 1000)
	glrm.initStepSize = glrm.Params.GetFloat64(model.InitStepSize, 1)
	glrm.minStepSize = glrm.Params.GetFloat64(model.MinStepSize, 1e-4)
	glrm.period = glrm.Params.GetInt(model.Period, 1)
	glrm.transform = dataset.TransformType(strings.ToUpper(glrm.Params.GetString(model.Transform, string(dataset.TransformNone))))
	glrm.recoverSVD = glrm.Params.GetBool(model.RecoverSVD, false)
	glrm.loadingKey = glrm.Params.GetString(model.LoadingKey, "")
	glrm.maxCholesky = glrm.Params.GetInt(model.MaxCholesky, DefaultMaxCholesky)
}

// hasClosedForm reports whether X = AYᵗ(YYᵗ + γI)⁻¹ minimizes the objective for fixed Y.
func (glrm *GLRM) hasClosedForm() bool {
	return glrm.lossType == LossQuadratic &&
		(glrm.gammaX == 0 || glrm.regX.Smooth()) &&
		(glrm.gammaY == 0 || glrm.regY.Smooth())
}

// Fit the GLRM model on a frame. The returned model holds the last committed X and Y.
func (glrm *GLRM) Fit(ctx context.Context, frame *dataset.Frame, config *FitConfig) (*Model, error) {
	if config == nil {
		config = NewFitConfig()
	}
	ctx, otelSpan := otel.Tracer(tracerName).Start(ctx, "GLRM.Fit")
	defer otelSpan.End()
	m, err := glrm.fit(ctx, frame, config)
	if err != nil {
		otelSpan.RecordError(err)
		otelSpan.SetStatus(codes.Error, err.Error())
		return nil, errors.Trace(err)
	}
	otelSpan.SetAttributes(
		attribute.Int("iterations", m.Iterations),
		attribute.Float64("objective", m.Objective))
	return m, nil
}

func (glrm *GLRM) fit(ctx context.Context, frame *dataset.Frame, config *FitConfig) (*Model, error) {
	transform, err := dataset.ParseTransform(string(glrm.transform))
	if err != nil {
		transform = dataset.TransformNone
	}
	info, err := dataset.NewDataInfo(frame, transform)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = glrm.validate(frame, info, config); err != nil {
		return nil, errors.Trace(err)
	}
	loadingKey := glrm.loadingKey
	if loadingKey == "" {
		loadingKey = "GLRMLoading_" + uuid.NewString()
	}
	log.Logger().Info("fit glrm",
		zap.Int("n_rows", frame.NumRows()),
		zap.Int("n_columns", frame.NumColumns()),
		zap.Int("n_expanded", info.NumExpanded()),
		zap.String("params", glrm.GetParams().ToString()),
		zap.Int("jobs", config.Jobs),
		zap.Int("chunk_size", config.ChunkSize))

	p := glrm.newProblem(frame, info, config)
	// in-flight partition work always completes, cancellation is observed between iterations
	kernelCtx := context.WithoutCancel(ctx)

	x, y, err := p.initialize(kernelCtx, glrm, config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	loss, xReg, err := p.objective(kernelCtx, x, y, glrm.regX.Type != RegularizerNone && glrm.gammaX != 0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ctl := newController(glrm.initStepSize, loss+penalty(glrm.gammaX, xReg)+penalty(glrm.gammaY, p.regularizeY(y)))
	log.Logger().Debug(fmt.Sprintf("fit glrm %v/%v", 0, glrm.maxIterations),
		zap.Float64("objective", ctl.objective))

	xOld, xNew := x, mat.NewDense(p.n, p.k, nil)
	var history []Iteration
	_, span := progress.Start(ctx, "GLRM.Fit", glrm.maxIterations)
	for {
		done, err := ctl.done(ctx, glrm.maxIterations, glrm.minStepSize, glrm.period)
		if err != nil {
			span.Fail(err)
			log.Logger().Info("fit glrm cancelled", zap.Int("iterations", ctl.iterations))
			return nil, errors.Trace(err)
		}
		if done {
			break
		}
		start := time.Now()
		alpha := ctl.step / float64(p.ncolA)
		// update X given fixed Y
		xStats, err := p.updateX(kernelCtx, xOld, xNew, y, alpha)
		if err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		// update Y given fixed X
		yNew, yReg, err := p.updateY(kernelCtx, xNew, y, alpha)
		if err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		loss, _, err := p.objective(kernelCtx, xNew, yNew, false)
		if err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		objNew := loss + penalty(glrm.gammaX, xStats.reg) + penalty(glrm.gammaY, yReg)
		accepted := ctl.update(objNew, p.nObserved)
		if accepted {
			xOld, xNew = xNew, xOld
			y = yNew
		} else {
			log.Logger().Info(fmt.Sprintf("fit glrm %v/%v objective increased", ctl.iterations, glrm.maxIterations),
				zap.Float64("objective", objNew),
				zap.Float64("step_size", ctl.step))
		}
		iteration := Iteration{
			Iteration: ctl.iterations,
			Objective: objNew,
			StepSize:  ctl.step,
			AvgChange: ctl.avgChange,
			Accepted:  accepted,
			Elapsed:   time.Since(start),
		}
		history = append(history, iteration)
		observe(iteration, ctl.objective)
		if config.Observer != nil {
			config.Observer(iteration)
		}
		log.Logger().Debug(fmt.Sprintf("fit glrm %v/%v", ctl.iterations, glrm.maxIterations),
			zap.Float64("objective", ctl.objective),
			zap.Float64("x_loss", xStats.loss),
			zap.Float64("step_size", ctl.step),
			zap.Float64("avg_change", ctl.avgChange),
			zap.String("fit_time", iteration.Elapsed.String()))
		span.Add(1)
	}
	span.End()

	m := &Model{
		Params:        glrm.GetParams().Copy(),
		Info:          info,
		LoadingKey:    loadingKey,
		X:             xOld,
		Archetypes:    y,
		Objective:     ctl.objective,
		Iterations:    ctl.iterations,
		StepSize:      ctl.step,
		AvgChange:     ctl.avgChange,
		NumObserved:   p.nObserved,
		History:       history,
		LossType:      glrm.lossType,
		LossPeriod:    glrm.lossPeriod,
		MultiLossType: glrm.multiLossType,
	}
	if glrm.recoverSVD {
		_, svdSpan := otel.Tracer(tracerName).Start(ctx, "GLRM.RecoverSVD")
		m.SingularValues, m.Eigenvectors, err = RecoverSVD(m.X, m.Archetypes, glrm.maxCholesky)
		svdSpan.End()
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	log.Logger().Info("fit glrm complete",
		zap.Float64("objective", m.Objective),
		zap.Int("iterations", m.Iterations),
		zap.Float64("step_size", m.StepSize),
		zap.Float64("avg_change", m.AvgChange),
		zap.String("loading_key", m.LoadingKey))
	return m, nil
}
