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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gorse-io/glrm/base/encoding"
	"github.com/gorse-io/glrm/base/log"
	"github.com/gorse-io/glrm/config"
	"github.com/gorse-io/glrm/dataset"
	"github.com/gorse-io/glrm/model/glrm"
	"github.com/gorse-io/glrm/storage/blob"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

type fitOptions struct {
	Input        string
	Separator    string
	Header       bool
	WeightColumn string
	UserPoints   string // CSV of initial archetypes for init = User
	Output       string // reconstructed CSV, skipped if empty
	ModelName    string // skip saving if empty
	Progress     bool
	Trace        bool
}

func newFitConfig(conf *config.Config) *glrm.FitConfig {
	return glrm.NewFitConfig().
		SetJobs(conf.Fit.Jobs).
		SetChunkSize(conf.Fit.ChunkSize)
}

// fit trains a model on a CSV file and writes its outputs.
func fit(ctx context.Context, conf *config.Config, opts fitOptions, stdout io.Writer) (*glrm.Model, error) {
	file, err := os.Open(opts.Input)
	if err != nil {
		return nil, errors.Trace(err)
	}
	frame, err := dataset.LoadCSV(file, opts.Separator, opts.Header, opts.WeightColumn)
	_ = file.Close()
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", opts.Input)
	}
	log.Logger().Info("load dataset",
		zap.String("input", opts.Input),
		zap.Int("n_rows", frame.NumRows()),
		zap.Int("n_columns", frame.NumColumns()),
		zap.Int("n_missing", frame.CountMissing()))

	bar := progressbar.NewOptions(conf.Model.MaxIterations,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("fit glrm"),
		progressbar.OptionSetVisibility(opts.Progress),
		progressbar.OptionShowCount())
	fitConfig := newFitConfig(conf).SetObserver(func(glrm.Iteration) {
		_ = bar.Add(1)
	})
	if opts.UserPoints != "" {
		points, err := loadUserPoints(opts, frame)
		if err != nil {
			return nil, errors.Trace(err)
		}
		fitConfig.SetUserPoints(points)
	}
	m, err := glrm.NewGLRM(conf.Model.ToParams()).Fit(ctx, frame, fitConfig)
	_ = bar.Finish()
	if err != nil {
		return nil, errors.Trace(err)
	}

	if opts.Trace {
		if err = printTrace(stdout, m.History); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if err = printSummary(stdout, m); err != nil {
		return nil, errors.Trace(err)
	}

	if opts.ModelName != "" {
		store, err := blob.NewStore(conf.Blob)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err = glrm.Save(store, opts.ModelName, m); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if opts.Output != "" {
		reconstructed, err := m.Reconstruct(frame)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out, err := os.Create(opts.Output)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err = dataset.WriteCSV(out, reconstructed); err != nil {
			_ = out.Close()
			return nil, errors.Trace(err)
		}
		if err = out.Close(); err != nil {
			return nil, errors.Trace(err)
		}
		log.Logger().Info("write reconstruction", zap.String("output", opts.Output))
	}
	return m, nil
}

func loadUserPoints(opts fitOptions, frame *dataset.Frame) ([][]float64, error) {
	file, err := os.Open(opts.UserPoints)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	points, err := dataset.LoadPoints(file, opts.Separator, opts.Header, frame)
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", opts.UserPoints)
	}
	log.Logger().Info("load user points",
		zap.String("user_points", opts.UserPoints),
		zap.Int("n_points", len(points)))
	return points, nil
}

func printTrace(w io.Writer, history []glrm.Iteration) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Objective", "Step Size", "Avg Change", "Accepted", "Time")
	for _, it := range history {
		if err := table.Append([]string{
			fmt.Sprint(it.Iteration),
			encoding.FormatFloat64(it.Objective),
			encoding.FormatFloat64(it.StepSize),
			encoding.FormatFloat64(it.AvgChange),
			fmt.Sprint(it.Accepted),
			it.Elapsed.Round(time.Microsecond).String(),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func printSummary(w io.Writer, m *glrm.Model) error {
	table := tablewriter.NewWriter(w)
	table.Header("Summary", "Value")
	rows := [][]string{
		{"objective", encoding.FormatFloat64(m.Objective)},
		{"iterations", fmt.Sprint(m.Iterations)},
		{"step size", encoding.FormatFloat64(m.StepSize)},
		{"avg change", encoding.FormatFloat64(m.AvgChange)},
		{"observed", fmt.Sprint(m.NumObserved)},
		{"loading key", m.LoadingKey},
	}
	for i, value := range m.SingularValues {
		rows = append(rows, []string{fmt.Sprintf("singular value %d", i+1), encoding.FormatFloat64(value)})
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}
