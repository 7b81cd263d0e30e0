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
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorse-io/glrm/config"
	"github.com/gorse-io/glrm/dataset"
	"github.com/gorse-io/glrm/model/glrm"
	"github.com/gorse-io/glrm/storage/blob"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func writeTestCSV(t *testing.T, dir string) string {
	var builder strings.Builder
	builder.WriteString("a,b,c,color\n")
	for i := 0; i < 30; i++ {
		u := float64(i%7) - 3
		v := float64(i%5) - 2
		color := "red"
		if i%2 == 1 {
			color = "blue"
		}
		if i == 4 {
			builder.WriteString(fmt.Sprintf("NA,%v,%v,%s\n", u-v, 2*u+v, color))
			continue
		}
		builder.WriteString(fmt.Sprintf("%v,%v,%v,%s\n", u+v, u-v, 2*u+v, color))
	}
	path := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(builder.String()), 0644))
	return path
}

func TestNewFitConfig(t *testing.T) {
	conf := config.GetDefaultConfig()
	conf.Fit.Jobs = 3
	conf.Fit.ChunkSize = 64
	fitConfig := newFitConfig(conf)
	assert.Equal(t, 3, fitConfig.Jobs)
	assert.Equal(t, 64, fitConfig.ChunkSize)
	assert.Nil(t, fitConfig.Observer)
}

func TestFit(t *testing.T) {
	dir := t.TempDir()
	conf := config.GetDefaultConfig()
	conf.Model.K = 2
	conf.Model.Init = string(glrm.InitSVD)
	conf.Model.Transform = string(dataset.TransformStandardize)
	conf.Model.MaxIterations = 50
	conf.Model.RecoverSVD = true
	conf.Blob.Dir = filepath.Join(dir, "models")
	opts := fitOptions{
		Input:     writeTestCSV(t, dir),
		Separator: ",",
		Header:    true,
		Output:    filepath.Join(dir, "output.csv"),
		ModelName: "glrm",
		Trace:     true,
	}

	var stdout bytes.Buffer
	m, err := fit(context.Background(), conf, opts, &stdout)
	require.NoError(t, err)
	assert.Positive(t, m.Iterations)
	assert.Len(t, m.History, m.Iterations)
	assert.Len(t, m.SingularValues, 2)
	assert.Contains(t, stdout.String(), m.LoadingKey)

	// reconstruction has no missing values
	file, err := os.Open(opts.Output)
	require.NoError(t, err)
	defer file.Close()
	reconstructed, err := dataset.LoadCSV(file, ",", true, "")
	require.NoError(t, err)
	assert.Equal(t, 30, reconstructed.NumRows())
	assert.Equal(t, 4, reconstructed.NumColumns())
	assert.Zero(t, reconstructed.CountMissing())
	assert.True(t, reconstructed.Columns[3].IsCategorical())

	// model is saved
	store, err := blob.NewStore(conf.Blob)
	require.NoError(t, err)
	loaded, err := glrm.Load(store, "glrm")
	require.NoError(t, err)
	assert.Equal(t, m.Objective, loaded.Objective)
	assert.Equal(t, m.LoadingKey, loaded.LoadingKey)
	assert.True(t, mat.Equal(m.X, loaded.X))
}

func TestFitNoSave(t *testing.T) {
	dir := t.TempDir()
	conf := config.GetDefaultConfig()
	conf.Model.K = 1
	conf.Model.MaxIterations = 5
	conf.Blob.Dir = filepath.Join(dir, "models")
	opts := fitOptions{
		Input:     writeTestCSV(t, dir),
		Separator: ",",
		Header:    true,
	}
	var stdout bytes.Buffer
	_, err := fit(context.Background(), conf, opts, &stdout)
	require.NoError(t, err)
	assert.NoDirExists(t, conf.Blob.Dir)
}

func TestFitUserPoints(t *testing.T) {
	dir := t.TempDir()
	conf := config.GetDefaultConfig()
	conf.Model.K = 2
	conf.Model.Init = string(glrm.InitUser)
	conf.Model.MaxIterations = 20
	opts := fitOptions{
		Input:     writeTestCSV(t, dir),
		Separator: ",",
		Header:    true,
	}
	// user points are required
	_, err := fit(context.Background(), conf, opts, &bytes.Buffer{})
	assert.Error(t, err)

	// fields are matched by name
	opts.UserPoints = filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(opts.UserPoints, []byte("color,c,b,a\nred,1,0,1\nblue,-1,1,0\n"), 0644))
	m, err := fit(context.Background(), conf, opts, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Positive(t, m.Iterations)

	// unknown level
	require.NoError(t, os.WriteFile(opts.UserPoints, []byte("a,b,c,color\n1,0,1,green\n0,1,-1,red\n"), 0644))
	_, err = fit(context.Background(), conf, opts, &bytes.Buffer{})
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestFitInvalidInput(t *testing.T) {
	dir := t.TempDir()
	conf := config.GetDefaultConfig()
	_, err := fit(context.Background(), conf, fitOptions{Input: filepath.Join(dir, "missing.csv")}, &bytes.Buffer{})
	assert.Error(t, err)

	// k exceeds the number of expanded columns
	conf.Model.K = 10
	_, err = fit(context.Background(), conf, fitOptions{
		Input:     writeTestCSV(t, dir),
		Separator: ",",
		Header:    true,
	}, &bytes.Buffer{})
	assert.Error(t, err)
}
