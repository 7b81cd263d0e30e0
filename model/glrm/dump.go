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
	"io"

	"github.com/gorse-io/glrm/base/encoding"
	"github.com/gorse-io/glrm/base/log"
	"github.com/gorse-io/glrm/dataset"
	"github.com/gorse-io/glrm/model"
	"github.com/gorse-io/glrm/storage/blob"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// modelFormat leads a marshaled model.
const modelFormat = "glrm/v1"

type modelHeader struct {
	Params         model.Params
	Info           *dataset.DataInfo
	LoadingKey     string
	Objective      float64
	Iterations     int
	StepSize       float64
	AvgChange      float64
	NumObserved    int
	History        []Iteration
	SingularValues []float64
	LossType       LossType
	LossPeriod     float64
	MultiLossType  MultiLossType
}

// MarshalModel writes a model into a byte stream. X is written if present.
func MarshalModel(w io.Writer, m *Model) error {
	header := modelHeader{
		Params:         m.Params,
		Info:           m.Info,
		LoadingKey:     m.LoadingKey,
		Objective:      m.Objective,
		Iterations:     m.Iterations,
		StepSize:       m.StepSize,
		AvgChange:      m.AvgChange,
		NumObserved:    m.NumObserved,
		History:        m.History,
		SingularValues: m.SingularValues,
		LossType:       m.LossType,
		LossPeriod:     m.LossPeriod,
		MultiLossType:  m.MultiLossType,
	}
	if err := encoding.WriteString(w, modelFormat); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, header); err != nil {
		return errors.Trace(err)
	}
	// archetypes are stored as Y'
	if err := encoding.WriteDense(w, m.Archetypes.Y(true)); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteDense(w, m.Eigenvectors); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteDense(w, m.X); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// UnmarshalModel reads a model from a byte stream.
func UnmarshalModel(r io.Reader) (*Model, error) {
	format, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if format != modelFormat {
		return nil, errors.NotSupportedf("model format %q", format)
	}
	var header modelHeader
	if err = encoding.ReadGob(r, &header); err != nil {
		return nil, errors.Trace(err)
	}
	if header.Info == nil {
		return nil, errors.New("model has no data info")
	}
	yt, err := encoding.ReadDense(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if yt == nil {
		return nil, errors.New("model has no archetypes")
	}
	m := &Model{
		Params:         header.Params,
		Info:           header.Info,
		LoadingKey:     header.LoadingKey,
		Archetypes:     NewArchetypes(yt, true, header.Info.CatOffsets, header.Info.NumLevels),
		Objective:      header.Objective,
		Iterations:     header.Iterations,
		StepSize:       header.StepSize,
		AvgChange:      header.AvgChange,
		NumObserved:    header.NumObserved,
		History:        header.History,
		SingularValues: header.SingularValues,
		LossType:       header.LossType,
		LossPeriod:     header.LossPeriod,
		MultiLossType:  header.MultiLossType,
	}
	if m.Eigenvectors, err = encoding.ReadDense(r); err != nil {
		return nil, errors.Trace(err)
	}
	if m.X, err = encoding.ReadDense(r); err != nil {
		return nil, errors.Trace(err)
	}
	return m, nil
}

// Save writes a model to a store under name and its loading matrix under the
// loading key.
func Save(store blob.Store, name string, m *Model) error {
	if m.LoadingKey == "" {
		return errors.NotValidf("empty loading key")
	}
	if err := writeBlob(store, m.LoadingKey, func(w io.Writer) error {
		return encoding.WriteDense(w, m.X)
	}); err != nil {
		return errors.Trace(err)
	}
	shallow := *m
	shallow.X = nil
	if err := writeBlob(store, name, func(w io.Writer) error {
		return MarshalModel(w, &shallow)
	}); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("save glrm model",
		zap.String("name", name),
		zap.String("loading_key", m.LoadingKey))
	return nil
}

// Load reads a model and its loading matrix from a store.
func Load(store blob.Store, name string) (*Model, error) {
	r, err := store.Open(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()
	m, err := UnmarshalModel(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	xr, err := store.Open(m.LoadingKey)
	if err != nil {
		return nil, errors.Annotatef(err, "open loading matrix %s", m.LoadingKey)
	}
	defer xr.Close()
	if m.X, err = encoding.ReadDense(xr); err != nil {
		return nil, errors.Trace(err)
	}
	return m, nil
}

func writeBlob(store blob.Store, name string, write func(w io.Writer) error) error {
	w, done, err := store.Create(name)
	if err != nil {
		return errors.Trace(err)
	}
	if err = write(w); err != nil {
		_ = w.Close()
		<-done
		return errors.Trace(err)
	}
	if err = w.Close(); err != nil {
		return errors.Trace(err)
	}
	<-done
	return nil
}
