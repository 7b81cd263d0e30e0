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

package blob

import (
	"io"

	"github.com/gorse-io/glrm/config"
	"github.com/juju/errors"
)

// Store keeps fitted models and loading matrices as named blobs.
type Store interface {
	// Open a blob for reading.
	Open(name string) (io.ReadCloser, error)
	// Create a blob for writing. The done channel is closed once the blob is persisted.
	Create(name string) (io.WriteCloser, chan struct{}, error)
	// List names of all blobs.
	List() ([]string, error)
	// Remove a blob.
	Remove(name string) error
}

var (
	_ Store = (*POSIX)(nil)
	_ Store = (*S3)(nil)
	_ Store = (*GCS)(nil)
	_ Store = (*AzureBlob)(nil)
)

// NewStore creates a blob store by the type in the config.
func NewStore(cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case config.BlobPOSIX:
		return NewPOSIX(cfg.Dir), nil
	case config.BlobS3:
		return NewS3(cfg.S3)
	case config.BlobGCS:
		return NewGCS(cfg.GCS)
	case config.BlobAzure:
		return NewAzureBlob(cfg.Azure, cfg.Azure.Container, cfg.Azure.Prefix)
	default:
		return nil, errors.NotSupportedf("blob store %s", cfg.Type)
	}
}
