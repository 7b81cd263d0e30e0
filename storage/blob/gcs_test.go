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
	"testing"

	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/gorse-io/glrm/config"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCS(t *testing.T) {
	server, err := fakestorage.NewServerWithOptions(fakestorage.Options{
		Scheme:     "http",
		Port:       5050,
		PublicHost: "localhost:5050",
	})
	require.NoError(t, err)
	defer server.Stop()
	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: "glrm-test"})
	t.Setenv("GCS_EMULATOR_ENDPOINT", "http://localhost:5050/storage/v1/")

	client, err := NewGCS(config.GCSConfig{
		Bucket: "glrm-test",
		Prefix: "/models/",
	})
	require.NoError(t, err)
	assert.Equal(t, "models", client.prefix)

	// write a model and its loading matrix
	for _, name := range []string{"glrm", "GLRMLoading_0"} {
		w, done, err := client.Create(name)
		assert.NoError(t, err)
		_, err = w.Write([]byte(name))
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
		<-done
	}
	names, err := client.List()
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"glrm", "GLRMLoading_0"}, names)

	r, err := client.Open("glrm")
	assert.NoError(t, err)
	data, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "glrm", string(data))
	assert.NoError(t, r.Close())

	// missing blobs
	_, err = client.Open("missing")
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.True(t, errors.Is(client.Remove("missing"), errors.NotFound))

	assert.NoError(t, client.Remove("GLRMLoading_0"))
	names, err = client.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"glrm"}, names)
}
