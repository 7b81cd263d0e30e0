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

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/glrm/model"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const (
	BlobPOSIX = "posix"
	BlobS3    = "s3"
	BlobGCS   = "gcs"
	BlobAzure = "azure"
)

// Config is the configuration of a GLRM fit job.
type Config struct {
	Model ModelConfig `mapstructure:"model"`
	Fit   FitConfig   `mapstructure:"fit"`
	Blob  BlobConfig  `mapstructure:"blob"`
}

// ModelConfig holds hyper-parameters of the factorization.
type ModelConfig struct {
	K               int     `mapstructure:"k" validate:"gte=1"`
	GammaX          float64 `mapstructure:"gamma_x" validate:"gte=0"`
	GammaY          float64 `mapstructure:"gamma_y" validate:"gte=0"`
	RegularizationX string  `mapstructure:"regularization_x" validate:"required"`
	RegularizationY string  `mapstructure:"regularization_y" validate:"required"`
	Loss            string  `mapstructure:"loss" validate:"required"`
	MultiLoss       string  `mapstructure:"multi_loss" validate:"required"`
	LossPeriod      float64 `mapstructure:"loss_period" validate:"gt=0"`
	Init            string  `mapstructure:"init" validate:"required"`
	MaxIterations   int     `mapstructure:"max_iterations" validate:"gte=1,lte=1000000"`
	InitStepSize    float64 `mapstructure:"init_step_size" validate:"gt=0"`
	MinStepSize     float64 `mapstructure:"min_step_size" validate:"gte=0,ltefield=InitStepSize"`
	Period          int     `mapstructure:"period" validate:"gt=0"`
	RandomState     int64   `mapstructure:"random_state"`
	Transform       string  `mapstructure:"transform" validate:"required"`
	RecoverSVD      bool    `mapstructure:"recover_svd"`
	LoadingKey      string  `mapstructure:"loading_key"`
	MaxCholesky     int     `mapstructure:"max_cholesky" validate:"gte=1"`
}

// FitConfig holds resources of a fit job.
type FitConfig struct {
	Jobs      int `mapstructure:"jobs" validate:"gt=0"`
	ChunkSize int `mapstructure:"chunk_size" validate:"gt=0"`
}

// BlobConfig selects the store of fitted models.
type BlobConfig struct {
	Type  string          `mapstructure:"type" validate:"oneof=posix s3 gcs azure"`
	Dir   string          `mapstructure:"dir"`
	S3    S3Config        `mapstructure:"s3"`
	GCS   GCSConfig       `mapstructure:"gcs"`
	Azure AzureBlobConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureBlobConfig struct {
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Endpoint         string `mapstructure:"endpoint"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

// GetDefaultConfig returns the configuration used when nothing is set.
func GetDefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			K:               1,
			RegularizationX: "None",
			RegularizationY: "None",
			Loss:            "Quadratic",
			MultiLoss:       "Categorical",
			LossPeriod:      1,
			Init:            "PlusPlus",
			MaxIterations:   1000,
			InitStepSize:    1,
			MinStepSize:     1e-4,
			Period:          1,
			Transform:       "NONE",
			MaxCholesky:     10,
		},
		Fit: FitConfig{
			Jobs:      1,
			ChunkSize: 1024,
		},
		Blob: BlobConfig{
			Type: BlobPOSIX,
			Dir:  "models",
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	var values map[string]any
	if err := mapstructure.Decode(defaultConfig, &values); err != nil {
		panic(err)
	}
	var walk func(prefix string, values map[string]any)
	walk = func(prefix string, values map[string]any) {
		for key, value := range values {
			if nested, ok := value.(map[string]any); ok {
				walk(prefix+key+".", nested)
			} else {
				v.SetDefault(prefix+key, value)
			}
		}
	}
	walk("", values)
}

// LoadConfig reads a TOML file, applies GLRM_* environment overrides and validates the result.
// An empty path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefault(v)
	v.SetEnvPrefix("GLRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &config, nil
}

func (config *Config) Validate() error {
	validate := validator.New()
	return validate.Struct(config)
}

// ToParams converts the model section into hyper-parameters.
func (config *ModelConfig) ToParams() model.Params {
	params := model.Params{
		model.K:               config.K,
		model.GammaX:          config.GammaX,
		model.GammaY:          config.GammaY,
		model.RegularizationX: config.RegularizationX,
		model.RegularizationY: config.RegularizationY,
		model.Loss:            config.Loss,
		model.MultiLoss:       config.MultiLoss,
		model.LossPeriod:      config.LossPeriod,
		model.Init:            config.Init,
		model.MaxIterations:   config.MaxIterations,
		model.InitStepSize:    config.InitStepSize,
		model.MinStepSize:     config.MinStepSize,
		model.Period:          config.Period,
		model.RandomState:     config.RandomState,
		model.Transform:       config.Transform,
		model.RecoverSVD:      config.RecoverSVD,
		model.MaxCholesky:     config.MaxCholesky,
	}
	if config.LoadingKey != "" {
		params[model.LoadingKey] = config.LoadingKey
	}
	return params
}
