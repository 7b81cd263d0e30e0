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
	"net/http"
	"os"
	"os/signal"

	"github.com/gorse-io/glrm/base/log"
	"github.com/gorse-io/glrm/cmd/version"
	"github.com/gorse-io/glrm/common/util"
	"github.com/gorse-io/glrm/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var glrmCommand = &cobra.Command{
	Use:   "glrm [flags] <csv>",
	Short: "Fit a generalized low rank model on a CSV file.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		// Show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		if len(args) == 0 {
			_ = cmd.Help()
			return
		}
		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)
		otel.SetErrorHandler(log.GetErrorHandler())

		configPath, _ := cmd.PersistentFlags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}

		if addr, _ := cmd.PersistentFlags().GetString("metrics-addr"); addr != "" {
			go func() {
				defer util.CheckPanic()
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				log.Logger().Info("start metrics server", zap.String("address", addr))
				if err := http.ListenAndServe(addr, mux); err != nil {
					log.Logger().Error("failed to serve metrics", zap.Error(err))
				}
			}()
		}

		opts := fitOptions{Input: args[0]}
		opts.Separator, _ = cmd.PersistentFlags().GetString("sep")
		noHeader, _ := cmd.PersistentFlags().GetBool("no-header")
		opts.Header = !noHeader
		opts.WeightColumn, _ = cmd.PersistentFlags().GetString("weight-column")
		opts.UserPoints, _ = cmd.PersistentFlags().GetString("user-points")
		opts.Output, _ = cmd.PersistentFlags().GetString("output")
		opts.ModelName, _ = cmd.PersistentFlags().GetString("model-name")
		opts.Trace, _ = cmd.PersistentFlags().GetBool("trace")
		quiet, _ := cmd.PersistentFlags().GetBool("quiet")
		opts.Progress = !quiet && !debug

		// Stop fitting on interrupt
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if _, err = fit(ctx, conf, opts, os.Stdout); err != nil {
			log.Logger().Fatal("failed to fit glrm", zap.Error(err))
		}
	},
}

func init() {
	log.AddFlags(glrmCommand.PersistentFlags())
	glrmCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	glrmCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	glrmCommand.PersistentFlags().BoolP("version", "v", false, "glrm version")
	glrmCommand.PersistentFlags().String("sep", ",", "field separator of the CSV file")
	glrmCommand.PersistentFlags().Bool("no-header", false, "the CSV file has no header line")
	glrmCommand.PersistentFlags().String("weight-column", "", "column used as row weights")
	glrmCommand.PersistentFlags().String("user-points", "", "CSV file of initial archetypes, required by init = User")
	glrmCommand.PersistentFlags().StringP("output", "o", "", "path of the reconstructed CSV file")
	glrmCommand.PersistentFlags().String("model-name", "glrm", "name of the model in the blob store, empty to skip saving")
	glrmCommand.PersistentFlags().Bool("trace", false, "print the iteration trace")
	glrmCommand.PersistentFlags().BoolP("quiet", "q", false, "hide the progress bar")
	glrmCommand.PersistentFlags().String("metrics-addr", "", "address to serve prometheus metrics")
}

func main() {
	if err := glrmCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
