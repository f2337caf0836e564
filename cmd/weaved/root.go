// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weaveloop/weaved/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "weaved",
	Short:   "weaved — self-hosted observability and evaluation backend for LLM agents",
	Long:    "weaved ingests agent traces over HTTP and OTLP, indexes them for query and semantic search, runs deterministic and LLM-judge evaluators, and exports training data for the flywheel.",
	Version: versionString(),
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (or WEAVED_CONFIG env var)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		os.Setenv("WEAVED_CONFIG", cfgFile)
	}
	loaded, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "weaved: loading configuration: %v\n", err)
		os.Exit(exitFatalConfig)
	}
	cfg = loaded
}

// Exit codes per spec.md §6.6.
const (
	exitOK              = 0
	exitFatalConfig     = 1
	exitStorageOpenFail = 2
	exitPortBindFail    = 3
)
