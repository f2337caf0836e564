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
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/weaveloop/weaved/pkg/storage"
)

// storageFormatVersion is the on-disk WAL/manifest/sstable layout
// version this build writes and expects to read. There is only one
// version today; migrate exists so a future layout change has
// somewhere to land without inventing a new CLI surface.
const storageFormatVersion = 1

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Verify every project's on-disk storage is readable by this build",
	Long: `migrate opens every project_<id> directory under data_dir with the
current storage engine, confirming its WAL and manifest replay
cleanly, then closes it again. There is a single on-disk format
version today, so this is a verification pass rather than an actual
schema transform — it is the landing point for a future format
migration once one exists, the same way the data is read back and
re-validated before any storage upgrade.`,
	Run: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) {
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	projectIDs, err := discoverProjectIDs(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weaved: scanning data dir: %v\n", err)
		os.Exit(exitStorageOpenFail)
	}
	if len(projectIDs) == 0 {
		fmt.Println("weaved: no project directories found under", cfg.DataDir)
		return
	}

	fmt.Printf("weaved: storage format version %d, checking %d project(s)\n", storageFormatVersion, len(projectIDs))
	for _, projectID := range projectIDs {
		dir := filepath.Join(cfg.DataDir, fmt.Sprintf("project_%d", projectID))
		eng, err := storage.Open(dir, projectID, storage.DefaultConfig(), prometheus.NewRegistry(), logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "weaved: project %d failed to open: %v\n", projectID, err)
			os.Exit(exitStorageOpenFail)
		}
		if err := eng.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "weaved: project %d failed to close cleanly: %v\n", projectID, err)
			os.Exit(1)
		}
		fmt.Printf("weaved: project %d ok\n", projectID)
	}
}
