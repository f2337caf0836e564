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
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/weaveloop/weaved/pkg/storage"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Force a manual compaction pass over every project's storage engine",
	Long: `compact walks data_dir for project_<id> directories, opens each
one's storage engine (replaying its WAL if the process was not shut
down cleanly), drains every compaction pass it currently owes, and
closes it again. Run it offline; it does not coordinate with a
running serve process over the same data_dir.`,
	Run: runCompact,
}

func runCompact(cmd *cobra.Command, args []string) {
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

	for _, projectID := range projectIDs {
		dir := filepath.Join(cfg.DataDir, fmt.Sprintf("project_%d", projectID))
		eng, err := storage.Open(dir, projectID, storage.DefaultConfig(), prometheus.NewRegistry(), logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "weaved: opening project %d: %v\n", projectID, err)
			os.Exit(exitStorageOpenFail)
		}
		if err := eng.Compact(); err != nil {
			fmt.Fprintf(os.Stderr, "weaved: compacting project %d: %v\n", projectID, err)
			eng.Close()
			os.Exit(1)
		}
		if err := eng.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "weaved: closing project %d: %v\n", projectID, err)
			os.Exit(1)
		}
		fmt.Printf("weaved: compacted project %d\n", projectID)
	}
}

// discoverProjectIDs scans dataDir for project_<id> directories, the
// layout pkg/project.Manager's projectDir lays out on disk.
func discoverProjectIDs(dataDir string) ([]uint16, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []uint16
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rest, ok := strings.CutPrefix(entry.Name(), "project_")
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(rest, 10, 16)
		if err != nil {
			continue
		}
		ids = append(ids, uint16(n))
	}
	return ids, nil
}
