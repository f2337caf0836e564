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
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/weaveloop/weaved/internal/config"
	"github.com/weaveloop/weaved/internal/log"
	"github.com/weaveloop/weaved/internal/otlp"
	"github.com/weaveloop/weaved/pkg/admission"
	"github.com/weaveloop/weaved/pkg/api"
	"github.com/weaveloop/weaved/pkg/causal"
	"github.com/weaveloop/weaved/pkg/concept"
	"github.com/weaveloop/weaved/pkg/cost"
	"github.com/weaveloop/weaved/pkg/eval"
	"github.com/weaveloop/weaved/pkg/eval/deterministic"
	"github.com/weaveloop/weaved/pkg/eval/llmjudge"
	"github.com/weaveloop/weaved/pkg/flywheel"
	"github.com/weaveloop/weaved/pkg/project"
	"github.com/weaveloop/weaved/pkg/query"
	"github.com/weaveloop/weaved/pkg/sanitize"
	"github.com/weaveloop/weaved/pkg/storage"
	"github.com/weaveloop/weaved/pkg/storagemetrics"
	"github.com/weaveloop/weaved/pkg/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the weaved ingest, query, and evaluator server",
	Long: `Start weaved: listen for trace ingest over HTTP and OTLP/gRPC,
serve query and evaluator invocation over HTTP, run the flywheel export
on its configured schedule, and log changes to the sanitization limits
file (running limits and pricing are not reloaded).

Press Ctrl+C to shut down gracefully.`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	log.SetLogger(logger)

	reg := prometheus.DefaultRegisterer

	pricing := cost.NewPricingTable()
	limits := sanitize.DefaultLimits()

	// One causal graph, vector index, concept index and metrics index
	// are shared by every project for the life of the process, which
	// keeps the query service wiring simple for a single-binary
	// deployment. They live only in memory and are not rebuilt from the
	// WAL on open; the vector index filters results by tenant at read
	// time, and the metrics index is keyed by project.
	graph := causal.NewGraph()
	vecIndex := vector.New(vector.DefaultConfig())
	conceptIndex := concept.NewIndex()
	metricsIndex := storagemetrics.NewIndex()

	opener := func(dataDir string, projectID uint16) (*storage.Engine, error) {
		return storage.Open(dataDir, projectID, storage.DefaultConfig(), reg, logger)
	}
	projects := project.New(cfg.DataDir, 64, opener, reg, logger)

	admissionCtrl := admission.New(admission.DefaultConfig(), reg, "ingest")

	evalLogPath := filepath.Join(cfg.DataDir, "eval.log")
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "weaved: creating data dir: %v\n", err)
		os.Exit(exitStorageOpenFail)
	}
	evalLog, err := eval.OpenLog(evalLogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weaved: opening evaluation log: %v\n", err)
		os.Exit(exitStorageOpenFail)
	}

	registry := eval.NewRegistry()
	registry.Register(deterministic.NewLatencyEvaluator(deterministic.LatencyThresholds{P50MaxMs: 500, P95MaxMs: 2000, P99MaxMs: 5000, TotalMaxMs: 15000}))
	registry.Register(deterministic.NewCostEvaluator(pricing, 50_000))
	registry.Register(deterministic.NewTrajectoryEvaluator(deterministic.DefaultTrajectoryConfig()))

	judge := llmjudge.NewHTTPProvider(llmjudge.HTTPProviderConfig{
		APIKey:   cfg.Providers.OpenAIAPIKey,
		Model:    "gpt-4o-mini",
		Endpoint: "https://api.openai.com/v1/chat/completions",
	})
	registry.Register(llmjudge.NewGEvalEvaluator(judge, []llmjudge.Criterion{
		{Name: "correctness", Description: "the response is factually correct given the trace's context", Weight: 0.6},
		{Name: "helpfulness", Description: "the response addresses what the user actually asked", Weight: 0.4},
	}, 70, 2_000))
	registry.Register(llmjudge.NewRAGASEvaluator(judge, 0.7, 2_000))

	cache := eval.NewResultCache(10_000, 10*time.Minute)
	runtime := eval.NewRuntime(registry, cache, evalLog, graph, 30*time.Second, logger)

	queryFor := func(projectID uint16) (*query.Service, error) {
		eng, err := projects.GetOrOpen(projectID)
		if err != nil {
			return nil, err
		}
		return query.NewService(eng, vecIndex, conceptIndex, graph), nil
	}

	exportDir := filepath.Join(cfg.DataDir, "flywheel")
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "weaved: creating flywheel export dir: %v\n", err)
		os.Exit(exitStorageOpenFail)
	}
	flywheelCfg := flywheel.DefaultConfig()
	flywheelCfg.OutputDir = exportDir
	exporter := flywheel.NewExporter(flywheelCfg, flywheelSource(evalLogPath, projects), logger)
	if err := exporter.Start(); err != nil {
		logger.Warn("flywheel scheduler failed to start", zap.Error(err))
	}

	apiKeys, err := api.ParseAPIKeys(joinAPIKeys(cfg.Auth.APIKeys))
	if err != nil {
		fmt.Fprintf(os.Stderr, "weaved: parsing API_KEYS: %v\n", err)
		os.Exit(exitFatalConfig)
	}

	srv := api.NewServer(api.Deps{
		Projects:    projects,
		Admission:   admissionCtrl,
		Metrics:     metricsIndex,
		Runtime:     runtime,
		Registry:    registry,
		Exporter:    exporter,
		QueryFor:    queryFor,
		Limits:      limits,
		Auth:        api.AuthConfig{Enabled: cfg.Auth.Enabled, APIKeys: apiKeys},
		EvalLogPath: evalLogPath,
		Log:         logger,
	})

	limitsPath := filepath.Join(cfg.DataDir, "limits.toml")
	if watcher, err := config.Watch(limitsPath, func(path string) {
		logger.Info("sanitization limits file changed, keeping running limits until next restart", zap.String("path", path))
	}); err == nil {
		defer watcher.Close()
	}

	httpLis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		logger.Error("failed to bind http listener", zap.String("addr", cfg.HTTP.Addr), zap.Error(err))
		os.Exit(exitPortBindFail)
	}
	httpSrv := &http.Server{Handler: srv.Handler()}

	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		logger.Error("failed to bind metrics listener", zap.String("addr", cfg.MetricsAddr), zap.Error(err))
		os.Exit(exitPortBindFail)
	}
	metricsSrv := &http.Server{Handler: srv.HealthHandler()}

	grpcLis, err := net.Listen("tcp", cfg.OTLP.GRPCAddr)
	if err != nil {
		logger.Error("failed to bind otlp grpc listener", zap.String("addr", cfg.OTLP.GRPCAddr), zap.Error(err))
		os.Exit(exitPortBindFail)
	}
	grpcServer := grpc.NewServer()
	coltracepb.RegisterTraceServiceServer(grpcServer, otlp.NewService(projects, metricsIndex, limits, logger))

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", zap.Error(err))
		}
	}()
	go func() {
		log.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.Serve(metricsLis); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		log.Info("otlp grpc server listening", zap.String("addr", cfg.OTLP.GRPCAddr))
		if err := grpcServer.Serve(grpcLis); err != nil {
			log.Error("otlp grpc server stopped", zap.Error(err))
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	log.Info("shutting down gracefully... (press Ctrl+C again to force)")

	go func() {
		<-sigch
		logger.Warn("force shutdown requested")
		os.Exit(1)
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		logger.Warn("otlp grpc graceful stop timed out, forcing shutdown")
		grpcServer.Stop()
	}

	if err := projects.CloseAll(); err != nil {
		logger.Warn("error closing project engines", zap.Error(err))
	}
	if err := evalLog.Close(); err != nil {
		logger.Warn("error closing evaluation log", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) *zap.Logger {
	var zcfg zap.Config
	switch level {
	case "debug":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func joinAPIKeys(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}

// flywheelSource adapts the evaluation log plus the open project
// engines into a flywheel.SampleSource: every logged evaluation result
// paired with its trace's recorded input/output payload, reused
// directly by both the cron-scheduled export and the on-demand HTTP
// export endpoint.
func flywheelSource(evalLogPath string, projects *project.Manager) flywheel.SampleSource {
	return func() ([]flywheel.Sample, error) {
		var samples []flywheel.Sample
		err := eval.ReplayLog(evalLogPath, func(entry eval.LogEntry) error {
			_, payload, err := projects.GetByEdgeID(entry.TenantID, entry.TraceID)
			if err != nil {
				return nil
			}
			input, output := payloadInputOutput(payload)
			samples = append(samples, flywheel.Sample{
				TraceID: entry.TraceID.String(),
				Input:   input,
				Output:  output,
				Score:   entry.Result.Confidence,
				Metadata: map[string]string{
					"evaluator_id": entry.Result.EvaluatorID,
				},
			})
			return nil
		})
		return samples, err
	}
}

func payloadInputOutput(payload []byte) (string, string) {
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", ""
	}
	input, _ := fields["input"].(string)
	output, _ := fields["output"].(string)
	return input, output
}
