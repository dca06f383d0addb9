// Package xk6 exposes the smoke sequence to k6 scripts as k6/x/milvus-smoke.
// This file contains the k6 module implementation and metrics emission.
package xk6

import (
	"os"
	"time"

	"go.k6.io/k6/js/common"
	"go.k6.io/k6/js/modules"
	"go.k6.io/k6/metrics"

	"github.com/mmga-lab/milvus-smoke/pkg/smoke"
)

// RootModule is the global module object type. It is instantiated once per test
// run and will be used to create module instances for each VU.
type RootModule struct{}

// ModuleInstance represents an instance of the module for each VU.
type ModuleInstance struct {
	vu      modules.VU
	dial    smoke.Dialer // nil uses the Milvus client
	metrics struct {
		Steps        *metrics.Metric
		StepDuration *metrics.Metric
		Errors       *metrics.Metric
		Vectors      *metrics.Metric
		Recall       *metrics.Metric
	}
}

// New returns a pointer to a new RootModule instance.
func New() *RootModule {
	return &RootModule{}
}

// NewModuleInstance implements the modules.Module interface to return
// a new instance for each VU.
func (r *RootModule) NewModuleInstance(vu modules.VU) modules.Instance {
	mi := &ModuleInstance{vu: vu}

	// Register custom metrics in init context only
	if initEnv := vu.InitEnv(); initEnv != nil {
		registry := initEnv.Registry
		mi.metrics.Steps = registry.MustNewMetric("milvus_smoke_steps", metrics.Counter)
		mi.metrics.StepDuration = registry.MustNewMetric("milvus_smoke_step_duration", metrics.Trend, metrics.Time)
		mi.metrics.Errors = registry.MustNewMetric("milvus_smoke_errors", metrics.Rate)
		mi.metrics.Vectors = registry.MustNewMetric("milvus_smoke_vectors", metrics.Counter)
		mi.metrics.Recall = registry.MustNewMetric("milvus_smoke_recall", metrics.Trend)
	}

	return mi
}

// Exports implements the modules.Instance interface and returns the exports
// of the JS module.
func (mi *ModuleInstance) Exports() modules.Exports {
	return modules.Exports{
		Default: mi,
	}
}

// Summary is what smoke() returns to the script.
type Summary struct {
	Passed     bool   `js:"passed"`
	Collection string `js:"collection"`
	FailedStep string `js:"failedStep"`
	Error      string `js:"error"`
	Steps      int    `js:"steps"`
}

// Smoke runs the full smoke sequence from the VU context. An empty address
// falls back to MILVUS_HOST, then localhost:19530. options accepts rows,
// dimension, indexType, metricType, nlist, nprobe, ef, limit, queryIds,
// minRecall, loadWait and timeout (ms), collectionPrefix, strict and drop.
func (mi *ModuleInstance) Smoke(address string, options map[string]interface{}) *Summary {
	state := mi.vu.State()
	if state == nil {
		common.Throw(mi.vu.Runtime(), common.NewInitContextError("milvus.smoke() can only be called in the VU context"))
	}

	cfg, err := buildConfig(address, options, os.Getenv)
	if err != nil {
		common.Throw(mi.vu.Runtime(), err)
	}

	out := lineWriter(func(line string) { state.Logger.Info(line) })
	opts := []smoke.Option{
		smoke.WithOutput(out),
		smoke.WithObserver(mi.observe),
	}
	if mi.dial != nil {
		opts = append(opts, smoke.WithDialer(mi.dial))
	}
	report := smoke.NewRunner(cfg, opts...).Run(mi.vu.Context())

	return summarize(report)
}

func summarize(report *smoke.Report) *Summary {
	s := &Summary{
		Passed:     report.Passed(),
		Collection: report.Collection,
		Steps:      len(report.Steps),
	}
	if report.Err != nil {
		s.Error = report.Err.Error()
	}
	if se := report.FailedStep(); se != nil {
		s.FailedStep = se.Name
	}
	return s
}

func (mi *ModuleInstance) observe(res smoke.StepResult) {
	tags := map[string]string{
		"step":   res.Name,
		"status": "success",
	}
	failed := 0.0
	if res.Err != nil {
		tags["status"] = "error"
		failed = 1
	}

	mi.emitMetric(mi.metrics.Steps, 1, tags)
	mi.emitMetric(mi.metrics.StepDuration, float64(res.Duration.Milliseconds()), tags)
	mi.emitMetric(mi.metrics.Errors, failed, tags)
	if res.Name == smoke.StepInsert && res.Err == nil {
		mi.emitMetric(mi.metrics.Vectors, float64(res.Items), tags)
	}
	if res.Recall != nil {
		mi.emitMetric(mi.metrics.Recall, *res.Recall, tags)
	}
}

// emitMetric is a helper method to emit metrics with proper VU context
func (mi *ModuleInstance) emitMetric(metric *metrics.Metric, value float64, tags map[string]string) {
	state := mi.vu.State()
	if state == nil || metric == nil {
		return
	}

	ctx := mi.vu.Context()
	now := time.Now()

	// Get current tags and merge with custom tags
	vuTags := state.Tags.GetCurrentValues()
	for k, v := range tags {
		vuTags.Tags = vuTags.Tags.With(k, v)
	}

	sample := metrics.Sample{
		TimeSeries: metrics.TimeSeries{
			Metric: metric,
			Tags:   vuTags.Tags,
		},
		Time:     now,
		Value:    value,
		Metadata: vuTags.Metadata,
	}

	metrics.PushIfNotDone(ctx, state.Samples, metrics.ConnectedSamples{
		Samples: []metrics.Sample{sample},
		Tags:    vuTags.Tags,
		Time:    now,
	})
}
