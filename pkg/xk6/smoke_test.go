package xk6

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.k6.io/k6/js/modulestest"
	"go.k6.io/k6/lib"
	"go.k6.io/k6/metrics"

	"github.com/mmga-lab/milvus-smoke/pkg/smoke"
	"github.com/mmga-lab/milvus-smoke/pkg/smoke/smoketest"
)

type vuEnv struct {
	rt      *modulestest.Runtime
	mi      *ModuleInstance
	samples chan metrics.SampleContainer
	logs    *test.Hook
}

// newVUEnv creates the module instance in the init context and then moves the
// runtime into the VU context, the way k6 does for a real VU.
func newVUEnv(t *testing.T) *vuEnv {
	t.Helper()
	t.Setenv(smoke.EnvHost, "")

	rt := modulestest.NewRuntime(t)
	mi, ok := New().NewModuleInstance(rt.VU).(*ModuleInstance)
	require.True(t, ok)

	registry := rt.VU.InitEnvField.Registry
	logger, hook := test.NewNullLogger()
	samples := make(chan metrics.SampleContainer, 1000)
	rt.MoveToVUContext(&lib.State{
		Samples: samples,
		Tags:    lib.NewVUStateTags(registry.RootTagSet()),
		Logger:  logger,
	})
	return &vuEnv{rt: rt, mi: mi, samples: samples, logs: hook}
}

type recorded struct {
	metric string
	value  float64
	step   string
	status string
}

func (e *vuEnv) recorded() []recorded {
	var out []recorded
	for _, container := range metrics.GetBufferedSamples(e.samples) {
		for _, s := range container.GetSamples() {
			step, _ := s.Tags.Get("step")
			status, _ := s.Tags.Get("status")
			out = append(out, recorded{metric: s.Metric.Name, value: s.Value, step: step, status: status})
		}
	}
	return out
}

func TestSmokeOutsideVUContext(t *testing.T) {
	rt := modulestest.NewRuntime(t)
	mi, ok := New().NewModuleInstance(rt.VU).(*ModuleInstance)
	require.True(t, ok)

	assert.Panics(t, func() { mi.Smoke("", nil) })
}

func TestSmokeRejectsBadOptions(t *testing.T) {
	env := newVUEnv(t)
	assert.Panics(t, func() { env.mi.Smoke("", map[string]interface{}{"replicas": int64(2)}) })
}

func TestSmokeEmitsStepMetrics(t *testing.T) {
	env := newVUEnv(t)
	store := smoketest.NewMemoryStore()
	env.mi.dial = store.Dialer()

	summary := env.mi.Smoke("memory:19530", map[string]interface{}{
		"loadWait": int64(0),
		"strict":   true,
	})

	require.True(t, summary.Passed, summary.Error)
	assert.Equal(t, 11, summary.Steps)
	assert.Empty(t, summary.FailedStep)
	assert.True(t, strings.HasPrefix(summary.Collection, "test_collection_"))
	assert.True(t, store.Closed())

	perMetric := make(map[string]int)
	for _, r := range env.recorded() {
		perMetric[r.metric]++
		assert.Equal(t, "success", r.status, r.metric)
		switch r.metric {
		case "milvus_smoke_vectors":
			assert.Equal(t, smoke.StepInsert, r.step)
			assert.Equal(t, 100.0, r.value)
		case "milvus_smoke_recall":
			assert.Equal(t, smoke.StepSearch, r.step)
			assert.Equal(t, 1.0, r.value)
		case "milvus_smoke_errors":
			assert.Zero(t, r.value)
		}
	}
	assert.Equal(t, map[string]int{
		"milvus_smoke_steps":         11,
		"milvus_smoke_step_duration": 11,
		"milvus_smoke_errors":        11,
		"milvus_smoke_vectors":       1,
		"milvus_smoke_recall":        1,
	}, perMetric)

	var passedLine bool
	for _, entry := range env.logs.AllEntries() {
		if strings.Contains(entry.Message, "ALL TESTS PASSED") {
			passedLine = true
		}
	}
	assert.True(t, passedLine)
}

func TestSmokeUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	env := newVUEnv(t)

	summary := env.mi.Smoke("127.0.0.1:1", map[string]interface{}{
		"timeout":  int64(300),
		"loadWait": int64(0),
	})

	assert.False(t, summary.Passed)
	assert.Equal(t, smoke.StepConnect, summary.FailedStep)
	assert.Equal(t, 1, summary.Steps)
	assert.Contains(t, summary.Error, "failed to connect to milvus at 127.0.0.1:1")

	got := env.recorded()
	require.Len(t, got, 3)
	names := make([]string, 0, len(got))
	for _, r := range got {
		names = append(names, r.metric)
		assert.Equal(t, smoke.StepConnect, r.step)
		assert.Equal(t, "error", r.status)
	}
	assert.ElementsMatch(t, []string{
		"milvus_smoke_steps",
		"milvus_smoke_step_duration",
		"milvus_smoke_errors",
	}, names)
	for _, r := range got {
		if r.metric == "milvus_smoke_errors" {
			assert.Equal(t, 1.0, r.value)
		}
	}
}
