package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetii/yetii/core/application/report"
	"github.com/yetii/yetii/core/config"
)

func TestResolveConfig_Defaults(t *testing.T) {
	cfg := &config.Config{Name: "erp-sync", Settings: config.Settings{Environment: "staging"}}

	oc, err := ResolveConfig(cfg)
	require.NoError(t, err)
	assert.False(t, oc.Enabled)
	assert.Equal(t, "yetii/erp-sync", oc.ServiceName)
	assert.Equal(t, "staging", oc.Environment)
	assert.Equal(t, "localhost:4317", oc.OTLPEndpoint)
}

func TestResolveConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("YETII_OTEL_ENABLED", "true")
	t.Setenv("YETII_OTEL_TRACE_SAMPLING_RATIO", "7")
	t.Setenv("COLLECTOR_HOST", "otel.internal")
	t.Setenv("YETII_OTEL_ENDPOINT", "{{ env.COLLECTOR_HOST }}:4317")

	oc, err := ResolveConfig(nil)
	require.NoError(t, err)
	assert.True(t, oc.Enabled)
	assert.Equal(t, 1.0, oc.TraceSamplingRate)
	assert.Equal(t, "otel.internal:4317", oc.OTLPEndpoint)
	assert.Equal(t, "yetii", oc.ServiceName)
}

func TestResolveConfig_MissingVariable(t *testing.T) {
	t.Setenv("YETII_OTEL_ENDPOINT", "{{ env.YETII_TEST_NOT_SET }}")

	_, err := ResolveConfig(nil)
	assert.Error(t, err)
}

func TestRedactAttributeValue(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactAttributeValue("connection.dsn", "postgres://u:p@h/db"))
	assert.Equal(t, "[REDACTED]", RedactAttributeValue("credential_ref", "env:X"))
	assert.Equal(t, "erp", RedactAttributeValue(AttrConnectionID, "erp"))
}

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), &config.Config{}, "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", ActiveConfig().ServiceVersion)

	_, span := StartSpan(context.Background(), "query", map[string]string{AttrQueryName: "q1"})
	EndSpan(span, "", nil)
	RecordQueryExecution(context.Background(), "q1", "erp", "succeeded", 3, 1.5)

	assert.NoError(t, p.Shutdown(context.Background()))
}

func sampleReport() *report.Report {
	t0 := time.Now()
	return &report.Report{
		Duration: 2 * time.Second,
		Results: []report.ExecutionResult{
			report.Succeeded("a", "erp", 5, t0, t0),
			report.Succeeded("b", "erp", 2, t0, t0),
			report.Skipped("c", "erp", "", nil),
		},
	}
}

func TestRunCollectors_Observe(t *testing.T) {
	c := NewRunCollectors()
	c.Observe(sampleReport())

	assert.Equal(t, 2.0, testutil.ToFloat64(c.queries.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queries.WithLabelValues("skipped")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.rows))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.duration))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.status.WithLabelValues("failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.status.WithLabelValues("success")))
}

func TestPushRunSummary(t *testing.T) {
	var path atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	err := PushRunSummary(context.Background(), server.URL, "yetii", "erp-sync", sampleReport())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path.Load().(string), "/metrics/job/yetii/config/erp-sync"))
}

func TestPushRunSummary_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := PushRunSummary(context.Background(), server.URL, "yetii", "", sampleReport())
	assert.Error(t, err)
}
