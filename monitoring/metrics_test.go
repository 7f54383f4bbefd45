package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulatePerLabelSet(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrCounter("quotes_total", 1, map[string]string{"source": "synthetic"})
	mc.IncrCounter("quotes_total", 2, map[string]string{"source": "synthetic"})
	mc.IncrCounter("quotes_total", 1, map[string]string{"source": "alphavantage"})

	v, ok := mc.Value("quotes_total", map[string]string{"source": "synthetic"})
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
	_, ok = mc.Value("quotes_total", nil)
	assert.False(t, ok)
	assert.Len(t, mc.GetAllMetrics(), 2)
}

func TestGaugeKeepsLatest(t *testing.T) {
	mc := NewMetricsCollector()
	mc.SetGauge("ws_clients", 4, nil)
	mc.SetGauge("ws_clients", 1, nil)
	v, _ := mc.Value("ws_clients", nil)
	assert.Equal(t, 1.0, v)
}

func TestExportPrometheus(t *testing.T) {
	mc := NewMetricsCollector()
	mc.Describe("http_requests_total", "Requests served by status class")
	mc.IncrCounter("http_requests_total", 1, map[string]string{"code": "2xx", "method": "GET"})
	mc.IncrCounter("http_requests_total", 1, map[string]string{"code": "5xx", "method": "GET"})

	out := mc.ExportPrometheus()
	assert.Equal(t, `# HELP http_requests_total Requests served by status class
# TYPE http_requests_total counter
http_requests_total{code="2xx",method="GET"} 1
http_requests_total{code="5xx",method="GET"} 1
`, out)
}

func TestLabelsAreCopied(t *testing.T) {
	mc := NewMetricsCollector()
	labels := map[string]string{"kind": "news"}
	mc.IncrCounter("store_reads_total", 1, labels)
	labels["kind"] = "users"

	all := mc.GetAllMetrics()
	require.Len(t, all, 1)
	assert.Equal(t, "news", all[0].Labels["kind"])
}

func TestUptime(t *testing.T) {
	mc := NewMetricsCollector()
	start := mc.startTime
	mc.now = func() time.Time { return start.Add(90 * time.Second) }
	assert.Equal(t, 90*time.Second, mc.GetUptime())
	assert.Contains(t, mc.GetSystemStats(), "goroutines")
}

func TestNilCollectorIgnoresWrites(t *testing.T) {
	var mc *MetricsCollector
	assert.NotPanics(t, func() { mc.IncrCounter("x", 1, nil) })
}
