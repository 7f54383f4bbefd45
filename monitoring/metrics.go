package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Metric 指标
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// MetricsCollector 指标收集器，每个名称加标签组合只保留最新值
type MetricsCollector struct {
	mu        sync.RWMutex
	metrics   map[string]*Metric
	help      map[string]string
	startTime time.Time
	now       func() time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string]*Metric),
		help:      make(map[string]string),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Describe 设置指标说明，导出时作为HELP行
func (mc *MetricsCollector) Describe(name, help string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.help[name] = help
}

// IncrCounter 计数器累加
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.record(name, MetricTypeCounter, labels, func(m *Metric) { m.Value += value })
}

// SetGauge 设置仪表值
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.record(name, MetricTypeGauge, labels, func(m *Metric) { m.Value = value })
}

func (mc *MetricsCollector) record(name string, typ MetricType, labels map[string]string, apply func(*Metric)) {
	if mc == nil {
		return
	}
	k := key(name, labels)

	mc.mu.Lock()
	defer mc.mu.Unlock()
	m, ok := mc.metrics[k]
	if !ok {
		m = &Metric{Name: name, Type: typ, Labels: copyLabels(labels)}
		mc.metrics[k] = m
	}
	apply(m)
	m.Timestamp = mc.now()
}

// Value 返回指标当前值
func (mc *MetricsCollector) Value(name string, labels map[string]string) (float64, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	m, ok := mc.metrics[key(name, labels)]
	if !ok {
		return 0, false
	}
	return m.Value, true
}

// GetAllMetrics 获取所有指标（副本），按名称和标签排序
func (mc *MetricsCollector) GetAllMetrics() []Metric {
	mc.mu.RLock()
	keys := make([]string, 0, len(mc.metrics))
	for k := range mc.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Metric, 0, len(keys))
	for _, k := range keys {
		m := *mc.metrics[k]
		m.Labels = copyLabels(m.Labels)
		m.Help = mc.help[m.Name]
		out = append(out, m)
	}
	mc.mu.RUnlock()
	return out
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder
	last := ""
	for _, m := range mc.GetAllMetrics() {
		if m.Name != last {
			help := m.Help
			if help == "" {
				help = "Metric " + m.Name
			}
			fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n", m.Name, help, m.Name, m.Type)
			last = m.Name
		}
		fmt.Fprintf(&b, "%s%s %g\n", m.Name, formatLabels(m.Labels), m.Value)
	}
	return b.String()
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return mc.now().Sub(mc.startTime)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return map[string]interface{}{
		"uptime_seconds": mc.GetUptime().Seconds(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  float64(m.HeapAlloc) / 1024 / 1024,
		"num_gc":         m.NumGC,
	}
}

func key(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
