package collectors

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	netmetrics "github.com/beau-wood/Network-Ops-MCP/internal/metrics"
)

// Settings carries the resolved flag/env values for the process.
type Settings struct {
	LogLevel          string
	LogFormat         string
	MetricsPath       string
	ListenPort        string
	Address           string
	ConfigPath        string
	WatchConfig       bool
	MCPStdio          bool
	EnableGoCollector bool
	EnableBuildInfo   bool
}

// Exporter adapts our internal Collector to the prometheus.Collector interface.
type Exporter struct {
	mc     *netmetrics.Collector
	Logger *slog.Logger
}

func NewExporter(mc *netmetrics.Collector, logger *slog.Logger) *Exporter {
	return &Exporter{mc: mc, Logger: logger}
}

// Describe implements prometheus.Collector by delegating to our Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) { e.mc.Describe(ch) }

// Collect implements prometheus.Collector by delegating to our Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) { e.mc.Collect(ch) }
