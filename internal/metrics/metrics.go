package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "netops"

// Collector encapsulates all Prometheus metrics.
type Collector struct {
	// Request-level counters (bounded cardinality)
	scansTotal            *prometheus.CounterVec
	scanDurationHistogram *prometheus.HistogramVec
	scansInFlight         prometheus.Gauge
	portsScanned          prometheus.Counter
	probesTotal           *prometheus.CounterVec

	// Tool surface
	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	// Network-config pass-through
	netconfigRuns *prometheus.CounterVec

	// HTTP guard rejections
	apiThrottled prometheus.Counter

	// Per-target series (TTL-swept; targets are caller-controlled)
	targetOpenPorts       *prometheus.GaugeVec
	targetUnexpectedOpen  *prometheus.GaugeVec
	targetLastScan        *prometheus.GaugeVec
	portStateChanges      *prometheus.CounterVec
	scannedTargets        sync.Map

	sweeperTTL atomic.Int64 // nanoseconds

	sweeperMu     sync.Mutex
	sweeperTicker *time.Ticker
	sweeperReset  chan struct{}
}

// NewMetricsCollector creates and initializes a new Collector.
func NewMetricsCollector() *Collector {
	mc := &Collector{
		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "scans_total",
				Help:      "Total number of scan requests, labeled by surface and outcome.",
			},
			[]string{"surface", "status"},
		),
		scanDurationHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "scan_duration_seconds",
				Help:      "Histogram of scan durations in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"surface"},
		),
		scansInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "scans_in_flight",
			Help:      "Number of scans currently executing.",
		}),
		portsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "ports_scanned_total",
			Help:      "Total number of ports probed across all scans.",
		}),
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "probes_total",
				Help:      "Total number of port probes, labeled by result classification.",
			},
			[]string{"result"},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "tool_calls_total",
				Help:      "Total number of MCP tool invocations, labeled by tool and outcome.",
			},
			[]string{"tool", "status"},
		),
		toolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Histogram of MCP tool invocation durations in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"tool"},
		),
		netconfigRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "network_config_runs_total",
				Help:      "Total number of interface-listing command invocations, labeled by outcome.",
			},
			[]string{"status"},
		),
		apiThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "api_throttled_total",
			Help:      "Total number of API requests rejected by the rate guards.",
		}),
		targetOpenPorts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      "target_open_ports",
				Help:      "Number of open ports found on a target in its last scan.",
			},
			[]string{"target"},
		),
		targetUnexpectedOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      "target_unexpected_open_ports",
				Help:      "Open ports on a target not present in the configured baseline, from its last scan.",
			},
			[]string{"target"},
		),
		targetLastScan: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      "target_last_scan_timestamp_seconds",
				Help:      "Unix timestamp of the last scan of a target.",
			},
			[]string{"target"},
		),
		portStateChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "port_state_changes_total",
				Help:      "Total number of port state transitions between consecutive scans of a target.",
			},
			[]string{"target", "change_type"},
		),
	}
	return mc
}

// Describe sends the super-set of all descriptors of metrics to the provided channel.
func (mc *Collector) Describe(ch chan<- *prometheus.Desc) {
	mc.scansTotal.Describe(ch)
	mc.scanDurationHistogram.Describe(ch)
	mc.scansInFlight.Describe(ch)
	mc.portsScanned.Describe(ch)
	mc.probesTotal.Describe(ch)
	mc.toolCalls.Describe(ch)
	mc.toolCallDuration.Describe(ch)
	mc.netconfigRuns.Describe(ch)
	mc.apiThrottled.Describe(ch)
	mc.targetOpenPorts.Describe(ch)
	mc.targetUnexpectedOpen.Describe(ch)
	mc.targetLastScan.Describe(ch)
	mc.portStateChanges.Describe(ch)
}

// Collect is called by the Prometheus registry when collecting metrics.
func (mc *Collector) Collect(ch chan<- prometheus.Metric) {
	mc.scansTotal.Collect(ch)
	mc.scanDurationHistogram.Collect(ch)
	mc.scansInFlight.Collect(ch)
	mc.portsScanned.Collect(ch)
	mc.probesTotal.Collect(ch)
	mc.toolCalls.Collect(ch)
	mc.toolCallDuration.Collect(ch)
	mc.netconfigRuns.Collect(ch)
	mc.apiThrottled.Collect(ch)
	mc.targetOpenPorts.Collect(ch)
	mc.targetUnexpectedOpen.Collect(ch)
	mc.targetLastScan.Collect(ch)
	mc.portStateChanges.Collect(ch)
}

// IncScan counts one scan request for a surface ("mcp" or "http") with its
// outcome ("ok" or "invalid_argument").
func (mc *Collector) IncScan(surface, status string) {
	mc.scansTotal.WithLabelValues(surface, status).Inc()
}

// ObserveScanDuration records the wall time of a completed scan.
func (mc *Collector) ObserveScanDuration(surface string, seconds float64) {
	mc.scanDurationHistogram.WithLabelValues(surface).Observe(seconds)
}

// ScanStarted and ScanFinished bracket a scan for the in-flight gauge.
func (mc *Collector) ScanStarted()  { mc.scansInFlight.Inc() }
func (mc *Collector) ScanFinished() { mc.scansInFlight.Dec() }

// AddPortsScanned counts ports dispatched to the prober.
func (mc *Collector) AddPortsScanned(n int) {
	if n > 0 {
		mc.portsScanned.Add(float64(n))
	}
}

// AddProbeResults counts n probes with the given result classification.
func (mc *Collector) AddProbeResults(result string, n int) {
	if n > 0 {
		mc.probesTotal.WithLabelValues(result).Add(float64(n))
	}
}

// IncToolCall counts one MCP tool invocation.
func (mc *Collector) IncToolCall(tool, status string) {
	mc.toolCalls.WithLabelValues(tool, status).Inc()
}

// ObserveToolCallDuration records the wall time of one MCP tool invocation.
func (mc *Collector) ObserveToolCallDuration(tool string, seconds float64) {
	mc.toolCallDuration.WithLabelValues(tool).Observe(seconds)
}

// IncNetworkConfigRun counts one interface-listing command invocation.
func (mc *Collector) IncNetworkConfigRun(status string) {
	mc.netconfigRuns.WithLabelValues(status).Inc()
}

// IncAPIThrottled counts one request rejected by the rate guards.
func (mc *Collector) IncAPIThrottled() {
	mc.apiThrottled.Inc()
}

// ScanInfo holds the open-port set seen in a target's last scan.
type ScanInfo struct {
	Ports    map[int]struct{}
	LastScan time.Time
}

// UpdateTargetMetrics refreshes the per-target series after a scan and
// records port state transitions against the previous scan of the same
// target.
func (mc *Collector) UpdateTargetMetrics(target string, openPorts []int, unexpected int) {
	newPorts := make(map[int]struct{}, len(openPorts))
	for _, p := range openPorts {
		newPorts[p] = struct{}{}
	}

	prev := mc.previousScanInfo(target)
	for p := range newPorts {
		if _, existed := prev.Ports[p]; !existed {
			mc.portStateChanges.WithLabelValues(target, "closed_to_open").Inc()
		}
	}
	for p := range prev.Ports {
		if _, stillOpen := newPorts[p]; !stillOpen {
			mc.portStateChanges.WithLabelValues(target, "open_to_closed").Inc()
		}
	}

	now := time.Now()
	mc.targetOpenPorts.WithLabelValues(target).Set(float64(len(newPorts)))
	mc.targetUnexpectedOpen.WithLabelValues(target).Set(float64(unexpected))
	mc.targetLastScan.WithLabelValues(target).Set(float64(now.Unix()))
	mc.scannedTargets.Store(target, &ScanInfo{Ports: newPorts, LastScan: now})
}

func (mc *Collector) previousScanInfo(target string) *ScanInfo {
	v, _ := mc.scannedTargets.Load(target)
	if v == nil {
		return &ScanInfo{Ports: make(map[int]struct{})}
	}
	return v.(*ScanInfo)
}

// SetSweeperTTL updates the TTL used by the sweeper (hot-reload).
func (mc *Collector) SetSweeperTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	mc.sweeperTTL.Store(int64(ttl))
	mc.sweeperMu.Lock()
	ch := mc.sweeperReset
	mc.sweeperMu.Unlock()
	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (mc *Collector) getSweeperTTL() time.Duration {
	return time.Duration(mc.sweeperTTL.Load())
}

// StartSweeper starts a background eviction loop that removes per-target
// series for targets not scanned within the TTL. Targets are arbitrary
// caller input; without eviction the series set grows without bound. It
// stops when ctx is done.
func (mc *Collector) StartSweeper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	mc.SetSweeperTTL(ttl)
	mc.sweeperMu.Lock()
	if mc.sweeperReset == nil {
		mc.sweeperReset = make(chan struct{}, 1)
	}
	if mc.sweeperTicker != nil {
		mc.sweeperTicker.Stop()
	}
	mc.sweeperTicker = time.NewTicker(ttl / 2)
	ticker := mc.sweeperTicker
	reset := mc.sweeperReset
	mc.sweeperMu.Unlock()

	go func() {
		defer func() {
			mc.sweeperMu.Lock()
			if mc.sweeperTicker != nil {
				mc.sweeperTicker.Stop()
				mc.sweeperTicker = nil
			}
			mc.sweeperMu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reset:
				newTTL := mc.getSweeperTTL()
				if newTTL <= 0 {
					newTTL = time.Minute
				}
				mc.sweeperMu.Lock()
				if mc.sweeperTicker != nil {
					mc.sweeperTicker.Stop()
				}
				mc.sweeperTicker = time.NewTicker(newTTL / 2)
				ticker = mc.sweeperTicker
				mc.sweeperMu.Unlock()
			case <-ticker.C:
				ttl := mc.getSweeperTTL()
				now := time.Now()
				mc.scannedTargets.Range(func(key, value any) bool {
					target := key.(string)
					info := value.(*ScanInfo)
					if now.Sub(info.LastScan) > ttl {
						mc.scannedTargets.Delete(target)
						mc.deleteTargetSeries(target)
					}
					return true
				})
			}
		}
	}()
}

// deleteTargetSeries removes all known series for a target.
func (mc *Collector) deleteTargetSeries(target string) {
	_ = mc.targetOpenPorts.DeleteLabelValues(target)
	_ = mc.targetUnexpectedOpen.DeleteLabelValues(target)
	_ = mc.targetLastScan.DeleteLabelValues(target)
	for _, ct := range []string{"closed_to_open", "open_to_closed"} {
		_ = mc.portStateChanges.DeleteLabelValues(target, ct)
	}
}
