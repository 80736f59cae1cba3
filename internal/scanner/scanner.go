package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	cfgpkg "github.com/beau-wood/Network-Ops-MCP/internal/config"
	"github.com/beau-wood/Network-Ops-MCP/internal/metrics"
	"github.com/beau-wood/Network-Ops-MCP/internal/tracker"
)

const (
	DefaultTimeout    = 500 * time.Millisecond
	DefaultMaxWorkers = 200
)

// Request describes one scan invocation. Timeout and MaxWorkers fall back
// to the defaults when unset.
type Request struct {
	Host       string
	Ports      PortSpec
	Timeout    time.Duration
	MaxWorkers int

	// Surface names the transport that accepted the request ("mcp",
	// "http") for metrics and the scan record.
	Surface string
}

// Result is the document returned to callers.
type Result struct {
	Target           string   `json:"target"`
	OpenPorts        []int    `json:"open_ports"`
	ClosedOrFiltered []int    `json:"closed_or_filtered"`
	Errors           []string `json:"errors"`
}

// Scanner executes TCP connect scans. All scan state is request-scoped; the
// Scanner itself only carries collaborators and reads a config snapshot per
// call.
type Scanner struct {
	dialer  Dialer
	logger  *slog.Logger
	mc      *metrics.Collector
	tracker *tracker.Tracker
	cfgMgr  *cfgpkg.Manager
}

func New(logger *slog.Logger, mc *metrics.Collector, tr *tracker.Tracker, cfgMgr *cfgpkg.Manager) *Scanner {
	return &Scanner{
		dialer:  &net.Dialer{},
		logger:  logger,
		mc:      mc,
		tracker: tr,
		cfgMgr:  cfgMgr,
	}
}

// Run validates the request, probes every port in the derived set under the
// worker budget, and aggregates the outcomes. The only error it returns is
// an InvalidArgumentError from validation; every probe-level failure is
// folded into the Result.
func (s *Scanner) Run(ctx context.Context, req Request) (*Result, error) {
	ports, err := BuildPortSet(req.Ports)
	if err != nil {
		s.mc.IncScan(req.Surface, "invalid_argument")
		return nil, err
	}

	snap := s.cfgMgr.Get()
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = snap.Scan.TimeoutDuration()
	}
	workers := req.MaxWorkers
	if workers <= 0 {
		workers = snap.Scan.DefaultMaxWorkers
	}
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}

	id := s.tracker.Begin(req.Host, req.Surface, len(ports))
	s.mc.ScanStarted()
	defer s.mc.ScanFinished()

	s.logger.Debug("scan starting",
		"scan_id", id,
		"target", req.Host,
		"ports", len(ports),
		"timeout", timeout,
		"max_workers", workers,
	)

	start := time.Now()
	outcomes := s.scanAll(ctx, req.Host, ports, timeout, workers)
	res := aggregate(req.Host, outcomes)
	elapsed := time.Since(start)

	bl := s.cfgMgr.GetBaseline()
	unexpected := 0
	for _, p := range res.OpenPorts {
		if !bl.Expected(req.Host, p) {
			unexpected++
		}
	}

	s.mc.IncScan(req.Surface, "ok")
	s.mc.ObserveScanDuration(req.Surface, elapsed.Seconds())
	s.mc.AddPortsScanned(len(ports))
	byKind := make(map[string]int, 5)
	for _, o := range outcomes {
		byKind[o.kind]++
	}
	for kind, n := range byKind {
		s.mc.AddProbeResults(kind, n)
	}
	s.mc.UpdateTargetMetrics(req.Host, res.OpenPorts, unexpected)

	s.tracker.Finish(id, tracker.Summary{
		OpenPorts:        len(res.OpenPorts),
		ClosedOrFiltered: len(res.ClosedOrFiltered),
		Errors:           len(res.Errors),
	})

	s.logger.Info("scan complete",
		"scan_id", id,
		"target", req.Host,
		"ports", len(ports),
		"open", len(res.OpenPorts),
		"closed_or_filtered", len(res.ClosedOrFiltered),
		"errors", len(res.Errors),
		"unexpected_open", unexpected,
		"duration", elapsed,
	)
	return res, nil
}

// scanAll fans one probe per port out across a worker budget built for this
// call alone. Every port yields exactly one outcome: a panic or a failed
// budget acquisition becomes an unexpected-error outcome instead of
// aborting the scan.
func (s *Scanner) scanAll(ctx context.Context, host string, ports []int, timeout time.Duration, maxWorkers int) []Outcome {
	results := make(chan Outcome, len(ports))
	sem := semaphore.NewWeighted(int64(maxWorkers))
	var wg sync.WaitGroup

	for _, port := range ports {
		if err := sem.Acquire(ctx, 1); err != nil {
			results <- Outcome{
				Port: port,
				Err:  fmt.Sprintf("port %d: unexpected error %v", port, err),
				kind: kindUnexpected,
			}
			continue
		}
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					results <- Outcome{
						Port: p,
						Err:  fmt.Sprintf("port %d: unexpected error %v", p, r),
						kind: kindUnexpected,
					}
				}
			}()
			results <- probe(ctx, s.dialer, host, p, timeout)
		}(port)
	}

	wg.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(ports))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// aggregate partitions outcomes into the result document: both port lists
// ascending, error strings deduplicated keeping the first occurrence.
func aggregate(host string, outcomes []Outcome) *Result {
	res := &Result{
		Target:           host,
		OpenPorts:        []int{},
		ClosedOrFiltered: []int{},
		Errors:           []string{},
	}
	seen := make(map[string]struct{})
	for _, o := range outcomes {
		if o.Open {
			res.OpenPorts = append(res.OpenPorts, o.Port)
			continue
		}
		res.ClosedOrFiltered = append(res.ClosedOrFiltered, o.Port)
		if o.Err == "" {
			continue
		}
		if _, dup := seen[o.Err]; dup {
			continue
		}
		seen[o.Err] = struct{}{}
		res.Errors = append(res.Errors, o.Err)
	}
	sort.Ints(res.OpenPorts)
	sort.Ints(res.ClosedOrFiltered)
	return res
}
