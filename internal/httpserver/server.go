package httpserver

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promcollectors "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/beau-wood/Network-Ops-MCP/internal/collectors"
	cfgpkg "github.com/beau-wood/Network-Ops-MCP/internal/config"
	netmetrics "github.com/beau-wood/Network-Ops-MCP/internal/metrics"
	"github.com/beau-wood/Network-Ops-MCP/internal/netinfo"
	"github.com/beau-wood/Network-Ops-MCP/internal/scanner"
	trackerpkg "github.com/beau-wood/Network-Ops-MCP/internal/tracker"
)

const rootTemplate = `<html>
 <head><title>Network Ops MCP</title></head>
 <body>
   <h1>Network Ops MCP</h1>
   <p>Metrics at: <a href='{{ .MetricsPath }}'>{{ .MetricsPath }}</a></p>
   <p>Recent scans: <a href='/v1/scans'>/v1/scans</a></p>
   <p>Local interfaces: <a href='/v1/interfaces'>/v1/interfaces</a></p>
 </body>
 </html>`

// NewServer wires the custom registry and handlers. Uses the config Manager
// for safe live reads.
func NewServer(
	e *collectors.Exporter,
	s *collectors.Settings,
	mgr *cfgpkg.Manager,
	tr *trackerpkg.Tracker,
	sc *scanner.Scanner,
	ni *netinfo.Service,
	mc *netmetrics.Collector,
) *http.Server {
	t := template.Must(template.New("root").Parse(rootTemplate))

	reg := prometheus.NewRegistry()
	reg.MustRegister(e)
	if s.EnableBuildInfo {
		reg.MustRegister(promcollectors.NewBuildInfoCollector())
	}
	if s.EnableGoCollector {
		reg.MustRegister(promcollectors.NewGoCollector())
	}

	// API requests metrics
	apiReq := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netops",
			Name:      "api_requests_total",
			Help:      "API requests by route, method, code.",
		},
		[]string{"route", "method", "code"},
	)
	reg.MustRegister(apiReq)

	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		MaxRequestsInFlight: 8,
		Timeout:             30 * time.Second,
	})

	mux := http.NewServeMux()
	// Read initial config and build rate guards / trusted proxies
	cfg0 := mgr.Get()
	guards := guardsFromPolicy(cfg0.Policy)
	trustedProxies := parseCIDRList(cfg0.Server.TrustedProxiesCIDRs)

	readyCh := make(chan struct{}, 1)
	isReady := false

	mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/-/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !isReady {
			select {
			case <-readyCh:
				isReady = true
			default:
			}
		}
		if !isReady {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// metrics
	mux.Handle(s.MetricsPath, promHandler)

	// root
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if err := t.Execute(w, s); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// hot reload (POST /-/reload)
	mux.HandleFunc("/-/reload", instrument(apiReq, "/-/reload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// restrict to loopback for safety
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if err := mgr.Reload(); err != nil {
			http.Error(w, fmt.Sprintf("failed to reload config: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	// Concurrency guard for synchronous scans (hot-reloadable via atomic pointer)
	var apiSem atomic.Value // *semaphore.Weighted
	apiSem.Store(semaphore.NewWeighted(int64(maxConcurrentFromPolicy(cfg0.Policy))))

	// POST /v1/scan
	mux.HandleFunc("/v1/scan", instrument(apiReq, "/v1/scan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cfg := mgr.Get()
		if !checkAuth(r, cfg.Auth) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !allowClientWithProxies(r, cfg.Policy, trustedProxies) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if guards != nil && !guards.Allow(r) {
			mc.IncAPIThrottled()
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		sem := apiSem.Load().(*semaphore.Weighted)
		if err := sem.Acquire(r.Context(), 1); err != nil {
			http.Error(w, "request cancelled", http.StatusRequestTimeout)
			return
		}
		defer sem.Release(1)

		var req struct {
			Host           string  `json:"host"`
			Ports          []int   `json:"ports"`
			PortRange      []int   `json:"port_range"`
			TimeoutSeconds float64 `json:"timeout_seconds"`
			MaxWorkers     int     `json:"max_workers"`
		}
		if !decodeJSON(w, r, &req, 1<<20) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Host) == "" {
			http.Error(w, "host is required", http.StatusBadRequest)
			return
		}

		spec := scanner.PortSpec{Explicit: req.Ports}
		if req.PortRange != nil {
			if len(req.PortRange) != 2 {
				http.Error(w, scanner.ErrBadPortRange.Error(), http.StatusBadRequest)
				return
			}
			spec.Range = &scanner.PortRange{Start: req.PortRange[0], End: req.PortRange[1]}
		}

		// Port budget guard, HTTP surface only
		if cfg.Policy != nil && cfg.Policy.MaxPortsPerRequest > 0 {
			if estimatePortCount(spec) > cfg.Policy.MaxPortsPerRequest {
				http.Error(w, "max ports per request exceeded", http.StatusBadRequest)
				return
			}
		}

		res, err := sc.Run(r.Context(), scanner.Request{
			Host:       req.Host,
			Ports:      spec,
			Timeout:    time.Duration(req.TimeoutSeconds * float64(time.Second)),
			MaxWorkers: req.MaxWorkers,
			Surface:    "http",
		})
		if err != nil {
			if scanner.IsInvalidArgument(err) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}))

	// GET /v1/scans?state=...&limit=N
	mux.HandleFunc("/v1/scans", instrument(apiReq, "/v1/scans", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cfg := mgr.Get()
		if !checkAuth(r, cfg.Auth) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !allowClientWithProxies(r, cfg.Policy, trustedProxies) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		q := r.URL.Query()
		st := strings.TrimSpace(q.Get("state"))
		lim := 0
		if v := strings.TrimSpace(q.Get("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				lim = n
			}
		}
		list := tr.List(st, lim)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	}))

	// GET /v1/interfaces
	mux.HandleFunc("/v1/interfaces", instrument(apiReq, "/v1/interfaces", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cfg := mgr.Get()
		if !checkAuth(r, cfg.Auth) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !allowClientWithProxies(r, cfg.Policy, trustedProxies) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ifaces, err := ni.Interfaces(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ifaces)
	}))

	// GET /v1/network-configs
	mux.HandleFunc("/v1/network-configs", instrument(apiReq, "/v1/network-configs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cfg := mgr.Get()
		if !checkAuth(r, cfg.Auth) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !allowClientWithProxies(r, cfg.Policy, trustedProxies) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		report := ni.NetworkConfigs(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}))

	srv := &http.Server{
		Addr:              net.JoinHostPort(s.Address, s.ListenPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	// flip readiness
	go func() {
		time.Sleep(200 * time.Millisecond)
		select {
		case readyCh <- struct{}{}:
		default:
		}
	}()

	// Allow components to react to reload: rebuild guards, proxies and concurrency semaphore
	mgr.AddOnReload(func(old, newCfg *cfgpkg.Config) {
		guards = guardsFromPolicy(newCfg.Policy)
		trustedProxies = parseCIDRList(newCfg.Server.TrustedProxiesCIDRs)
		apiSem.Store(semaphore.NewWeighted(int64(maxConcurrentFromPolicy(newCfg.Policy))))
	})

	return srv
}

func guardsFromPolicy(p *cfgpkg.PolicyConfig) *RateGuards {
	if p == nil || (p.RateLimitRPS <= 0 && p.PerIPRPS <= 0) {
		return nil
	}
	return NewRateGuards(p.RateLimitRPS, p.RateBurst, p.PerIPRPS, p.PerIPBurst, 10*time.Minute)
}

func maxConcurrentFromPolicy(p *cfgpkg.PolicyConfig) int {
	if p != nil && p.MaxConcurrent > 0 {
		return p.MaxConcurrent
	}
	// effectively unlimited when unset
	return 1 << 20
}

func parseCIDRList(list []string) []*net.IPNet {
	var out []*net.IPNet
	for _, c := range list {
		if _, nw, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil && nw != nil {
			out = append(out, nw)
		}
	}
	return out
}

// estimatePortCount sizes a request before validation for the policy cap.
// Invalid shapes estimate to zero and fall through to real validation.
func estimatePortCount(spec scanner.PortSpec) int {
	if spec.Explicit != nil {
		return len(spec.Explicit)
	}
	if spec.Range != nil && spec.Range.End >= spec.Range.Start {
		return spec.Range.End - spec.Range.Start + 1
	}
	return 0
}

// safe JSON decoder: limits body size and disallows unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return false
	}
	return true
}

// status writer captures status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) { sw.status = code; sw.ResponseWriter.WriteHeader(code) }

// instrument wraps a handler to record requests per route/method/status code
func instrument(cv *prometheus.CounterVec, route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next(sw, r)
		code := strconv.Itoa(sw.status)
		if cv != nil {
			cv.WithLabelValues(route, r.Method, code).Inc()
		}
	}
}

func checkAuth(r *http.Request, auth *cfgpkg.AuthConfig) bool {
	if auth == nil {
		return true
	}
	// Bearer
	if strings.TrimSpace(auth.BearerToken) != "" {
		ah := r.Header.Get("Authorization")
		if strings.HasPrefix(ah, "Bearer ") &&
			strings.TrimSpace(strings.TrimPrefix(ah, "Bearer ")) == auth.BearerToken {
			return true
		}
	}
	// Basic
	if auth.Basic.Username != "" || auth.Basic.Password != "" {
		u, p, ok := r.BasicAuth()
		if ok && u == auth.Basic.Username && p == auth.Basic.Password {
			return true
		}
	}
	// If auth is present but empty, deny by default (stricter default)
	return false
}

// policy helpers
func allowClientWithProxies(r *http.Request, p *cfgpkg.PolicyConfig, proxies []*net.IPNet) bool {
	if p == nil || len(p.ClientAllowCIDRs) == 0 {
		return true
	}
	host := clientIPFromRequest(r, proxies)
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, cidr := range p.ClientAllowCIDRs {
		_, nw, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err == nil && nw != nil && nw.Contains(ip) {
			return true
		}
	}
	return false
}

func clientIPFromRequest(r *http.Request, proxies []*net.IPNet) string {
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsUnspecified() || ipInAny(ip, proxies)) {
		xff := r.Header.Get("X-Forwarded-For")
		if xff != "" {
			parts := strings.Split(xff, ",")
			p := strings.TrimSpace(parts[0])
			return p
		}
	}
	return host
}

func ipInAny(ip net.IP, nets []*net.IPNet) bool {
	for _, nw := range nets {
		if nw.Contains(ip) {
			return true
		}
	}
	return false
}
