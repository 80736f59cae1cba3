package httpserver

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGuards applies a global limit and an independent per-client-IP limit.
// Either side can be disabled by passing a non-positive rate.
type RateGuards struct {
	global     *rate.Limiter
	byIP       map[string]*clientLimiter
	mu         sync.Mutex
	perIPLimit rate.Limit
	perIPBurst int
	ttl        time.Duration
}

type clientLimiter struct {
	*rate.Limiter
	last time.Time
}

func NewRateGuards(globalRPS float64, globalBurst int, perIPRPS float64, perIPBurst int, ttl time.Duration) *RateGuards {
	if globalBurst <= 0 {
		globalBurst = 1
	}
	if perIPBurst <= 0 {
		perIPBurst = 1
	}
	g := &RateGuards{
		byIP:       make(map[string]*clientLimiter, 1024),
		perIPLimit: rate.Limit(perIPRPS),
		perIPBurst: perIPBurst,
		ttl:        ttl,
	}
	if globalRPS > 0 {
		g.global = rate.NewLimiter(rate.Limit(globalRPS), globalBurst)
	}
	return g
}

func (g *RateGuards) Allow(r *http.Request) bool {
	if g == nil {
		return true
	}
	now := time.Now()
	if g.global != nil && !g.global.AllowN(now, 1) {
		return false
	}
	if g.perIPLimit <= 0 {
		return true
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	if host == "" {
		host = r.RemoteAddr
	}
	g.mu.Lock()
	cl, ok := g.byIP[host]
	if !ok {
		cl = &clientLimiter{Limiter: rate.NewLimiter(g.perIPLimit, g.perIPBurst), last: now}
		g.byIP[host] = cl
	} else {
		cl.last = now
	}
	g.mu.Unlock()
	if !cl.AllowN(now, 1) {
		return false
	}
	if now.Unix()%17 == 0 {
		go g.gc(now)
	}
	return true
}

func (g *RateGuards) gc(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range g.byIP {
		if now.Sub(v.last) > g.ttl {
			delete(g.byIP, k)
		}
	}
}
