package tracker

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
)

// Summary holds compact per-scan stats, no per-port detail.
type Summary struct {
	OpenPorts        int `json:"open_ports"`
	ClosedOrFiltered int `json:"closed_or_filtered"`
	Errors           int `json:"errors"`
}

// Record describes one scan invocation for the operational surface. Scan
// results themselves are request-scoped and never stored here.
type Record struct {
	ID         string    `json:"scan_id"`
	Target     string    `json:"target"`
	Surface    string    `json:"surface"`
	PortCount  int       `json:"port_count"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Summary    Summary   `json:"summary"`
}

// Tracker keeps a bounded window of running and recently finished scans.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func New() *Tracker {
	return &Tracker{records: make(map[string]*Record)}
}

func (t *Tracker) genID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Begin registers a scan and returns its id.
func (t *Tracker) Begin(target, surface string, portCount int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.genID()
	t.records[id] = &Record{
		ID:        id,
		Target:    target,
		Surface:   surface,
		PortCount: portCount,
		State:     StateRunning,
		StartedAt: time.Now(),
	}
	return id
}

// Finish marks a scan done and attaches its summary.
func (t *Tracker) Finish(id string, sum Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := t.records[id]; r != nil {
		r.State = StateDone
		r.FinishedAt = time.Now()
		r.Summary = sum
	}
}

func (t *Tracker) Get(id string) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r := t.records[id]; r != nil {
		cp := *r
		return &cp
	}
	return nil
}

// List returns records newest first, optionally filtered by state.
func (t *Tracker) List(state string, limit int) []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Record, 0, len(t.records))
	for _, r := range t.records {
		if state != "" && r.State != State(state) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// RunningCount returns the number of scans currently in flight.
func (t *Tracker) RunningCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, r := range t.records {
		if r.State == StateRunning {
			n++
		}
	}
	return n
}

// GC removes finished records by age and enforces a maximum record count,
// dropping the oldest finished first. Running records are never dropped.
func (t *Tracker) GC(maxRecords int, maxAge time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for id, r := range t.records {
		if !r.FinishedAt.IsZero() && now.Sub(r.FinishedAt) > maxAge {
			delete(t.records, id)
		}
	}
	if maxRecords > 0 && len(t.records) > maxRecords {
		type pair struct {
			id   string
			when time.Time
		}
		var fin []pair
		for id, r := range t.records {
			if !r.FinishedAt.IsZero() {
				fin = append(fin, pair{id, r.FinishedAt})
			}
		}
		sort.Slice(fin, func(i, j int) bool { return fin[i].when.Before(fin[j].when) })
		over := len(t.records) - maxRecords
		for i := 0; i < len(fin) && over > 0; i++ {
			delete(t.records, fin[i].id)
			over--
		}
	}
}
