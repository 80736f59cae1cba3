package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/beau-wood/Network-Ops-MCP/internal/baseline"
)

// Manager guards the active configuration with an RWMutex and provides
// snapshot semantics for readers.
type Manager struct {
	mu         sync.RWMutex
	cfg        *Config
	configPath string
	// Optional callbacks for post-reload operations (e.g., updating sweeper TTL)
	onReload []func(old, newCfg *Config)

	// Derived state rebuilt on load/reload
	baselineMap *baseline.Map
}

// NewManager creates a new manager with an initial config and the path it came from.
func NewManager(initial *Config, path string) *Manager {
	m := &Manager{cfg: initial, configPath: filepath.Clean(path)}
	m.recomputeDerivedLocked()
	return m
}

// SetOnReload replaces the callback list with a single callback.
func (m *Manager) SetOnReload(callback func(old, newCfg *Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = nil
	if callback != nil {
		m.onReload = append(m.onReload, callback)
	}
}

// AddOnReload appends a callback to be called on each successful reload.
func (m *Manager) AddOnReload(callback func(old, newCfg *Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if callback != nil {
		m.onReload = append(m.onReload, callback)
	}
}

// Get returns a copy-by-value snapshot of the current config for safe read-only use.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// Update replaces the current config. Callers must ensure the config was validated.
func (m *Manager) Update(c *Config) {
	m.mu.Lock()
	old := m.cfg
	m.cfg = c
	m.recomputeDerivedLocked()
	callbacks := append([]func(old, newCfg *Config){}, m.onReload...)
	m.mu.Unlock()

	// Call the callbacks outside the lock to avoid deadlocks
	for _, cb := range callbacks {
		if cb != nil {
			cb(old, c)
		}
	}
}

// Reload loads the configuration from the original file path and updates it.
// This centralizes the reload logic for SIGHUP, /-/reload, and the file
// watcher.
func (m *Manager) Reload() error {
	newCfg, err := LoadConfig(m.Path())
	if err != nil {
		return fmt.Errorf("failed to load config from %s: %w", m.Path(), err)
	}

	m.Update(newCfg)
	return nil
}

// Path returns the source path (useful for SIGHUP reload).
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configPath
}

// GetTTL returns the per-target metric retention for the current configuration.
func (m *Manager) GetTTL() time.Duration {
	cfg := m.Get()
	return cfg.Scan.MetricTTLDuration()
}

// GetBaseline returns the precomputed expected-service map (nil when the
// baseline section is empty).
func (m *Manager) GetBaseline() *baseline.Map {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baselineMap
}

// recomputeDerivedLocked rebuilds derived caches/state. Caller must hold m.mu.
func (m *Manager) recomputeDerivedLocked() {
	m.baselineMap = nil
	if m.cfg != nil && len(m.cfg.Baseline) > 0 {
		entries := make([]baseline.Entry, 0, len(m.cfg.Baseline))
		for _, b := range m.cfg.Baseline {
			entries = append(entries, baseline.Entry{
				Target: b.Target,
				Ports:  append([]string(nil), b.Ports...),
			})
		}
		m.baselineMap = baseline.Build(entries)
	}
}
