// Package worldadapter provides environments a nodenet can be bound to.
package worldadapter

import (
	"maps"
	"sort"
	"sync"
)

// Memory is an in-process environment. Datasources are written by the
// owner at any time; a nodenet reads the values frozen by the last
// Snapshot. Datatargets accumulate what actors write until they are drained.
type Memory struct {
	mu        sync.Mutex
	sources   map[string]float64
	snapshot  map[string]float64
	targets   map[string]float64
	snapshots int
}

// NewMemory creates an environment with the given channels, all at 0.
func NewMemory(datasources, datatargets []string) *Memory {
	m := &Memory{
		sources:  make(map[string]float64, len(datasources)),
		snapshot: make(map[string]float64, len(datasources)),
		targets:  make(map[string]float64, len(datatargets)),
	}
	for _, s := range datasources {
		m.sources[s] = 0
		m.snapshot[s] = 0
	}
	for _, t := range datatargets {
		m.targets[t] = 0
	}
	return m
}

// SetDatasource sets the live value of a datasource, adding it if needed.
func (m *Memory) SetDatasource(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[name] = value
}

// AddDatatarget declares a datatarget.
func (m *Memory) AddDatatarget(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[name]; !ok {
		m.targets[name] = 0
	}
}

// Snapshot freezes the live datasource values for the next step.
func (m *Memory) Snapshot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = maps.Clone(m.sources)
	m.snapshots++
}

// Snapshots returns how many times Snapshot was called.
func (m *Memory) Snapshots() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots
}

// ReadDatasource returns the snapshotted value of a datasource.
func (m *Memory) ReadDatasource(name string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.snapshot[name]
	return v, ok
}

// WriteDatatarget adds value to a declared datatarget. Unknown targets are ignored.
func (m *Memory) WriteDatatarget(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[name]; ok {
		m.targets[name] += value
	}
}

// Datatarget returns the accumulated value of a datatarget.
func (m *Memory) Datatarget(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targets[name]
}

// DrainDatatargets returns all datatarget values and resets them to 0.
func (m *Memory) DrainDatatargets() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := maps.Clone(m.targets)
	for k := range m.targets {
		m.targets[k] = 0
	}
	return out
}

// Datasources returns the datasource names, sorted.
func (m *Memory) Datasources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedNames(m.sources)
}

// Datatargets returns the datatarget names, sorted.
func (m *Memory) Datatargets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedNames(m.targets)
}

func sortedNames(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
