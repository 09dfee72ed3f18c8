package nodenet

import (
	"fmt"
	"maps"
	"sort"
)

// MonitorType selects whether a monitor samples a gate or a slot.
type MonitorType string

const (
	MonitorGate MonitorType = "gate"
	MonitorSlot MonitorType = "slot"
)

// Monitor samples one gate or slot activation after every step.
type Monitor struct {
	UID     string          `json:"uid"`
	NodeUID string          `json:"node_uid"`
	Type    MonitorType     `json:"type"`
	Target  string          `json:"target"`
	Sheaf   SheafID         `json:"sheaf"`
	Name    string          `json:"name"`
	Values  map[int]float64 `json:"values"`
}

func (m *Monitor) clone() Monitor {
	c := *m
	c.Values = maps.Clone(m.Values)
	if c.Values == nil {
		c.Values = map[int]float64{}
	}
	return c
}

func (g *graph) addMonitor(m Monitor) (string, error) {
	node, err := g.node(m.NodeUID)
	if err != nil {
		return "", err
	}
	switch m.Type {
	case MonitorGate:
		if node.Gate(m.Target) == nil {
			return "", fmt.Errorf("%w: %s has no gate %q", ErrUnknownGate, node.Type(), m.Target)
		}
	case MonitorSlot:
		if node.Slot(m.Target) == nil {
			return "", fmt.Errorf("%w: %s has no slot %q", ErrUnknownSlot, node.Type(), m.Target)
		}
	default:
		return "", fmt.Errorf("unknown monitor type %q", m.Type)
	}
	if m.UID == "" {
		m.UID = newUID()
	}
	if m.Sheaf == (SheafID{}) {
		m.Sheaf = DefaultSheaf
	}
	if m.Name == "" {
		m.Name = fmt.Sprintf("%s.%s %s", node.name, m.Target, m.Type)
	}
	if m.Values == nil {
		m.Values = make(map[int]float64)
	}
	g.monitors[m.UID] = &m
	return m.UID, nil
}

// sampleMonitors records the current value of every monitor under the
// current step. Monitors of deleted nodes record nothing.
func (g *graph) sampleMonitors() {
	for _, m := range g.monitors {
		node, ok := g.nodes[m.NodeUID]
		if !ok {
			continue
		}
		switch m.Type {
		case MonitorGate:
			if gate := node.Gate(m.Target); gate != nil {
				m.Values[g.step] = gate.SheafActivation(m.Sheaf)
			}
		case MonitorSlot:
			if slot := node.Slot(m.Target); slot != nil {
				m.Values[g.step] = slot.SheafActivation(m.Sheaf)
			}
		}
	}
}

// AddGateMonitor starts sampling a gate in the default sheaf and returns the monitor uid.
func (n *Nodenet) AddGateMonitor(nodeUID, gate, name string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.g.addMonitor(Monitor{NodeUID: nodeUID, Type: MonitorGate, Target: gate, Name: name})
}

// AddSlotMonitor starts sampling a slot in the default sheaf and returns the monitor uid.
func (n *Nodenet) AddSlotMonitor(nodeUID, slot, name string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.g.addMonitor(Monitor{NodeUID: nodeUID, Type: MonitorSlot, Target: slot, Name: name})
}

// RemoveMonitor stops and discards a monitor.
func (n *Nodenet) RemoveMonitor(uid string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.g.monitors[uid]; !ok {
		return fmt.Errorf("monitor %s not found", uid)
	}
	delete(n.g.monitors, uid)
	return nil
}

// ClearMonitor drops the recorded values of a monitor.
func (n *Nodenet) ClearMonitor(uid string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, ok := n.g.monitors[uid]
	if !ok {
		return fmt.Errorf("monitor %s not found", uid)
	}
	m.Values = make(map[int]float64)
	return nil
}

// Monitors returns copies of all monitors ordered by uid.
func (n *Nodenet) Monitors() []Monitor {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Monitor, 0, len(n.g.monitors))
	for _, m := range n.g.monitors {
		out = append(out, m.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Modulator returns a nodenet-wide scalar; unset modulators read as 1.
func (n *Nodenet) Modulator(name string) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.api.Modulator(name)
}

// SetModulator sets a nodenet-wide scalar.
func (n *Nodenet) SetModulator(name string, value float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.api.SetModulator(name, value)
}

// Modulators returns a copy of all modulators.
func (n *Nodenet) Modulators() map[string]float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return maps.Clone(n.g.modulators)
}
