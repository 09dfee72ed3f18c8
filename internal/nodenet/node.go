package nodenet

import (
	"fmt"
	"maps"
	"sort"

	"github.com/nvandessel/nodenet/internal/gatefunc"
	"github.com/nvandessel/nodenet/internal/nodetype"
)

// Node is a computational unit of the graph. Node values are only valid
// while the owning nodenet's lock is held, i.e. inside node functions and
// Nodenet.Do callbacks.
type Node struct {
	g *graph

	uid        string
	typ        *nodetype.Nodetype
	parent     string
	position   Position
	name       string
	parameters map[string]any
	state      map[string]any
	sheaves    sheafMap

	gates     map[string]*Gate
	slots     map[string]*Slot
	gateOrder []string
	slotOrder []string
}

// Gate is an output channel of a node.
type Gate struct {
	node      *Node
	name      string
	params    nodetype.GateParameters
	overrides map[string]any
	sheaves   sheafMap
}

// Slot is an input channel of a node.
type Slot struct {
	node    *Node
	name    string
	sheaves sheafMap
}

func newNode(g *graph, uid string, typ *nodetype.Nodetype, parent string, pos Position, name string) *Node {
	n := &Node{
		g:          g,
		uid:        uid,
		typ:        typ,
		parent:     parent,
		position:   pos,
		name:       name,
		parameters: make(map[string]any),
		state:      make(map[string]any),
		sheaves:    defaultSheaves(),
		gates:      make(map[string]*Gate),
		slots:      make(map[string]*Slot),
		gateOrder:  typ.GateTypes(),
		slotOrder:  typ.SlotTypes(),
	}
	for _, p := range typ.Parameters() {
		n.parameters[p] = typ.ParameterDefault(p)
	}
	for _, name := range n.gateOrder {
		n.gates[name] = &Gate{
			node:      n,
			name:      name,
			params:    typ.GateDefaults(name),
			overrides: make(map[string]any),
			sheaves:   defaultSheaves(),
		}
	}
	for _, name := range n.slotOrder {
		n.slots[name] = &Slot{node: n, name: name, sheaves: defaultSheaves()}
	}
	return n
}

func (n *Node) UID() string                  { return n.uid }
func (n *Node) Type() string                 { return n.typ.Name() }
func (n *Node) Nodetype() *nodetype.Nodetype { return n.typ }
func (n *Node) Name() string                 { return n.name }
func (n *Node) ParentNodespace() string      { return n.parent }
func (n *Node) Position() Position           { return n.position }
func (n *Node) GateTypes() []string          { return append([]string(nil), n.gateOrder...) }
func (n *Node) SlotTypes() []string          { return append([]string(nil), n.slotOrder...) }

// SetName renames the node.
func (n *Node) SetName(name string) { n.name = name }

// SetPosition moves the node on the canvas and updates the spatial index.
func (n *Node) SetPosition(p Position) {
	n.g.spatial.move(n.uid, n.position, p)
	n.position = p
}

// Activation returns the node's own activation in the default sheaf.
func (n *Node) Activation() float64 { return n.sheaves.activation(DefaultSheaf) }

// SheafActivation returns the node's own activation in the given sheaf.
func (n *Node) SheafActivation(sheaf SheafID) float64 { return n.sheaves.activation(sheaf) }

// SetActivation sets the node's default-sheaf activation.
func (n *Node) SetActivation(v float64) { n.SetSheafActivation(DefaultSheaf, v) }

// SetSheafActivation sets the node's activation in a sheaf, creating it if needed.
func (n *Node) SetSheafActivation(sheaf SheafID, v float64) {
	n.sheaves.get(sheaf).Activation = v
}

// Sheaves returns the node's own sheaves, default first.
func (n *Node) Sheaves() []Sheaf { return n.sheaves.list() }

// Gate returns the named gate, or nil if the node type has none.
func (n *Node) Gate(name string) *Gate { return n.gates[name] }

// Slot returns the named slot, or nil if the node type has none.
func (n *Node) Slot(name string) *Slot { return n.slots[name] }

// Parameter returns a node parameter, or nil when unset.
func (n *Node) Parameter(name string) any { return n.parameters[name] }

// Parameters returns a copy of the node parameters.
func (n *Node) Parameters() map[string]any { return maps.Clone(n.parameters) }

// SetParameter validates value against the nodetype's legal values and stores it.
func (n *Node) SetParameter(name string, value any) error {
	if err := n.typ.ValidateParameter(name, value); err != nil {
		return err
	}
	if n.typ.Name() == nodetype.Activator && name == "type" {
		n.g.clearActivator(n)
	}
	n.parameters[name] = value
	return nil
}

// ClearParameter unsets a parameter. Declared parameters are kept as nil.
func (n *Node) ClearParameter(name string) {
	if _, declared := n.parameters[name]; !declared {
		return
	}
	for _, p := range n.typ.Parameters() {
		if p == name {
			n.parameters[name] = nil
			return
		}
	}
	delete(n.parameters, name)
}

// State returns a value from the node's free-form state.
func (n *Node) State(key string) any { return n.state[key] }

// SetState stores a value in the node's free-form state.
func (n *Node) SetState(key string, value any) { n.state[key] = value }

// Outgoing returns copies of the links leaving any gate of the node.
func (n *Node) Outgoing() []Link { return copyLinks(n.g.links.outgoing(n.uid, "")) }

// Incoming returns copies of the links entering any slot of the node.
func (n *Node) Incoming() []Link { return copyLinks(n.g.links.incoming(n.uid, "")) }

func copyLinks(ls []*Link) []Link {
	out := make([]Link, len(ls))
	for i, l := range ls {
		out[i] = *l
	}
	return out
}

func (n *Node) nodespace() *Nodespace { return n.g.nodespaces[n.parent] }

func (n *Node) resetSlots() {
	for _, s := range n.slots {
		s.sheaves = defaultSheaves()
	}
}

// setGateOverrides applies user supplied gate parameters. Unknown gates are
// rejected; unknown keys and uncoercible values are logged and skipped.
func (n *Node) setGateOverrides(overrides map[string]map[string]any) error {
	for gateName, params := range overrides {
		gate, ok := n.gates[gateName]
		if !ok {
			return fmt.Errorf("%w: %s has no gate %q", ErrUnknownGate, n.typ.Name(), gateName)
		}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := gate.SetParameter(key, params[key]); err != nil {
				n.g.logger.Warn("invalid gate parameter, keeping default",
					"node", n.uid, "gate", gateName, "key", key, "error", err)
			}
		}
	}
	return nil
}

func (g *Gate) Name() string { return g.name }

// Node returns the node the gate belongs to.
func (g *Gate) Node() *Node { return g.node }

// Activation returns the default-sheaf activation.
func (g *Gate) Activation() float64 { return g.sheaves.activation(DefaultSheaf) }

// SheafActivation returns the activation within a sheaf.
func (g *Gate) SheafActivation(sheaf SheafID) float64 { return g.sheaves.activation(sheaf) }

// SetActivation writes the activation of a sheaf directly, bypassing the gate function.
func (g *Gate) SetActivation(sheaf SheafID, v float64) { g.sheaves.get(sheaf).Activation = v }

// Sheaves returns the gate's sheaves, default first.
func (g *Gate) Sheaves() []Sheaf { return g.sheaves.list() }

// Parameters returns the effective tuning of the gate.
func (g *Gate) Parameters() nodetype.GateParameters { return g.params }

// Overrides returns the parameters set on this gate beyond the nodetype defaults.
func (g *Gate) Overrides() map[string]any { return maps.Clone(g.overrides) }

// SetParameter sets a tuning value on this gate only.
func (g *Gate) SetParameter(key string, value any) error {
	if !nodetype.IsTuningKey(key) {
		return fmt.Errorf("unknown gate parameter %q", key)
	}
	if err := g.params.Set(key, value); err != nil {
		return err
	}
	v, _ := g.params.Get(key)
	if key == nodetype.ParamSpreadSheaves {
		g.overrides[key] = g.params.SpreadSheaves
	} else {
		g.overrides[key] = v
	}
	return nil
}

// Outgoing returns copies of the links leaving this gate.
func (g *Gate) Outgoing() []Link { return copyLinks(g.node.g.links.outgoing(g.node.uid, g.name)) }

// Compute runs the gate function for input and stores the result in sheaf.
//
// The nodespace gain for this gate type closes the gate when it is exactly 0.
// Otherwise the transfer function output is cut to 0 below threshold, then
// amplified, scaled by the gain and clamped to [minimum, maximum].
func (g *Gate) Compute(input float64, sheaf SheafID) float64 {
	s := g.sheaves.get(sheaf)
	gain := 1.0
	ns := g.node.nodespace()
	if ns != nil {
		if v, ok := ns.activators[g.name]; ok {
			gain = v
		}
	}
	if gain == 0 {
		s.Activation = 0
		return 0
	}

	fn := gatefunc.Func(nil)
	if ns != nil {
		fn = ns.gateFunction(g.node.typ.Name(), g.name, g.node.g.logger)
	}
	raw := input
	if fn != nil {
		raw = fn(input, g.params.Rho, g.params.Theta)
	}

	var out float64
	if raw*gain >= g.params.Threshold {
		out = raw * g.params.Amplification * gain
		out = min(g.params.Maximum, max(g.params.Minimum, out))
	}
	s.Activation = out
	return out
}

// OpenSheaf branches a new sheaf from sheaf, owned by this gate's node, and
// runs the gate function for it.
func (g *Gate) OpenSheaf(input float64, sheaf SheafID) SheafID {
	id := sheaf.Open(g.node.uid)
	s := g.sheaves.get(id)
	if sheaf.IsDefault() {
		s.Name = g.node.name
	} else if parent, ok := g.sheaves[sheaf.String()]; ok {
		s.Name = parent.Name + "-" + g.node.name
	}
	g.Compute(input, id)
	return id
}

func (s *Slot) Name() string { return s.name }

// Activation returns the default-sheaf activation.
func (s *Slot) Activation() float64 { return s.sheaves.activation(DefaultSheaf) }

// SheafActivation returns the accumulated activation within a sheaf.
func (s *Slot) SheafActivation(sheaf SheafID) float64 { return s.sheaves.activation(sheaf) }

// Sheaves returns the slot's sheaves, default first.
func (s *Slot) Sheaves() []Sheaf { return s.sheaves.list() }

// Incoming returns copies of the links entering this slot.
func (s *Slot) Incoming() []Link { return copyLinks(s.node.g.links.incoming(s.node.uid, s.name)) }
