package nodenet

import (
	"log/slog"
	"maps"

	"github.com/nvandessel/nodenet/internal/gatefunc"
)

// RootNodespace is the uid of the permanent top-level nodespace.
const RootNodespace = "Root"

// Nodespace is a container of nodes and child nodespaces. It scopes gate
// function overrides and activator gains.
type Nodespace struct {
	uid      string
	parent   string
	name     string
	position Position

	nodes    []string
	children []string

	// gatefunctions[nodetype][gate] holds a builtin name or Go source.
	gatefunctions map[string]map[string]string
	compiled      map[string]gatefunc.Func

	activators map[string]float64
}

func newNodespace(uid, parent, name string, pos Position) *Nodespace {
	return &Nodespace{
		uid:           uid,
		parent:        parent,
		name:          name,
		position:      pos,
		gatefunctions: make(map[string]map[string]string),
		compiled:      make(map[string]gatefunc.Func),
		activators:    make(map[string]float64),
	}
}

func (ns *Nodespace) UID() string        { return ns.uid }
func (ns *Nodespace) Parent() string     { return ns.parent }
func (ns *Nodespace) Name() string       { return ns.name }
func (ns *Nodespace) Position() Position { return ns.position }

// Nodes returns the uids of the nodes directly contained in ns.
func (ns *Nodespace) Nodes() []string { return append([]string(nil), ns.nodes...) }

// Children returns the uids of the direct child nodespaces.
func (ns *Nodespace) Children() []string { return append([]string(nil), ns.children...) }

// Gain returns the activator gain for a gate type and whether one is set.
func (ns *Nodespace) Gain(gate string) (float64, bool) {
	v, ok := ns.activators[gate]
	return v, ok
}

// Activators returns a copy of the gain table.
func (ns *Nodespace) Activators() map[string]float64 { return maps.Clone(ns.activators) }

// GateFunctions returns a copy of the gate function overrides.
func (ns *Nodespace) GateFunctions() map[string]map[string]string {
	out := make(map[string]map[string]string, len(ns.gatefunctions))
	for t, gates := range ns.gatefunctions {
		out[t] = maps.Clone(gates)
	}
	return out
}

// setGateFunction compiles spec and stores it. An empty spec removes the override.
func (ns *Nodespace) setGateFunction(nodetypeName, gate, spec string) error {
	key := nodetypeName + "/" + gate
	if spec == "" {
		delete(ns.gatefunctions[nodetypeName], gate)
		if len(ns.gatefunctions[nodetypeName]) == 0 {
			delete(ns.gatefunctions, nodetypeName)
		}
		delete(ns.compiled, key)
		return nil
	}
	fn, err := gatefunc.Resolve(spec)
	if err != nil {
		return err
	}
	if ns.gatefunctions[nodetypeName] == nil {
		ns.gatefunctions[nodetypeName] = make(map[string]string)
	}
	ns.gatefunctions[nodetypeName][gate] = spec
	ns.compiled[key] = fn
	return nil
}

// gateFunction returns the override for a nodetype's gate, or nil for identity.
func (ns *Nodespace) gateFunction(nodetypeName, gate string, logger *slog.Logger) gatefunc.Func {
	spec, ok := ns.gatefunctions[nodetypeName][gate]
	if !ok {
		return nil
	}
	key := nodetypeName + "/" + gate
	if fn, ok := ns.compiled[key]; ok {
		return fn
	}
	fn, err := gatefunc.Resolve(spec)
	if err != nil {
		logger.Warn("gate function does not compile, using identity",
			"nodespace", ns.uid, "nodetype", nodetypeName, "gate", gate, "error", err)
		fn = nil
	}
	ns.compiled[key] = fn
	return fn
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
