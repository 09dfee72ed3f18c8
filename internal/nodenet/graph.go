package nodenet

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nvandessel/nodenet/internal/nodetype"
)

// graph is the complete mutable state of a nodenet. Loading data builds a
// fresh graph and swaps it in, so a failed load leaves the old one intact.
type graph struct {
	registry *nodetype.Registry
	library  *FunctionLibrary
	logger   *slog.Logger

	nodes      map[string]*Node
	order      []string
	nodespaces map[string]*Nodespace
	links      *linkTable
	spatial    *spatialIndex

	// resolved node functions per nodetype; a nil entry means none.
	funcs map[string]NodeFunc

	groups     map[string]map[string]*group
	modulators map[string]float64
	monitors   map[string]*Monitor
	step       int
}

func newGraph(registry *nodetype.Registry, library *FunctionLibrary, logger *slog.Logger) *graph {
	g := &graph{
		registry:   registry,
		library:    library,
		logger:     logger,
		nodes:      make(map[string]*Node),
		nodespaces: make(map[string]*Nodespace),
		links:      newLinkTable(),
		spatial:    newSpatialIndex(),
		funcs:      make(map[string]NodeFunc),
		groups:     make(map[string]map[string]*group),
		modulators: make(map[string]float64),
		monitors:   make(map[string]*Monitor),
	}
	g.nodespaces[RootNodespace] = newNodespace(RootNodespace, "", RootNodespace, Position{})
	return g
}

// NodeSpec describes a node to create.
type NodeSpec struct {
	UID       string
	Type      string
	Nodespace string
	Name      string
	// Position defaults to the right of the rightmost node.
	Position       *Position
	Parameters     map[string]any
	GateParameters map[string]map[string]any
}

func newUID() string { return uuid.NewString() }

// sortedNodes returns all nodes ordered by uid.
func (g *graph) sortedNodes() []*Node {
	if g.order == nil {
		g.order = make([]string, 0, len(g.nodes))
		for uid := range g.nodes {
			g.order = append(g.order, uid)
		}
		sort.Strings(g.order)
	}
	out := make([]*Node, 0, len(g.order))
	for _, uid := range g.order {
		out = append(out, g.nodes[uid])
	}
	return out
}

func (g *graph) node(uid string) (*Node, error) {
	n, ok := g.nodes[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, uid)
	}
	return n, nil
}

// nodespace resolves uid, treating the empty string as Root.
func (g *graph) nodespace(uid string) (*Nodespace, error) {
	if uid == "" {
		uid = RootNodespace
	}
	ns, ok := g.nodespaces[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodespaceNotFound, uid)
	}
	return ns, nil
}

func (g *graph) addNodespace(uid, parent, name string, pos Position) (*Nodespace, error) {
	if uid == "" {
		uid = newUID()
	}
	if _, exists := g.nodespaces[uid]; exists {
		return nil, fmt.Errorf("nodespace %s already exists", uid)
	}
	if _, exists := g.nodes[uid]; exists {
		return nil, fmt.Errorf("uid %s already used by a node", uid)
	}
	p, err := g.nodespace(parent)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = uid
	}
	ns := newNodespace(uid, p.uid, name, pos)
	g.nodespaces[uid] = ns
	p.children = append(p.children, uid)
	return ns, nil
}

func (g *graph) addNode(spec NodeSpec) (*Node, error) {
	t, ok := g.registry.Get(spec.Type)
	if !ok || spec.Type == nodetype.Nodespace {
		g.logger.Warn("dropping node of unknown type", "type", spec.Type, "uid", spec.UID)
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodetype, spec.Type)
	}
	if _, err := g.nodeFunction(t); err != nil {
		return nil, err
	}
	ns, err := g.nodespace(spec.Nodespace)
	if err != nil {
		return nil, err
	}
	uid := spec.UID
	if uid == "" {
		uid = newUID()
	}
	if _, exists := g.nodes[uid]; exists {
		return nil, fmt.Errorf("node %s already exists", uid)
	}
	if _, exists := g.nodespaces[uid]; exists {
		return nil, fmt.Errorf("uid %s already used by a nodespace", uid)
	}

	var pos Position
	if spec.Position != nil {
		pos = *spec.Position
	} else {
		pos = Position{X: g.spatial.maxCoords().X + 50, Y: 100}
	}

	n := newNode(g, uid, t, ns.uid, pos, spec.Name)
	keys := make([]string, 0, len(spec.Parameters))
	for k := range spec.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := t.ValidateParameter(k, spec.Parameters[k]); err != nil {
			return nil, err
		}
		n.parameters[k] = spec.Parameters[k]
	}
	if err := n.setGateOverrides(spec.GateParameters); err != nil {
		return nil, err
	}

	g.nodes[uid] = n
	g.order = nil
	ns.nodes = append(ns.nodes, uid)
	g.spatial.add(uid, pos)
	return n, nil
}

// deleteNode removes a node after unlinking it completely.
func (g *graph) deleteNode(uid string) error {
	n, err := g.node(uid)
	if err != nil {
		return err
	}
	g.links.removeNode(uid)
	if ns, ok := g.nodespaces[n.parent]; ok {
		ns.nodes = removeString(ns.nodes, uid)
	}
	g.clearActivator(n)
	g.spatial.remove(uid, n.position)
	delete(g.nodes, uid)
	g.order = nil
	return nil
}

// deleteNodespace removes a nodespace with all contained nodes and child
// nodespaces, depth first.
func (g *graph) deleteNodespace(uid string) error {
	if uid == RootNodespace || uid == "" {
		return ErrRootNodespace
	}
	ns, err := g.nodespace(uid)
	if err != nil {
		return err
	}
	for _, child := range ns.Children() {
		if err := g.deleteNodespace(child); err != nil {
			return err
		}
	}
	for _, nodeUID := range ns.Nodes() {
		if err := g.deleteNode(nodeUID); err != nil {
			return err
		}
	}
	if p, ok := g.nodespaces[ns.parent]; ok {
		p.children = removeString(p.children, uid)
	}
	delete(g.groups, uid)
	delete(g.nodespaces, uid)
	return nil
}

// moveNode re-parents a node. Gains controlled by an activator move with it.
func (g *graph) moveNode(n *Node, nodespaceUID string) error {
	dst, err := g.nodespace(nodespaceUID)
	if err != nil {
		return err
	}
	if dst.uid == n.parent {
		return nil
	}
	g.clearActivator(n)
	if src, ok := g.nodespaces[n.parent]; ok {
		src.nodes = removeString(src.nodes, n.uid)
	}
	dst.nodes = append(dst.nodes, n.uid)
	n.parent = dst.uid
	return nil
}

// link creates or updates a link after validating both endpoints.
func (g *graph) link(sourceUID, gate, targetUID, slot string, weight, certainty float64) error {
	src, err := g.node(sourceUID)
	if err != nil {
		g.logger.Warn("link from unknown node", "source", sourceUID)
		return err
	}
	tgt, err := g.node(targetUID)
	if err != nil {
		g.logger.Warn("link to unknown node", "target", targetUID)
		return err
	}
	if _, ok := src.gates[gate]; !ok {
		g.logger.Warn("link from unknown gate", "source", sourceUID, "gate", gate)
		return fmt.Errorf("%w: %s has no gate %q", ErrUnknownGate, src.Type(), gate)
	}
	if _, ok := tgt.slots[slot]; !ok {
		g.logger.Warn("link to unknown slot", "target", targetUID, "slot", slot)
		return fmt.Errorf("%w: %s has no slot %q", ErrUnknownSlot, tgt.Type(), slot)
	}
	g.links.put(Link{
		SourceUID: sourceUID,
		Gate:      gate,
		TargetUID: targetUID,
		Slot:      slot,
		Weight:    weight,
		Certainty: certainty,
	})
	return nil
}

// clearActivator reverts the gain controlled by an Activator node to 1.
func (g *graph) clearActivator(n *Node) {
	if n.typ.Name() != nodetype.Activator {
		return
	}
	gate, _ := n.parameters["type"].(string)
	if ns, ok := g.nodespaces[n.parent]; ok && gate != "" {
		delete(ns.activators, gate)
	}
}

// nodeFunction resolves and caches the node function of a nodetype.
func (g *graph) nodeFunction(t *nodetype.Nodetype) (NodeFunc, error) {
	if fn, ok := g.funcs[t.Name()]; ok {
		return fn, nil
	}
	fn, err := g.library.Resolve(t.Definition())
	if err != nil {
		return nil, fmt.Errorf("nodetype %s: %w", t.Name(), err)
	}
	g.funcs[t.Name()] = fn
	return fn, nil
}

// isWithin reports whether nodespace uid equals ancestor or lies below it.
func (g *graph) isWithin(uid, ancestor string) bool {
	for seen := 0; uid != "" && seen <= len(g.nodespaces); seen++ {
		if uid == ancestor {
			return true
		}
		ns, ok := g.nodespaces[uid]
		if !ok {
			return false
		}
		uid = ns.parent
	}
	return false
}

// nodesIn lists nodes of a nodespace (all when nodespace is empty) whose
// names start with prefix, ordered by uid.
func (g *graph) nodesIn(nodespace, prefix string) []*Node {
	var out []*Node
	for _, n := range g.sortedNodes() {
		if nodespace != "" && n.parent != nodespace {
			continue
		}
		if prefix != "" && !strings.HasPrefix(n.name, prefix) {
			continue
		}
		out = append(out, n)
	}
	return out
}
