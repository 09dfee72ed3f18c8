package nodenet

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
)

// DataVersion is the version marker written into every export. Data with
// any other marker is rejected on load.
const DataVersion = 1

// Data is the serialized form of a whole nodenet.
type Data struct {
	Version    int                      `json:"version"`
	UID        string                   `json:"uid"`
	Name       string                   `json:"name"`
	Step       int                      `json:"current_step"`
	Nodes      map[string]NodeData      `json:"nodes"`
	Links      []Link                   `json:"links"`
	Nodespaces map[string]NodespaceData `json:"nodespaces"`
	Modulators map[string]float64       `json:"modulators"`
	Monitors   map[string]Monitor       `json:"monitors"`
}

// NodeData is the serialized form of a node. GateParameters holds only the
// values set on the node itself, not the nodetype defaults.
type NodeData struct {
	UID             string                          `json:"uid"`
	Type            string                          `json:"type"`
	Nodespace       string                          `json:"parent_nodespace"`
	Position        Position                        `json:"position"`
	Name            string                          `json:"name"`
	Activation      float64                         `json:"activation"`
	Parameters      map[string]any                  `json:"parameters"`
	GateParameters  map[string]map[string]any       `json:"gate_parameters"`
	GateActivations map[string]map[string]SheafData `json:"gate_activations"`
	Sheaves         map[string]SheafData            `json:"sheaves"`
	State           map[string]any                  `json:"state"`
}

// SheafData is a sheaf keyed elsewhere by its flat id.
type SheafData struct {
	SheafID
	Name       string  `json:"name"`
	Activation float64 `json:"activation"`
}

// NodespaceData is the serialized form of a nodespace.
type NodespaceData struct {
	UID           string                       `json:"uid"`
	Parent        string                       `json:"parent_nodespace"`
	Name          string                       `json:"name"`
	Position      Position                     `json:"position"`
	GateFunctions map[string]map[string]string `json:"gatefunctions"`
	Activators    map[string]float64           `json:"activators"`
}

// ParseData decodes an export and checks its version marker.
func ParseData(b []byte) (Data, error) {
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return Data{}, fmt.Errorf("decoding nodenet data: %w", err)
	}
	if d.Version != DataVersion {
		return Data{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, d.Version, DataVersion)
	}
	return d, nil
}

// Marshal encodes d as indented JSON. Map keys are sorted, so equal data
// encodes to equal bytes.
func (d Data) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func exportSheaves(m sheafMap) map[string]SheafData {
	out := make(map[string]SheafData, len(m))
	for k, s := range m {
		out[k] = SheafData{SheafID: s.ID, Name: s.Name, Activation: s.Activation}
	}
	return out
}

func restoreSheaves(in map[string]SheafData) sheafMap {
	m := defaultSheaves()
	for k, s := range in {
		m[k] = &Sheaf{ID: s.SheafID, Name: s.Name, Activation: s.Activation}
	}
	return m
}

func exportNode(n *Node) NodeData {
	d := NodeData{
		UID:             n.uid,
		Type:            n.typ.Name(),
		Nodespace:       n.parent,
		Position:        n.position,
		Name:            n.name,
		Activation:      n.Activation(),
		Parameters:      maps.Clone(n.parameters),
		GateParameters:  make(map[string]map[string]any),
		GateActivations: make(map[string]map[string]SheafData, len(n.gates)),
		Sheaves:         exportSheaves(n.sheaves),
		State:           maps.Clone(n.state),
	}
	for name, g := range n.gates {
		if len(g.overrides) > 0 {
			d.GateParameters[name] = maps.Clone(g.overrides)
		}
		d.GateActivations[name] = exportSheaves(g.sheaves)
	}
	return d
}

func exportNodespace(ns *Nodespace) NodespaceData {
	return NodespaceData{
		UID:           ns.uid,
		Parent:        ns.parent,
		Name:          ns.name,
		Position:      ns.position,
		GateFunctions: ns.GateFunctions(),
		Activators:    ns.Activators(),
	}
}

// exportLocked serializes the current graph. The caller holds n.mu.
func (n *Nodenet) exportLocked() Data {
	g := n.g
	d := Data{
		Version:    DataVersion,
		UID:        n.uid,
		Name:       n.name,
		Step:       g.step,
		Nodes:      make(map[string]NodeData, len(g.nodes)),
		Links:      g.links.all(),
		Nodespaces: make(map[string]NodespaceData, len(g.nodespaces)),
		Modulators: make(map[string]float64, len(g.modulators)),
		Monitors:   make(map[string]Monitor, len(g.monitors)),
	}
	for uid, node := range g.nodes {
		d.Nodes[uid] = exportNode(node)
	}
	for uid, ns := range g.nodespaces {
		d.Nodespaces[uid] = exportNodespace(ns)
	}
	maps.Copy(d.Modulators, g.modulators)
	for uid, m := range g.monitors {
		d.Monitors[uid] = m.clone()
	}
	return d
}

// Export serializes the whole nodenet.
func (n *Nodenet) Export() Data {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.exportLocked()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildGraph creates a fresh graph from data without touching the current
// one. Nodes of unknown types are dropped with a warning, and so are links
// that no longer resolve.
func (n *Nodenet) buildGraph(data Data) (*graph, error) {
	if data.Version != DataVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, data.Version, DataVersion)
	}
	g := newGraph(n.registry, n.library, n.logger)
	if err := n.resolveAll(g); err != nil {
		return nil, err
	}
	if err := g.restoreNodespaces(data.Nodespaces); err != nil {
		return nil, err
	}

	for _, uid := range sortedKeys(data.Nodes) {
		nd := data.Nodes[uid]
		if err := g.restoreNode(uid, nd); err != nil {
			if errors.Is(err, ErrUnknownNodetype) {
				continue
			}
			return nil, fmt.Errorf("node %s: %w", uid, err)
		}
	}

	dropped := 0
	for _, l := range data.Links {
		// link logs the reason for every rejected link.
		if err := g.link(l.SourceUID, l.Gate, l.TargetUID, l.Slot, l.Weight, l.Certainty); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		n.logger.Info("dropped unresolvable links", "count", dropped)
	}

	maps.Copy(g.modulators, data.Modulators)
	for _, uid := range sortedKeys(data.Monitors) {
		m := data.Monitors[uid]
		m.UID = uid
		m.Values = maps.Clone(m.Values)
		if _, err := g.addMonitor(m); err != nil {
			n.logger.Warn("dropping monitor", "monitor", uid, "error", err)
		}
	}
	g.step = data.Step
	return g, nil
}

// restoreNodespaces creates every nodespace after its ancestors, whatever
// order the data lists them in.
func (g *graph) restoreNodespaces(spaces map[string]NodespaceData) error {
	if root, ok := spaces[RootNodespace]; ok {
		g.applyNodespaceData(g.nodespaces[RootNodespace], root)
	}
	visiting := make(map[string]bool)
	var ensure func(uid string) error
	ensure = func(uid string) error {
		if _, ok := g.nodespaces[uid]; ok {
			return nil
		}
		d, ok := spaces[uid]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNodespaceNotFound, uid)
		}
		if visiting[uid] {
			return fmt.Errorf("nodespace %s is its own ancestor", uid)
		}
		visiting[uid] = true
		parent := d.Parent
		if parent == "" {
			parent = RootNodespace
		}
		if err := ensure(parent); err != nil {
			return fmt.Errorf("parent of nodespace %s: %w", uid, err)
		}
		ns, err := g.addNodespace(uid, parent, d.Name, d.Position)
		if err != nil {
			return err
		}
		g.applyNodespaceData(ns, d)
		return nil
	}
	for _, uid := range sortedKeys(spaces) {
		if err := ensure(uid); err != nil {
			return err
		}
	}
	return nil
}

// applyNodespaceData restores gate functions and gains. Gate functions are
// compiled lazily, so sources that no longer compile survive a round trip.
func (g *graph) applyNodespaceData(ns *Nodespace, d NodespaceData) {
	if d.Name != "" {
		ns.name = d.Name
	}
	ns.position = d.Position
	for nt, gates := range d.GateFunctions {
		for gate, spec := range gates {
			if spec == "" {
				continue
			}
			if ns.gatefunctions[nt] == nil {
				ns.gatefunctions[nt] = make(map[string]string)
			}
			ns.gatefunctions[nt][gate] = spec
		}
	}
	maps.Copy(ns.activators, d.Activators)
}

func (g *graph) restoreNode(uid string, nd NodeData) error {
	overrides := make(map[string]map[string]any, len(nd.GateParameters))
	if t, ok := g.registry.Get(nd.Type); ok {
		for gate, params := range nd.GateParameters {
			if !t.HasGate(gate) {
				g.logger.Warn("dropping parameters of unknown gate", "node", uid, "gate", gate)
				continue
			}
			overrides[gate] = params
		}
	}
	pos := nd.Position
	node, err := g.addNode(NodeSpec{
		UID:            uid,
		Type:           nd.Type,
		Nodespace:      nd.Nodespace,
		Name:           nd.Name,
		Position:       &pos,
		Parameters:     nd.Parameters,
		GateParameters: overrides,
	})
	if err != nil {
		return err
	}
	if nd.State != nil {
		node.state = maps.Clone(nd.State)
	}
	if len(nd.Sheaves) > 0 {
		node.sheaves = restoreSheaves(nd.Sheaves)
	}
	for gate, sheaves := range nd.GateActivations {
		if gt, ok := node.gates[gate]; ok {
			gt.sheaves = restoreSheaves(sheaves)
		}
	}
	return nil
}

// Load replaces the whole graph with data. On error the current graph is
// left untouched. The nodenet keeps its uid; locks and pending prompts are
// dropped.
func (n *Nodenet) Load(data Data) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	g, err := n.buildGraph(data)
	if err != nil {
		return fmt.Errorf("load nodenet %s: %w", n.uid, err)
	}
	n.g = g
	if data.Name != "" {
		n.name = data.Name
	}
	n.locks = make(map[string]*heldLock)
	n.pendingUnlocks = nil
	n.prompt = nil
	n.logger.Info("nodenet loaded", "nodes", len(g.nodes), "step", g.step)
	return nil
}

// NewFromData creates a nodenet and loads data into it. The nodenet takes
// the uid and name of the data unless opts sets them.
func NewFromData(data Data, opts Options) (*Nodenet, error) {
	if opts.UID == "" {
		opts.UID = data.UID
	}
	if opts.Name == "" {
		opts.Name = data.Name
	}
	n, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := n.Load(data); err != nil {
		return nil, err
	}
	return n, nil
}

// Merge adds the nodes, nodespaces, links, monitors and missing modulators
// of data to the nodenet. Uids are kept unless they collide, in which case
// fresh ones are assigned and links are rewired. The incoming Root maps onto
// the existing Root. It returns the node uids that were renamed.
func (n *Nodenet) Merge(data Data) (map[string]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mergeLocked(data, RootNodespace)
}

// CopyNodes copies nodes and nodespaces, with everything they contain, from
// src into the nodespace target. Links between copied nodes are always
// copied; links to other nodes only with copyAssociated, and only if the
// other end exists here. It returns the node uids that were renamed.
func (n *Nodenet) CopyNodes(src *Nodenet, nodeUIDs, nodespaceUIDs []string, target string, copyAssociated bool) (map[string]string, error) {
	// Export before locking n so that copying within one nodenet does not deadlock.
	data := src.Export()
	subset, err := selectSubset(data, nodeUIDs, nodespaceUIDs, copyAssociated)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mergeLocked(subset, target)
}

// selectSubset cuts the requested nodes and nodespaces out of data.
func selectSubset(data Data, nodeUIDs, nodespaceUIDs []string, copyAssociated bool) (Data, error) {
	out := Data{
		Version:    DataVersion,
		Nodes:      make(map[string]NodeData),
		Nodespaces: make(map[string]NodespaceData),
	}
	for _, uid := range nodespaceUIDs {
		if uid == RootNodespace || uid == "" {
			return Data{}, ErrRootNodespace
		}
		if _, ok := data.Nodespaces[uid]; !ok {
			return Data{}, fmt.Errorf("%w: %s", ErrNodespaceNotFound, uid)
		}
	}
	for _, uid := range nodeUIDs {
		nd, ok := data.Nodes[uid]
		if !ok {
			return Data{}, fmt.Errorf("%w: %s", ErrNodeNotFound, uid)
		}
		out.Nodes[uid] = nd
	}

	selected := make(map[string]bool)
	for _, uid := range nodespaceUIDs {
		selected[uid] = true
	}
	// Pull in descendants until nothing changes.
	for changed := true; changed; {
		changed = false
		for uid, ns := range data.Nodespaces {
			if !selected[uid] && selected[ns.Parent] {
				selected[uid] = true
				changed = true
			}
		}
	}
	for uid := range selected {
		out.Nodespaces[uid] = data.Nodespaces[uid]
	}
	for uid, nd := range data.Nodes {
		if selected[nd.Nodespace] {
			out.Nodes[uid] = nd
		}
	}

	for _, l := range data.Links {
		_, src := out.Nodes[l.SourceUID]
		_, dst := out.Nodes[l.TargetUID]
		if (src && dst) || (copyAssociated && (src || dst)) {
			out.Links = append(out.Links, l)
		}
	}
	return out, nil
}

// mergeLocked adds in to the current graph. Nodes and nodespaces whose
// parent is not part of in are placed in attach. The caller holds n.mu.
func (n *Nodenet) mergeLocked(in Data, attach string) (map[string]string, error) {
	if in.Version != DataVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, in.Version, DataVersion)
	}
	dst, err := n.g.nodespace(attach)
	if err != nil {
		return nil, err
	}
	attach = dst.uid

	cur := n.exportLocked()
	used := make(map[string]bool, len(cur.Nodes)+len(cur.Nodespaces))
	for uid := range cur.Nodes {
		used[uid] = true
	}
	for uid := range cur.Nodespaces {
		used[uid] = true
	}
	assign := func(uid string) string {
		if uid == "" || used[uid] {
			uid = newUID()
		}
		used[uid] = true
		return uid
	}

	spaceMap := map[string]string{RootNodespace: attach}
	for _, uid := range sortedKeys(in.Nodespaces) {
		if uid != RootNodespace {
			spaceMap[uid] = assign(uid)
		}
	}
	parentOf := func(uid string) string {
		if p, ok := spaceMap[uid]; ok {
			return p
		}
		return attach
	}
	nodeMap := make(map[string]string, len(in.Nodes))
	renamed := make(map[string]string)
	for _, uid := range sortedKeys(in.Nodes) {
		nodeMap[uid] = assign(uid)
		if nodeMap[uid] != uid {
			renamed[uid] = nodeMap[uid]
		}
	}

	for _, uid := range sortedKeys(in.Nodespaces) {
		if uid == RootNodespace {
			continue
		}
		d := in.Nodespaces[uid]
		d.UID = spaceMap[uid]
		if d.Parent == "" {
			d.Parent = attach
		} else {
			d.Parent = parentOf(d.Parent)
		}
		cur.Nodespaces[d.UID] = d
	}
	opened := openedSheaves(in.Nodes)
	for uid, nd := range in.Nodes {
		nd.UID = nodeMap[uid]
		nd.Nodespace = parentOf(nd.Nodespace)
		if len(renamed) > 0 {
			nd.Sheaves = remapSheaves(nd.Sheaves, opened, nodeMap)
			gates := make(map[string]map[string]SheafData, len(nd.GateActivations))
			for gate, sheaves := range nd.GateActivations {
				gates[gate] = remapSheaves(sheaves, opened, nodeMap)
			}
			nd.GateActivations = gates
		}
		cur.Nodes[nd.UID] = nd
	}
	for _, l := range in.Links {
		if uid, ok := nodeMap[l.SourceUID]; ok {
			l.SourceUID = uid
		}
		if uid, ok := nodeMap[l.TargetUID]; ok {
			l.TargetUID = uid
		}
		cur.Links = append(cur.Links, l)
	}
	for uid, m := range in.Monitors {
		nodeUID, ok := nodeMap[m.NodeUID]
		if !ok {
			continue
		}
		m.NodeUID = nodeUID
		if _, taken := cur.Monitors[uid]; taken {
			uid = newUID()
		}
		m.UID = uid
		cur.Monitors[uid] = m
	}
	for k, v := range in.Modulators {
		if _, ok := cur.Modulators[k]; !ok {
			cur.Modulators[k] = v
		}
	}

	g, err := n.buildGraph(cur)
	if err != nil {
		return nil, fmt.Errorf("merge into nodenet %s: %w", n.uid, err)
	}
	g.groups = n.g.groups
	n.g = g
	n.logger.Info("merged nodenet data", "nodes", len(in.Nodes), "renamed", len(renamed))
	return renamed, nil
}

// openedSheaves collects the ids of all sheaves opened by nodes, keyed by
// their flat id.
func openedSheaves(nodes map[string]NodeData) map[string]SheafID {
	out := make(map[string]SheafID)
	add := func(m map[string]SheafData) {
		for _, sd := range m {
			if sd.Owner != "" {
				out[sd.SheafID.String()] = sd.SheafID
			}
		}
	}
	for _, nd := range nodes {
		add(nd.Sheaves)
		for _, sheaves := range nd.GateActivations {
			add(sheaves)
		}
	}
	return out
}

// remapSheaves rewrites sheaf owners through nodeMap. Branches that name a
// sheaf opened by a renamed node are rewritten too, so nested sheaves still
// fold back into their parents.
func remapSheaves(in map[string]SheafData, opened map[string]SheafID, nodeMap map[string]string) map[string]SheafData {
	if in == nil {
		return nil
	}
	out := make(map[string]SheafData, len(in))
	for key, sd := range in {
		if sd.Owner == "" {
			out[key] = sd
			continue
		}
		sd.SheafID = remapSheafID(sd.SheafID, opened, nodeMap, len(opened))
		out[sd.SheafID.String()] = sd
	}
	return out
}

func remapSheafID(id SheafID, opened map[string]SheafID, nodeMap map[string]string, depth int) SheafID {
	if id.Owner == "" {
		return id
	}
	if uid, ok := nodeMap[id.Owner]; ok {
		id.Owner = uid
	}
	if parent, ok := opened[id.Branch]; ok && depth > 0 {
		id.Branch = remapSheafID(parent, opened, nodeMap, depth-1).String()
	}
	return id
}
