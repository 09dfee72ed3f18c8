package nodenet

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/nvandessel/nodenet/internal/nodetype"
)

// NetAPI is the interface node functions use to read and change the graph.
// It is only valid while the nodenet lock is held.
type NetAPI struct {
	net *Nodenet
}

func (a *NetAPI) g() *graph { return a.net.g }

func (a *NetAPI) UID() string          { return a.net.uid }
func (a *NetAPI) Step() int            { return a.g().step }
func (a *NetAPI) World() WorldAdapter  { return a.net.world }
func (a *NetAPI) Logger() *slog.Logger { return a.net.logger }

// GetNode returns the node with the given uid.
func (a *NetAPI) GetNode(uid string) (*Node, error) { return a.g().node(uid) }

// GetNodespace returns a nodespace; the empty uid is Root.
func (a *NetAPI) GetNodespace(uid string) (*Nodespace, error) { return a.g().nodespace(uid) }

// GetNodes lists nodes of a nodespace (all nodespaces when empty) whose
// names start with prefix.
func (a *NetAPI) GetNodes(nodespace, prefix string) []*Node {
	return a.g().nodesIn(nodespace, prefix)
}

// linkedGates returns the gates of node that have outgoing links.
func (a *NetAPI) linkedGates(node *Node) []string {
	var out []string
	for _, gname := range node.gateOrder {
		if len(a.g().links.outgoing(node.uid, gname)) > 0 {
			out = append(out, gname)
		}
	}
	return out
}

func (a *NetAPI) fieldFilter(candidate *Node, noLinksTo []string, nodespace string) bool {
	if nodespace != "" && candidate.parent != nodespace {
		return false
	}
	for _, linked := range a.linkedGates(candidate) {
		if slices.Contains(noLinksTo, linked) {
			return false
		}
	}
	return true
}

// GetNodesInGateField returns the targets of links leaving node's gate (all
// gates when empty), skipping targets that themselves have outgoing links
// on any gate in noLinksTo or lie outside nodespace when one is given.
func (a *NetAPI) GetNodesInGateField(node *Node, gate string, noLinksTo []string, nodespace string) []*Node {
	var out []*Node
	for _, l := range a.g().links.outgoing(node.uid, gate) {
		candidate := a.g().nodes[l.TargetUID]
		if a.fieldFilter(candidate, noLinksTo, nodespace) {
			out = append(out, candidate)
		}
	}
	return out
}

// GetNodesInSlotField returns the sources of links entering node's slot
// (all slots when empty), filtered like GetNodesInGateField.
func (a *NetAPI) GetNodesInSlotField(node *Node, slot string, noLinksTo []string, nodespace string) []*Node {
	var out []*Node
	for _, l := range a.g().links.incoming(node.uid, slot) {
		candidate := a.g().nodes[l.SourceUID]
		if a.fieldFilter(candidate, noLinksTo, nodespace) {
			out = append(out, candidate)
		}
	}
	return out
}

// GetNodesActive returns nodes of a nodespace, optionally of one type, whose
// activation reaches minActivation. With a gate the gate's activation is
// tested, otherwise the node's own.
func (a *NetAPI) GetNodesActive(nodespace, typ string, minActivation float64, gate string, sheaf SheafID) []*Node {
	var out []*Node
	for _, n := range a.g().nodesIn(nodespace, "") {
		if typ != "" && n.typ.Name() != typ {
			continue
		}
		if gate != "" {
			if g := n.Gate(gate); g != nil && g.SheafActivation(sheaf) >= minActivation {
				out = append(out, n)
			}
			continue
		}
		if n.SheafActivation(sheaf) >= minActivation {
			out = append(out, n)
		}
	}
	return out
}

// CreateNode creates a node of typ in nodespace to the right of all others.
func (a *NetAPI) CreateNode(typ, nodespace, name string) (*Node, error) {
	if typ == nodetype.Nodespace {
		return nil, fmt.Errorf("%w: use CreateNodespace for nodespaces", ErrUnknownNodetype)
	}
	return a.g().addNode(NodeSpec{Type: typ, Nodespace: nodespace, Name: name})
}

// CreateNodespace creates a child nodespace.
func (a *NetAPI) CreateNodespace(parent, name string) (*Nodespace, error) {
	pos := Position{X: a.g().spatial.maxCoords().X + 50, Y: 100}
	return a.g().addNodespace("", parent, name, pos)
}

// DeleteNode removes a node and its links.
func (a *NetAPI) DeleteNode(node *Node) error { return a.g().deleteNode(node.uid) }

// DeleteNodespace removes a nodespace with its contents.
func (a *NetAPI) DeleteNodespace(uid string) error { return a.g().deleteNodespace(uid) }

// MoveNode moves node into another nodespace.
func (a *NetAPI) MoveNode(node *Node, nodespace string) error { return a.g().moveNode(node, nodespace) }

// Link creates a link or updates the weight and certainty of an existing one.
func (a *NetAPI) Link(source *Node, gate string, target *Node, slot string, weight, certainty float64) error {
	return a.g().link(source.uid, gate, target.uid, slot, weight, certainty)
}

// reciprocal maps a link type to its forward and backward gate names.
var reciprocal = map[string][2]string{
	"subsur": {"sub", "sur"},
	"porret": {"por", "ret"},
	"catexp": {"cat", "exp"},
	"symref": {"sym", "ref"},
}

// LinkWithReciprocal creates a link and its reverse for one of the relation
// pairs subsur, porret, catexp and symref. Targets without the matching slot
// receive the link on gen.
func (a *NetAPI) LinkWithReciprocal(source, target *Node, linkType string, weight, certainty float64) error {
	pair, ok := reciprocal[linkType]
	if !ok {
		return fmt.Errorf("unknown reciprocal link type %q", linkType)
	}
	fwd, back := pair[0], pair[1]
	fwdSlot, backSlot := fwd, back
	if target.Slot(fwdSlot) == nil {
		fwdSlot = "gen"
	}
	if source.Slot(backSlot) == nil {
		backSlot = "gen"
	}
	if err := a.g().link(source.uid, fwd, target.uid, fwdSlot, weight, certainty); err != nil {
		return err
	}
	return a.g().link(target.uid, back, source.uid, backSlot, weight, certainty)
}

// LinkFull links every node in nodes with every node, reciprocally.
func (a *NetAPI) LinkFull(nodes []*Node, linkType string, weight, certainty float64) error {
	for _, source := range nodes {
		for _, target := range nodes {
			if err := a.LinkWithReciprocal(source, target, linkType, weight, certainty); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unlink removes links leaving source. An empty gate removes links of every
// gate, a nil target every target, an empty slot every slot.
func (a *NetAPI) Unlink(source *Node, gate string, target *Node, slot string) int {
	targetUID := ""
	if target != nil {
		targetUID = target.uid
	}
	return a.g().links.removeMatching(source.uid, gate, targetUID, slot)
}

// UnlinkCompletely removes every link touching node.
func (a *NetAPI) UnlinkCompletely(node *Node) { a.g().links.removeNode(node.uid) }

// findByParameter returns the first node of typ in nodespace whose param equals value.
func (a *NetAPI) findByParameter(nodespace, typ, param, value string) *Node {
	for _, n := range a.g().nodesIn(nodespace, "") {
		if n.typ.Name() == typ && n.parameters[param] == value {
			return n
		}
	}
	return nil
}

func (a *NetAPI) ensureChannelNode(nodespace, typ, param, channel string) (*Node, error) {
	if n := a.findByParameter(nodespace, typ, param, channel); n != nil {
		return n, nil
	}
	return a.g().addNode(NodeSpec{
		Type:       typ,
		Nodespace:  nodespace,
		Name:       channel,
		Parameters: map[string]any{param: channel},
	})
}

// LinkActor links node's gate to the actor for datatarget in node's
// nodespace, creating the actor if none exists.
func (a *NetAPI) LinkActor(node *Node, datatarget string, weight, certainty float64, gate string) error {
	if a.net.world == nil {
		return ErrNoWorld
	}
	if !slices.Contains(a.net.world.Datatargets(), datatarget) {
		return fmt.Errorf("datatarget %q not found", datatarget)
	}
	if gate == "" {
		gate = "sub"
	}
	actor, err := a.ensureChannelNode(node.parent, nodetype.Actor, "datatarget", datatarget)
	if err != nil {
		return err
	}
	return a.g().link(node.uid, gate, actor.uid, "gen", weight, certainty)
}

// LinkSensor links the sensor for datasource in node's nodespace into
// node's slot, creating the sensor if none exists.
func (a *NetAPI) LinkSensor(node *Node, datasource, slot string) error {
	if a.net.world == nil {
		return ErrNoWorld
	}
	if !slices.Contains(a.net.world.Datasources(), datasource) {
		return fmt.Errorf("datasource %q not found", datasource)
	}
	if slot == "" {
		slot = "sur"
	}
	sensor, err := a.ensureChannelNode(node.parent, nodetype.Sensor, "datasource", datasource)
	if err != nil {
		return err
	}
	return a.g().link(sensor.uid, "gen", node.uid, slot, 1, 1)
}

// ImportActors makes sure an actor exists in nodespace for every datatarget
// starting with prefix and returns them. Without a world it returns nothing.
func (a *NetAPI) ImportActors(nodespace, prefix string) ([]*Node, error) {
	if a.net.world == nil {
		return nil, nil
	}
	ns, err := a.g().nodespace(nodespace)
	if err != nil {
		return nil, err
	}
	nodespace = ns.uid
	var out []*Node
	for _, dt := range a.net.world.Datatargets() {
		if !strings.HasPrefix(dt, prefix) {
			continue
		}
		actor, err := a.ensureChannelNode(nodespace, nodetype.Actor, "datatarget", dt)
		if err != nil {
			return out, err
		}
		out = append(out, actor)
	}
	return out, nil
}

// ImportSensors makes sure a sensor exists in nodespace for every
// datasource starting with prefix and returns them.
func (a *NetAPI) ImportSensors(nodespace, prefix string) ([]*Node, error) {
	if a.net.world == nil {
		return nil, nil
	}
	ns, err := a.g().nodespace(nodespace)
	if err != nil {
		return nil, err
	}
	nodespace = ns.uid
	var out []*Node
	for _, ds := range a.net.world.Datasources() {
		if !strings.HasPrefix(ds, prefix) {
			continue
		}
		sensor, err := a.ensureChannelNode(nodespace, nodetype.Sensor, "datasource", ds)
		if err != nil {
			return out, err
		}
		out = append(out, sensor)
	}
	return out, nil
}

// SetGateFunction sets the gate function of a nodetype's gate within a
// nodespace. spec is a built-in name or Go source; empty removes it.
func (a *NetAPI) SetGateFunction(nodespace, nodetypeName, gate, spec string) error {
	ns, err := a.g().nodespace(nodespace)
	if err != nil {
		return err
	}
	t, ok := a.g().registry.Get(nodetypeName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNodetype, nodetypeName)
	}
	if !t.HasGate(gate) {
		return fmt.Errorf("%w: %s has no gate %q", ErrUnknownGate, nodetypeName, gate)
	}
	return ns.setGateFunction(nodetypeName, gate, spec)
}

// GetGateFunction returns the gate function spec, or "" for identity.
func (a *NetAPI) GetGateFunction(nodespace, nodetypeName, gate string) (string, error) {
	ns, err := a.g().nodespace(nodespace)
	if err != nil {
		return "", err
	}
	return ns.gatefunctions[nodetypeName][gate], nil
}

// Lock acquires a named lock. It fails if the lock is already held.
// A non-positive timeout selects the nodenet default.
func (a *NetAPI) Lock(name, key string, timeout int) error { return a.net.acquire(name, key, timeout) }

// Unlock releases a lock at the end of the current step.
func (a *NetAPI) Unlock(name string) { a.net.queueUnlock(name) }

func (a *NetAPI) IsLocked(name string) bool        { return a.net.isLocked(name) }
func (a *NetAPI) IsLockedBy(name, key string) bool { return a.net.isLockedBy(name, key) }

// NotifyUser pauses the nodenet and shows msg to the user.
func (a *NetAPI) NotifyUser(node *Node, msg string) {
	a.net.prompt = &UserPrompt{Node: exportNode(node), Message: msg}
	a.net.active.Store(false)
}

// AskUserForParameter pauses the nodenet and asks the user for values. The
// answers arrive as node parameters through Nodenet.UserPromptResponse.
func (a *NetAPI) AskUserForParameter(node *Node, msg string, options []PromptOption) {
	a.net.prompt = &UserPrompt{Node: exportNode(node), Message: msg, Options: options}
	a.net.active.Store(false)
}

// Modulator returns a nodenet-wide scalar; unset modulators read as 1.
func (a *NetAPI) Modulator(name string) float64 {
	if v, ok := a.g().modulators[name]; ok {
		return v
	}
	return 1
}

// SetModulator sets a nodenet-wide scalar.
func (a *NetAPI) SetModulator(name string, value float64) { a.g().modulators[name] = value }

// ChangeModulator adds diff to a modulator.
func (a *NetAPI) ChangeModulator(name string, diff float64) {
	a.g().modulators[name] = a.Modulator(name) + diff
}
