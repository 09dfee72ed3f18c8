package nodenet

import (
	"fmt"
	"sort"

	"github.com/nvandessel/nodenet/internal/nodetype"
)

// SortBy orders the members of a new group.
type SortBy string

const (
	SortByID   SortBy = "id"
	SortByName SortBy = "name"
)

// group is a fixed, ordered set of nodes paired with one gate or slot name.
type group struct {
	uids    []string
	channel string
}

func sortMembers(nodes []*Node, by SortBy) {
	switch by {
	case SortByName:
		sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].name < nodes[j].name })
	default:
		sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].uid < nodes[j].uid })
	}
}

func (g *graph) putGroup(nodespace, name string, nodes []*Node, channel string, by SortBy) {
	sortMembers(nodes, by)
	uids := make([]string, len(nodes))
	for i, n := range nodes {
		uids[i] = n.uid
	}
	if g.groups[nodespace] == nil {
		g.groups[nodespace] = make(map[string]*group)
	}
	g.groups[nodespace][name] = &group{uids: uids, channel: channel}
}

// groupNodes resolves a group to its member nodes.
func (g *graph) groupNodes(nodespace, name string) ([]*Node, string, error) {
	ns, err := g.nodespace(nodespace)
	if err != nil {
		return nil, "", err
	}
	grp, ok := g.groups[ns.uid][name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s in nodespace %s", ErrGroupNotFound, name, ns.uid)
	}
	nodes := make([]*Node, len(grp.uids))
	for i, uid := range grp.uids {
		n, err := g.node(uid)
		if err != nil {
			return nil, "", fmt.Errorf("group %s: %w", name, err)
		}
		nodes[i] = n
	}
	return nodes, grp.channel, nil
}

// GroupNodesByNames groups the nodes of a nodespace whose names start with
// prefix. The group is named after the prefix.
func (a *NetAPI) GroupNodesByNames(nodespace, prefix, channel string, by SortBy) error {
	ns, err := a.g().nodespace(nodespace)
	if err != nil {
		return err
	}
	if channel == "" {
		channel = "gen"
	}
	a.g().putGroup(ns.uid, prefix, a.g().nodesIn(ns.uid, prefix), channel, by)
	return nil
}

// GroupNodesByIDs groups the given nodes under name. Every node must belong
// to nodespace.
func (a *NetAPI) GroupNodesByIDs(nodespace string, uids []string, name, channel string, by SortBy) error {
	ns, err := a.g().nodespace(nodespace)
	if err != nil {
		return err
	}
	if channel == "" {
		channel = "gen"
	}
	nodes := make([]*Node, 0, len(uids))
	for _, uid := range uids {
		n, err := a.g().node(uid)
		if err != nil {
			return err
		}
		if n.parent != ns.uid {
			return fmt.Errorf("node %s is not in nodespace %s", uid, ns.uid)
		}
		nodes = append(nodes, n)
	}
	a.g().putGroup(ns.uid, name, nodes, channel, by)
	return nil
}

// UngroupNodes forgets a group.
func (a *NetAPI) UngroupNodes(nodespace, name string) error {
	ns, err := a.g().nodespace(nodespace)
	if err != nil {
		return err
	}
	delete(a.g().groups[ns.uid], name)
	return nil
}

// GroupMembers returns the uids of a group in group order.
func (a *NetAPI) GroupMembers(nodespace, name string) ([]string, error) {
	nodes, _, err := a.g().groupNodes(nodespace, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.uid
	}
	return out, nil
}

// GetActivations returns the default-sheaf activation of the group's gate
// for every member.
func (a *NetAPI) GetActivations(nodespace, name string) ([]float64, error) {
	nodes, gate, err := a.g().groupNodes(nodespace, name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(nodes))
	for i, n := range nodes {
		if g := n.Gate(gate); g != nil {
			out[i] = g.Activation()
		}
	}
	return out, nil
}

// SetActivations writes the default-sheaf activation of the group's gate.
func (a *NetAPI) SetActivations(nodespace, name string, values []float64) error {
	nodes, gate, err := a.g().groupNodes(nodespace, name)
	if err != nil {
		return err
	}
	if len(values) != len(nodes) {
		return fmt.Errorf("group %s has %d members, got %d activations", name, len(nodes), len(values))
	}
	for i, n := range nodes {
		g := n.Gate(gate)
		if g == nil {
			return fmt.Errorf("%w: %s has no gate %q", ErrUnknownGate, n.Type(), gate)
		}
		g.SetActivation(DefaultSheaf, values[i])
	}
	return nil
}

// GetThetas returns the theta parameter of the group's gate for every member.
func (a *NetAPI) GetThetas(nodespace, name string) ([]float64, error) {
	nodes, gate, err := a.g().groupNodes(nodespace, name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(nodes))
	for i, n := range nodes {
		if g := n.Gate(gate); g != nil {
			out[i] = g.params.Theta
		}
	}
	return out, nil
}

// SetThetas writes the theta parameter of the group's gate.
func (a *NetAPI) SetThetas(nodespace, name string, thetas []float64) error {
	nodes, gate, err := a.g().groupNodes(nodespace, name)
	if err != nil {
		return err
	}
	if len(thetas) != len(nodes) {
		return fmt.Errorf("group %s has %d members, got %d thetas", name, len(nodes), len(thetas))
	}
	for i, n := range nodes {
		g := n.Gate(gate)
		if g == nil {
			return fmt.Errorf("%w: %s has no gate %q", ErrUnknownGate, n.Type(), gate)
		}
		if err := g.SetParameter(nodetype.ParamTheta, thetas[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetLinkWeights returns the weights from the gate of group from to the slot
// of group to. Row i belongs to the i-th member of to, column j to the j-th
// member of from; missing links read as 0.
func (a *NetAPI) GetLinkWeights(fromNodespace, from, toNodespace, to string) ([][]float64, error) {
	fromNodes, gate, err := a.g().groupNodes(fromNodespace, from)
	if err != nil {
		return nil, err
	}
	toNodes, slot, err := a.g().groupNodes(toNodespace, to)
	if err != nil {
		return nil, err
	}
	rows := make([][]float64, len(toNodes))
	for i, t := range toNodes {
		rows[i] = make([]float64, len(fromNodes))
		for j, f := range fromNodes {
			if l, ok := a.g().links.get(linkKey{f.uid, gate, t.uid, slot}); ok {
				rows[i][j] = l.Weight
			}
		}
	}
	return rows, nil
}

// SetLinkWeights writes a weight matrix laid out like GetLinkWeights.
// Non-zero entries create or update links; zero entries delete them. Nothing
// changes unless every source member has the gate and every target member
// has the slot.
func (a *NetAPI) SetLinkWeights(fromNodespace, from, toNodespace, to string, weights [][]float64) error {
	fromNodes, gate, err := a.g().groupNodes(fromNodespace, from)
	if err != nil {
		return err
	}
	toNodes, slot, err := a.g().groupNodes(toNodespace, to)
	if err != nil {
		return err
	}
	if len(weights) != len(toNodes) {
		return fmt.Errorf("weight matrix has %d rows, group %s has %d members", len(weights), to, len(toNodes))
	}
	for i, row := range weights {
		if len(row) != len(fromNodes) {
			return fmt.Errorf("weight matrix row %d has %d columns, group %s has %d members", i, len(row), from, len(fromNodes))
		}
	}
	for _, f := range fromNodes {
		if _, ok := f.gates[gate]; !ok {
			return fmt.Errorf("%w: %s in group %s has no gate %q", ErrUnknownGate, f.uid, from, gate)
		}
	}
	for _, t := range toNodes {
		if _, ok := t.slots[slot]; !ok {
			return fmt.Errorf("%w: %s in group %s has no slot %q", ErrUnknownSlot, t.uid, to, slot)
		}
	}
	for i, t := range toNodes {
		for j, f := range fromNodes {
			w := weights[i][j]
			if w == 0 {
				a.g().links.remove(linkKey{f.uid, gate, t.uid, slot})
				continue
			}
			if err := a.g().link(f.uid, gate, t.uid, slot, w, 1); err != nil {
				return err
			}
		}
	}
	return nil
}
