package nodenet

import (
	"fmt"

	"github.com/nvandessel/nodenet/internal/nodetype"
)

// propagate moves gate activation across links into slots.
//
// Slots are reset to a zero default sheaf. Spreading gates then make each of
// their sheaves exist on every slot of their targets. Finally every gate
// sheaf adds activation*weight into the same sheaf of the target slot, or,
// if the sheaf was opened by the target node itself, into the sheaf it
// branched from. Sheaves matching neither are dropped.
func (g *graph) propagate() {
	nodes := g.sortedNodes()
	for _, n := range nodes {
		n.resetSlots()
	}

	for _, n := range nodes {
		for _, gateName := range n.gateOrder {
			gate := n.gates[gateName]
			if !gate.params.SpreadSheaves {
				continue
			}
			links := g.links.outgoing(n.uid, gateName)
			if len(links) == 0 {
				continue
			}
			for _, key := range gate.sheaves.sortedKeys() {
				sheaf := gate.sheaves[key]
				for _, l := range links {
					target := g.nodes[l.TargetUID]
					for _, slot := range target.slots {
						if _, ok := slot.sheaves[key]; !ok {
							slot.sheaves[key] = &Sheaf{ID: sheaf.ID, Name: sheaf.Name}
						}
					}
				}
			}
		}
	}

	for _, n := range nodes {
		for _, gateName := range n.gateOrder {
			gate := n.gates[gateName]
			links := g.links.outgoing(n.uid, gateName)
			if len(links) == 0 {
				continue
			}
			for _, key := range gate.sheaves.sortedKeys() {
				sheaf := gate.sheaves[key]
				for _, l := range links {
					slot := g.nodes[l.TargetUID].slots[l.Slot]
					contribution := sheaf.Activation * l.Weight
					if dst, ok := slot.sheaves[key]; ok {
						dst.Activation += contribution
						continue
					}
					if sheaf.ID.Owner == l.TargetUID {
						if dst, ok := slot.sheaves[sheaf.ID.Branch]; ok {
							dst.Activation += contribution
						}
					}
				}
			}
		}
	}
}

// step runs one scheduler cycle. The caller holds n.mu.
func (n *Nodenet) step() error {
	g := n.g
	g.propagate()
	n.ageLocks()

	var activators, natives, rest []*Node
	for _, node := range g.sortedNodes() {
		switch {
		case node.typ.Name() == nodetype.Activator:
			activators = append(activators, node)
		case n.registry.IsNative(node.typ.Name()):
			natives = append(natives, node)
		default:
			rest = append(rest, node)
		}
	}
	for _, tier := range [][]*Node{activators, natives, rest} {
		for _, node := range tier {
			// Node functions may delete nodes scheduled later in the step.
			if g.nodes[node.uid] != node {
				continue
			}
			if err := n.calculate(node); err != nil {
				return err
			}
		}
	}

	n.flushUnlocks()
	g.step++
	g.sampleMonitors()
	g.syncActivators()
	return nil
}

// calculate runs the node function of node once for every sheaf present on
// its slots. Nodes without a node function sum their default slot
// activations and feed the result to every gate.
func (n *Nodenet) calculate(node *Node) error {
	fn, err := n.g.nodeFunction(node.typ)
	if err != nil {
		return n.fail(node, DefaultSheaf, err)
	}
	if fn == nil {
		if len(node.slotOrder) == 0 {
			return nil
		}
		err = protect(func() error {
			var sum float64
			for _, s := range node.slotOrder {
				sum += node.slots[s].Activation()
			}
			node.SetActivation(sum)
			for _, gname := range node.gateOrder {
				node.gates[gname].Compute(sum, DefaultSheaf)
			}
			return nil
		})
		if err != nil {
			return n.fail(node, DefaultSheaf, err)
		}
		return nil
	}

	toCalculate := sheafMap{}
	for _, s := range node.slotOrder {
		for key, sheaf := range node.slots[s].sheaves {
			toCalculate[key] = sheaf.clone()
		}
	}
	if _, ok := toCalculate[DefaultSheaf.String()]; !ok {
		toCalculate[DefaultSheaf.String()] = newSheaf(DefaultSheaf)
	}

	carry := node.sheaves
	node.sheaves = sheafMap{}
	for _, gname := range node.gateOrder {
		node.gates[gname].sheaves = sheafMap{}
	}

	params := node.Parameters()
	for _, key := range toCalculate.sortedKeys() {
		seed := toCalculate[key]
		for _, gname := range node.gateOrder {
			node.gates[gname].sheaves[key] = seed.clone()
		}
		if prior, ok := carry[key]; ok {
			node.sheaves[key] = prior.clone()
		} else {
			own := seed.clone()
			own.Activation = 0
			node.sheaves[key] = own
		}
		if err := n.invoke(fn, node, seed.ID, params); err != nil {
			return n.fail(node, seed.ID, err)
		}
	}
	return nil
}

// invoke calls fn and turns a panic into an error.
func (n *Nodenet) invoke(fn NodeFunc, node *Node, sheaf SheafID, params map[string]any) error {
	return protect(func() error { return fn(n.api, node, sheaf, params) })
}

// protect runs f, which may call user supplied node or gate functions, and
// turns a panic into an error.
func protect(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}

func (n *Nodenet) fail(node *Node, sheaf SheafID, err error) error {
	node.SetActivation(-1)
	n.active.Store(false)
	return &NodeFunctionError{NodeUID: node.uid, Sheaf: sheaf, Err: err}
}

// syncActivators copies each nodespace gain back onto the activator node
// that controls it.
func (g *graph) syncActivators() {
	for _, node := range g.sortedNodes() {
		if node.typ.Name() != nodetype.Activator {
			continue
		}
		gate, _ := node.parameters["type"].(string)
		ns, ok := g.nodespaces[node.parent]
		if !ok || gate == "" {
			continue
		}
		if v, ok := ns.activators[gate]; ok {
			node.SetActivation(v)
		}
	}
}
