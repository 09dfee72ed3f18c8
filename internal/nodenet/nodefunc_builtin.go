package nodenet

import (
	"github.com/nvandessel/nodenet/internal/nodetype"
)

func slotInput(n *Node, slot string, sheaf SheafID) float64 {
	if s, ok := n.slots[slot]; ok {
		return s.SheafActivation(sheaf)
	}
	return 0
}

func computeGate(n *Node, gate string, input float64, sheaf SheafID) {
	if g, ok := n.gates[gate]; ok {
		g.Compute(input, sheaf)
	}
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback
	}
	f, err := nodetype.CoerceFloat(v)
	if err != nil {
		return fallback
	}
	return f
}

func registerFunc(_ *NetAPI, n *Node, sheaf SheafID, _ map[string]any) error {
	gen := slotInput(n, "gen", sheaf)
	n.SetSheafActivation(sheaf, gen)
	computeGate(n, "gen", gen, sheaf)
	return nil
}

func conceptFunc(_ *NetAPI, n *Node, sheaf SheafID, _ map[string]any) error {
	gen := slotInput(n, "gen", sheaf)
	n.SetSheafActivation(sheaf, gen)
	for _, g := range n.gateOrder {
		n.gates[g].Compute(gen, sheaf)
	}
	return nil
}

func sensorFunc(api *NetAPI, n *Node, sheaf SheafID, params map[string]any) error {
	var v float64
	if source, ok := params["datasource"].(string); ok && source != "" && api.net.world != nil {
		v, _ = api.net.world.ReadDatasource(source)
	}
	n.SetSheafActivation(sheaf, v)
	computeGate(n, "gen", v, sheaf)
	return nil
}

func actorFunc(api *NetAPI, n *Node, sheaf SheafID, params map[string]any) error {
	gen := slotInput(n, "gen", sheaf)
	if target, ok := params["datatarget"].(string); ok && target != "" && api.net.world != nil && sheaf.IsDefault() {
		api.net.world.WriteDatatarget(target, gen)
	}
	n.SetSheafActivation(sheaf, gen)
	computeGate(n, "gen", gen, sheaf)
	return nil
}

// activatorFunc sets the nodespace gain for the gate type named by the
// node's "type" parameter. Gains are not sheaf specific.
func activatorFunc(_ *NetAPI, n *Node, sheaf SheafID, params map[string]any) error {
	if !sheaf.IsDefault() {
		return nil
	}
	gen := slotInput(n, "gen", sheaf)
	n.SetSheafActivation(sheaf, gen)
	gate, _ := params["type"].(string)
	if gate == "" {
		return nil
	}
	if ns := n.nodespace(); ns != nil {
		ns.activators[gate] = gen
	}
	return nil
}

// scriptState is the request/confirm condition of a script or pipe node.
type scriptState struct {
	requested bool
	active    bool
	confirmed bool
}

// evalScript: a node is requested through sub, inhibited while its por
// predecessor is unconfirmed, and confirmed once sur (or gen) reaches the
// expectation.
func evalScript(n *Node, sheaf SheafID, expectation float64) scriptState {
	sub := slotInput(n, "sub", sheaf)
	por := slotInput(n, "por", sheaf)
	sur := slotInput(n, "sur", sheaf)
	gen := slotInput(n, "gen", sheaf)

	var s scriptState
	s.requested = sub > 0
	s.active = s.requested && por >= 0
	s.confirmed = s.active && (sur >= expectation || gen >= expectation)
	return s
}

func scriptOutputs(s scriptState, request float64) (act, sub, sur, por, ret float64) {
	switch {
	case s.confirmed:
		act, sur = 1, 1
	case s.active:
		act, sub = request, 1
	}
	if s.requested {
		por = -1
		if s.confirmed {
			por = 1
		}
	}
	if s.active {
		ret = -1
	}
	return act, sub, sur, por, ret
}

func scriptFunc(_ *NetAPI, n *Node, sheaf SheafID, _ map[string]any) error {
	s := evalScript(n, sheaf, 1)
	act, sub, sur, por, ret := scriptOutputs(s, slotInput(n, "sub", sheaf))
	n.SetSheafActivation(sheaf, act)

	computeGate(n, "gen", slotInput(n, "gen", sheaf), sheaf)
	computeGate(n, "sub", sub, sheaf)
	computeGate(n, "sur", sur, sheaf)
	computeGate(n, "por", por, sheaf)
	computeGate(n, "ret", ret, sheaf)
	for _, g := range []string{"cat", "exp", "sym", "ref"} {
		computeGate(n, g, act, sheaf)
	}
	return nil
}

// pipeFunc behaves like a script node but requests its children in a sheaf
// of its own, waits at most "wait" steps for confirmation and reports
// failure on sur with -1 when the wait runs out.
func pipeFunc(_ *NetAPI, n *Node, sheaf SheafID, params map[string]any) error {
	expectation := floatParam(params, "expectation", 1)
	wait := floatParam(params, "wait", 10)
	s := evalScript(n, sheaf, expectation)
	act, sub, sur, por, ret := scriptOutputs(s, slotInput(n, "sub", sheaf))

	waitKey := "waited:" + sheaf.String()
	waited := floatParam(n.state, waitKey, 0)
	switch {
	case s.active && !s.confirmed:
		waited++
		if waited > wait {
			sub, sur, waited = 0, -1, 0
		}
	default:
		waited = 0
	}
	if waited == 0 {
		delete(n.state, waitKey)
	} else {
		n.state[waitKey] = waited
	}

	n.SetSheafActivation(sheaf, act)
	computeGate(n, "gen", slotInput(n, "gen", sheaf), sheaf)
	computeGate(n, "sub", 0, sheaf)
	if sub != 0 {
		n.gates["sub"].OpenSheaf(sub, sheaf)
	}
	computeGate(n, "sur", sur, sheaf)
	computeGate(n, "por", por, sheaf)
	computeGate(n, "ret", ret, sheaf)
	computeGate(n, "cat", sub, sheaf)
	computeGate(n, "exp", slotInput(n, "sur", sheaf), sheaf)
	return nil
}
