package nodenet

import (
	"context"
	"errors"
	"testing"

	"github.com/nvandessel/nodenet/internal/nodetype"
	"github.com/nvandessel/nodenet/internal/worldadapter"
)

// step runs one step and fails the test on error.
func step(t *testing.T, n *Nodenet) {
	t.Helper()
	if err := n.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
}

// newNativeNet creates a nodenet whose library holds fns.
func newNativeNet(t *testing.T, fns map[string]NodeFunc) *Nodenet {
	t.Helper()
	lib := NewFunctionLibrary()
	for name, fn := range fns {
		if err := lib.Register(name, fn); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	n, err := New(Options{Logger: discardLogger(), Functions: lib})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

func TestStep_PropagatesAlongLinks(t *testing.T) {
	n := newTestNet(t)
	a := addNode(t, n, "a", nodetype.Concept, "")
	b := addNode(t, n, "b", nodetype.Concept, "")
	link(t, n, a, "gen", b, "gen", 0.5)
	setGate(t, n, a, "gen", 1)

	step(t, n)

	if got := slotValue(t, n, b, "gen", DefaultSheaf); got != 0.5 {
		t.Errorf("b.gen slot = %v, want 0.5", got)
	}
	if got := gateValue(t, n, b, "gen", DefaultSheaf); got != 0.5 {
		t.Errorf("b.gen gate = %v, want 0.5", got)
	}
	if got := gateValue(t, n, a, "gen", DefaultSheaf); got != 0 {
		t.Errorf("a.gen gate = %v, want 0 after recomputation", got)
	}
	if n.CurrentStep() != 1 {
		t.Errorf("CurrentStep() = %d, want 1", n.CurrentStep())
	}
}

func TestStep_ActivatorClosesGates(t *testing.T) {
	n := newTestNet(t)
	r := addNode(t, n, "r", nodetype.Register, "")
	c := addNode(t, n, "c", nodetype.Concept, "")
	act, err := n.CreateNode(NodeSpec{UID: "act", Type: nodetype.Activator, Parameters: map[string]any{"type": "sub"}})
	if err != nil {
		t.Fatalf("CreateNode(Activator) error = %v", err)
	}
	link(t, n, r, "gen", c, "gen", 1)

	setGate(t, n, r, "gen", 1)
	step(t, n)
	if got := gateValue(t, n, c, "sub", DefaultSheaf); got != 0 {
		t.Errorf("c.sub with closed activator = %v, want 0", got)
	}
	if got := gateValue(t, n, c, "gen", DefaultSheaf); got != 1 {
		t.Errorf("c.gen = %v, want 1", got)
	}

	if err := n.DeleteNode(act); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}
	setGate(t, n, r, "gen", 1)
	step(t, n)
	if got := gateValue(t, n, c, "sub", DefaultSheaf); got != 1 {
		t.Errorf("c.sub after deleting activator = %v, want 1", got)
	}
}

func TestStep_ActivatorDisplaysGain(t *testing.T) {
	n := newTestNet(t)
	r := addNode(t, n, "r", nodetype.Register, "")
	act, _ := n.CreateNode(NodeSpec{UID: "act", Type: nodetype.Activator, Parameters: map[string]any{"type": "por"}})
	link(t, n, r, "gen", act, "gen", 0.4)
	setGate(t, n, r, "gen", 1)

	step(t, n)

	node, _ := n.GetNode(act)
	if node.Activation != 0.4 {
		t.Errorf("activator activation = %v, want gain 0.4", node.Activation)
	}
}

func TestPropagate_SheafFold(t *testing.T) {
	tests := []struct {
		name   string
		spread bool
		owner  string
		want   map[string]float64
	}{
		{"opened by target folds into parent", false, "b", map[string]float64{"default": 0.5}},
		{"foreign sheaf is dropped", false, "x", map[string]float64{"default": 0}},
		{"spreading gate keeps the sheaf", true, "b", map[string]float64{"default": 0, "default-b": 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNet(t)
			a := addNode(t, n, "a", nodetype.Concept, "")
			b := addNode(t, n, "b", nodetype.Concept, "")
			link(t, n, a, "gen", b, "gen", 0.5)

			got := make(map[string]float64)
			_ = n.Do(func(api *NetAPI) error {
				src, _ := api.GetNode(a)
				gate := src.Gate("gen")
				gate.params.SpreadSheaves = tt.spread
				gate.SetActivation(DefaultSheaf.Open(tt.owner), 1)

				n.g.propagate()

				dst, _ := api.GetNode(b)
				for _, s := range dst.Slot("gen").Sheaves() {
					got[s.ID.String()] = s.Activation
				}
				return nil
			})
			if len(got) != len(tt.want) {
				t.Fatalf("slot sheaves = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("sheaf %s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestStep_TierOrder(t *testing.T) {
	var sawConcept, sawGain float64
	var gainSet bool
	n := newNativeNet(t, map[string]NodeFunc{
		"probe": func(api *NetAPI, node *Node, _ SheafID, _ map[string]any) error {
			c, err := api.GetNode("0")
			if err != nil {
				return err
			}
			sawConcept = c.Gate("gen").Activation()
			ns, _ := api.GetNodespace("")
			sawGain, gainSet = ns.Gain("gen")
			return nil
		},
	})
	if err := n.RegisterNativeModule(nodetype.Definition{Name: "Probe", NodeFunctionName: "probe"}); err != nil {
		t.Fatalf("RegisterNativeModule() error = %v", err)
	}
	addNode(t, n, "0", nodetype.Concept, "")
	addNode(t, n, "m", "Probe", "")
	if _, err := n.CreateNode(NodeSpec{UID: "zzz", Type: nodetype.Activator, Parameters: map[string]any{"type": "gen"}}); err != nil {
		t.Fatalf("CreateNode(Activator) error = %v", err)
	}
	setGate(t, n, "0", "gen", 0.7)

	step(t, n)

	if sawConcept != 0.7 {
		t.Errorf("native saw concept gate %v, want 0.7 (natives run before other nodes)", sawConcept)
	}
	if !gainSet || sawGain != 0 {
		t.Errorf("native saw gain %v (set=%v), want 0 (activators run first)", sawGain, gainSet)
	}
}

func TestStep_NodeFunctionFailure(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		fn   NodeFunc
	}{
		{"error", func(*NetAPI, *Node, SheafID, map[string]any) error { return boom }},
		{"panic", func(*NetAPI, *Node, SheafID, map[string]any) error { panic("kaputt") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newNativeNet(t, map[string]NodeFunc{"fail": tt.fn})
			def := nodetype.Definition{Name: "Failing", SlotTypes: []string{"gen"}, GateTypes: []string{"gen"}, NodeFunctionName: "fail"}
			if err := n.RegisterNativeModule(def); err != nil {
				t.Fatalf("RegisterNativeModule() error = %v", err)
			}
			uid := addNode(t, n, "f", "Failing", "")
			n.SetActive(true)

			err := n.Step(context.Background())

			var nfe *NodeFunctionError
			if !errors.As(err, &nfe) {
				t.Fatalf("Step() error = %v, want *NodeFunctionError", err)
			}
			if nfe.NodeUID != uid || nfe.Sheaf != DefaultSheaf {
				t.Errorf("error names node %s sheaf %v", nfe.NodeUID, nfe.Sheaf)
			}
			if tt.name == "error" && !errors.Is(err, boom) {
				t.Errorf("error does not wrap the node function error: %v", err)
			}
			if n.IsActive() {
				t.Error("nodenet still active after failure")
			}
			node, _ := n.GetNode(uid)
			if node.Activation != -1 {
				t.Errorf("failed node activation = %v, want -1", node.Activation)
			}
			if n.CurrentStep() != 0 {
				t.Errorf("aborted step was counted: %d", n.CurrentStep())
			}
		})
	}
}

func TestStep_GateFunctionPanicWithoutNodeFunction(t *testing.T) {
	n := newTestNet(t)
	def := nodetype.Definition{Name: "Plain", SlotTypes: []string{"gen"}, GateTypes: []string{"gen"}}
	if err := n.RegisterNativeModule(def); err != nil {
		t.Fatalf("RegisterNativeModule() error = %v", err)
	}
	uid := addNode(t, n, "p", "Plain", "")
	src := `func GateFunction(x, rho, theta float64) float64 { panic("boom") }`
	if err := n.SetGateFunction("", "Plain", "gen", src); err != nil {
		t.Fatalf("SetGateFunction() error = %v", err)
	}
	n.SetActive(true)

	err := n.Step(context.Background())

	var nfe *NodeFunctionError
	if !errors.As(err, &nfe) {
		t.Fatalf("Step() error = %v, want *NodeFunctionError", err)
	}
	if nfe.NodeUID != uid || nfe.Sheaf != DefaultSheaf {
		t.Errorf("error names node %s sheaf %v", nfe.NodeUID, nfe.Sheaf)
	}
	if n.IsActive() {
		t.Error("nodenet still active after failure")
	}
	node, _ := n.GetNode(uid)
	if node.Activation != -1 {
		t.Errorf("failed node activation = %v, want -1", node.Activation)
	}
}

func TestStep_UnknownNodeFunctionRejectedAtRegistration(t *testing.T) {
	n := newTestNet(t)
	err := n.RegisterNativeModule(nodetype.Definition{Name: "Ghost", NodeFunctionName: "does_not_exist"})
	if err == nil {
		t.Fatal("expected error for unknown node function")
	}
	if _, ok := n.Registry().Get("Ghost"); ok {
		t.Error("type with unknown node function was registered")
	}
}

func TestStep_CompiledNodeFunction(t *testing.T) {
	n := newTestNet(t)
	def := nodetype.Definition{
		Name:      "Doubler",
		SlotTypes: []string{"gen"},
		GateTypes: []string{"gen"},
		NodeFunctionSource: `
func NodeFunction(slots map[string]float64, params map[string]interface{}) (float64, map[string]float64) {
	v := slots["gen"] * 2
	return v, map[string]float64{"gen": v}
}`,
	}
	if err := n.RegisterNativeModule(def); err != nil {
		t.Fatalf("RegisterNativeModule() error = %v", err)
	}
	r := addNode(t, n, "r", nodetype.Register, "")
	d := addNode(t, n, "d", "Doubler", "")
	link(t, n, r, "gen", d, "gen", 1)
	setGate(t, n, r, "gen", 0.25)

	step(t, n)

	if got := gateValue(t, n, d, "gen", DefaultSheaf); got != 0.5 {
		t.Errorf("doubler gate = %v, want 0.5", got)
	}
	node, _ := n.GetNode(d)
	if node.Activation != 0.5 {
		t.Errorf("doubler activation = %v, want 0.5", node.Activation)
	}
}

func TestStep_GateFunctionOverride(t *testing.T) {
	n := newTestNet(t)
	r := addNode(t, n, "r", nodetype.Register, "")
	c := addNode(t, n, "c", nodetype.Concept, "")
	link(t, n, r, "gen", c, "gen", 1)
	if err := n.SetGateFunction("", nodetype.Concept, "gen", "absolute"); err != nil {
		t.Fatalf("SetGateFunction() error = %v", err)
	}
	setGate(t, n, r, "gen", -0.5)

	step(t, n)

	if got := gateValue(t, n, c, "gen", DefaultSheaf); got != 0.5 {
		t.Errorf("c.gen = %v, want |-0.5|", got)
	}
	if got := gateValue(t, n, c, "sub", DefaultSheaf); got != 0 {
		t.Errorf("c.sub = %v, want 0 (below threshold)", got)
	}
	if err := n.SetGateFunction("", nodetype.Concept, "nope", "absolute"); !errors.Is(err, ErrUnknownGate) {
		t.Errorf("SetGateFunction(unknown gate) error = %v, want ErrUnknownGate", err)
	}
	if err := n.SetGateFunction("", nodetype.Concept, "gen", "func Broken("); err == nil {
		t.Error("expected compile error for broken gate function source")
	}
}

func TestGateCompute(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		gain      *float64
		input     float64
		want      float64
	}{
		{"passthrough", nil, nil, 0.3, 0.3},
		{"clamped to maximum", nil, nil, 3, 1},
		{"clamped to minimum", map[string]any{"threshold": -5}, nil, -3, -1},
		{"below threshold", map[string]any{"threshold": 0.5}, nil, 0.4, 0},
		{"amplified", map[string]any{"amplification": 2, "maximum": 10}, nil, 0.3, 0.6},
		{"gain scales", nil, ptr(0.5), 0.8, 0.4},
		{"gain scales threshold test", map[string]any{"threshold": 0.5}, ptr(0.5), 0.8, 0},
		{"zero gain closes", map[string]any{"threshold": -1}, ptr(0.0), 0.8, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNet(t)
			uid, err := n.CreateNode(NodeSpec{Type: nodetype.Register, GateParameters: map[string]map[string]any{"gen": tt.overrides}})
			if err != nil {
				t.Fatalf("CreateNode() error = %v", err)
			}
			var got float64
			_ = n.Do(func(api *NetAPI) error {
				node, _ := api.GetNode(uid)
				if tt.gain != nil {
					node.nodespace().activators["gen"] = *tt.gain
				}
				got = node.Gate("gen").Compute(tt.input, DefaultSheaf)
				return nil
			})
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Compute(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }

func TestStep_PipeOpensSheaf(t *testing.T) {
	n := newTestNet(t)
	r := addNode(t, n, "r", nodetype.Register, "")
	p := addNode(t, n, "p", nodetype.Pipe, "")
	c := addNode(t, n, "c", nodetype.Pipe, "")
	link(t, n, r, "gen", p, "sub", 1)
	link(t, n, p, "sub", c, "sub", 1)
	setGate(t, n, r, "gen", 1)

	step(t, n)

	opened := DefaultSheaf.Open(p)
	if got := gateValue(t, n, p, "sub", opened); got != 1 {
		t.Errorf("p.sub in opened sheaf = %v, want 1", got)
	}
	if got := gateValue(t, n, p, "sub", DefaultSheaf); got != 0 {
		t.Errorf("p.sub in default sheaf = %v, want 0", got)
	}

	step(t, n)

	if got := slotValue(t, n, c, "sub", opened); got != 1 {
		t.Errorf("c.sub in sheaf %s = %v, want 1", opened, got)
	}
	if got := slotValue(t, n, c, "sur", opened); got != 0 {
		t.Errorf("c.sur in sheaf %s = %v, want 0 (spread, not linked)", opened, got)
	}
	_ = n.Do(func(api *NetAPI) error {
		node, _ := api.GetNode(c)
		if _, ok := node.Slot("sur").sheaves[opened.String()]; !ok {
			t.Error("spreading gate did not create the sheaf on every slot of the target")
		}
		return nil
	})
	if got := gateValue(t, n, c, "sub", opened.Open(c)); got != 1 {
		t.Errorf("c opened nested sheaf = %v, want 1", got)
	}
}

func TestStep_PipeWaitTimesOut(t *testing.T) {
	n := newTestNet(t)
	r := addNode(t, n, "r", nodetype.Register, "")
	p, err := n.CreateNode(NodeSpec{UID: "p", Type: nodetype.Pipe, Parameters: map[string]any{"wait": 2.0}})
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}
	link(t, n, r, "gen", p, "sub", 1)
	link(t, n, r, "gen", r, "gen", 1)
	setGate(t, n, r, "gen", 1)

	var surs []float64
	for range 3 {
		step(t, n)
		surs = append(surs, gateValue(t, n, p, "sur", DefaultSheaf))
	}
	want := []float64{0, 0, -1}
	for i := range want {
		if surs[i] != want[i] {
			t.Errorf("sur after step %d = %v, want %v", i+1, surs[i], want[i])
		}
	}
}

func TestStep_SensorsAndActors(t *testing.T) {
	world := worldadapter.NewMemory([]string{"light"}, []string{"move"})
	n, err := New(Options{Logger: discardLogger(), World: world})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s, _ := n.CreateNode(NodeSpec{UID: "s", Type: nodetype.Sensor, Parameters: map[string]any{"datasource": "light"}})
	a, _ := n.CreateNode(NodeSpec{UID: "a", Type: nodetype.Actor, Parameters: map[string]any{"datatarget": "move"}})
	link(t, n, s, "gen", a, "gen", 0.5)
	world.SetDatasource("light", 0.8)

	step(t, n)
	if got := gateValue(t, n, s, "gen", DefaultSheaf); got != 0.8 {
		t.Errorf("sensor gate = %v, want 0.8", got)
	}
	if got := world.Datatarget("move"); got != 0 {
		t.Errorf("actor wrote %v before activation reached it", got)
	}

	step(t, n)
	if got := world.Datatarget("move"); got != 0.4 {
		t.Errorf("move = %v, want 0.4", got)
	}
	if world.Snapshots() != 2 {
		t.Errorf("world snapshots = %d, want 2", world.Snapshots())
	}
}

func TestStep_SkipsNodesDeletedMidStep(t *testing.T) {
	var ran []string
	n := newNativeNet(t, map[string]NodeFunc{
		"reaper": func(api *NetAPI, node *Node, _ SheafID, _ map[string]any) error {
			ran = append(ran, node.UID())
			if victim, err := api.GetNode("victim"); err == nil {
				return api.DeleteNode(victim)
			}
			return nil
		},
	})
	if err := n.RegisterNativeModule(nodetype.Definition{Name: "Reaper", NodeFunctionName: "reaper"}); err != nil {
		t.Fatalf("RegisterNativeModule() error = %v", err)
	}
	addNode(t, n, "a", "Reaper", "")
	addNode(t, n, "victim", "Reaper", "")

	step(t, n)

	if len(ran) != 1 || ran[0] != "a" {
		t.Errorf("ran = %v, want only a", ran)
	}
}
