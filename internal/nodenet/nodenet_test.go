package nodenet

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nvandessel/nodenet/internal/nodetype"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestNet creates a nodenet with the standard types and a silent logger.
func newTestNet(t *testing.T) *Nodenet {
	t.Helper()
	n, err := New(Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

// addNode creates a node with a fixed uid and fails the test on error.
func addNode(t *testing.T, n *Nodenet, uid, typ, nodespace string) string {
	t.Helper()
	got, err := n.CreateNode(NodeSpec{UID: uid, Type: typ, Nodespace: nodespace, Name: uid})
	if err != nil {
		t.Fatalf("CreateNode(%s, %s): %v", uid, typ, err)
	}
	return got
}

// link creates a link and fails the test on error.
func link(t *testing.T, n *Nodenet, source, gate, target, slot string, weight float64) {
	t.Helper()
	if err := n.Link(source, gate, target, slot, weight, 1); err != nil {
		t.Fatalf("Link(%s.%s -> %s.%s): %v", source, gate, target, slot, err)
	}
}

// setGate writes a gate's default-sheaf activation.
func setGate(t *testing.T, n *Nodenet, uid, gate string, v float64) {
	t.Helper()
	err := n.Do(func(api *NetAPI) error {
		node, err := api.GetNode(uid)
		if err != nil {
			return err
		}
		node.Gate(gate).SetActivation(DefaultSheaf, v)
		return nil
	})
	if err != nil {
		t.Fatalf("setGate(%s.%s): %v", uid, gate, err)
	}
}

// gateValue reads a gate's activation in sheaf.
func gateValue(t *testing.T, n *Nodenet, uid, gate string, sheaf SheafID) float64 {
	t.Helper()
	var v float64
	err := n.Do(func(api *NetAPI) error {
		node, err := api.GetNode(uid)
		if err != nil {
			return err
		}
		v = node.Gate(gate).SheafActivation(sheaf)
		return nil
	})
	if err != nil {
		t.Fatalf("gateValue(%s.%s): %v", uid, gate, err)
	}
	return v
}

// slotValue reads a slot's activation in sheaf.
func slotValue(t *testing.T, n *Nodenet, uid, slot string, sheaf SheafID) float64 {
	t.Helper()
	var v float64
	err := n.Do(func(api *NetAPI) error {
		node, err := api.GetNode(uid)
		if err != nil {
			return err
		}
		v = node.Slot(slot).SheafActivation(sheaf)
		return nil
	})
	if err != nil {
		t.Fatalf("slotValue(%s.%s): %v", uid, slot, err)
	}
	return v
}

func TestCreateNode_UnknownTypeIsDropped(t *testing.T) {
	n := newTestNet(t)
	for _, typ := range []string{"Unicorn", nodetype.Nodespace} {
		_, err := n.CreateNode(NodeSpec{Type: typ})
		if !errors.Is(err, ErrUnknownNodetype) {
			t.Errorf("CreateNode(%s) error = %v, want ErrUnknownNodetype", typ, err)
		}
	}
	if got := len(n.NodeUIDs()); got != 0 {
		t.Errorf("node count = %d, want 0", got)
	}
}

func TestCreateNode_DefaultsAndPlacement(t *testing.T) {
	n := newTestNet(t)
	a := addNode(t, n, "a", nodetype.Pipe, "")
	b, err := n.CreateNode(NodeSpec{Type: nodetype.Concept})
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}
	if b == "" {
		t.Fatal("CreateNode() returned an empty uid")
	}

	pipe, err := n.GetNode(a)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if pipe.Nodespace != RootNodespace {
		t.Errorf("parent = %q, want Root", pipe.Nodespace)
	}
	if pipe.Parameters["wait"] != 10.0 {
		t.Errorf("wait parameter = %v, want default 10", pipe.Parameters["wait"])
	}
	if want := (Position{X: 50, Y: 100}); pipe.Position != want {
		t.Errorf("first node placed at %v, want %v", pipe.Position, want)
	}
}

func TestCreateNode_IllegalParameter(t *testing.T) {
	n := newTestNet(t)
	_, err := n.CreateNode(NodeSpec{Type: nodetype.Activator, Parameters: map[string]any{"type": "sideways"}})
	if err == nil {
		t.Fatal("expected error for illegal activator type")
	}
}

func TestLink_Uniqueness(t *testing.T) {
	n := newTestNet(t)
	a := addNode(t, n, "a", nodetype.Concept, "")
	b := addNode(t, n, "b", nodetype.Concept, "")

	link(t, n, a, "gen", b, "gen", 0.5)
	if err := n.Link(a, "gen", b, "gen", 0.8, 0.3); err != nil {
		t.Fatalf("second Link() error = %v", err)
	}

	want := []Link{{SourceUID: a, Gate: "gen", TargetUID: b, Slot: "gen", Weight: 0.8, Certainty: 0.3}}
	if diff := cmp.Diff(want, n.Links()); diff != "" {
		t.Errorf("Links() mismatch (-want +got):\n%s", diff)
	}
}

func TestLink_Rejects(t *testing.T) {
	n := newTestNet(t)
	a := addNode(t, n, "a", nodetype.Concept, "")
	s := addNode(t, n, "s", nodetype.Sensor, "")

	tests := []struct {
		name                     string
		source, gate, target, sl string
		want                     error
	}{
		{"unknown source", "nope", "gen", a, "gen", ErrNodeNotFound},
		{"unknown target", a, "gen", "nope", "gen", ErrNodeNotFound},
		{"unknown gate", a, "xyz", a, "gen", ErrUnknownGate},
		{"sensor has no slots", a, "gen", s, "gen", ErrUnknownSlot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := n.Link(tt.source, tt.gate, tt.target, tt.sl, 1, 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("Link() error = %v, want %v", err, tt.want)
			}
		})
	}
	if got := len(n.Links()); got != 0 {
		t.Errorf("rejected links were stored: %d", got)
	}
}

func TestUnlinkCompletely(t *testing.T) {
	n := newTestNet(t)
	a := addNode(t, n, "a", nodetype.Concept, "")
	b := addNode(t, n, "b", nodetype.Concept, "")
	c := addNode(t, n, "c", nodetype.Concept, "")
	link(t, n, a, "gen", b, "gen", 1)
	link(t, n, b, "sub", c, "gen", 1)
	link(t, n, c, "gen", b, "gen", 1)
	link(t, n, a, "gen", c, "gen", 1)

	if err := n.UnlinkCompletely(b); err != nil {
		t.Fatalf("UnlinkCompletely() error = %v", err)
	}

	for _, l := range n.Links() {
		if l.SourceUID == b || l.TargetUID == b {
			t.Errorf("link still touches b: %+v", l)
		}
	}
	if got := len(n.Links()); got != 1 {
		t.Errorf("remaining links = %d, want 1", got)
	}
	_ = n.Do(func(api *NetAPI) error {
		node, _ := api.GetNode(b)
		if len(node.Outgoing()) != 0 || len(node.Incoming()) != 0 {
			t.Errorf("b still indexed: out=%v in=%v", node.Outgoing(), node.Incoming())
		}
		return nil
	})
}

func TestUnlink_Filters(t *testing.T) {
	n := newTestNet(t)
	a := addNode(t, n, "a", nodetype.Concept, "")
	b := addNode(t, n, "b", nodetype.Script, "")
	link(t, n, a, "gen", b, "gen", 1)
	link(t, n, a, "sub", b, "sub", 1)
	link(t, n, a, "sub", b, "gen", 1)

	removed, err := n.Unlink(a, "sub", "", "")
	if err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if got := n.Links(); len(got) != 1 || got[0].Gate != "gen" {
		t.Errorf("Links() = %+v, want only the gen link", got)
	}
}

func TestDeleteNode_RemovesLinks(t *testing.T) {
	n := newTestNet(t)
	a := addNode(t, n, "a", nodetype.Concept, "")
	b := addNode(t, n, "b", nodetype.Concept, "")
	link(t, n, a, "gen", b, "gen", 1)
	link(t, n, b, "gen", a, "gen", 1)

	if err := n.DeleteNode(b); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}
	if len(n.Links()) != 0 {
		t.Errorf("links survived deletion: %+v", n.Links())
	}
	if _, err := n.GetNode(b); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("GetNode(deleted) error = %v, want ErrNodeNotFound", err)
	}
	if err := n.DeleteNode(b); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("second DeleteNode() error = %v, want ErrNodeNotFound", err)
	}
}

func TestDeleteNodespace_Cascades(t *testing.T) {
	n := newTestNet(t)
	outer, err := n.CreateNodespace("outer", "", "Outer", Position{})
	if err != nil {
		t.Fatalf("CreateNodespace() error = %v", err)
	}
	inner, err := n.CreateNodespace("inner", outer, "Inner", Position{})
	if err != nil {
		t.Fatalf("CreateNodespace() error = %v", err)
	}
	keep := addNode(t, n, "keep", nodetype.Concept, "")
	a := addNode(t, n, "a", nodetype.Concept, outer)
	b := addNode(t, n, "b", nodetype.Concept, inner)
	link(t, n, keep, "gen", b, "gen", 1)
	link(t, n, a, "gen", keep, "gen", 1)

	inHierarchy, err := n.NodesInHierarchy(outer)
	if err != nil {
		t.Fatalf("NodesInHierarchy() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, inHierarchy); diff != "" {
		t.Errorf("NodesInHierarchy() mismatch (-want +got):\n%s", diff)
	}

	if err := n.DeleteNodespace(outer); err != nil {
		t.Fatalf("DeleteNodespace() error = %v", err)
	}
	if diff := cmp.Diff([]string{keep}, n.NodeUIDs()); diff != "" {
		t.Errorf("NodeUIDs() mismatch (-want +got):\n%s", diff)
	}
	if len(n.Links()) != 0 {
		t.Errorf("links into deleted nodes survived: %+v", n.Links())
	}
	if _, err := n.GetNodespaceData(inner, nil); !errors.Is(err, ErrNodespaceNotFound) {
		t.Errorf("inner nodespace still exists: %v", err)
	}
	if err := n.DeleteNodespace(RootNodespace); !errors.Is(err, ErrRootNodespace) {
		t.Errorf("DeleteNodespace(Root) error = %v, want ErrRootNodespace", err)
	}
}

func TestClear(t *testing.T) {
	n := newTestNet(t)
	addNode(t, n, "a", nodetype.Concept, "")
	if _, err := n.CreateNodespace("ns", "", "", Position{}); err != nil {
		t.Fatalf("CreateNodespace() error = %v", err)
	}
	n.SetModulator("base_porret_decay_factor", 0.5)

	n.Clear()

	if len(n.NodeUIDs()) != 0 {
		t.Error("nodes survived Clear")
	}
	data := n.Export()
	if _, ok := data.Nodespaces[RootNodespace]; !ok || len(data.Nodespaces) != 1 {
		t.Errorf("nodespaces after Clear = %v, want only Root", data.Nodespaces)
	}
	if len(data.Modulators) != 0 {
		t.Errorf("modulators after Clear = %v", data.Modulators)
	}
}

func TestSetPosition_ReindexesViewport(t *testing.T) {
	n := newTestNet(t)
	if _, err := n.CreateNode(NodeSpec{UID: "a", Type: nodetype.Concept, Position: &Position{X: 10, Y: 10}}); err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}
	_ = n.Do(func(api *NetAPI) error {
		node, _ := api.GetNode("a")
		node.SetPosition(Position{X: 510, Y: 510})
		return nil
	})

	view, err := n.GetNodespaceData("", &Area{X1: 0, X2: 100, Y1: 0, Y2: 100})
	if err != nil {
		t.Fatalf("GetNodespaceData() error = %v", err)
	}
	if len(view.Nodes) != 0 {
		t.Errorf("node still found at old position: %v", view.Nodes)
	}
	view, _ = n.GetNodespaceData("", &Area{X1: 500, X2: 600, Y1: 500, Y2: 600})
	if _, ok := view.Nodes["a"]; !ok {
		t.Error("node not found at new position")
	}
}

func TestGetNodespaceData(t *testing.T) {
	n := newTestNet(t)
	child, _ := n.CreateNodespace("child", "", "Child", Position{X: 5, Y: 5})
	for _, spec := range []NodeSpec{
		{UID: "in", Type: nodetype.Concept, Position: &Position{X: 50, Y: 50}},
		{UID: "far", Type: nodetype.Concept, Position: &Position{X: 900, Y: 900}},
		{UID: "other", Type: nodetype.Concept, Nodespace: child, Position: &Position{X: 60, Y: 60}},
	} {
		if _, err := n.CreateNode(spec); err != nil {
			t.Fatalf("CreateNode(%s) error = %v", spec.UID, err)
		}
	}
	link(t, n, "in", "gen", "far", "gen", 0.5)
	link(t, n, "other", "gen", "in", "gen", 0.25)

	view, err := n.GetNodespaceData("", &Area{X1: 0, X2: 200, Y1: 0, Y2: 200})
	if err != nil {
		t.Fatalf("GetNodespaceData() error = %v", err)
	}
	if len(view.Nodes) != 1 || view.Nodes["in"].UID != "in" {
		t.Errorf("Nodes = %v, want only in", view.Nodes)
	}
	if _, ok := view.Followups["far"]; !ok {
		t.Error("linked node outside the area missing from followups")
	}
	if _, ok := view.Followups["other"]; !ok {
		t.Error("linked node in child nodespace missing from followups")
	}
	if len(view.Links) != 2 {
		t.Errorf("Links = %v, want 2", view.Links)
	}
	if _, ok := view.Nodespaces[child]; !ok {
		t.Error("child nodespace missing")
	}
	if view.MaxCoords.X != 900 {
		t.Errorf("MaxCoords = %v, want bucket 900", view.MaxCoords)
	}
}

func TestGetNodespaceData_WideArea(t *testing.T) {
	n := newTestNet(t)
	for _, spec := range []NodeSpec{
		{UID: "near", Type: nodetype.Concept, Position: &Position{X: 50, Y: 50}},
		{UID: "neg", Type: nodetype.Concept, Position: &Position{X: -150, Y: -250}},
	} {
		if _, err := n.CreateNode(spec); err != nil {
			t.Fatalf("CreateNode(%s) error = %v", spec.UID, err)
		}
	}

	tests := []struct {
		name string
		area Area
		want []string
	}{
		{"huge", Area{X1: 0, X2: 1e7, Y1: 0, Y2: 1e7}, []string{"near"}},
		{"whole plane", Area{X1: -math.MaxFloat64, X2: math.MaxFloat64, Y1: -math.MaxFloat64, Y2: math.MaxFloat64}, []string{"near", "neg"}},
		{"negative bucket", Area{X1: -160, X2: -140, Y1: -260, Y2: -240}, []string{"neg"}},
		{"empty", Area{X1: 1e6, X2: 2e6, Y1: 1e6, Y2: 2e6}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan NodespaceView, 1)
			go func() {
				view, err := n.GetNodespaceData("", &tt.area)
				if err != nil {
					t.Errorf("GetNodespaceData() error = %v", err)
				}
				done <- view
			}()
			select {
			case view := <-done:
				var got []string
				for uid := range view.Nodes {
					got = append(got, uid)
				}
				if diff := cmp.Diff(tt.want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
					t.Errorf("nodes mismatch (-want +got):\n%s", diff)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("area query did not return")
			}
		})
	}
}
