package nodenet

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nvandessel/nodenet/internal/nodetype"
)

func TestGroups_LinkWeights(t *testing.T) {
	n := newTestNet(t)
	for _, uid := range []string{"n3", "n1", "n2"} {
		addNode(t, n, uid, nodetype.Concept, "")
	}
	link(t, n, "n3", "gen", "n2", "gen", 0.9)

	weights := [][]float64{
		{0.1, 0.2, 0.3},
		{0.4, 0.5, 0},
		{0.7, 0.8, 0.9},
	}
	err := n.Do(func(api *NetAPI) error {
		if err := api.GroupNodesByIDs("", []string{"n3", "n1", "n2"}, "g", "gen", SortByID); err != nil {
			return err
		}
		members, err := api.GroupMembers("", "g")
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]string{"n1", "n2", "n3"}, members); diff != "" {
			t.Errorf("GroupMembers() mismatch (-want +got):\n%s", diff)
		}
		if err := api.SetLinkWeights("", "g", "", "g", weights); err != nil {
			return err
		}
		got, err := api.GetLinkWeights("", "g", "", "g")
		if err != nil {
			return err
		}
		if diff := cmp.Diff(weights, got); diff != "" {
			t.Errorf("GetLinkWeights() mismatch (-want +got):\n%s", diff)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	links := n.Links()
	if len(links) != 8 {
		t.Errorf("link count = %d, want 8", len(links))
	}
	for _, l := range links {
		if l.SourceUID == "n3" && l.TargetUID == "n2" {
			t.Errorf("zero weight left a link: %+v", l)
		}
		if l.SourceUID == "n1" && l.TargetUID == "n3" && l.Weight != 0.7 {
			t.Errorf("n1 -> n3 weight = %v, want 0.7 (row is target, column is source)", l.Weight)
		}
	}
}

func TestGroups_ActivationsAndThetas(t *testing.T) {
	n := newTestNet(t)
	for _, name := range []string{"b_x", "a_x", "c_y"} {
		if _, err := n.CreateNode(NodeSpec{UID: name, Type: nodetype.Register, Name: name}); err != nil {
			t.Fatalf("CreateNode() error = %v", err)
		}
	}

	err := n.Do(func(api *NetAPI) error {
		if err := api.GroupNodesByNames("", "", "gen", SortByName); err != nil {
			return err
		}
		if err := api.SetActivations("", "", []float64{0.1, 0.2, 0.3}); err != nil {
			return err
		}
		got, err := api.GetActivations("", "")
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]float64{0.1, 0.2, 0.3}, got); diff != "" {
			t.Errorf("GetActivations() mismatch (-want +got):\n%s", diff)
		}
		a, _ := api.GetNode("a_x")
		if a.Gate("gen").Activation() != 0.1 {
			t.Errorf("a_x activation = %v, want first entry", a.Gate("gen").Activation())
		}

		if err := api.SetThetas("", "", []float64{1, 2, 3}); err != nil {
			return err
		}
		thetas, err := api.GetThetas("", "")
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]float64{1, 2, 3}, thetas); diff != "" {
			t.Errorf("GetThetas() mismatch (-want +got):\n%s", diff)
		}

		if err := api.GroupNodesByNames("", "a_", "gen", SortByID); err != nil {
			return err
		}
		members, _ := api.GroupMembers("", "a_")
		if diff := cmp.Diff([]string{"a_x"}, members); diff != "" {
			t.Errorf("prefix group mismatch (-want +got):\n%s", diff)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	node, _ := n.GetNode("c_y")
	if node.GateParameters["gen"]["theta"] != 3.0 {
		t.Errorf("theta override = %v, want 3", node.GateParameters["gen"]["theta"])
	}
}

func TestGroups_Errors(t *testing.T) {
	n := newTestNet(t)
	ns, _ := n.CreateNodespace("ns", "", "", Position{})
	addNode(t, n, "a", nodetype.Concept, "")
	addNode(t, n, "b", nodetype.Concept, ns)

	_ = n.Do(func(api *NetAPI) error {
		if _, err := api.GetActivations("", "missing"); !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("GetActivations(missing) error = %v, want ErrGroupNotFound", err)
		}
		if err := api.GroupNodesByIDs("", []string{"a", "b"}, "g", "gen", SortByID); err == nil {
			t.Error("grouping a node of another nodespace succeeded")
		}
		if err := api.GroupNodesByIDs("", []string{"a"}, "g", "gen", SortByID); err != nil {
			t.Fatalf("GroupNodesByIDs() error = %v", err)
		}
		if err := api.SetActivations("", "g", []float64{1, 2}); err == nil {
			t.Error("SetActivations with wrong length succeeded")
		}
		if err := api.SetLinkWeights("", "g", "", "g", [][]float64{{1, 2}}); err == nil {
			t.Error("SetLinkWeights with wrong width succeeded")
		}
		if err := api.UngroupNodes("", "g"); err != nil {
			t.Errorf("UngroupNodes() error = %v", err)
		}
		if _, err := api.GroupMembers("", "g"); !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("group survived UngroupNodes: %v", err)
		}
		return nil
	})
}

func TestGroups_SetLinkWeightsValidatesFirst(t *testing.T) {
	n := newTestNet(t)
	addNode(t, n, "c1", nodetype.Concept, "")
	addNode(t, n, "r1", nodetype.Register, "")
	addNode(t, n, "t1", nodetype.Register, "")
	link(t, n, "c1", "sub", "t1", "gen", 0.5)

	err := n.Do(func(api *NetAPI) error {
		if err := api.GroupNodesByIDs("", []string{"c1", "r1"}, "from", "sub", SortByID); err != nil {
			return err
		}
		if err := api.GroupNodesByIDs("", []string{"t1"}, "to", "gen", SortByID); err != nil {
			return err
		}
		// r1 is a Register and has no sub gate.
		err := api.SetLinkWeights("", "from", "", "to", [][]float64{{0, 0.4}})
		if !errors.Is(err, ErrUnknownGate) {
			t.Errorf("SetLinkWeights() error = %v, want ErrUnknownGate", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	links := n.Links()
	if len(links) != 1 || links[0].SourceUID != "c1" || links[0].Weight != 0.5 {
		t.Errorf("links = %+v, want c1 -> t1 untouched", links)
	}
}
