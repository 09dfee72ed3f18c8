package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nvandessel/nodenet/internal/columnar"
)

func TestGroupVectorRoundTrip(t *testing.T) {
	dataDir := createNet(t)
	in1 := addNode(t, dataDir, "Register", "--name", "in1")
	in2 := addNode(t, dataDir, "Register", "--name", "in2")
	addNode(t, dataDir, "Register", "--name", "other")

	path := filepath.Join(t.TempDir(), "theta.arrow")
	exported := executeJSON(t, dataDir, "group", "export", "net1", "in", "--kind", "theta", "-o", path)
	if exported["size"] != float64(2) {
		t.Fatalf("exported size = %v, want 2", exported["size"])
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	v, err := columnar.ReadVector(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadVector() error = %v", err)
	}
	if diff := cmp.Diff([]string{in1, in2}, v.UIDs); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}

	// Write modified thetas back and read them out again.
	v.Values = []float64{0.25, 0.75}
	modified := filepath.Join(t.TempDir(), "modified.arrow")
	out, err := os.Create(modified)
	if err != nil {
		t.Fatal(err)
	}
	if err := columnar.WriteVector(out, v); err != nil {
		t.Fatal(err)
	}
	out.Close()

	executeJSON(t, dataDir, "group", "import", "net1", modified)
	executeJSON(t, dataDir, "group", "export", "net1", "in", "--kind", "theta", "-o", path)

	f, err = os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := columnar.ReadVector(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadVector() error = %v", err)
	}
	if diff := cmp.Diff([]float64{0.25, 0.75}, got.Values); diff != "" {
		t.Errorf("thetas mismatch (-want +got):\n%s", diff)
	}

	if _, err := execute(t, dataDir, "group", "export", "net1", "in", "--kind", "bias", "-o", path); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestGroupWeights(t *testing.T) {
	dataDir := createNet(t)
	in1 := addNode(t, dataDir, "Register", "--name", "in1")
	in2 := addNode(t, dataDir, "Register", "--name", "in2")
	out1 := addNode(t, dataDir, "Register", "--name", "out1")
	executeJSON(t, dataDir, "link", "net1", in2, out1, "--weight", "0.5")

	path := filepath.Join(t.TempDir(), "w.arrow")
	result := executeJSON(t, dataDir, "group", "weights", "net1", "in", "out", "-o", path)
	if result["rows"] != float64(1) || result["columns"] != float64(2) {
		t.Fatalf("weights shape = %v x %v, want 1 x 2", result["rows"], result["columns"])
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	m, err := columnar.ReadMatrix(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadMatrix() error = %v", err)
	}
	if diff := cmp.Diff([][]float64{{0, 0.5}}, m.Weights); diff != "" {
		t.Errorf("weights mismatch (-want +got):\n%s", diff)
	}

	// Swap the weights: in1 gets a link, in2 loses its link.
	m.Weights = [][]float64{{0.9, 0}}
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := columnar.WriteMatrix(out, m); err != nil {
		t.Fatal(err)
	}
	out.Close()

	executeJSON(t, dataDir, "group", "set-weights", "net1", path)

	view := executeJSON(t, dataDir, "show", "net1")
	links, _ := view["links"].([]any)
	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	link, _ := links[0].(map[string]any)
	if link["source_node_uid"] != in1 || link["weight"] != 0.9 {
		t.Errorf("link = %v, want %s with weight 0.9", link, in1)
	}
}
