package worldadapter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemory_ReadsSnapshot(t *testing.T) {
	m := NewMemory([]string{"light"}, nil)
	m.SetDatasource("light", 0.8)

	if v, _ := m.ReadDatasource("light"); v != 0 {
		t.Errorf("before Snapshot: light = %v, want 0", v)
	}
	m.Snapshot()
	if v, ok := m.ReadDatasource("light"); !ok || v != 0.8 {
		t.Errorf("after Snapshot: light = %v, %v, want 0.8, true", v, ok)
	}
	m.SetDatasource("light", 0.1)
	if v, _ := m.ReadDatasource("light"); v != 0.8 {
		t.Errorf("live change leaked into snapshot: light = %v", v)
	}
	if _, ok := m.ReadDatasource("missing"); ok {
		t.Error("missing datasource reported as present")
	}
	if m.Snapshots() != 1 {
		t.Errorf("Snapshots() = %d, want 1", m.Snapshots())
	}
}

func TestMemory_DatatargetsAccumulate(t *testing.T) {
	m := NewMemory(nil, []string{"move"})
	m.WriteDatatarget("move", 0.25)
	m.WriteDatatarget("move", 0.5)
	m.WriteDatatarget("unknown", 1)

	if got := m.Datatarget("move"); got != 0.75 {
		t.Errorf("move = %v, want 0.75", got)
	}
	drained := m.DrainDatatargets()
	if diff := cmp.Diff(map[string]float64{"move": 0.75}, drained); diff != "" {
		t.Errorf("DrainDatatargets() mismatch (-want +got):\n%s", diff)
	}
	if got := m.Datatarget("move"); got != 0 {
		t.Errorf("after drain move = %v, want 0", got)
	}
}

func TestMemory_ChannelNames(t *testing.T) {
	m := NewMemory([]string{"b", "a"}, []string{"y", "x"})
	m.SetDatasource("c", 1)
	m.AddDatatarget("z")

	if diff := cmp.Diff([]string{"a", "b", "c"}, m.Datasources()); diff != "" {
		t.Errorf("Datasources() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"x", "y", "z"}, m.Datatargets()); diff != "" {
		t.Errorf("Datatargets() mismatch (-want +got):\n%s", diff)
	}
}
