package main

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// isolateHome points HOME at a temp directory and clears the environment
// overrides so tests never touch the real ~/.nodenet. It returns the data
// directory the tests should pass with --data-dir.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"NODENET_LOG_LEVEL", "NODENET_DATA_DIR", "NODENET_STEP_INTERVAL", "NODENET_NATIVE_MODULES"} {
		t.Setenv(key, "")
	}
	return filepath.Join(home, "data")
}

// execute runs the root command with args against dataDir and returns
// what it wrote to stdout.
func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--data-dir", dataDir))
	err := root.Execute()
	return out.String(), err
}

// executeJSON runs a command with --json and decodes its output.
func executeJSON(t *testing.T, dataDir string, args ...string) map[string]any {
	t.Helper()
	out, err := execute(t, dataDir, append(args, "--json")...)
	if err != nil {
		t.Fatalf("%s failed: %v", strings.Join(args, " "), err)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("%s: invalid JSON output %q: %v", strings.Join(args, " "), out, err)
	}
	return result
}

// createNet stores a nodenet with uid net1 and returns its data directory.
func createNet(t *testing.T) string {
	t.Helper()
	dataDir := isolateHome(t)
	if _, err := execute(t, dataDir, "new", "Test net", "--uid", "net1"); err != nil {
		t.Fatalf("new failed: %v", err)
	}
	return dataDir
}

// addNode adds a node to net1 and returns its uid.
func addNode(t *testing.T, dataDir, typ string, extra ...string) string {
	t.Helper()
	result := executeJSON(t, dataDir, append([]string{"add-node", "net1", typ}, extra...)...)
	uid, _ := result["uid"].(string)
	if uid == "" {
		t.Fatalf("add-node %s returned no uid: %v", typ, result)
	}
	return uid
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	sort.Strings(got)

	// completion and help are only added by Execute.
	want := []string{
		"add-node", "add-nodespace", "config", "delete", "export", "graph", "group",
		"import", "link", "list", "mcp-server", "new", "run", "show", "snapshots",
		"step", "unlink", "version",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestVersionCmd(t *testing.T) {
	dataDir := isolateHome(t)
	out, err := execute(t, dataDir, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "nodenet version "+version) {
		t.Errorf("output = %q, want version %s", out, version)
	}

	result := executeJSON(t, dataDir, "version")
	if result["version"] != version {
		t.Errorf("version = %v, want %s", result["version"], version)
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{"none", nil, nil, false},
		{"number", []string{"expectation=0.8"}, map[string]any{"expectation": 0.8}, false},
		{"bool", []string{"wait=true"}, map[string]any{"wait": true}, false},
		{"string", []string{"datasource=light"}, map[string]any{"datasource": "light"}, false},
		{"value with equals", []string{"expr=a=b"}, map[string]any{"expr": "a=b"}, false},
		{"missing equals", []string{"oops"}, nil, true},
		{"empty key", []string{"=1"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseParams() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInvalidLogLevelFlag(t *testing.T) {
	dataDir := isolateHome(t)
	if _, err := execute(t, dataDir, "list", "--log-level", "loud"); err == nil {
		t.Fatal("expected error for invalid --log-level")
	}
}
