package mcp

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/nodenet/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServer(t *testing.T) {
	dataDir := t.TempDir()
	server, err := NewServer(&Config{
		Name:    "test-server",
		Version: "v1.0.0",
		DataDir: dataDir,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if _, ok := server.repo.(*store.SQLiteStore); !ok {
		t.Errorf("default repository = %T, want *store.SQLiteStore", server.repo)
	}
	if server.snapshotDir != store.SnapshotDir(dataDir) {
		t.Errorf("snapshotDir = %q, want %q", server.snapshotDir, store.SnapshotDir(dataDir))
	}
	if _, err := os.Stat(filepath.Join(dataDir, auditFileName)); err != nil {
		t.Errorf("audit log not created: %v", err)
	}
}

func TestNewServer_RequiresDataDir(t *testing.T) {
	if _, err := NewServer(&Config{Name: "test-server"}); err == nil {
		t.Error("expected error without a data directory")
	}
}

func TestNewServer_NativeModules(t *testing.T) {
	modDir := t.TempDir()
	def := `name: Probe
slottypes: [gen]
gatetypes: [gen]
nodefunction_name: register
`
	if err := os.WriteFile(filepath.Join(modDir, "probe.yaml"), []byte(def), 0600); err != nil {
		t.Fatal(err)
	}

	server, err := NewServer(&Config{
		Name:            "test-server",
		DataDir:         t.TempDir(),
		NativeModuleDir: modDir,
		Repository:      store.NewInMemoryStore(),
		Logger:          testLogger(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	ctx := context.Background()
	_, created, err := server.handleCreateNodenet(ctx, &sdk.CallToolRequest{}, CreateNodenetInput{Name: "natives"})
	if err != nil {
		t.Fatal(err)
	}
	_, node, err := server.handleCreateNode(ctx, &sdk.CallToolRequest{}, CreateNodeInput{Nodenet: created.UID, Type: "Probe"})
	if err != nil {
		t.Fatalf("creating native module node: %v", err)
	}
	if node.UID == "" {
		t.Error("empty node uid")
	}
}

func TestNewServer_BadNativeModuleDir(t *testing.T) {
	_, err := NewServer(&Config{
		Name:            "test-server",
		DataDir:         t.TempDir(),
		NativeModuleDir: filepath.Join(t.TempDir(), "missing"),
		Repository:      store.NewInMemoryStore(),
	})
	if err == nil {
		t.Error("expected error for a missing native module directory")
	}
}

func TestServer_InMemoryTransport(t *testing.T) {
	server, _ := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	ss, err := server.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer ss.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools.Tools) != 10 {
		t.Errorf("got %d tools, want 10", len(tools.Tools))
	}

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      "nodenet_create",
		Arguments: map[string]any{"name": "over the wire"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("nodenet_create returned a tool error: %+v", res.Content)
	}

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{Name: "nodenet_list", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	out, ok := res.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("structured content = %T, want object", res.StructuredContent)
	}
	if out["count"] != float64(1) {
		t.Errorf("count = %v, want 1", out["count"])
	}

	rr, err := cs.ReadResource(ctx, &sdk.ReadResourceParams{URI: nodenetsURI})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(rr.Contents) != 1 || !strings.Contains(rr.Contents[0].Text, "over the wire") {
		t.Errorf("resource does not list the new nodenet: %+v", rr.Contents)
	}
}
