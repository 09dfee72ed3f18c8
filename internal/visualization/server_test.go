package visualization

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/nodenet/internal/nodenet"
)

func TestServer_Routes(t *testing.T) {
	n := setupTestNet(t)
	srv := httptest.NewServer(NewServer(n, "", 0).Handler())
	defer srv.Close()

	tests := []struct {
		name        string
		method      string
		path        string
		status      int
		contentType string
		contains    string
	}{
		{"index", http.MethodGet, "/?ns=inner", http.StatusOK, "text/html; charset=utf-8", "nodespace inner"},
		{"dot", http.MethodGet, "/graph.dot?ns=inner", http.StatusOK, "text/vnd.graphviz; charset=utf-8", `"a" -> "b"`},
		{"dot area", http.MethodGet, "/graph.dot?ns=inner&x1=0&x2=100&y1=0&y2=100", http.StatusOK, "text/vnd.graphviz; charset=utf-8", "filled,dashed"},
		{"nodespace json", http.MethodGet, "/api/nodespace?ns=inner", http.StatusOK, "application/json", `"followupnodes"`},
		{"unknown nodespace", http.MethodGet, "/api/nodespace?ns=missing", http.StatusNotFound, "", ""},
		{"bad area", http.MethodGet, "/graph.dot?x1=a&x2=1&y1=0&y2=1", http.StatusBadRequest, "", ""},
		{"infinite area", http.MethodGet, "/graph.dot?x1=-Inf&x2=Inf&y1=0&y2=1", http.StatusBadRequest, "", ""},
		{"nan area", http.MethodGet, "/graph.dot?x1=NaN&x2=1&y1=0&y2=1", http.StatusBadRequest, "", ""},
		{"step needs post", http.MethodGet, "/api/step", http.StatusMethodNotAllowed, "", ""},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("%s %s: %v", tt.method, tt.path, err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.status, body)
			}
			if tt.contentType != "" && resp.Header.Get("Content-Type") != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", resp.Header.Get("Content-Type"), tt.contentType)
			}
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("body does not contain %q:\n%s", tt.contains, body)
			}
		})
	}
}

func TestServer_Step(t *testing.T) {
	n := setupTestNet(t)
	srv := httptest.NewServer(NewServer(n, "", 0).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/step", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/step: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var view nodenet.NodespaceView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if view.Step != 1 || n.CurrentStep() != 1 {
		t.Errorf("step = %d (view) %d (net), want 1", view.Step, n.CurrentStep())
	}
}

func TestServer_CleanShutdown(t *testing.T) {
	srv := NewServer(setupTestNet(t), "", 0)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForServer(t, srv, 2*time.Second)

	// Cancel context to trigger shutdown
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down within 3 seconds")
	}
}

// waitForServer polls the server until it's ready or the timeout is reached.
func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start within timeout")
}
